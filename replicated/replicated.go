// Package replicated keeps one logical block in two home locations, a and
// a+1. Both copies change in the same journal group, so after any crash
// and install they agree.
package replicated

import (
	"sync"

	"github.com/mit-pdos/vsfs-journal/common"
	"github.com/mit-pdos/vsfs-journal/disk"
	"github.com/mit-pdos/vsfs-journal/jrnl"
	"github.com/mit-pdos/vsfs-journal/wal"
)

type RepBlock struct {
	log *wal.Walog

	m  *sync.Mutex
	a0 common.Bnum
	a1 common.Bnum
}

func Open(log *wal.Walog, a common.Bnum) *RepBlock {
	return &RepBlock{
		log: log,
		m:   new(sync.Mutex),
		a0:  a,
		a1:  a + 1,
	}
}

// Read returns the primary copy as of the latest committed group.
func (rb *RepBlock) Read() (disk.Block, error) {
	rb.m.Lock()
	defer rb.m.Unlock()
	return jrnl.Begin(rb.log).ReadBlock(rb.a0)
}

func (rb *RepBlock) Write(b disk.Block) error {
	rb.m.Lock()
	defer rb.m.Unlock()
	op := jrnl.Begin(rb.log)
	op.OverWrite(rb.a0, b)
	op.OverWrite(rb.a1, b)
	return op.Commit()
}
