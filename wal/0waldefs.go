package wal

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/mit-pdos/vsfs-journal/common"
	"github.com/mit-pdos/vsfs-journal/disk"
	"github.com/mit-pdos/vsfs-journal/util"
)

var (
	// ErrJournalFull means the group does not fit in the space left in the
	// journal. Nothing was written; run Install and retry.
	ErrJournalFull = errors.New("wal: journal is full")

	// ErrBadAddress means a write targets a block that cannot be a home
	// location: past the end of the disk, beyond the 4-byte address field,
	// or inside the journal itself.
	ErrBadAddress = errors.New("wal: invalid home address")

	// ErrBadBlock means a write's image is not exactly one block.
	ErrBadBlock = errors.New("wal: block image is not block-sized")
)

// Update is one block write of a group: the full new image of block Addr.
type Update struct {
	Addr  common.Bnum
	Block disk.Block
}

func MkBlockData(bn common.Bnum, blk disk.Block) Update {
	b := Update{Addr: bn, Block: blk}
	return b
}

// InstallReport describes one Install pass.
type InstallReport struct {
	Groups    uint64 // sealed groups applied
	Blocks    uint64 // home block writes issued
	Discarded uint64 // data records dropped for lack of a seal
}

// Walog is the journal of one disk image.
//
// The mutex serializes operations on this Walog; the journal assumes no
// other process writes the image at the same time.
type Walog struct {
	mu    *sync.Mutex
	d     disk.Disk
	start common.Bnum
	nblks uint64
	size  uint64 // disk size, in blocks
}

// MkLog opens the journal at its standard location (blocks 1-16).
func MkLog(d disk.Disk) (*Walog, error) {
	return MkLogRegion(d, common.JOURNALSTART, common.JOURNALBLKS)
}

// MkLogRegion opens a journal occupying blocks [start, start+nblks) of d.
//
// Nothing is read or written; an uninitialized region is formatted by the
// first operation that needs it.
func MkLogRegion(d disk.Disk, start common.Bnum, nblks uint64) (*Walog, error) {
	size, err := d.Size()
	if err != nil {
		return nil, err
	}
	if nblks == 0 || util.SumOverflows(start, nblks) || start+nblks > size {
		return nil, fmt.Errorf("wal: region %d+%d does not fit %d-block disk",
			start, nblks, size)
	}
	capacity := nblks * disk.BlockSize
	if capacity > math.MaxUint32 {
		return nil, fmt.Errorf("wal: region of %d bytes overflows the header", capacity)
	}
	l := &Walog{
		mu:    new(sync.Mutex),
		d:     d,
		start: start,
		nblks: nblks,
		size:  size,
	}
	util.DPrintf(1, "MkLog: region %d+%d, %d bytes\n", start, nblks, capacity)
	return l, nil
}

// Capacity is the size of the journal region in bytes, header included.
func (l *Walog) Capacity() uint64 {
	return l.nblks * disk.BlockSize
}

func (l *Walog) inRegion(a common.Bnum) bool {
	return a >= l.start && a < l.start+l.nblks
}

func (l *Walog) checkUpdate(u Update) error {
	if uint64(len(u.Block)) != disk.BlockSize {
		return fmt.Errorf("%w: block %d has %d bytes", ErrBadBlock, u.Addr, len(u.Block))
	}
	if u.Addr > math.MaxUint32 || u.Addr >= l.size {
		return fmt.Errorf("%w: block %d is off the %d-block disk", ErrBadAddress, u.Addr, l.size)
	}
	if l.inRegion(u.Addr) {
		return fmt.Errorf("%w: block %d is inside the journal", ErrBadAddress, u.Addr)
	}
	return nil
}
