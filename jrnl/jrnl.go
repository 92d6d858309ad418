// Package jrnl is the top-level journal API.
//
// It provides atomic operations that are buffered locally and written to the
// journal as a single group when committed.
//
// The caller uses this interface by beginning an operation Op, reading and
// overwriting whole blocks within it, and finally committing it. Reads see
// the operation's own writes first, then anything committed to the journal
// but not yet installed, then the installed disk.
//
// Commit only makes the operation durable in the journal; the blocks reach
// their home locations when the journal is installed (see wal.Walog.Install).
// If Commit fails with wal.ErrJournalFull the operation had no effect and can
// be retried after an install.
package jrnl

import (
	"fmt"

	"github.com/mit-pdos/vsfs-journal/common"
	"github.com/mit-pdos/vsfs-journal/disk"
	"github.com/mit-pdos/vsfs-journal/util"
	"github.com/mit-pdos/vsfs-journal/wal"
)

// Op is an in-progress journal operation.
//
// Call Commit to persist the operation's writes.
// To abort the operation simply stop using it.
type Op struct {
	log   *wal.Walog
	bufs  []wal.Update // pending group, in first-write order
	index map[common.Bnum]int
}

// Begin starts a local journal operation with no writes.
func Begin(log *wal.Walog) *Op {
	op := &Op{
		log:   log,
		index: make(map[common.Bnum]int),
	}
	util.DPrintf(3, "Begin: %p\n", op)
	return op
}

// ReadBlock returns a private copy of block bn as this operation sees it.
func (op *Op) ReadBlock(bn common.Bnum) (disk.Block, error) {
	if i, ok := op.index[bn]; ok {
		return util.CloneByteSlice(op.bufs[i].Block), nil
	}
	blk, err := op.log.Read(bn)
	if err != nil {
		return nil, err
	}
	return blk, nil
}

// OverWrite replaces the contents of block bn. A later OverWrite of the same
// block in this operation replaces the earlier one.
func (op *Op) OverWrite(bn common.Bnum, blk disk.Block) {
	if uint64(len(blk)) != disk.BlockSize {
		panic(fmt.Errorf("overwrite of %d with %d bytes", bn, len(blk)))
	}
	data := util.CloneByteSlice(blk)
	if i, ok := op.index[bn]; ok {
		op.bufs[i].Block = data
		return
	}
	op.index[bn] = len(op.bufs)
	op.bufs = append(op.bufs, wal.MkBlockData(bn, data))
}

// NDirty reports how many blocks this operation writes.
func (op *Op) NDirty() uint64 {
	return uint64(len(op.bufs))
}

// Commit stages the operation's writes as one journal group.
//
// An operation with no writes commits trivially without touching the
// journal.
func (op *Op) Commit() error {
	if len(op.bufs) == 0 {
		util.DPrintf(5, "commit read-only op\n")
		return nil
	}
	util.DPrintf(3, "Commit %p: %d blocks\n", op, len(op.bufs))
	return op.log.StageGroup(op.bufs)
}
