// Package twophase wraps a journal operation with two-phase locking: every
// block the operation reads or writes is locked on first access, and all
// locks are released once the operation commits or aborts.
//
// Operations that share a LockMap and touch a common block are therefore
// serialized, which keeps read-modify-write sequences such as inode
// allocation from interleaving. Callers must access blocks in a consistent
// order to avoid deadlock.
package twophase

import (
	"github.com/mit-pdos/vsfs-journal/common"
	"github.com/mit-pdos/vsfs-journal/disk"
	"github.com/mit-pdos/vsfs-journal/jrnl"
	"github.com/mit-pdos/vsfs-journal/lockmap"
	"github.com/mit-pdos/vsfs-journal/util"
	"github.com/mit-pdos/vsfs-journal/wal"
)

type TwoPhase struct {
	op       *jrnl.Op
	locks    *lockmap.LockMap
	acquired []common.Bnum
}

func Begin(log *wal.Walog, l *lockmap.LockMap) *TwoPhase {
	tp := &TwoPhase{
		op:    jrnl.Begin(log),
		locks: l,
	}
	util.DPrintf(5, "tp Begin: %p\n", tp)
	return tp
}

func (tp *TwoPhase) Acquire(bn common.Bnum) {
	for _, acq := range tp.acquired {
		if acq == bn {
			return
		}
	}
	tp.locks.Acquire(bn)
	tp.acquired = append(tp.acquired, bn)
}

// ReleaseAll drops every lock in reverse acquisition order. It is also how
// an operation is aborted.
func (tp *TwoPhase) ReleaseAll() {
	for i := len(tp.acquired) - 1; i >= 0; i-- {
		tp.locks.Release(tp.acquired[i])
	}
	tp.acquired = nil
}

func (tp *TwoPhase) ReadBlock(bn common.Bnum) (disk.Block, error) {
	tp.Acquire(bn)
	return tp.op.ReadBlock(bn)
}

func (tp *TwoPhase) OverWrite(bn common.Bnum, blk disk.Block) {
	tp.Acquire(bn)
	tp.op.OverWrite(bn, blk)
}

func (tp *TwoPhase) NDirty() uint64 {
	return tp.op.NDirty()
}

// Commit stages the operation and releases its locks, whether or not the
// commit succeeded.
func (tp *TwoPhase) Commit() error {
	util.DPrintf(5, "tp Commit %p\n", tp)
	err := tp.op.Commit()
	tp.ReleaseAll()
	return err
}
