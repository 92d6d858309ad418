package wal

import (
	"github.com/mit-pdos/vsfs-journal/common"
	"github.com/mit-pdos/vsfs-journal/disk"
	"github.com/mit-pdos/vsfs-journal/util"
)

// ReadMem returns the image of blkno from the newest committed group that
// writes it, if any group does.
func (l *Walog) ReadMem(blkno common.Bnum) (disk.Block, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, err := l.load()
	if err != nil {
		return nil, false, err
	}
	var blk disk.Block
	_, err = r.scan(func(group []Update) error {
		for _, u := range group {
			if u.Addr == blkno {
				blk = u.Block
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if blk == nil {
		return nil, false, nil
	}
	util.DPrintf(5, "ReadMem: %d from journal\n", blkno)
	return util.CloneByteSlice(blk), true, nil
}

// Read from only the installed state.
func (l *Walog) ReadInstalled(blkno common.Bnum) (disk.Block, error) {
	return l.d.Read(blkno)
}

// Read returns the latest committed contents of blkno: the journal's copy if
// one is waiting to be installed, the home location otherwise.
func (l *Walog) Read(blkno common.Bnum) (disk.Block, error) {
	blk, ok, err := l.ReadMem(blkno)
	if err != nil {
		return nil, err
	}
	if ok {
		return blk, nil
	}
	return l.ReadInstalled(blkno)
}

// Committed returns the groups an Install would apply now, without
// applying them.
func (l *Walog) Committed() ([][]Update, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, err := l.load()
	if err != nil {
		return nil, err
	}
	var groups [][]Update
	_, err = r.scan(func(group []Update) error {
		groups = append(groups, group)
		return nil
	})
	return groups, err
}

// Space reports how many bytes of the journal are in use (header included)
// and its capacity.
func (l *Walog) Space() (uint64, uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, err := l.load()
	if err != nil {
		return 0, 0, err
	}
	return r.used, r.capacity(), nil
}
