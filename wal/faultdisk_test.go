package wal

import (
	"errors"
	"fmt"

	"github.com/mit-pdos/vsfs-journal/disk"
)

var errCrashed = errors.New("crashed")

// crashDisk passes the first budget writes through to d and then crashes:
// later writes are dropped and fail, as if the machine stopped.
type crashDisk struct {
	disk.Disk
	budget int
	writes int
}

func (c *crashDisk) Write(a uint64, v disk.Block) error {
	c.writes++
	if c.writes > c.budget {
		return errCrashed
	}
	return c.Disk.Write(a, v)
}

// failDisk fails every write to block bad with an I/O error.
type failDisk struct {
	disk.Disk
	bad uint64
}

func (f *failDisk) Write(a uint64, v disk.Block) error {
	if a == f.bad {
		return fmt.Errorf("%w: injected failure at %d", disk.ErrIO, a)
	}
	return f.Disk.Write(a, v)
}

func snapshot(d disk.Disk) []disk.Block {
	sz, _ := d.Size()
	blks, err := disk.ReadRun(d, 0, sz)
	if err != nil {
		panic(err)
	}
	return blks
}
