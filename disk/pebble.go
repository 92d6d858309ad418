package disk

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/mit-pdos/vsfs-journal/util"
)

var _ Disk = (*PebbleDisk)(nil)
var _ BatchDisk = (*PebbleDisk)(nil)

// PebbleDisk stores each block as one value in a pebble database, keyed by
// its big-endian block number. Blocks never written read as zeros.
//
// WriteBatch commits all blocks in one synced pebble batch, so a multi-block
// write is atomic on this medium.
type PebbleDisk struct {
	db        *pebble.DB
	numBlocks uint64
}

var sizeKey = []byte("nblocks")

func blockKey(a uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, a)
	return k
}

// NewPebbleDisk opens (or creates) the database in dir. numBlocks == 0
// reuses the size recorded when the database was created.
func NewPebbleDisk(dir string, numBlocks uint64) (*PebbleDisk, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble %s: %w", dir, err)
	}
	if numBlocks == 0 {
		v, closer, err := db.Get(sizeKey)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: cannot determine disk size: %w", dir, err)
		}
		numBlocks = binary.BigEndian.Uint64(v)
		closer.Close()
	} else {
		err = db.Set(sizeKey, blockKey(numBlocks), pebble.Sync)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: record size: %v", ErrIO, err)
		}
	}
	util.DPrintf(1, "NewPebbleDisk: %s, %d blocks\n", dir, numBlocks)
	return &PebbleDisk{db: db, numBlocks: numBlocks}, nil
}

func (d *PebbleDisk) ReadTo(a uint64, buf Block) error {
	if err := checkAccess("read", a, 1, d.numBlocks, len(buf)); err != nil {
		return err
	}
	v, closer, err := d.db.Get(blockKey(a))
	if errors.Is(err, pebble.ErrNotFound) {
		for i := range buf {
			buf[i] = 0
		}
		return nil
	}
	if err != nil {
		return ioError("read", a, err)
	}
	defer closer.Close()
	if uint64(len(v)) != BlockSize {
		return ioError("read", a, fmt.Errorf("stored value is %d bytes", len(v)))
	}
	copy(buf, v)
	return nil
}

func (d *PebbleDisk) Read(a uint64) (Block, error) {
	buf := make(Block, BlockSize)
	err := d.ReadTo(a, buf)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *PebbleDisk) Write(a uint64, v Block) error {
	if err := checkAccess("write", a, 1, d.numBlocks, len(v)); err != nil {
		return err
	}
	err := d.db.Set(blockKey(a), v, pebble.NoSync)
	if err != nil {
		return ioError("write", a, err)
	}
	return nil
}

func (d *PebbleDisk) Size() (uint64, error) {
	return d.numBlocks, nil
}

// Barrier makes unsynced single-block writes durable.
func (d *PebbleDisk) Barrier() error {
	err := d.db.Flush()
	if err != nil {
		return fmt.Errorf("%w: flush: %v", ErrIO, err)
	}
	return nil
}

func (d *PebbleDisk) Close() error {
	return d.db.Close()
}

func (d *PebbleDisk) ReadBatch(startPos uint64, n uint64) ([]Block, error) {
	if err := checkAccess("read", startPos, n, d.numBlocks, int(BlockSize)); err != nil {
		return nil, err
	}
	blks := make([]Block, 0, n)
	for i := uint64(0); i < n; i++ {
		blk, err := d.Read(startPos + i)
		if err != nil {
			return nil, err
		}
		blks = append(blks, blk)
	}
	return blks, nil
}

func (d *PebbleDisk) WriteBatch(startPos uint64, blocks []Block) error {
	n := uint64(len(blocks))
	if err := checkAccess("write", startPos, n, d.numBlocks, int(BlockSize)); err != nil {
		return err
	}
	b := d.db.NewBatch()
	defer b.Close()
	for i, blk := range blocks {
		a := startPos + uint64(i)
		if uint64(len(blk)) != BlockSize {
			return checkAccess("write", a, 1, d.numBlocks, len(blk))
		}
		if err := b.Set(blockKey(a), blk, nil); err != nil {
			return ioError("write", a, err)
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return ioError("write", startPos, err)
	}
	return nil
}
