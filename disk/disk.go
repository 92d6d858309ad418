package disk

import (
	"errors"
	"fmt"

	goosedisk "github.com/tchajed/goose/machine/disk"
)

// Block is a 4096-byte buffer
type Block = []byte

const BlockSize uint64 = goosedisk.BlockSize

// ErrIO is wrapped by every error a Disk returns: the medium did not
// transfer exactly the requested bytes at exactly the requested offset.
var ErrIO = errors.New("disk: I/O failure")

// Disk provides access to a logical block-based disk
//
// Every method either transfers whole blocks or fails with an error wrapping
// ErrIO; a short transfer is never reported as success.
type Disk interface {
	// Read reads a disk block by address
	//
	// Expects a < Size().
	Read(a uint64) (Block, error)

	// ReadTo reads the disk block at a and stores the result in b
	//
	// Expects a < Size().
	ReadTo(a uint64, b Block) error

	// Write updates a disk block by address
	//
	// Expects a < Size().
	Write(a uint64, v Block) error

	// Size reports how big the disk is, in blocks
	Size() (uint64, error)

	// Barrier ensures data is persisted.
	//
	// When it returns, all outstanding writes are guaranteed to be durably on
	// disk
	Barrier() error

	// Close releases any resources used by the disk and makes it unusable.
	Close() error
}

// BatchDisk is implemented by media that can move a contiguous run of
// blocks in one transfer.
type BatchDisk interface {
	ReadBatch(startPos uint64, n uint64) ([]Block, error)
	WriteBatch(startPos uint64, blocks []Block) error
}

func ioError(op string, a uint64, err error) error {
	return fmt.Errorf("%w: %s block %d: %v", ErrIO, op, a, err)
}

func checkAccess(op string, a uint64, n uint64, size uint64, buflen int) error {
	if uint64(buflen) != BlockSize {
		return fmt.Errorf("%w: %s block %d: buffer is %d bytes, not block-sized",
			ErrIO, op, a, buflen)
	}
	if a >= size || n > size-a {
		return fmt.Errorf("%w: out-of-bounds %s at %d (+%d) on %d-block disk",
			ErrIO, op, a, n, size)
	}
	return nil
}

// ReadRun reads n contiguous blocks starting at start, in one transfer when
// d supports it.
func ReadRun(d Disk, start uint64, n uint64) ([]Block, error) {
	if bd, ok := d.(BatchDisk); ok {
		return bd.ReadBatch(start, n)
	}
	blks := make([]Block, 0, n)
	for i := uint64(0); i < n; i++ {
		blk, err := d.Read(start + i)
		if err != nil {
			return nil, err
		}
		blks = append(blks, blk)
	}
	return blks, nil
}

// WriteRun writes blocks contiguously from start, in one transfer when d
// supports it.
func WriteRun(d Disk, start uint64, blocks []Block) error {
	if bd, ok := d.(BatchDisk); ok {
		return bd.WriteBatch(start, blocks)
	}
	size, err := d.Size()
	if err != nil {
		return err
	}
	if err := checkAccess("write", start, uint64(len(blocks)), size, int(BlockSize)); err != nil {
		return err
	}
	for i, blk := range blocks {
		if err := d.Write(start+uint64(i), blk); err != nil {
			return err
		}
	}
	return nil
}
