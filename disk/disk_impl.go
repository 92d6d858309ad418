package disk

import (
	"fmt"

	goosedisk "github.com/tchajed/goose/machine/disk"
	"golang.org/x/sys/unix"

	"github.com/mit-pdos/vsfs-journal/util"
)

var _ Disk = (*FileDisk)(nil)
var _ BatchDisk = (*FileDisk)(nil)

// FileDisk is a disk backed by a regular file or a block device.
type FileDisk struct {
	fd        int
	numBlocks uint64
}

// NewFileDisk opens path as a disk of numBlocks blocks, creating and
// extending a regular file as needed. numBlocks == 0 sizes the disk from
// the existing file.
func NewFileDisk(path string, numBlocks uint64) (*FileDisk, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0666)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	var stat unix.Stat_t
	err = unix.Fstat(fd, &stat)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if stat.Mode&unix.S_IFMT == unix.S_IFREG {
		size := uint64(stat.Size)
		if numBlocks == 0 {
			numBlocks = size / BlockSize
		} else if size < numBlocks*BlockSize {
			err = unix.Ftruncate(fd, int64(numBlocks*BlockSize))
			if err != nil {
				unix.Close(fd)
				return nil, fmt.Errorf("truncate %s: %w", path, err)
			}
		}
	}
	if numBlocks == 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("%s: cannot determine disk size", path)
	}
	util.DPrintf(1, "NewFileDisk: %s, %d blocks\n", path, numBlocks)
	return &FileDisk{fd: fd, numBlocks: numBlocks}, nil
}

func (d *FileDisk) ReadTo(a uint64, buf Block) error {
	if err := checkAccess("read", a, 1, d.numBlocks, len(buf)); err != nil {
		return err
	}
	n, err := unix.Pread(d.fd, buf, int64(a*BlockSize))
	if err != nil {
		return ioError("read", a, err)
	}
	if uint64(n) != BlockSize {
		return ioError("read", a, fmt.Errorf("short read of %d bytes", n))
	}
	util.DPrintf(10, "read: %d\n", a)
	return nil
}

func (d *FileDisk) Read(a uint64) (Block, error) {
	buf := make([]byte, BlockSize)
	err := d.ReadTo(a, buf)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *FileDisk) Write(a uint64, v Block) error {
	if err := checkAccess("write", a, 1, d.numBlocks, len(v)); err != nil {
		return err
	}
	n, err := unix.Pwrite(d.fd, v, int64(a*BlockSize))
	if err != nil {
		return ioError("write", a, err)
	}
	if uint64(n) != BlockSize {
		return ioError("write", a, fmt.Errorf("short write of %d bytes", n))
	}
	util.DPrintf(10, "write: %d\n", a)
	return nil
}

func (d *FileDisk) Size() (uint64, error) {
	return d.numBlocks, nil
}

func (d *FileDisk) Barrier() error {
	// NOTE: on macOS, this flushes to the drive but doesn't actually issue a
	// disk barrier; see https://golang.org/src/internal/poll/fd_fsync_darwin.go
	// for more details. The correct replacement is to issue a fcntl syscall with
	// cmd F_FULLFSYNC.
	err := unix.Fsync(d.fd)
	if err != nil {
		return fmt.Errorf("%w: fsync: %v", ErrIO, err)
	}
	util.DPrintf(10, "barrier\n")
	return nil
}

func (d *FileDisk) Close() error {
	return unix.Close(d.fd)
}

// ReadBatch reads n blocks with a single pread.
func (d *FileDisk) ReadBatch(startPos uint64, n uint64) ([]Block, error) {
	if err := checkAccess("read", startPos, n, d.numBlocks, int(BlockSize)); err != nil {
		return nil, err
	}
	buf := make([]byte, n*BlockSize)
	got, err := unix.Pread(d.fd, buf, int64(startPos*BlockSize))
	if err != nil {
		return nil, ioError("read", startPos, err)
	}
	if uint64(got) != uint64(len(buf)) {
		return nil, ioError("read", startPos,
			fmt.Errorf("short read of %d/%d bytes", got, len(buf)))
	}
	blks := make([]Block, n)
	for i := range blks {
		blks[i] = buf[uint64(i)*BlockSize : uint64(i+1)*BlockSize]
	}
	return blks, nil
}

// WriteBatch writes all blocks with a single pwrite.
func (d *FileDisk) WriteBatch(startPos uint64, blocks []Block) error {
	n := uint64(len(blocks))
	if err := checkAccess("write", startPos, n, d.numBlocks, int(BlockSize)); err != nil {
		return err
	}
	buf := make([]byte, 0, n*BlockSize)
	for i, blk := range blocks {
		if uint64(len(blk)) != BlockSize {
			return checkAccess("write", startPos+uint64(i), 1, d.numBlocks, len(blk))
		}
		buf = append(buf, blk...)
	}
	got, err := unix.Pwrite(d.fd, buf, int64(startPos*BlockSize))
	if err != nil {
		return ioError("write", startPos, err)
	}
	if got != len(buf) {
		return ioError("write", startPos,
			fmt.Errorf("short write of %d/%d bytes", got, len(buf)))
	}
	util.DPrintf(10, "write batch: %d+%d\n", startPos, n)
	return nil
}

/////////////////////////

var _ Disk = (*MemDisk)(nil)

// MemDisk is an in-memory disk, for tests and scratch images.
type MemDisk struct {
	d         goosedisk.MemDisk
	numBlocks uint64
}

func NewMemDisk(numBlocks uint64) *MemDisk {
	return &MemDisk{d: goosedisk.NewMemDisk(numBlocks), numBlocks: numBlocks}
}

func (d *MemDisk) ReadTo(a uint64, buf Block) error {
	if err := checkAccess("read", a, 1, d.numBlocks, len(buf)); err != nil {
		return err
	}
	copy(buf, d.d.Read(a))
	return nil
}

func (d *MemDisk) Read(a uint64) (Block, error) {
	buf := make(Block, BlockSize)
	err := d.ReadTo(a, buf)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *MemDisk) Write(a uint64, v Block) error {
	if err := checkAccess("write", a, 1, d.numBlocks, len(v)); err != nil {
		return err
	}
	d.d.Write(a, v)
	return nil
}

func (d *MemDisk) Size() (uint64, error) {
	// this never changes so we assume it's safe to run lock-free
	return d.numBlocks, nil
}

func (d *MemDisk) Barrier() error { return nil }

func (d *MemDisk) Close() error { return nil }
