package vsfs

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mit-pdos/vsfs-journal/alloc"
	"github.com/mit-pdos/vsfs-journal/common"
	"github.com/mit-pdos/vsfs-journal/disk"
	"github.com/mit-pdos/vsfs-journal/jrnl"
	"github.com/mit-pdos/vsfs-journal/lockmap"
	"github.com/mit-pdos/vsfs-journal/twophase"
	"github.com/mit-pdos/vsfs-journal/util"
	"github.com/mit-pdos/vsfs-journal/wal"
)

var (
	ErrBadName  = errors.New("vsfs: invalid name")
	ErrExists   = errors.New("vsfs: file already exists")
	ErrNoInodes = errors.New("vsfs: no free inode available")
	ErrDirFull  = errors.New("vsfs: root directory is full")
	ErrNotDir   = errors.New("vsfs: root inode is not a directory")
	ErrCorrupt  = errors.New("vsfs: corrupt file system")
)

// Mkfs lays out an empty file system on d: superblock, an empty journal,
// bitmaps, and a root directory holding "." and "..".
//
// Mkfs writes home locations directly; it is not crash-safe and expects
// nothing else to use d meanwhile.
func Mkfs(d disk.Disk) error {
	size, err := d.Size()
	if err != nil {
		return err
	}
	if size < common.NBLOCKS {
		return fmt.Errorf("vsfs: disk has %d blocks, need %d", size, common.NBLOCKS)
	}
	zero := make(disk.Block, disk.BlockSize)
	for bn := uint64(0); bn < common.NBLOCKS; bn++ {
		if err := d.Write(bn, zero); err != nil {
			return err
		}
	}

	ibm := make(disk.Block, disk.BlockSize)
	alloc.MkAlloc(ibm, common.NINODES).MarkUsed(uint64(common.ROOTINUM))
	dbm := make(disk.Block, disk.BlockSize)
	alloc.MkAlloc(dbm, common.NDATABLKS).MarkUsed(0)

	now := uint32(time.Now().Unix())
	root := Inode{
		Kind:  KindDir,
		Links: 2,
		Size:  uint32(2 * common.DIRENTSZ),
		Ctime: now,
		Mtime: now,
	}
	root.Direct[0] = uint32(common.DATASTART)
	itbl := make(disk.Block, disk.BlockSize)
	putInode(itbl, common.ROOTINUM, root)

	dir := make(disk.Block, disk.BlockSize)
	putDirent(dir, 0, Dirent{Inum: common.ROOTINUM, Name: "."})
	putDirent(dir, 1, Dirent{Inum: common.ROOTINUM, Name: ".."})

	for _, u := range []wal.Update{
		wal.MkBlockData(common.SUPERBLK, superblock()),
		wal.MkBlockData(common.INODEBITMAPBLK, ibm),
		wal.MkBlockData(common.DATABITMAPBLK, dbm),
		wal.MkBlockData(common.INODETABLEBLK, itbl),
		wal.MkBlockData(common.DATASTART, dir),
	} {
		if err := d.Write(u.Addr, u.Block); err != nil {
			return err
		}
	}
	if err := d.Barrier(); err != nil {
		return err
	}

	// formats the journal region
	log, err := wal.MkLog(d)
	if err != nil {
		return err
	}
	_, err = log.Install()
	if err != nil {
		return err
	}
	util.DPrintf(1, "Mkfs: %d blocks, %d inodes\n", common.NBLOCKS, common.NINODES)
	return nil
}

func checkName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrBadName)
	}
	if uint64(len(name)) >= common.DIRNAMESZ {
		return fmt.Errorf("%w: name too long (max %d bytes)", ErrBadName, common.DIRNAMESZ-1)
	}
	if name == "." || name == ".." || strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("%w: %q", ErrBadName, name)
	}
	return nil
}

type rootDir struct {
	itbl  disk.Block
	root  Inode
	dirBn common.Bnum
	dir   disk.Block
}

type blockReader interface {
	ReadBlock(bn common.Bnum) (disk.Block, error)
}

func readRoot(op blockReader) (*rootDir, error) {
	itbl, err := op.ReadBlock(inodeBlock(common.ROOTINUM))
	if err != nil {
		return nil, err
	}
	root := getInode(itbl, common.ROOTINUM)
	if root.Kind != KindDir {
		return nil, ErrNotDir
	}
	dirBn := common.Bnum(root.Direct[0])
	if dirBn < common.DATASTART || dirBn >= common.NBLOCKS {
		return nil, fmt.Errorf("%w: root directory block %d", ErrCorrupt, dirBn)
	}
	if uint64(root.Size) > disk.BlockSize {
		return nil, fmt.Errorf("%w: root directory size %d", ErrCorrupt, root.Size)
	}
	dir, err := op.ReadBlock(dirBn)
	if err != nil {
		return nil, err
	}
	return &rootDir{itbl: itbl, root: root, dirBn: dirBn, dir: dir}, nil
}

func (rd *rootDir) nentries() uint64 {
	return uint64(rd.root.Size) / common.DIRENTSZ
}

func (rd *rootDir) lookup(name string) (common.Inum, bool) {
	for i := uint64(0); i < rd.nentries(); i++ {
		de := getDirent(rd.dir, i)
		if de.Inum != 0 && de.Name == name {
			return de.Inum, true
		}
	}
	return 0, false
}

// FS serializes creates that share a journal. Every create locks the
// blocks it touches, the root's inode table block first.
type FS struct {
	log   *wal.Walog
	locks *lockmap.LockMap
}

func Mount(log *wal.Walog) *FS {
	return &FS{log: log, locks: lockmap.MkLockMap()}
}

// Create makes an empty file called name in the root directory and
// journals the change as one group: the inode bitmap, the inode table
// block(s) and the root directory block. The file exists on disk once the
// journal is installed; until then reads through the journal see it.
func (fs *FS) Create(name string) (common.Inum, error) {
	if err := checkName(name); err != nil {
		return 0, err
	}
	op := twophase.Begin(fs.log, fs.locks)
	defer op.ReleaseAll()
	rd, err := readRoot(op)
	if err != nil {
		return 0, err
	}
	if _, ok := rd.lookup(name); ok {
		return 0, fmt.Errorf("%w: %q", ErrExists, name)
	}
	if uint64(rd.root.Size)+common.DIRENTSZ > disk.BlockSize {
		return 0, ErrDirFull
	}

	ibm, err := op.ReadBlock(common.INODEBITMAPBLK)
	if err != nil {
		return 0, err
	}
	n, ok := alloc.MkAlloc(ibm, common.NINODES).AllocNum()
	if !ok {
		return 0, ErrNoInodes
	}
	inum := common.Inum(n)

	putDirent(rd.dir, rd.nentries(), Dirent{Inum: inum, Name: name})
	now := uint32(time.Now().Unix())
	rd.root.Size += uint32(common.DIRENTSZ)
	rd.root.Mtime = now
	putInode(rd.itbl, common.ROOTINUM, rd.root)

	ip := Inode{Kind: KindFile, Links: 1, Ctime: now, Mtime: now}

	op.OverWrite(common.INODEBITMAPBLK, ibm)
	if inodeBlock(inum) == inodeBlock(common.ROOTINUM) {
		putInode(rd.itbl, inum, ip)
		op.OverWrite(inodeBlock(common.ROOTINUM), rd.itbl)
	} else {
		op.OverWrite(inodeBlock(common.ROOTINUM), rd.itbl)
		itbl, err := op.ReadBlock(inodeBlock(inum))
		if err != nil {
			return 0, err
		}
		putInode(itbl, inum, ip)
		op.OverWrite(inodeBlock(inum), itbl)
	}
	op.OverWrite(rd.dirBn, rd.dir)

	if err := op.Commit(); err != nil {
		return 0, err
	}
	util.DPrintf(1, "create: logged creation of %q as inode %d\n", name, inum)
	return inum, nil
}

// Create is Mount(log).Create(name), for callers that are the only writer.
func Create(log *wal.Walog, name string) (common.Inum, error) {
	return Mount(log).Create(name)
}

// Lookup finds name in the root directory, as of the latest committed
// group.
func Lookup(log *wal.Walog, name string) (common.Inum, bool, error) {
	rd, err := readRoot(jrnl.Begin(log))
	if err != nil {
		return 0, false, err
	}
	inum, ok := rd.lookup(name)
	return inum, ok, nil
}

// List returns the root directory's entries, "." and ".." included.
func List(log *wal.Walog) ([]Dirent, error) {
	rd, err := readRoot(jrnl.Begin(log))
	if err != nil {
		return nil, err
	}
	var des []Dirent
	for i := uint64(0); i < rd.nentries(); i++ {
		des = append(des, getDirent(rd.dir, i))
	}
	return des, nil
}

func ReadInode(log *wal.Walog, inum common.Inum) (Inode, error) {
	if uint64(inum) >= common.NINODES {
		return Inode{}, fmt.Errorf("vsfs: inode %d out of range", inum)
	}
	blk, err := log.Read(inodeBlock(inum))
	if err != nil {
		return Inode{}, err
	}
	return getInode(blk, inum), nil
}
