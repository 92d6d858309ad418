package vsfs

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/vsfs-journal/alloc"
	"github.com/mit-pdos/vsfs-journal/common"
	"github.com/mit-pdos/vsfs-journal/disk"
	"github.com/mit-pdos/vsfs-journal/wal"
)

var ignoreTimes = cmpopts.IgnoreFields(Inode{}, "Ctime", "Mtime")

func mkfs(t *testing.T) (disk.Disk, *wal.Walog) {
	d := disk.NewMemDisk(common.NBLOCKS)
	require.NoError(t, Mkfs(d))
	log, err := wal.MkLog(d)
	require.NoError(t, err)
	return d, log
}

func install(t *testing.T, log *wal.Walog) wal.InstallReport {
	rep, err := log.Install()
	require.NoError(t, err)
	return rep
}

func TestInodeLayout(t *testing.T) {
	ip := Inode{Kind: KindFile, Links: 3, Size: 0x01020304, Ctime: 7, Mtime: 9}
	ip.Direct[0] = 21
	ip.Direct[7] = 84
	b := ip.encode()
	assert.Len(t, b, int(common.INODESZ))
	assert.Equal(t, []byte{1, 0, 3, 0, 4, 3, 2, 1}, b[:8])
	assert.Equal(t, byte(21), b[8])
	assert.Equal(t, byte(84), b[8+7*4])
	assert.Equal(t, byte(7), b[40])
	assert.Equal(t, byte(9), b[44])
	if diff := cmp.Diff(ip, decodeInode(b)); diff != "" {
		t.Errorf("inode round trip (-want +got):\n%s", diff)
	}
}

func TestDirentLayout(t *testing.T) {
	de := Dirent{Inum: 5, Name: "hello"}
	b := de.encode()
	assert.Len(t, b, int(common.DIRENTSZ))
	assert.Equal(t, []byte{5, 0, 0, 0, 'h', 'e', 'l', 'l', 'o', 0}, b[:10])
	assert.Equal(t, de, decodeDirent(b))
}

func TestMkfs(t *testing.T) {
	d, log := mkfs(t)
	sb, err := d.Read(common.SUPERBLK)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x53, 0x46, 0x53, 0x56}, sb[:4])

	des, err := List(log)
	require.NoError(t, err)
	assert.Equal(t, []Dirent{{0, "."}, {0, ".."}}, des)

	root, err := ReadInode(log, common.ROOTINUM)
	require.NoError(t, err)
	want := Inode{Kind: KindDir, Links: 2, Size: 64}
	want.Direct[0] = uint32(common.DATASTART)
	if diff := cmp.Diff(want, root, ignoreTimes); diff != "" {
		t.Errorf("root inode (-want +got):\n%s", diff)
	}

	used, _, err := log.Space()
	require.NoError(t, err)
	assert.Equal(t, wal.HDRSIZE, used, "mkfs should leave an empty journal")
}

func TestMkfsSmallDisk(t *testing.T) {
	assert.Error(t, Mkfs(disk.NewMemDisk(common.NBLOCKS-1)))
}

func TestCreateInstall(t *testing.T) {
	d, log := mkfs(t)
	inum, err := Create(log, "a")
	require.NoError(t, err)
	assert.Equal(t, common.Inum(1), inum)

	home, err := log.ReadInstalled(common.DATASTART)
	require.NoError(t, err)
	assert.Equal(t, Dirent{}, getDirent(home, 2), "create should not touch home blocks")

	found, ok, err := Lookup(log, "a")
	require.NoError(t, err)
	assert.True(t, ok, "journaled create should be visible")
	assert.Equal(t, inum, found)

	rep := install(t, log)
	assert.Equal(t, wal.InstallReport{Groups: 1, Blocks: 3}, rep)

	home, _ = d.Read(common.DATASTART)
	assert.Equal(t, Dirent{Inum: 1, Name: "a"}, getDirent(home, 2))
	ibm, _ := d.Read(common.INODEBITMAPBLK)
	assert.True(t, alloc.MkAlloc(ibm, common.NINODES).IsUsed(1))

	ip, err := ReadInode(log, inum)
	require.NoError(t, err)
	if diff := cmp.Diff(Inode{Kind: KindFile, Links: 1}, ip, ignoreTimes); diff != "" {
		t.Errorf("new inode (-want +got):\n%s", diff)
	}
	root, _ := ReadInode(log, common.ROOTINUM)
	assert.Equal(t, uint32(3*common.DIRENTSZ), root.Size)
}

func TestCreateWithoutInstall(t *testing.T) {
	_, log := mkfs(t)
	a, err := Create(log, "a")
	require.NoError(t, err)
	b, err := Create(log, "b")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "second create should see the first")

	_, err = Create(log, "a")
	assert.ErrorIs(t, err, ErrExists)

	rep := install(t, log)
	assert.Equal(t, uint64(2), rep.Groups)
	des, err := List(log)
	require.NoError(t, err)
	assert.Equal(t, []Dirent{{0, "."}, {0, ".."}, {a, "a"}, {b, "b"}}, des)
}

func TestCreateBadNames(t *testing.T) {
	_, log := mkfs(t)
	for _, name := range []string{
		"", ".", "..", "a/b", "nul\x00",
		"0123456789012345678901234567",
	} {
		_, err := Create(log, name)
		assert.ErrorIsf(t, err, ErrBadName, "name %q", name)
	}
	_, err := Create(log, "012345678901234567890123456")
	assert.NoError(t, err, "27 bytes is the longest name")
}

func TestCreateJournalFull(t *testing.T) {
	_, log := mkfs(t)
	// each create journals three blocks while inodes land in table block 0
	for i := 0; i < 5; i++ {
		_, err := Create(log, fmt.Sprintf("f%d", i))
		require.NoError(t, err)
	}
	_, err := Create(log, "f5")
	assert.ErrorIs(t, err, wal.ErrJournalFull)
	_, ok, err := Lookup(log, "f5")
	require.NoError(t, err)
	assert.False(t, ok, "a failed create should have no effect")

	assert.Equal(t, uint64(5), install(t, log).Groups)
	_, err = Create(log, "f5")
	assert.NoError(t, err, "create should succeed after install")
}

func TestCreateUntilNoInodes(t *testing.T) {
	_, log := mkfs(t)
	for i := uint64(1); i < common.NINODES; i++ {
		inum, err := Create(log, fmt.Sprintf("f%d", i))
		if errors.Is(err, wal.ErrJournalFull) {
			install(t, log)
			inum, err = Create(log, fmt.Sprintf("f%d", i))
		}
		require.NoError(t, err)
		assert.Equal(t, common.Inum(i), inum)
	}
	_, err := Create(log, "last")
	assert.ErrorIs(t, err, ErrNoInodes)

	install(t, log)
	ip, err := ReadInode(log, common.Inum(common.NINODES-1))
	require.NoError(t, err)
	assert.Equal(t, KindFile, ip.Kind, "inode in the second table block")
	des, err := List(log)
	require.NoError(t, err)
	assert.Len(t, des, int(common.NINODES)+1)
}

func TestCreateNotDir(t *testing.T) {
	d, log := mkfs(t)
	itbl, _ := d.Read(common.INODETABLEBLK)
	root := getInode(itbl, common.ROOTINUM)
	root.Kind = KindFile
	putInode(itbl, common.ROOTINUM, root)
	require.NoError(t, d.Write(common.INODETABLEBLK, itbl))

	_, err := Create(log, "a")
	assert.ErrorIs(t, err, ErrNotDir)
}

// crashDisk drops every write after the first budget.
type crashDisk struct {
	disk.Disk
	budget int
}

func (c *crashDisk) Write(a uint64, v disk.Block) error {
	if c.budget == 0 {
		return disk.ErrIO
	}
	c.budget--
	return c.Disk.Write(a, v)
}

// checkConsistent verifies that the bitmap, the inode table and the root
// directory agree about which files exist.
func checkConsistent(t *testing.T, d disk.Disk) {
	ibm, _ := d.Read(common.INODEBITMAPBLK)
	a := alloc.MkAlloc(ibm, common.NINODES)
	log, err := wal.MkLog(d)
	require.NoError(t, err)
	des, err := List(log)
	require.NoError(t, err)
	named := map[common.Inum]bool{}
	for _, de := range des[2:] {
		named[de.Inum] = true
	}
	for i := uint64(1); i < common.NINODES; i++ {
		ip, err := ReadInode(log, common.Inum(i))
		require.NoError(t, err)
		used := a.IsUsed(i)
		assert.Equalf(t, used, named[common.Inum(i)], "inode %d: bitmap vs directory", i)
		assert.Equalf(t, used, ip.Kind == KindFile, "inode %d: bitmap vs inode", i)
	}
}

func TestCreateCrashAtomic(t *testing.T) {
	for budget := 0; budget < 20; budget++ {
		d, log := mkfs(t)
		_, err := Create(log, "a")
		require.NoError(t, err)

		clog, err := wal.MkLog(&crashDisk{Disk: d, budget: budget})
		require.NoError(t, err)
		Create(clog, "b")

		log, err = wal.MkLog(d)
		require.NoError(t, err)
		install(t, log)
		checkConsistent(t, d)
		_, ok, _ := Lookup(log, "a")
		assert.Truef(t, ok, "budget %d: committed create lost", budget)
	}
}

func TestConcurrentCreate(t *testing.T) {
	_, log := mkfs(t)
	fs := Mount(log)
	const n = 5
	inums := make(chan common.Inum, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inum, err := fs.Create(fmt.Sprintf("g%d", i))
			assert.NoError(t, err)
			inums <- inum
		}(i)
	}
	wg.Wait()
	close(inums)

	seen := map[common.Inum]bool{}
	for inum := range inums {
		assert.False(t, seen[inum], "inode %d allocated twice", inum)
		seen[inum] = true
	}
	des, err := List(log)
	require.NoError(t, err)
	assert.Len(t, des, n+2)
}
