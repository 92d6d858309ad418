package common

import (
	"github.com/tchajed/goose/machine/disk"
)

// Fixed image layout. mkfs and the journal agree on these; nothing in the
// image records them.
const (
	SUPERBLK     Bnum   = 0
	JOURNALSTART Bnum   = 1
	JOURNALBLKS  uint64 = 16

	INODEBITMAPBLK Bnum   = JOURNALSTART + JOURNALBLKS // 17
	DATABITMAPBLK  Bnum   = INODEBITMAPBLK + 1         // 18
	INODETABLEBLK  Bnum   = DATABITMAPBLK + 1          // 19
	INODETABLEBLKS uint64 = 2
	DATASTART      Bnum   = INODETABLEBLK + INODETABLEBLKS // 21
	NDATABLKS      uint64 = 64

	NBLOCKS uint64 = DATASTART + NDATABLKS

	INODESZ   uint64 = 128 // on-disk size
	INODEBLK  uint64 = disk.BlockSize / INODESZ
	NINODES   uint64 = INODETABLEBLKS * INODEBLK
	NDIRECT   uint64 = 8

	DIRENTSZ  uint64 = 32
	DIRNAMESZ uint64 = DIRENTSZ - 4
)

type Inum uint32
type Bnum = uint64

const ROOTINUM Inum = 0
