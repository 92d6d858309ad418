// Package vsfs is the allocation policy of a very simple file system: it
// decides which metadata blocks an operation changes and hands the new
// block images to the journal as one group.
//
// The image has a fixed layout (see common): superblock, journal, inode
// bitmap, data bitmap, a two-block inode table and a data region. The
// file system has a single directory, the root, stored in one data block.
package vsfs

import (
	"github.com/tchajed/marshal"

	"github.com/mit-pdos/vsfs-journal/common"
	"github.com/mit-pdos/vsfs-journal/disk"
)

const (
	SBMAGIC uint32 = 0x56534653 // "VSFS"

	KindFree uint16 = 0
	KindFile uint16 = 1
	KindDir  uint16 = 2
)

// Inode is the 128-byte on-disk inode.
type Inode struct {
	Kind   uint16
	Links  uint16
	Size   uint32
	Direct [common.NDIRECT]uint32
	Ctime  uint32
	Mtime  uint32
}

// Dirent is a 32-byte directory entry. Inum 0 marks an unused slot (the
// root's own entries aside).
type Dirent struct {
	Inum common.Inum
	Name string
}

func (ip *Inode) encode() []byte {
	enc := marshal.NewEnc(common.INODESZ)
	// kind and links are adjacent 16-bit fields; packed little-endian they
	// are one 32-bit word
	enc.PutInt32(uint32(ip.Kind) | uint32(ip.Links)<<16)
	enc.PutInt32(ip.Size)
	for _, a := range ip.Direct {
		enc.PutInt32(a)
	}
	enc.PutInt32(ip.Ctime)
	enc.PutInt32(ip.Mtime)
	return enc.Finish()
}

func decodeInode(b []byte) Inode {
	var ip Inode
	dec := marshal.NewDec(b[:common.INODESZ])
	kl := dec.GetInt32()
	ip.Kind = uint16(kl)
	ip.Links = uint16(kl >> 16)
	ip.Size = dec.GetInt32()
	for i := range ip.Direct {
		ip.Direct[i] = dec.GetInt32()
	}
	ip.Ctime = dec.GetInt32()
	ip.Mtime = dec.GetInt32()
	return ip
}

func inodeBlock(inum common.Inum) common.Bnum {
	return common.INODETABLEBLK + uint64(inum)/common.INODEBLK
}

func inodeOff(inum common.Inum) uint64 {
	return uint64(inum) % common.INODEBLK * common.INODESZ
}

func getInode(blk disk.Block, inum common.Inum) Inode {
	off := inodeOff(inum)
	return decodeInode(blk[off : off+common.INODESZ])
}

func putInode(blk disk.Block, inum common.Inum, ip Inode) {
	off := inodeOff(inum)
	copy(blk[off:off+common.INODESZ], ip.encode())
}

func (de Dirent) encode() []byte {
	name := make([]byte, common.DIRNAMESZ)
	copy(name, de.Name)
	enc := marshal.NewEnc(common.DIRENTSZ)
	enc.PutInt32(uint32(de.Inum))
	enc.PutBytes(name)
	return enc.Finish()
}

func decodeDirent(b []byte) Dirent {
	dec := marshal.NewDec(b[:common.DIRENTSZ])
	inum := common.Inum(dec.GetInt32())
	name := dec.GetBytes(common.DIRNAMESZ)
	n := 0
	for n < len(name) && name[n] != 0 {
		n++
	}
	return Dirent{Inum: inum, Name: string(name[:n])}
}

func getDirent(blk disk.Block, i uint64) Dirent {
	off := i * common.DIRENTSZ
	return decodeDirent(blk[off : off+common.DIRENTSZ])
}

func putDirent(blk disk.Block, i uint64, de Dirent) {
	off := i * common.DIRENTSZ
	copy(blk[off:off+common.DIRENTSZ], de.encode())
}

func superblock() disk.Block {
	enc := marshal.NewEnc(disk.BlockSize)
	enc.PutInt32(SBMAGIC)
	enc.PutInt32(uint32(disk.BlockSize))
	enc.PutInt32(uint32(common.NBLOCKS))
	enc.PutInt32(uint32(common.JOURNALSTART))
	enc.PutInt32(uint32(common.JOURNALBLKS))
	enc.PutInt32(uint32(common.INODEBITMAPBLK))
	enc.PutInt32(uint32(common.DATABITMAPBLK))
	enc.PutInt32(uint32(common.INODETABLEBLK))
	enc.PutInt32(uint32(common.INODETABLEBLKS))
	enc.PutInt32(uint32(common.DATASTART))
	enc.PutInt32(uint32(common.NDATABLKS))
	enc.PutInt32(uint32(common.NINODES))
	return enc.Finish()
}
