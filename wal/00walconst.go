// Package wal implements the metadata redo journal.
//
// The journal occupies a fixed run of blocks. Its bytes are laid out as
//
//	[ hdr | data ... data seal | data ... seal | data ... (unsealed) |   free   ]
//	  ^                                                              ^          ^
//	  0                                                              used       capacity
//
// The header is {magic, used}; records are {type, size} followed, for a
// data record, by the home block number and one full block image. A
// group is a run of data records closed by one seal record. A group
// counts as committed once the flush that wrote its seal record (and the
// header covering it) completes; install applies committed groups to
// their home blocks in order and ignores anything after the last seal.
//
// All fields are 4-byte little-endian.
package wal

import (
	"github.com/mit-pdos/vsfs-journal/disk"
)

const (
	MAGIC uint32 = 0xdeadbeef

	HDRSIZE    = uint64(8) // magic, used
	RECHDRSIZE = uint64(8) // type, size
	ADDRSIZE   = uint64(4)

	DATARECSIZE = RECHDRSIZE + ADDRSIZE + disk.BlockSize
	SEALRECSIZE = RECHDRSIZE
)

const (
	RECDATA uint32 = 1
	RECSEAL uint32 = 2
)

// GroupSize is the number of journal bytes a group of n writes occupies.
func GroupSize(n uint64) uint64 {
	return n*DATARECSIZE + SEALRECSIZE
}
