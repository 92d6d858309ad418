package alloc

import (
	"fmt"

	"github.com/mit-pdos/vsfs-journal/util"
)

// Alloc allocates numbers from a bitmap held in a block image. Bit n is bit
// n%8 of byte n/8; a set bit means n is in use. Number 0 is never handed
// out, so callers can use it as a null value (or reserve it for a root).
//
// Alloc edits the bitmap in place; the caller decides when the image is
// written back.
type Alloc struct {
	bitmap []byte
	max    uint64
}

// MkAlloc manages numbers [0, max) of bitmap.
func MkAlloc(bitmap []byte, max uint64) *Alloc {
	if util.RoundUp(max, 8) > uint64(len(bitmap)) {
		panic(fmt.Errorf("bitmap of %d bytes cannot hold %d bits", len(bitmap), max))
	}
	return &Alloc{bitmap: bitmap, max: max}
}

func (a *Alloc) check(n uint64) {
	if n >= a.max {
		panic(fmt.Errorf("alloc: %d out of range %d", n, a.max))
	}
}

func (a *Alloc) IsUsed(n uint64) bool {
	a.check(n)
	return a.bitmap[n/8]&(1<<(n%8)) != 0
}

func (a *Alloc) MarkUsed(n uint64) {
	a.check(n)
	a.bitmap[n/8] |= 1 << (n % 8)
}

func (a *Alloc) FreeNum(n uint64) {
	if n == 0 {
		panic("FreeNum")
	}
	a.check(n)
	a.bitmap[n/8] &^= 1 << (n % 8)
}

// AllocNum marks the lowest free number above 0 as used and returns it, or
// returns false if every number is in use.
func (a *Alloc) AllocNum() (uint64, bool) {
	for n := uint64(1); n < a.max; n++ {
		if !a.IsUsed(n) {
			a.MarkUsed(n)
			util.DPrintf(5, "AllocNum: %d\n", n)
			return n, true
		}
	}
	return 0, false
}

func popCnt(b byte) uint64 {
	var count uint64
	var x = b
	for i := uint64(0); i < 8; i++ {
		count += uint64(x & 1)
		x = x >> 1
	}
	return count
}

// NumFree counts the free numbers, 0 excluded.
func (a *Alloc) NumFree() uint64 {
	var used uint64
	for i := uint64(0); i < a.max/8; i++ {
		used += popCnt(a.bitmap[i])
	}
	for n := a.max / 8 * 8; n < a.max; n++ {
		if a.IsUsed(n) {
			used++
		}
	}
	free := a.max - used
	if !a.IsUsed(0) {
		free--
	}
	return free
}
