package wal

import (
	"github.com/tchajed/marshal"

	"github.com/mit-pdos/vsfs-journal/common"
	"github.com/mit-pdos/vsfs-journal/disk"
	"github.com/mit-pdos/vsfs-journal/util"
)

// region is an in-memory copy of the whole journal region.
type region struct {
	start   common.Bnum
	buf     []byte
	used    uint64
	durable uint64 // used, as last read from or written to disk
}

type recHdr struct {
	kind uint32
	size uint32
}

// loadRegion reads the region and validates it, resetting it in memory if
// the header is not trustworthy.
func loadRegion(d disk.Disk, start common.Bnum, nblks uint64) (*region, error) {
	blks, err := disk.ReadRun(d, start, nblks)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, nblks*disk.BlockSize)
	for _, b := range blks {
		buf = append(buf, b...)
	}
	r := &region{start: start, buf: buf}
	r.validateOrReset()
	return r, nil
}

func (r *region) capacity() uint64 {
	return uint64(len(r.buf))
}

func (r *region) free() uint64 {
	return r.capacity() - r.used
}

// validateOrReset checks the magic number and the bounds of used; a region
// failing either is reformatted as empty. Calling it again is a no-op.
func (r *region) validateOrReset() bool {
	dec := marshal.NewDec(r.buf[:HDRSIZE])
	magic := dec.GetInt32()
	used := uint64(dec.GetInt32())
	if magic == MAGIC && used >= HDRSIZE && used <= r.capacity() {
		r.used = used
		r.durable = used
		return false
	}
	util.DPrintf(1, "journal: invalid header (magic %#x, used %d); reinitializing\n",
		magic, used)
	r.reset()
	return true
}

// reset zero-fills the region and writes an empty header.
func (r *region) reset() {
	for i := range r.buf {
		r.buf[i] = 0
	}
	r.setUsed(HDRSIZE)
}

func (r *region) setUsed(used uint64) {
	enc := marshal.NewEnc(HDRSIZE)
	enc.PutInt32(MAGIC)
	enc.PutInt32(uint32(used))
	copy(r.buf[:HDRSIZE], enc.Finish())
	r.used = used
}

// flush writes the whole region, header and body, and waits for it to be
// durable.
//
// The first block holds the header. When the journal grows the rest of the
// region goes out before it, so a crash part-way leaves the old header
// covering only old records; when it shrinks the header goes out first, so
// a crash never leaves a header covering half-cleared records. Either way
// the commit point is a single-block write.
func (r *region) flush(d disk.Disk) error {
	nblks := r.capacity() / disk.BlockSize
	blks := make([]disk.Block, nblks)
	for i := range blks {
		blks[i] = r.buf[uint64(i)*disk.BlockSize : uint64(i+1)*disk.BlockSize]
	}
	hdr := func() error {
		if err := d.Write(r.start, blks[0]); err != nil {
			return err
		}
		return d.Barrier()
	}
	body := func() error {
		if nblks == 1 {
			return nil
		}
		if err := disk.WriteRun(d, r.start+1, blks[1:]); err != nil {
			return err
		}
		return d.Barrier()
	}
	var err error
	if r.used < r.durable {
		err = hdr()
		if err == nil {
			err = body()
		}
	} else {
		err = body()
		if err == nil {
			err = hdr()
		}
	}
	if err != nil {
		return err
	}
	r.durable = r.used
	util.DPrintf(5, "flush: journal region %d+%d, used %d\n", r.start, nblks, r.used)
	return nil
}

func encodeRecHdr(kind uint32, size uint64) []byte {
	enc := marshal.NewEnc(RECHDRSIZE)
	enc.PutInt32(kind)
	enc.PutInt32(uint32(size))
	return enc.Finish()
}

func decodeRecHdr(b []byte) recHdr {
	dec := marshal.NewDec(b[:RECHDRSIZE])
	kind := dec.GetInt32()
	size := dec.GetInt32()
	return recHdr{kind: kind, size: size}
}

// appendData writes a data record at off and returns the offset after it.
// The caller has checked that it fits.
func (r *region) appendData(off uint64, u Update) uint64 {
	enc := marshal.NewEnc(DATARECSIZE)
	enc.PutInt32(RECDATA)
	enc.PutInt32(uint32(DATARECSIZE))
	enc.PutInt32(uint32(u.Addr))
	enc.PutBytes(u.Block)
	copy(r.buf[off:off+DATARECSIZE], enc.Finish())
	util.DPrintf(5, "journal: data %d at offset %d\n", u.Addr, off)
	return off + DATARECSIZE
}

func (r *region) appendSeal(off uint64) uint64 {
	copy(r.buf[off:off+SEALRECSIZE], encodeRecHdr(RECSEAL, SEALRECSIZE))
	util.DPrintf(5, "journal: seal at offset %d\n", off)
	return off + SEALRECSIZE
}

// scan walks the record stream from the header up to used and calls apply
// with each sealed group, in journal order.
//
// Scanning stops at used, at a record that does not fit before used, at a
// record whose size does not match its type, or at an unknown type. Data
// records buffered when scanning stops were never sealed; scan drops them
// and returns how many there were. An error from apply aborts the scan.
func (r *region) scan(apply func(group []Update) error) (uint64, error) {
	end := r.used
	off := HDRSIZE
	var pending []Update
	for off+RECHDRSIZE <= end {
		h := decodeRecHdr(r.buf[off:])
		if h.kind == RECDATA {
			if uint64(h.size) != DATARECSIZE || off+DATARECSIZE > end {
				util.DPrintf(3, "scan: bad data record (size %d) at %d\n", h.size, off)
				break
			}
			dec := marshal.NewDec(r.buf[off+RECHDRSIZE : off+DATARECSIZE])
			a := dec.GetInt32()
			blk := dec.GetBytes(disk.BlockSize)
			pending = append(pending, MkBlockData(common.Bnum(a), blk))
			off += DATARECSIZE
		} else if h.kind == RECSEAL {
			if uint64(h.size) != SEALRECSIZE {
				util.DPrintf(3, "scan: bad seal record (size %d) at %d\n", h.size, off)
				break
			}
			if err := apply(pending); err != nil {
				return 0, err
			}
			pending = nil
			off += SEALRECSIZE
		} else {
			util.DPrintf(3, "scan: unknown record type %d at %d\n", h.kind, off)
			break
		}
	}
	if len(pending) > 0 {
		util.DPrintf(3, "scan: dropping %d unsealed record(s)\n", len(pending))
	}
	return uint64(len(pending)), nil
}
