package wal

import (
	"fmt"

	"github.com/mit-pdos/vsfs-journal/util"
)

func (l *Walog) load() (*region, error) {
	return loadRegion(l.d, l.start, l.nblks)
}

// StageGroup appends bufs to the journal as one group: a data record per
// update, in the given order, followed by a seal record.
//
// The group is committed once StageGroup returns nil; home locations are not
// written. If the group does not fit in the remaining space StageGroup
// returns ErrJournalFull and leaves the journal untouched. An error wrapping
// disk.ErrIO means the flush may or may not have reached the disk.
func (l *Walog) StageGroup(bufs []Update) error {
	for _, u := range bufs {
		if err := l.checkUpdate(u); err != nil {
			return err
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	r, err := l.load()
	if err != nil {
		return err
	}

	n := uint64(len(bufs))
	if n > r.capacity()/DATARECSIZE || GroupSize(n) > r.free() {
		util.DPrintf(3, "StageGroup: %d writes do not fit (%d of %d bytes used)\n",
			n, r.used, r.capacity())
		return fmt.Errorf("%w: group of %d blocks needs %d bytes, %d free",
			ErrJournalFull, n, GroupSize(n), r.free())
	}

	off := r.used
	for _, u := range bufs {
		off = r.appendData(off, u)
	}
	off = r.appendSeal(off)
	r.setUsed(off)

	if err := r.flush(l.d); err != nil {
		return err
	}
	util.DPrintf(3, "StageGroup: %d writes, journal at %d/%d bytes\n",
		n, r.used, r.capacity())
	return nil
}
