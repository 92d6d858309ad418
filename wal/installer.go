package wal

import (
	"github.com/mit-pdos/vsfs-journal/util"
)

// installBlocks writes one sealed group to its home locations, in journal
// order.
func (l *Walog) installBlocks(bufs []Update, rep *InstallReport) error {
	for i, buf := range bufs {
		util.DPrintf(5, "installBlocks: write log record %d to %d\n", i, buf.Addr)
		if err := l.d.Write(buf.Addr, buf.Block); err != nil {
			return err
		}
		rep.Blocks++
	}
	rep.Groups++
	return nil
}

// Install applies every committed group in the journal to its home
// locations and then empties the journal.
//
// Records after the last intact seal are discarded. The journal is cleared
// only after the home writes are durable; if Install fails with an I/O
// error the journal is left as it was and a later Install redoes the same
// groups.
func (l *Walog) Install() (InstallReport, error) {
	var rep InstallReport

	l.mu.Lock()
	defer l.mu.Unlock()

	r, err := l.load()
	if err != nil {
		return rep, err
	}

	discarded, err := r.scan(func(group []Update) error {
		return l.installBlocks(group, &rep)
	})
	if err != nil {
		return rep, err
	}
	rep.Discarded = discarded

	if rep.Blocks > 0 {
		if err := l.d.Barrier(); err != nil {
			return rep, err
		}
	}

	r.reset()
	if err := r.flush(l.d); err != nil {
		return rep, err
	}
	util.DPrintf(1, "install: applied %d committed group(s), %d block(s), cleared journal\n",
		rep.Groups, rep.Blocks)
	return rep, nil
}
