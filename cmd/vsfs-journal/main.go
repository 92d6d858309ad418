package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/mit-pdos/vsfs-journal/common"
	"github.com/mit-pdos/vsfs-journal/disk"
	"github.com/mit-pdos/vsfs-journal/util"
	"github.com/mit-pdos/vsfs-journal/vsfs"
	"github.com/mit-pdos/vsfs-journal/wal"
)

// Flags
var (
	imgPath = flag.String("img", "vsfs.img", "Disk image (file or device; a directory for -store pebble).")
	store   = flag.String("store", "file", "Block store backing the image: file or pebble.")
	nblocks = flag.Uint64("blocks", common.NBLOCKS, "Image size in blocks, used by mkfs.")
	debug   = flag.Uint64("debug", 0, "Debug verbosity (1 lifecycle, 3 operations, 5 records).")
)

// Exit statuses
const (
	exitOK       = 0
	exitFailure  = 1
	exitFull     = 2
	exitRejected = 3
)

func Usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] <command>\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\nCommands:\n")
	fmt.Fprintf(os.Stderr, "  mkfs           format the image\n")
	fmt.Fprintf(os.Stderr, "  create <name>  journal the creation of an empty file\n")
	fmt.Fprintf(os.Stderr, "  install        apply committed journal groups and clear the journal\n")
	fmt.Fprintf(os.Stderr, "  status         show journal occupancy and committed groups\n")
	fmt.Fprintf(os.Stderr, "  ls             list the root directory\n")
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	flag.PrintDefaults()
}

func openDisk(numBlocks uint64) (disk.Disk, error) {
	switch *store {
	case "file":
		return disk.NewFileDisk(*imgPath, numBlocks)
	case "pebble":
		return disk.NewPebbleDisk(*imgPath, numBlocks)
	}
	return nil, fmt.Errorf("unknown store %q", *store)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, wal.ErrJournalFull):
		return exitFull
	case errors.Is(err, vsfs.ErrBadName),
		errors.Is(err, vsfs.ErrExists),
		errors.Is(err, vsfs.ErrNoInodes),
		errors.Is(err, vsfs.ErrDirFull),
		errors.Is(err, vsfs.ErrNotDir):
		return exitRejected
	}
	return exitFailure
}

func mkfs() error {
	d, err := openDisk(*nblocks)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := vsfs.Mkfs(d); err != nil {
		return err
	}
	fmt.Printf("formatted %s: %d inodes, %d data blocks, %d-block journal\n",
		*imgPath, common.NINODES, common.NDATABLKS, common.JOURNALBLKS)
	return nil
}

func withLog(f func(log *wal.Walog) error) error {
	d, err := openDisk(0)
	if err != nil {
		return err
	}
	defer d.Close()
	log, err := wal.MkLog(d)
	if err != nil {
		return err
	}
	return f(log)
}

func create(log *wal.Walog, name string) error {
	inum, err := vsfs.Create(log, name)
	if errors.Is(err, wal.ErrJournalFull) {
		return fmt.Errorf("%w; run install and retry", err)
	}
	if err != nil {
		return err
	}
	fmt.Printf("logged creation of %q as inode %d (run install to apply)\n", name, inum)
	return nil
}

func install(log *wal.Walog) error {
	rep, err := log.Install()
	if err != nil {
		return err
	}
	fmt.Printf("installed %d group(s), %d block(s)", rep.Groups, rep.Blocks)
	if rep.Discarded > 0 {
		fmt.Printf(", discarded %d unsealed record(s)", rep.Discarded)
	}
	fmt.Println()
	return nil
}

func status(log *wal.Walog) error {
	used, capacity, err := log.Space()
	if err != nil {
		return err
	}
	groups, err := log.Committed()
	if err != nil {
		return err
	}
	fmt.Printf("journal: %d of %d bytes used, %d committed group(s)\n", used, capacity, len(groups))
	for i, g := range groups {
		fmt.Printf("  group %d:", i)
		for _, u := range g {
			fmt.Printf(" %d", u.Addr)
		}
		fmt.Println()
	}
	return nil
}

func ls(log *wal.Walog) error {
	des, err := vsfs.List(log)
	if err != nil {
		return err
	}
	for _, de := range des {
		fmt.Printf("%4d %s\n", de.Inum, de.Name)
	}
	return nil
}

func run(args []string) error {
	switch args[0] {
	case "mkfs":
		return mkfs()
	case "create":
		if len(args) != 2 {
			return errUsage
		}
		return withLog(func(log *wal.Walog) error { return create(log, args[1]) })
	case "install":
		return withLog(install)
	case "status":
		return withLog(status)
	case "ls":
		return withLog(ls)
	}
	return errUsage
}

var errUsage = errors.New("bad usage")

func main() {
	flag.Usage = Usage
	flag.Parse()
	util.Debug = *debug

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(exitFailure)
	}
	err := run(flag.Args())
	if errors.Is(err, errUsage) {
		flag.Usage()
		os.Exit(exitFailure)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", flag.Arg(0), err)
	}
	os.Exit(exitCode(err))
}
