package replicated

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/vsfs-journal/disk"
	"github.com/mit-pdos/vsfs-journal/wal"
)

func mkBlock(b0 byte) disk.Block {
	b := make(disk.Block, disk.BlockSize)
	b[0] = b0
	return b
}

func TestRepBlock(t *testing.T) {
	d := disk.NewMemDisk(1000)
	log, err := wal.MkLog(d)
	require.NoError(t, err)
	rb := Open(log, 514)
	err = rb.Write(mkBlock(1))
	assert.Nil(t, err, "write should succeed")

	b, err := rb.Read()
	assert.Nil(t, err, "read should succeed")
	assert.Equal(t, byte(1), b[0])

	groups, err := log.Committed()
	require.NoError(t, err)
	require.Len(t, groups, 1, "both copies should share one group")
	assert.Len(t, groups[0], 2)
}

func TestRepBlockRecovery(t *testing.T) {
	d := disk.NewMemDisk(1000)
	log, err := wal.MkLog(d)
	require.NoError(t, err)
	rb := Open(log, 514)
	require.NoError(t, rb.Write(mkBlock(1)))
	require.NoError(t, rb.Write(mkBlock(2)))

	log2, err := wal.MkLog(d)
	require.NoError(t, err)
	rep, err := log2.Install()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rep.Groups)

	for _, a := range []uint64{514, 515} {
		b, err := d.Read(a)
		require.NoError(t, err)
		assert.Equalf(t, byte(2), b[0], "copy %d should hold the last write", a)
	}
	b, err := Open(log2, 514).Read()
	assert.Nil(t, err)
	assert.Equal(t, byte(2), b[0], "rep block should be crash safe")
}
