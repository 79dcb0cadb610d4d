package backup

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mailbackup/internal/lock"
	"github.com/roach88/mailbackup/internal/record"
	"github.com/roach88/mailbackup/internal/testutil"
)

func TestCompact_MergesChunks(t *testing.T) {
	ctx := context.Background()
	name := reindexed(t,
		testutil.Chunk{"# s1", "1 APPLY MAILBOX %(UNIQUEID u1 MBOXNAME a)"},
		testutil.Chunk{"# s2", "2 NOOP X y", "3 APPLY SUB %(USERID anne MBOXNAME a)"},
		testutil.Chunk{"# s3", "4 APPLY MAILBOX %(UNIQUEID u2 MBOXNAME b)"},
	)
	before := eventContent(events(t, name))

	stats, err := Compact(ctx, name, quiet())
	require.NoError(t, err)
	assert.Equal(t, Stats{Chunks: 1, Records: 4, Applied: 3, Indexed: 3, Skipped: 1}, stats)
	assert.False(t, exists(name+".gz.new"))

	assert.Equal(t, before, eventContent(events(t, name)))

	b, err := OpenShared(name, quiet())
	require.NoError(t, err)
	defer b.Close()
	chunks, err := b.Chunks(ctx)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 4, chunks[0].Records)

	recs, err := b.ChunkRecords(ctx, chunks[0].ID)
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, "NOOP", recs[1].Verb)
}

func TestCompact_SplitsAtTarget(t *testing.T) {
	ctx := context.Background()
	var chunk testutil.Chunk
	for _, line := range []string{
		"1 APPLY MAILBOX %(UNIQUEID u1 MBOXNAME a)",
		"2 APPLY MAILBOX %(UNIQUEID u2 MBOXNAME b)",
		"3 APPLY MAILBOX %(UNIQUEID u3 MBOXNAME c)",
		"4 APPLY MAILBOX %(UNIQUEID u4 MBOXNAME d)",
	} {
		chunk = append(chunk, line)
	}
	name := reindexed(t, chunk)

	stats, err := Compact(ctx, name, quiet(), WithChunkTarget(80))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Chunks)

	// A rebuild of the rewritten log reproduces the compacted index.
	compacted := digest(t, name+".index")
	_, err = Reindex(ctx, name, quiet())
	require.NoError(t, err)
	assert.Equal(t, compacted, digest(t, name+".index"))
}

func TestCompact_OrderingErrorKeepsLog(t *testing.T) {
	name := newLog(t,
		testutil.Chunk{"5 APPLY MAILBOX %(UNIQUEID u1 MBOXNAME a)"},
		testutil.Chunk{"4 APPLY MAILBOX %(UNIQUEID u2 MBOXNAME b)"},
	)
	before, err := os.ReadFile(name + ".gz")
	require.NoError(t, err)

	_, err = Compact(context.Background(), name, quiet())
	require.True(t, IsOrderingError(err))

	after, err := os.ReadFile(name + ".gz")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.False(t, exists(name+".gz.new"))
}

func TestCompact_RebuildReadsEveryRecord(t *testing.T) {
	ctx := context.Background()
	name := reindexed(t,
		testutil.Chunk{"1 APPLY MAILBOX %(UNIQUEID u1 MBOXNAME a)", "2 APPLY MAILBOX %(UNIQUEID u2 MBOXNAME b)"},
		testutil.Chunk{"3 APPLY MAILBOX %(UNIQUEID u3 MBOXNAME c)"},
	)

	_, err := Compact(ctx, name, quiet())
	require.NoError(t, err)
	compacted := digest(t, name+".index")

	// Every record made it into the rewritten log, first ones included.
	b, err := OpenShared(name, quiet())
	require.NoError(t, err)
	var got []int64
	require.NoError(t, b.Replay(ctx, func(_ Position, rec record.Record) error {
		got = append(got, rec.Timestamp)
		return nil
	}))
	require.NoError(t, b.Close())
	assert.Equal(t, []int64{1, 2, 3}, got)

	stats, err := Reindex(ctx, name, quiet())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Indexed)
	assert.Zero(t, stats.Malformed)
	assert.Equal(t, compacted, digest(t, name+".index"))
}

func TestCompact_MalformedAbortsEvenWhenSkipping(t *testing.T) {
	name := reindexed(t,
		testutil.Chunk{"1 APPLY MAILBOX %(UNIQUEID u1 MBOXNAME a)"},
	)
	testutil.AppendLog(t, name+".gz",
		testutil.Chunk{
			"2 APPLY MAILBOX %(UNIQUEID u2 MBOXNAME b)",
			"x APPLY broken",
			"3 APPLY MAILBOX %(UNIQUEID u3 MBOXNAME c)",
		},
		testutil.Chunk{"4 APPLY MAILBOX %(UNIQUEID u4 MBOXNAME d)"},
	)
	before, err := os.ReadFile(name + ".gz")
	require.NoError(t, err)

	_, err = Compact(context.Background(), name, quiet(), WithMalformedPolicy(PolicySkip))
	var pe *record.ParseError
	require.ErrorAs(t, err, &pe)

	after, err := os.ReadFile(name + ".gz")
	require.NoError(t, err)
	assert.Equal(t, before, after, "the damaged log must survive untouched")
	assert.False(t, exists(name+".gz.new"))
}

func TestCompact_LocksNewLogBeforeRename(t *testing.T) {
	ctx := context.Background()
	name := reindexed(t,
		testutil.Chunk{"1 APPLY MAILBOX %(UNIQUEID u1 MBOXNAME a)"},
		testutil.Chunk{"2 APPLY MAILBOX %(UNIQUEID u2 MBOXNAME b)"},
	)

	b, err := open(name, LockExclusive, DataNormal, IndexCreate, buildOptions([]Option{quiet()}))
	require.NoError(t, err)
	_, err = b.compact(ctx)
	require.NoError(t, err)

	// The log under its name is the new file, and it is already locked.
	_, err = OpenAppend(name, quiet())
	require.ErrorIs(t, err, lock.ErrBusy)

	fi, err := b.fd.Stat()
	require.NoError(t, err)
	onDisk, err := os.Stat(name + ".gz")
	require.NoError(t, err)
	assert.True(t, os.SameFile(fi, onDisk), "handle follows the rewritten log")

	require.NoError(t, b.Close())
	a, err := OpenAppend(name, quiet())
	require.NoError(t, err)
	require.NoError(t, a.Close())
}
