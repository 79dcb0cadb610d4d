package cli

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mailbackup/internal/backup"
	"github.com/roach88/mailbackup/internal/store"
	"github.com/roach88/mailbackup/internal/testutil"
)

func TestCreate(t *testing.T) {
	workdir(t)
	out := mustRun(t, "", "create", "user.anne")
	golden(t).Assert(t, "create", []byte(out))
	assert.FileExists(t, "user.anne.gz")
	assert.FileExists(t, "user.anne.index")
}

func TestCreateExisting(t *testing.T) {
	workdir(t)
	mustRun(t, "", "create", "user.anne")

	res := run(t, "", "create", "user.anne", "--format", "json")
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))

	resp := decode(t, res.stdout, nil)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeExists, resp.Error.Code)
}

func TestAppend(t *testing.T) {
	workdir(t)
	mustRun(t, "", "create", "user.anne")

	out := mustRun(t, changes, "append", "user.anne")
	golden(t).Assert(t, "append", []byte(out))
}

func TestAppendJSON(t *testing.T) {
	workdir(t)
	mustRun(t, "", "create", "user.anne")

	var result AppendResult
	resp := decode(t, mustRun(t, changes, "append", "user.anne", "--format", "json"), &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "user.anne", result.Name)
	assert.Equal(t, 4, result.Appended)
	assert.Equal(t, 1, result.Ignored)
	assert.Zero(t, result.Malformed)
}

func TestAppendMissingBackup(t *testing.T) {
	workdir(t)
	res := run(t, changes, "append", "user.anne", "--format", "json")
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))

	resp := decode(t, res.stdout, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeNotFound, resp.Error.Code)
}

func TestAppendMalformedAborts(t *testing.T) {
	workdir(t)
	mustRun(t, "", "create", "user.anne")

	input := "1000 APPLY SUB %(USERID anne MBOXNAME user.anne)\nnot-a-timestamp APPLY X y\n1002 APPLY SUB %(USERID anne MBOXNAME user.anne.Sent)\n"
	res := run(t, input, "append", "user.anne", "--format", "json")
	require.Error(t, res.err)
	assert.Equal(t, ExitFailure, GetExitCode(res.err))

	resp := decode(t, res.stdout, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMalformed, resp.Error.Code)

	// The record before the damage was kept.
	var events EventsResult
	decode(t, mustRun(t, "", "events", "user.anne", "--format", "json"), &events)
	require.Len(t, events.Events, 1)
	assert.Equal(t, int64(1000), events.Events[0].Timestamp)
}

func TestAppendMalformedSkipped(t *testing.T) {
	workdir(t)
	t.Setenv("MAILBACKUP_ON_MALFORMED", "skip")
	mustRun(t, "", "create", "user.anne")

	input := "1000 APPLY SUB %(USERID anne MBOXNAME user.anne)\nnot-a-timestamp APPLY X y\n1002 APPLY SUB %(USERID anne MBOXNAME user.anne.Sent)\n"
	out := mustRun(t, input, "append", "user.anne")
	assert.Contains(t, out, "appended 2 record(s) to user.anne")
	assert.Contains(t, out, "skipped 1 malformed record(s)")
}

func TestAppendRegression(t *testing.T) {
	populated(t)

	res := run(t, "999 APPLY SUB %(USERID anne MBOXNAME user.anne)\n", "append", "user.anne", "--format", "json")
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))

	resp := decode(t, res.stdout, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMode, resp.Error.Code)
}

func TestAppendInteractivePrompts(t *testing.T) {
	workdir(t)
	mustRun(t, "", "create", "user.anne")

	input := "1000 APPLY SUB %(USERID {4}\r\nanne MBOXNAME user.anne)\n"
	out := mustRun(t, input, "append", "user.anne", "--interactive")
	assert.Contains(t, out, "+ go ahead")
	assert.Contains(t, out, "appended 1 record(s)")
}

func TestEvents(t *testing.T) {
	populated(t)
	out := mustRun(t, "", "events", "user.anne")
	golden(t).Assert(t, "events", []byte(out))
}

func TestEventsQuery(t *testing.T) {
	populated(t)

	tests := []struct {
		name string
		args []string
		want []int64
	}{
		{"all", nil, []int64{1000, 1001, 1003, 1004}},
		{"command", []string{"--command", "MAILBOX"}, []int64{1000, 1003}},
		{"since", []string{"--since", "1001"}, []int64{1001, 1003, 1004}},
		{"until", []string{"--until", "1001"}, []int64{1000, 1001}},
		{"limit", []string{"--since", "1001", "--limit", "2"}, []int64{1001, 1003}},
		{"identity", []string{"--identity", "anne:user.anne"}, []int64{1001}},
		{"filter", []string{"--filter", `payload.MBOXNAME == "user.anne"`}, []int64{1000, 1001}},
		{"filter on ts", []string{"--filter", "ts > 1001"}, []int64{1003, 1004}},
		{"no match", []string{"--command", "UNMAILBOX"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"events", "user.anne", "--format", "json"}, tt.args...)
			var result EventsResult
			decode(t, mustRun(t, "", args...), &result)

			var got []int64
			for _, ev := range result.Events {
				got = append(got, ev.Timestamp)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEventsBadFilter(t *testing.T) {
	populated(t)
	res := run(t, "", "events", "user.anne", "--filter", "ts +")
	require.Error(t, res.err)
	assert.Equal(t, ExitFailure, GetExitCode(res.err))
}

func TestMailboxes(t *testing.T) {
	populated(t)
	out := mustRun(t, "", "mailboxes", "user.anne")
	golden(t).Assert(t, "mailboxes", []byte(out))
}

func TestChunks(t *testing.T) {
	populated(t)
	mustRun(t, "1005 APPLY UNSUB %(USERID anne MBOXNAME user.anne)\n", "append", "user.anne")

	var result ChunksResult
	decode(t, mustRun(t, "", "chunks", "user.anne", "--format", "json"), &result)
	require.Len(t, result.Chunks, 2)

	first, second := result.Chunks[0], result.Chunks[1]
	assert.Equal(t, int64(0), first.Offset)
	assert.Equal(t, 4, first.Records)
	assert.Equal(t, int64(1000), first.TSStart)
	assert.Equal(t, int64(1004), first.TSEnd)
	assert.Equal(t, first.Offset+first.Length, second.Offset)
	assert.Equal(t, 1, second.Records)
	assert.Equal(t, int64(1005), second.TSStart)
}

func TestDump(t *testing.T) {
	populated(t)
	out := mustRun(t, "", "dump", "user.anne")
	golden(t).Assert(t, "dump", []byte(out))
}

func TestDumpJSON(t *testing.T) {
	workdir(t)
	testutil.WriteLog(t, "user.anne.gz",
		testutil.Chunk{"1 APPLY SUB %(USERID anne MBOXNAME user.anne)"},
		testutil.Chunk{"# note", "2 RESERVE MAILBOX %(MBOXNAME user.anne)"},
	)
	mustRun(t, "", "reindex", "user.anne")

	var result DumpResult
	decode(t, mustRun(t, "", "dump", "user.anne", "--format", "json"), &result)
	require.Len(t, result.Records, 2)

	sub, reserve := result.Records[0], result.Records[1]
	assert.Equal(t, 0, sub.Chunk)
	assert.Equal(t, 1, sub.Record)
	assert.Equal(t, "APPLY", sub.Verb)
	assert.Equal(t, "SUB", sub.Command)
	assert.JSONEq(t, `{"MBOXNAME":"user.anne","USERID":"anne"}`, string(sub.Payload))

	assert.Equal(t, 1, reserve.Chunk)
	assert.Equal(t, "RESERVE", reserve.Verb)
	assert.Positive(t, reserve.ChunkOffset)
}

func TestReindex(t *testing.T) {
	workdir(t)
	testutil.WriteLog(t, "user.anne.gz",
		testutil.Chunk{
			"1000 APPLY MAILBOX %(UNIQUEID u1 MBOXNAME user.anne)",
			"1001 APPLY SUB %(USERID anne MBOXNAME user.anne)",
			"1002 RESERVE MAILBOX %(UNIQUEID u2 MBOXNAME user.anne.Sent)",
		},
		testutil.Chunk{
			"1003 APPLY mailbox %(UNIQUEID u2 MBOXNAME user.anne.Sent)",
			"1004 APPLY RENAME %(OLDMBOXNAME user.anne.Sent NEWMBOXNAME user.anne.Drafts)",
		},
	)

	out := mustRun(t, "", "reindex", "user.anne")
	golden(t).Assert(t, "reindex", []byte(out))

	// Same index as the one built by live appends.
	mbx := mustRun(t, "", "mailboxes", "user.anne")
	golden(t).Assert(t, "mailboxes", []byte(mbx))
	assert.FileExists(t, "user.anne.index")
}

func TestReindexKeepsOldIndex(t *testing.T) {
	populated(t)
	mustRun(t, "", "reindex", "user.anne")
	assert.FileExists(t, "user.anne.index.old")

	var result EventsResult
	decode(t, mustRun(t, "", "events", "user.anne", "--format", "json"), &result)
	assert.Len(t, result.Events, 4)
}

func TestReindexOrderingError(t *testing.T) {
	workdir(t)
	testutil.WriteLog(t, "user.anne.gz",
		testutil.Chunk{"1000 APPLY SUB %(USERID anne MBOXNAME a)"},
		testutil.Chunk{"1001 APPLY SUB %(USERID anne MBOXNAME b)", "999 APPLY SUB %(USERID anne MBOXNAME c)"},
	)

	res := run(t, "", "reindex", "user.anne", "--format", "json")
	require.Error(t, res.err)
	assert.Equal(t, ExitFailure, GetExitCode(res.err))

	resp := decode(t, res.stdout, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeOrdering, resp.Error.Code)

	// The stats cover the records indexed before the regression.
	details, ok := resp.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 2, details["indexed"])
}

func TestReindexSkipsIndexErrors(t *testing.T) {
	workdir(t)
	t.Setenv("MAILBACKUP_ON_INDEX_ERROR", "skip")
	testutil.WriteLog(t, "user.anne.gz",
		testutil.Chunk{
			"1000 APPLY SUB %(USERID anne)",
			"1001 APPLY SUB %(USERID anne MBOXNAME user.anne)",
		},
	)

	var result StatsResult
	decode(t, mustRun(t, "", "reindex", "user.anne", "--format", "json"), &result)
	assert.Equal(t, "reindexed", result.Action)
	assert.Equal(t, 2, result.Applied)
	assert.Equal(t, 1, result.Indexed)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, int64(1000), result.Failures[0].Timestamp)
	assert.Equal(t, "SUB", result.Failures[0].Command)
}

func TestCompact(t *testing.T) {
	populated(t)
	mustRun(t, "1005 APPLY UNSUB %(USERID anne MBOXNAME user.anne)\n", "append", "user.anne")
	mustRun(t, "1006 APPLY SUB %(USERID anne MBOXNAME user.anne)\n", "append", "user.anne")

	before := mustRun(t, "", "events", "user.anne")

	var stats StatsResult
	decode(t, mustRun(t, "", "compact", "user.anne", "--format", "json"), &stats)
	assert.Equal(t, "compacted", stats.Action)
	assert.Equal(t, 6, stats.Records)

	var chunks ChunksResult
	decode(t, mustRun(t, "", "chunks", "user.anne", "--format", "json"), &chunks)
	assert.Len(t, chunks.Chunks, 1)

	assert.Equal(t, before, mustRun(t, "", "events", "user.anne"))
}

func TestSharedReadsMissingIndex(t *testing.T) {
	workdir(t)
	testutil.WriteLog(t, "user.anne.gz", testutil.Chunk{"1 APPLY SUB %(USERID anne MBOXNAME a)"})

	res := run(t, "", "events", "user.anne", "--format", "json")
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))
	assert.NoFileExists(t, "user.anne.index")
}

func TestEventsEmptyJSON(t *testing.T) {
	workdir(t)
	mustRun(t, "", "create", "user.anne")

	out := mustRun(t, "", "events", "user.anne", "--format", "json")
	assert.JSONEq(t, `{"status":"ok","data":{"events":[]}}`, out)

	var result EventsResult
	decode(t, out, &result)
	assert.Equal(t, []store.Event{}, result.Events)
}

func TestBusy(t *testing.T) {
	populated(t)
	b, err := backup.OpenAppend("user.anne", backup.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	defer b.Close()

	res := run(t, "", "events", "user.anne", "--format", "json")
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))

	resp := decode(t, res.stdout, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeBusy, resp.Error.Code)
}
