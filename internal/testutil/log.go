package testutil

import (
	"compress/gzip"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/mailbackup/internal/segment"
)

// Chunk is the raw decompressed content of one log chunk, one wire line
// per element. Lines are joined with LF and a trailing LF is added.
type Chunk []string

func (c Chunk) bytes() []byte {
	if len(c) == 0 {
		return nil
	}
	return []byte(strings.Join(c, "\n") + "\n")
}

// WriteLog writes a log file at path holding the given chunks, replacing
// any existing file. The lines are written verbatim, so fixtures can hold
// malformed or out-of-order records.
func WriteLog(t testing.TB, path string, chunks ...Chunk) {
	t.Helper()

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	require.NoError(t, err)
	defer f.Close()

	appendChunks(t, f, 0, chunks)
}

// AppendLog adds chunks to the end of an existing log file.
func AppendLog(t testing.TB, path string, chunks ...Chunk) {
	t.Helper()

	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0o600)
	require.NoError(t, err)
	defer f.Close()

	fi, err := f.Stat()
	require.NoError(t, err)
	appendChunks(t, f, fi.Size(), chunks)
}

func appendChunks(t testing.TB, f *os.File, offset int64, chunks []Chunk) {
	t.Helper()

	w, err := segment.NewWriter(f, offset, gzip.DefaultCompression)
	require.NoError(t, err)
	for _, c := range chunks {
		require.NoError(t, w.BeginChunk())
		_, err := w.Write(c.bytes())
		require.NoError(t, err)
		_, err = w.EndChunk()
		require.NoError(t, err)
	}
	require.NoError(t, f.Sync())
}

// TruncateLog cuts n bytes off the end of the log at path, simulating a
// crash in the middle of a chunk.
func TruncateLog(t testing.TB, path string, n int64) {
	t.Helper()

	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, fi.Size()-n))
}
