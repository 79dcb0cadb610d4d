package backup

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/mailbackup/internal/store"
	"github.com/roach88/mailbackup/internal/testutil"
)

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// newLog writes a log for a fresh backup name and returns the name.
func newLog(t *testing.T, chunks ...testutil.Chunk) string {
	t.Helper()
	name := filepath.Join(t.TempDir(), "user.anne")
	testutil.WriteLog(t, name+DefaultLogSuffix, chunks...)
	return name
}

// reindexed writes a log and builds its index.
func reindexed(t *testing.T, chunks ...testutil.Chunk) string {
	t.Helper()
	name := newLog(t, chunks...)
	_, err := Reindex(context.Background(), name, quiet())
	require.NoError(t, err)
	return name
}

func events(t *testing.T, name string) []store.Event {
	t.Helper()
	b, err := OpenShared(name, quiet())
	require.NoError(t, err)
	defer b.Close()

	evs, err := b.Events(context.Background(), store.EventQuery{})
	require.NoError(t, err)
	return evs
}

func timestamps(evs []store.Event) []int64 {
	var out []int64
	for _, ev := range evs {
		out = append(out, ev.Timestamp)
	}
	return out
}

func digest(t *testing.T, path string) string {
	t.Helper()
	s, err := store.Open(path, store.Options{ReadOnly: true})
	require.NoError(t, err)
	defer s.Close()
	d, err := s.Digest(context.Background())
	require.NoError(t, err)
	return d
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// bumpSchema stamps the index with a schema version.
func bumpSchema(t *testing.T, path string, version int) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(fmt.Sprintf("PRAGMA user_version = %d", version))
	require.NoError(t, err)
}
