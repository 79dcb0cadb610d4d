package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/mailbackup/internal/dlist"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.index")
	s, err := Open(path, Options{Init: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func mailboxPayload(uniqueID, name string, records ...*dlist.Value) *dlist.Value {
	children := []*dlist.Value{
		dlist.NewAtom("UNIQUEID", uniqueID),
		dlist.NewAtom("MBOXNAME", name),
	}
	if len(records) > 0 {
		children = append(children, dlist.NewList("RECORD", records...))
	}
	return dlist.NewKVList("MAILBOX", children...)
}

func messageRecord(uid, guid string, flags ...string) *dlist.Value {
	fl := make([]*dlist.Value, len(flags))
	for i, f := range flags {
		fl[i] = dlist.NewAtom("", f)
	}
	return dlist.NewKVList("",
		dlist.NewAtom("UID", uid),
		dlist.NewAtom("GUID", guid),
		dlist.NewList("FLAGS", fl...),
	)
}

func index(t *testing.T, s *Store, ts int64, payload *dlist.Value) {
	t.Helper()
	require.NoError(t, s.IndexRecord(context.Background(), Entry{Timestamp: ts, Payload: payload}))
}
