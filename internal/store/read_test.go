package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mailbackup/internal/dlist"
)

func seedEvents(t *testing.T, s *Store) {
	t.Helper()
	index(t, s, 100, mailboxPayload("u1", "user.anne"))
	index(t, s, 100, mailboxPayload("u2", "user.bob"))
	index(t, s, 200, dlist.NewList("MESSAGE", dlist.NewFile("", "default", "g1", []byte("body"))))
	index(t, s, 300, dlist.NewAtom("UNMAILBOX", "user.bob"))
	index(t, s, 400, mailboxPayload("u1", "user.anne"))
}

func TestEvents_LogOrder(t *testing.T) {
	s := createTestStore(t)
	seedEvents(t, s)

	events, err := s.Events(context.Background(), EventQuery{})
	require.NoError(t, err)
	require.Len(t, events, 5)

	var got []string
	for _, ev := range events {
		got = append(got, ev.Command+":"+ev.Identity)
	}
	assert.Equal(t, []string{"MAILBOX:u1", "MAILBOX:u2", "MESSAGE:g1", "UNMAILBOX:user.bob", "MAILBOX:u1"}, got)
	for i := 1; i < len(events); i++ {
		assert.True(t, events[i-1].ID < events[i].ID)
	}
}

func TestEvents_Query(t *testing.T) {
	s := createTestStore(t)
	seedEvents(t, s)

	tests := []struct {
		name  string
		query EventQuery
		want  []int64
	}{
		{"since", EventQuery{Since: 200}, []int64{200, 300, 400}},
		{"until", EventQuery{Until: 200}, []int64{100, 100, 200}},
		{"range", EventQuery{Since: 150, Until: 350}, []int64{200, 300}},
		{"command", EventQuery{Command: "MAILBOX"}, []int64{100, 100, 400}},
		{"identity", EventQuery{Command: "MAILBOX", Identity: "u1"}, []int64{100, 400}},
		{"limit", EventQuery{Limit: 2}, []int64{100, 100}},
		{"no match", EventQuery{Command: "RENAME"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := s.Events(context.Background(), tt.query)
			require.NoError(t, err)
			var got []int64
			for _, ev := range events {
				got = append(got, ev.Timestamp)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvents_Filter(t *testing.T) {
	s := createTestStore(t)
	seedEvents(t, s)
	ctx := context.Background()

	events, err := s.Events(ctx, EventQuery{Filter: `command == "MAILBOX" && payload.MBOXNAME == "user.bob"`})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "u2", events[0].Identity)

	events, err = s.Events(ctx, EventQuery{Filter: `ts >= 200`, Limit: 2})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(200), events[0].Timestamp)
	assert.Equal(t, int64(300), events[1].Timestamp)

	_, err = s.Events(ctx, EventQuery{Filter: `ts +`})
	assert.Error(t, err)

	_, err = s.Events(ctx, EventQuery{Filter: `ts`})
	assert.Error(t, err, "non-bool filter must be rejected")
}

func TestCompile_AlwaysOrdered(t *testing.T) {
	query, params := EventQuery{Since: 1, Command: "MAILBOX", Limit: 5}.compile()
	assert.Equal(t, "SELECT id, ts, command, identity, payload, chunk_id FROM event WHERE ts >= ? AND command = ? ORDER BY ts ASC, id ASC LIMIT 5", query)
	assert.Equal(t, []any{int64(1), "MAILBOX"}, params)

	query, _ = EventQuery{Limit: 5, Filter: "true"}.compile()
	assert.NotContains(t, query, "LIMIT")
	assert.Contains(t, query, "ORDER BY ts ASC, id ASC")
}

func TestFilter_EmptyMatchesAll(t *testing.T) {
	f, err := NewFilter("  ")
	require.NoError(t, err)
	assert.True(t, f.Match(Event{}))
}

func TestFilter_MissingFieldIsNoMatch(t *testing.T) {
	f, err := NewFilter(`payload.NOPE == "x"`)
	require.NoError(t, err)
	assert.False(t, f.Match(Event{Command: "MAILBOX", Payload: []byte(`{"MBOXNAME":"a"}`)}))
}

func TestMailbox_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Mailbox(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLastChunk(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.LastChunk(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	first, err := s.BeginChunk(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, s.EndChunk(ctx, ChunkInfo{ID: first, Offset: 0, Length: 40, TSStart: 1, TSEnd: 2, Records: 2}))
	second, err := s.BeginChunk(ctx, 40)
	require.NoError(t, err)

	last, err := s.LastChunk(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, last.ID)
	assert.Equal(t, int64(40), last.Offset)
	assert.Zero(t, last.Length, "a chunk that was never ended has no length")
}
