package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("not found")

// Event is one indexed APPLY record.
type Event struct {
	ID        int64           `json:"id"`
	Timestamp int64           `json:"ts"`
	Command   string          `json:"command"`
	Identity  string          `json:"identity"`
	Payload   json.RawMessage `json:"payload"`
	ChunkID   int64           `json:"chunk_id,omitempty"`
}

// Mailbox is the latest known state of one mailbox.
type Mailbox struct {
	UniqueID      string `json:"uniqueid"`
	Name          string `json:"mboxname"`
	LastTimestamp int64  `json:"last_ts"`
	Deleted       bool   `json:"deleted"`
}

// MailboxMessage is one message record of a mailbox.
type MailboxMessage struct {
	UID           int64    `json:"uid"`
	GUID          string   `json:"guid"`
	Flags         []string `json:"flags"`
	LastTimestamp int64    `json:"last_ts"`
}

// Message is one stored message body.
type Message struct {
	GUID           string `json:"guid"`
	Partition      string `json:"partition"`
	Size           int64  `json:"size"`
	FirstTimestamp int64  `json:"first_ts"`
}

// Subscription is the latest subscription state of a user for a mailbox.
type Subscription struct {
	UserID        string `json:"userid"`
	Mailbox       string `json:"mboxname"`
	LastTimestamp int64  `json:"last_ts"`
	Unsubscribed  bool   `json:"unsubscribed"`
}

// Events returns events matching q in log order.
func (s *Store) Events(ctx context.Context, q EventQuery) ([]Event, error) {
	filter, err := NewFilter(q.Filter)
	if err != nil {
		return nil, err
	}

	query, params := q.compile()
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		if !filter.Match(ev) {
			continue
		}
		events = append(events, ev)
		if q.Limit > 0 && len(events) == q.Limit {
			break
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var (
		ev      Event
		payload string
		chunkID sql.NullInt64
	)
	if err := rows.Scan(&ev.ID, &ev.Timestamp, &ev.Command, &ev.Identity, &payload, &chunkID); err != nil {
		return Event{}, fmt.Errorf("scan event: %w", err)
	}
	ev.Payload = json.RawMessage(payload)
	ev.ChunkID = chunkID.Int64
	return ev, nil
}

// CountEvents returns the number of indexed events.
func (s *Store) CountEvents(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM event").Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// LastTimestamp returns the highest indexed timestamp, also counting
// finished chunks. ok is false for an empty index.
func (s *Store) LastTimestamp(ctx context.Context) (ts int64, ok bool, err error) {
	var last sql.NullInt64
	err = s.db.QueryRowContext(ctx, `
		SELECT MAX(m) FROM (
			SELECT MAX(ts) AS m FROM event
			UNION ALL
			SELECT MAX(ts_end) AS m FROM chunk
		)
	`).Scan(&last)
	if err != nil {
		return 0, false, fmt.Errorf("last timestamp: %w", err)
	}
	return last.Int64, last.Valid, nil
}

// Mailboxes returns all known mailboxes ordered by name.
func (s *Store) Mailboxes(ctx context.Context) ([]Mailbox, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uniqueid, mboxname, last_ts, deleted
		FROM mailbox
		ORDER BY mboxname COLLATE BINARY ASC, uniqueid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query mailboxes: %w", err)
	}
	defer rows.Close()

	mailboxes := []Mailbox{}
	for rows.Next() {
		var mb Mailbox
		if err := rows.Scan(&mb.UniqueID, &mb.Name, &mb.LastTimestamp, &mb.Deleted); err != nil {
			return nil, fmt.Errorf("scan mailbox: %w", err)
		}
		mailboxes = append(mailboxes, mb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mailboxes: %w", err)
	}
	return mailboxes, nil
}

// Mailbox returns the mailbox with the given unique id.
func (s *Store) Mailbox(ctx context.Context, uniqueID string) (Mailbox, error) {
	mb := Mailbox{}
	err := s.db.QueryRowContext(ctx, `
		SELECT uniqueid, mboxname, last_ts, deleted FROM mailbox WHERE uniqueid = ?
	`, uniqueID).Scan(&mb.UniqueID, &mb.Name, &mb.LastTimestamp, &mb.Deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return Mailbox{}, fmt.Errorf("mailbox %s: %w", uniqueID, ErrNotFound)
	}
	if err != nil {
		return Mailbox{}, fmt.Errorf("read mailbox %s: %w", uniqueID, err)
	}
	return mb, nil
}

// MailboxMessages returns the message records of a mailbox ordered by uid.
func (s *Store) MailboxMessages(ctx context.Context, uniqueID string) ([]MailboxMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uid, guid, flags, last_ts FROM mailbox_message
		WHERE mailbox = ?
		ORDER BY uid ASC
	`, uniqueID)
	if err != nil {
		return nil, fmt.Errorf("query mailbox messages: %w", err)
	}
	defer rows.Close()

	msgs := []MailboxMessage{}
	for rows.Next() {
		var (
			m     MailboxMessage
			flags string
		)
		if err := rows.Scan(&m.UID, &m.GUID, &flags, &m.LastTimestamp); err != nil {
			return nil, fmt.Errorf("scan mailbox message: %w", err)
		}
		m.Flags = strings.Fields(flags)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mailbox messages: %w", err)
	}
	return msgs, nil
}

// Messages returns all stored messages ordered by first appearance.
func (s *Store) Messages(ctx context.Context) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT guid, part, size, first_ts FROM message
		ORDER BY first_ts ASC, guid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.GUID, &m.Partition, &m.Size, &m.FirstTimestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

// Subscriptions returns subscription state for a user, or for everyone
// when userID is empty.
func (s *Store) Subscriptions(ctx context.Context, userID string) ([]Subscription, error) {
	query := `SELECT userid, mboxname, last_ts, unsubscribed FROM subscription`
	var params []any
	if userID != "" {
		query += ` WHERE userid = ?`
		params = append(params, userID)
	}
	query += ` ORDER BY userid ASC, mboxname ASC`

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []Subscription{}
	for rows.Next() {
		var sub Subscription
		if err := rows.Scan(&sub.UserID, &sub.Mailbox, &sub.LastTimestamp, &sub.Unsubscribed); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return subs, nil
}

// Chunks returns all chunk rows in log order.
func (s *Store) Chunks(ctx context.Context) ([]ChunkInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_offset, length, ts_start, ts_end, records FROM chunk
		ORDER BY file_offset ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	chunks := []ChunkInfo{}
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return chunks, nil
}

// Chunk returns one chunk row.
func (s *Store) Chunk(ctx context.Context, id int64) (ChunkInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_offset, length, ts_start, ts_end, records FROM chunk WHERE id = ?
	`, id)
	if err != nil {
		return ChunkInfo{}, fmt.Errorf("query chunk %d: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return ChunkInfo{}, fmt.Errorf("query chunk %d: %w", id, err)
		}
		return ChunkInfo{}, fmt.Errorf("chunk %d: %w", id, ErrNotFound)
	}
	return scanChunk(rows)
}

// LastChunk returns the chunk row with the highest offset.
func (s *Store) LastChunk(ctx context.Context) (ChunkInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_offset, length, ts_start, ts_end, records FROM chunk
		ORDER BY file_offset DESC, id DESC LIMIT 1
	`)
	if err != nil {
		return ChunkInfo{}, fmt.Errorf("query last chunk: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return ChunkInfo{}, fmt.Errorf("query last chunk: %w", err)
		}
		return ChunkInfo{}, fmt.Errorf("last chunk: %w", ErrNotFound)
	}
	return scanChunk(rows)
}

func scanChunk(rows *sql.Rows) (ChunkInfo, error) {
	var (
		c          ChunkInfo
		start, end sql.NullInt64
	)
	if err := rows.Scan(&c.ID, &c.Offset, &c.Length, &start, &end, &c.Records); err != nil {
		return ChunkInfo{}, fmt.Errorf("scan chunk: %w", err)
	}
	c.TSStart = start.Int64
	c.TSEnd = end.Int64
	return c, nil
}
