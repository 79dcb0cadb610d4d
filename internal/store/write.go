package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/mailbackup/internal/dlist"
)

// ErrInvalidEntry is returned when a payload lacks the fields its command
// projection needs.
var ErrInvalidEntry = errors.New("invalid index entry")

// Entry is one APPLY record to be indexed.
type Entry struct {
	Timestamp int64
	Payload   *dlist.Value
	// ChunkID links the event to its chunk row; zero leaves it unset.
	ChunkID int64
}

// projector applies the command-specific part of an entry and returns the
// identity stored on the event row.
type projector func(ctx context.Context, tx *sql.Tx, e Entry) (string, error)

var projections = map[string]projector{
	"MAILBOX":   projectMailbox,
	"UNMAILBOX": projectUnmailbox,
	"RENAME":    projectRename,
	"MESSAGE":   projectMessage,
	"SUB":       projectSubscription(false),
	"UNSUB":     projectSubscription(true),
}

func invalidf(e Entry, format string, args ...any) error {
	return fmt.Errorf("%w: %s at %d: %s", ErrInvalidEntry, e.Payload.Name, e.Timestamp, fmt.Sprintf(format, args...))
}

// IndexRecord writes one entry in a single transaction: the event row plus
// the projection for its command. Command names are matched exactly; the
// caller upper-cases them.
func (s *Store) IndexRecord(ctx context.Context, e Entry) error {
	if e.Payload == nil || e.Payload.Name == "" {
		return fmt.Errorf("%w: payload has no command name", ErrInvalidEntry)
	}

	payloadJSON, err := dlist.MarshalCanonical(e.Payload)
	if err != nil {
		return fmt.Errorf("index record: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index record: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var identity string
	if project, ok := projections[e.Payload.Name]; ok {
		identity, err = project(ctx, tx, e)
	} else {
		identity, err = dlist.Identity(e.Payload)
	}
	if err != nil {
		return fmt.Errorf("index record: %w", err)
	}

	var chunkID sql.NullInt64
	if e.ChunkID != 0 {
		chunkID = sql.NullInt64{Int64: e.ChunkID, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO event (ts, command, identity, payload, chunk_id)
		VALUES (?, ?, ?, ?, ?)
	`, e.Timestamp, e.Payload.Name, identity, string(payloadJSON), chunkID)
	if err != nil {
		return fmt.Errorf("index record: insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index record: commit: %w", err)
	}
	return nil
}

func projectMailbox(ctx context.Context, tx *sql.Tx, e Entry) (string, error) {
	p := e.Payload
	if p.Kind != dlist.KVList {
		return "", invalidf(e, "want kvlist, got %s", p.Kind)
	}
	name := p.GetText("MBOXNAME")
	key := p.GetText("UNIQUEID")
	if key == "" {
		key = name
	}
	if key == "" {
		return "", invalidf(e, "neither UNIQUEID nor MBOXNAME present")
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO mailbox (uniqueid, mboxname, last_ts, deleted)
		VALUES (?, ?, ?, 0)
		ON CONFLICT(uniqueid) DO UPDATE SET
			mboxname = CASE WHEN excluded.mboxname = '' THEN mailbox.mboxname ELSE excluded.mboxname END,
			last_ts = excluded.last_ts,
			deleted = 0
	`, key, name, e.Timestamp)
	if err != nil {
		return "", fmt.Errorf("upsert mailbox %s: %w", key, err)
	}

	records := p.Get("RECORD")
	if records == nil {
		return key, nil
	}
	for i, rec := range records.Children {
		uid, err := strconv.ParseInt(rec.GetText("UID"), 10, 64)
		if err != nil {
			return "", invalidf(e, "RECORD[%d]: bad UID %q", i, rec.GetText("UID"))
		}
		guid := rec.GetText("GUID")
		if guid == "" {
			return "", invalidf(e, "RECORD[%d]: missing GUID", i)
		}
		var flags []string
		if f := rec.Get("FLAGS"); f != nil {
			for _, flag := range f.Children {
				flags = append(flags, flag.Text())
			}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO mailbox_message (mailbox, uid, guid, flags, last_ts)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(mailbox, uid) DO UPDATE SET
				guid = excluded.guid,
				flags = excluded.flags,
				last_ts = excluded.last_ts
		`, key, uid, guid, strings.Join(flags, " "), e.Timestamp)
		if err != nil {
			return "", fmt.Errorf("upsert mailbox message %s/%d: %w", key, uid, err)
		}
	}
	return key, nil
}

// mboxName accepts both "UNMAILBOX user.anne" and a kvlist with MBOXNAME.
func mboxName(p *dlist.Value) string {
	if p.Kind.IsText() {
		return p.Text()
	}
	return p.GetText("MBOXNAME")
}

func projectUnmailbox(ctx context.Context, tx *sql.Tx, e Entry) (string, error) {
	name := mboxName(e.Payload)
	if name == "" {
		return "", invalidf(e, "missing mailbox name")
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE mailbox SET deleted = 1, last_ts = ? WHERE mboxname = ?
	`, e.Timestamp, name)
	if err != nil {
		return "", fmt.Errorf("delete mailbox %s: %w", name, err)
	}
	return name, nil
}

func projectRename(ctx context.Context, tx *sql.Tx, e Entry) (string, error) {
	from := e.Payload.GetText("OLDMBOXNAME")
	to := e.Payload.GetText("NEWMBOXNAME")
	if from == "" || to == "" {
		return "", invalidf(e, "need OLDMBOXNAME and NEWMBOXNAME")
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE mailbox SET mboxname = ?, last_ts = ? WHERE mboxname = ?
	`, to, e.Timestamp, from)
	if err != nil {
		return "", fmt.Errorf("rename mailbox %s: %w", from, err)
	}
	return from, nil
}

func projectMessage(ctx context.Context, tx *sql.Tx, e Entry) (string, error) {
	p := e.Payload
	if p.Kind != dlist.List || len(p.Children) == 0 {
		return "", invalidf(e, "want a non-empty list of file literals")
	}
	for i, f := range p.Children {
		if f.Kind != dlist.File {
			return "", invalidf(e, "element %d is %s, not a file literal", i, f.Kind)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO message (guid, part, size, first_ts)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(guid) DO NOTHING
		`, f.GUID, f.Partition, len(f.Data), e.Timestamp)
		if err != nil {
			return "", fmt.Errorf("insert message %s: %w", f.GUID, err)
		}
	}
	return p.Children[0].GUID, nil
}

func projectSubscription(unsubscribe bool) projector {
	return func(ctx context.Context, tx *sql.Tx, e Entry) (string, error) {
		user := e.Payload.GetText("USERID")
		name := e.Payload.GetText("MBOXNAME")
		if user == "" || name == "" {
			return "", invalidf(e, "need USERID and MBOXNAME")
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO subscription (userid, mboxname, last_ts, unsubscribed)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(userid, mboxname) DO UPDATE SET
				last_ts = excluded.last_ts,
				unsubscribed = excluded.unsubscribed
		`, user, name, e.Timestamp, unsubscribe)
		if err != nil {
			return "", fmt.Errorf("upsert subscription %s/%s: %w", user, name, err)
		}
		return user + ":" + name, nil
	}
}

// ChunkInfo describes a finished chunk.
type ChunkInfo struct {
	ID      int64 `json:"id"`
	Offset  int64 `json:"offset"`
	Length  int64 `json:"length"`
	TSStart int64 `json:"ts_start,omitempty"`
	TSEnd   int64 `json:"ts_end,omitempty"`
	Records int   `json:"records"`
}

// BeginChunk records the start of a chunk at offset and returns its id.
func (s *Store) BeginChunk(ctx context.Context, offset int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO chunk (file_offset) VALUES (?)`, offset)
	if err != nil {
		return 0, fmt.Errorf("begin chunk at %d: %w", offset, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("begin chunk at %d: last insert id: %w", offset, err)
	}
	return id, nil
}

// EndChunk stores the final length, timestamp range and record count of
// a chunk. A chunk without records keeps NULL timestamps.
func (s *Store) EndChunk(ctx context.Context, c ChunkInfo) error {
	var start, end sql.NullInt64
	if c.Records > 0 {
		start = sql.NullInt64{Int64: c.TSStart, Valid: true}
		end = sql.NullInt64{Int64: c.TSEnd, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE chunk SET length = ?, ts_start = ?, ts_end = ?, records = ?
		WHERE id = ?
	`, c.Length, start, end, c.Records, c.ID)
	if err != nil {
		return fmt.Errorf("end chunk %d: %w", c.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("end chunk %d: %w", c.ID, sql.ErrNoRows)
	}
	return nil
}
