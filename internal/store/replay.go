package store

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
)

// ReplayEvents streams every event in log order to visit. Returning an
// error from visit stops the replay and is passed back to the caller.
func (s *Store) ReplayEvents(ctx context.Context, visit func(Event) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, command, identity, payload, chunk_id FROM event
		ORDER BY ts ASC, id ASC
	`)
	if err != nil {
		return fmt.Errorf("replay events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, err := scanEvent(rows)
		if err != nil {
			return err
		}
		if err := visit(ev); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate replay: %w", err)
	}
	return nil
}

// digestQueries lists the rows covered by Digest. Surrogate ids are left
// out so two indexes built from the same log compare equal however their
// rows were numbered.
var digestQueries = []struct {
	table string
	query string
}{
	{"chunk", `SELECT file_offset, length, ts_start, ts_end, records FROM chunk ORDER BY file_offset, id`},
	{"event", `SELECT ts, command, identity, payload FROM event ORDER BY ts, id`},
	{"mailbox", `SELECT uniqueid, mboxname, last_ts, deleted FROM mailbox ORDER BY uniqueid`},
	{"mailbox_message", `SELECT mailbox, uid, guid, flags, last_ts FROM mailbox_message ORDER BY mailbox, uid`},
	{"message", `SELECT guid, part, size, first_ts FROM message ORDER BY guid`},
	{"subscription", `SELECT userid, mboxname, last_ts, unsubscribed FROM subscription ORDER BY userid, mboxname`},
}

// Digest returns a SHA-256 over the full index contents in a fixed order.
// Rebuilding an index from the same log must reproduce the same digest.
func (s *Store) Digest(ctx context.Context) (string, error) {
	h := sha256.New()
	for _, dq := range digestQueries {
		if err := digestTable(ctx, s, h, dq.table, dq.query); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func digestTable(ctx context.Context, s *Store, h hash.Hash, table, query string) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("digest %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("digest %s: %w", table, err)
	}

	h.Write([]byte(table))
	h.Write([]byte{0})

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	var buf [8]byte
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("digest %s: scan: %w", table, err)
		}
		for _, v := range vals {
			switch v := v.(type) {
			case nil:
				h.Write([]byte{'n'})
			case int64:
				h.Write([]byte{'i'})
				binary.BigEndian.PutUint64(buf[:], uint64(v))
				h.Write(buf[:])
			case []byte:
				writeBytes(h, v)
			case string:
				writeBytes(h, []byte(v))
			default:
				writeBytes(h, []byte(fmt.Sprint(v)))
			}
		}
		h.Write([]byte{'\n'})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("digest %s: %w", table, err)
	}
	return nil
}

func writeBytes(h hash.Hash, b []byte) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(b)))
	h.Write([]byte{'s'})
	h.Write(n[:])
	h.Write(b)
}
