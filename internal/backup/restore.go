package backup

import (
	"context"
	"fmt"

	"github.com/roach88/mailbackup/internal/record"
	"github.com/roach88/mailbackup/internal/segment"
	"github.com/roach88/mailbackup/internal/store"
)

// Events returns indexed events matching q in log order.
func (b *Backup) Events(ctx context.Context, q store.EventQuery) ([]store.Event, error) {
	if err := b.checkIndex(); err != nil {
		return nil, err
	}
	return b.index.Events(ctx, q)
}

// Mailboxes returns the latest known state of every mailbox.
func (b *Backup) Mailboxes(ctx context.Context) ([]store.Mailbox, error) {
	if err := b.checkIndex(); err != nil {
		return nil, err
	}
	return b.index.Mailboxes(ctx)
}

// Mailbox returns the latest known state of the mailbox with uniqueID.
// It fails with store.ErrNotFound when the index never saw it.
func (b *Backup) Mailbox(ctx context.Context, uniqueID string) (store.Mailbox, error) {
	if err := b.checkIndex(); err != nil {
		return store.Mailbox{}, err
	}
	return b.index.Mailbox(ctx, uniqueID)
}

// MailboxMessages returns the message records of a mailbox by uid.
func (b *Backup) MailboxMessages(ctx context.Context, uniqueID string) ([]store.MailboxMessage, error) {
	if err := b.checkIndex(); err != nil {
		return nil, err
	}
	return b.index.MailboxMessages(ctx, uniqueID)
}

// Messages returns every message body the backup holds, by guid.
func (b *Backup) Messages(ctx context.Context) ([]store.Message, error) {
	if err := b.checkIndex(); err != nil {
		return nil, err
	}
	return b.index.Messages(ctx)
}

// Subscriptions returns the subscriptions of userID, or of every user when
// userID is empty.
func (b *Backup) Subscriptions(ctx context.Context, userID string) ([]store.Subscription, error) {
	if err := b.checkIndex(); err != nil {
		return nil, err
	}
	return b.index.Subscriptions(ctx, userID)
}

// ReplayEvents streams every indexed event in log order to visit, without
// loading them all at once. An error from visit stops the replay.
func (b *Backup) ReplayEvents(ctx context.Context, visit func(store.Event) error) error {
	if err := b.checkIndex(); err != nil {
		return err
	}
	return b.index.ReplayEvents(ctx, visit)
}

// Chunks returns the chunk table of the index.
func (b *Backup) Chunks(ctx context.Context) ([]store.ChunkInfo, error) {
	if err := b.checkIndex(); err != nil {
		return nil, err
	}
	return b.index.Chunks(ctx)
}

// ChunkRecords reads one chunk straight from the log, using the offset
// stored in the index, and returns all of its records.
func (b *Backup) ChunkRecords(ctx context.Context, chunkID int64) ([]record.Record, error) {
	if err := b.checkIndex(); err != nil {
		return nil, err
	}
	c, err := b.index.Chunk(ctx, chunkID)
	if err != nil {
		return nil, err
	}

	sr := segment.NewReaderAt(b.fd, c.Offset)
	defer sr.Close()
	if sr.EOF() {
		if err := sr.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("chunk %d: offset %d is past the end of the log", chunkID, c.Offset)
	}
	if err := sr.BeginChunk(); err != nil {
		return nil, err
	}

	var (
		recs []record.Record
		last int64
	)
	rr := record.NewReader(sr, record.SuppressLiteralSync())
	for {
		res := rr.Next()
		if res.Status == record.Exhausted {
			break
		}
		if res.Status == record.Malformed {
			if err := b.malformed(c.Offset, res.Err); err != nil {
				return recs, err
			}
			break
		}
		ts := res.Record.Timestamp
		if len(recs) > 0 && ts < last {
			return recs, &OrderingError{ChunkOffset: c.Offset, Record: res.Index, Previous: last, Timestamp: ts}
		}
		last = ts
		recs = append(recs, res.Record)
	}

	if _, err := sr.EndChunk(); err != nil {
		return recs, err
	}
	return recs, nil
}
