package backup

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/mailbackup/internal/dlist"
	"github.com/roach88/mailbackup/internal/record"
	"github.com/roach88/mailbackup/internal/store"
)

// AppendRecord writes an APPLY record to the end of the log and flushes it.
// The first append of a session starts a new chunk that opens with a
// comment naming the session. Timestamps may repeat but never go back.
func (b *Backup) AppendRecord(ctx context.Context, ts int64, payload *dlist.Value) error {
	if err := b.check(); err != nil {
		return err
	}
	if b.dataMode != DataAppend {
		return fmt.Errorf("append in %s mode: %w", b.dataMode, ErrWrongMode)
	}
	if b.haveLast && ts < b.lastTS {
		return fmt.Errorf("%w: %d < %d", ErrTimestampRegression, ts, b.lastTS)
	}

	var line bytes.Buffer
	if err := record.Encode(&line, record.Record{Timestamp: ts, Verb: record.VerbApply, Payload: payload}); err != nil {
		return err
	}

	if !b.w.InChunk() {
		if err := b.beginChunk(ctx); err != nil {
			return err
		}
	}
	if _, err := b.w.Write(line.Bytes()); err != nil {
		return fmt.Errorf("append record at %d: %w", ts, err)
	}
	if err := b.w.Flush(); err != nil {
		return fmt.Errorf("append record at %d: %w", ts, err)
	}

	if b.chunk.Records == 0 {
		b.chunk.TSStart = ts
	}
	b.chunk.TSEnd = ts
	b.chunk.Records++
	b.pending += int64(line.Len())
	b.lastTS, b.haveLast = ts, true

	if b.opts.chunkTarget > 0 && b.pending >= b.opts.chunkTarget {
		return b.endChunk(ctx)
	}
	return nil
}

func (b *Backup) beginChunk(ctx context.Context) error {
	if err := b.w.BeginChunk(); err != nil {
		return err
	}
	offset := b.w.ChunkOffset()

	if b.session == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("session id: %w", err)
		}
		b.session = id.String()
	}
	var comment bytes.Buffer
	stamp := b.opts.now().UTC().Format(time.RFC3339)
	if err := record.EncodeComment(&comment, "session "+b.session+" "+stamp); err != nil {
		return err
	}
	if _, err := b.w.Write(comment.Bytes()); err != nil {
		return fmt.Errorf("begin chunk at %d: %w", offset, err)
	}
	b.pending = int64(comment.Len())

	id, err := b.index.BeginChunk(ctx, offset)
	if err != nil {
		return err
	}
	b.chunk = store.ChunkInfo{ID: id, Offset: offset}
	b.lastChunkID, b.lastChunkOffset = id, offset
	b.log.Debug("chunk started", "offset", offset, "session", b.session)
	return nil
}

// EndChunk closes the current chunk, if any, so the next append starts a
// new one.
func (b *Backup) EndChunk(ctx context.Context) error {
	if err := b.check(); err != nil {
		return err
	}
	if b.w == nil || !b.w.InChunk() {
		return nil
	}
	return b.endChunk(ctx)
}

func (b *Backup) endChunk(ctx context.Context) error {
	length, err := b.w.EndChunk()
	if err != nil {
		return err
	}
	if err := b.fd.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", b.paths.Log, err)
	}
	b.chunk.Length = length
	if err := b.index.EndChunk(ctx, b.chunk); err != nil {
		return err
	}
	b.log.Debug("chunk ended", "offset", b.chunk.Offset, "length", length, "records", b.chunk.Records)
	b.chunk = store.ChunkInfo{}
	b.pending = 0
	return nil
}

// IndexRecord writes an APPLY payload to the index without touching the
// log. The command name is upper-cased as reindex would. The payload is
// not modified.
func (b *Backup) IndexRecord(ctx context.Context, ts int64, payload *dlist.Value) error {
	if err := b.check(); err != nil {
		return err
	}
	if b.indexMode == IndexRead || b.indexMode == IndexNone {
		return fmt.Errorf("index write in %s mode: %w", b.indexMode, ErrWrongMode)
	}
	if payload == nil {
		return fmt.Errorf("index record at %d: %w", ts, store.ErrInvalidEntry)
	}

	p := *payload
	p.UpperName()
	return b.index.IndexRecord(ctx, store.Entry{Timestamp: ts, Payload: &p, ChunkID: b.chunk.ID})
}

// Apply appends a record and indexes it, as a live replication writer
// does. A failed index write follows the index error policy: abort
// returns an *IndexError, skip logs it and keeps it in Failures.
func (b *Backup) Apply(ctx context.Context, ts int64, payload *dlist.Value) error {
	if err := b.AppendRecord(ctx, ts, payload); err != nil {
		return err
	}

	// The append may have ended the chunk already; the record still
	// belongs to it.
	p := *payload
	p.UpperName()
	err := b.index.IndexRecord(ctx, store.Entry{Timestamp: ts, Payload: &p, ChunkID: b.lastChunkID})
	if err == nil {
		return nil
	}

	ie := &IndexError{ChunkOffset: b.lastChunkOffset, Timestamp: ts, Command: p.Name, Err: err}
	if b.opts.onIndexError == PolicyAbort {
		return ie
	}
	b.log.Warn("index write failed, record kept in log only", "error", ie)
	b.failures = append(b.failures, ie)
	return nil
}

// Failures returns the index writes skipped by Apply under PolicySkip.
// A reindex repairs them.
func (b *Backup) Failures() []*IndexError {
	return b.failures
}
