package backup

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/mailbackup/internal/record"
	"github.com/roach88/mailbackup/internal/segment"
)

// Position locates a record in the log.
type Position struct {
	// Chunk is the 0-based chunk number.
	Chunk int `json:"chunk"`
	// ChunkOffset is the byte offset of the chunk in the log file.
	ChunkOffset int64 `json:"chunk_offset"`
	// Record is the 1-based record number within the chunk.
	Record int `json:"record"`
}

// walker receives the events of a log walk. Returning an error from any
// callback stops the walk.
type walker interface {
	beginChunk(ctx context.Context, chunk int, offset int64) error
	record(ctx context.Context, pos Position, rec record.Record) error
	endChunk(ctx context.Context, chunk int, offset, length int64) error
}

// walk reads every chunk of the log in order. Timestamps must not decrease
// across the whole log; the first regression ends the walk with an
// *OrderingError before the offending record is delivered.
func (b *Backup) walk(ctx context.Context, w walker) error {
	sr := segment.NewReader(b.fd)
	defer sr.Close()

	var (
		cursor    int64
		haveFirst bool
	)
	for chunk := 0; !sr.EOF(); chunk++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sr.BeginChunk(); err != nil {
			return err
		}
		offset := sr.ChunkOffset()
		b.log.Debug("chunk", "index", chunk, "offset", offset)

		if err := w.beginChunk(ctx, chunk, offset); err != nil {
			return err
		}

		rr := record.NewReader(sr, record.SuppressLiteralSync())
	records:
		for {
			res := rr.Next()
			switch res.Status {
			case record.Exhausted:
				break records
			case record.Malformed:
				if mc, ok := w.(malformedCounter); ok {
					mc.countMalformed(res.Err)
				}
				if err := b.malformed(offset, res.Err); err != nil {
					return err
				}
				break records
			}

			pos := Position{Chunk: chunk, ChunkOffset: offset, Record: res.Index}
			ts := res.Record.Timestamp
			if haveFirst && ts < cursor {
				err := &OrderingError{ChunkOffset: offset, Record: pos.Record, Previous: cursor, Timestamp: ts}
				b.log.Error("ordering corruption, stopping", "error", err)
				return err
			}
			cursor, haveFirst = ts, true

			if err := w.record(ctx, pos, res.Record); err != nil {
				return err
			}
		}

		length, err := sr.EndChunk()
		if err != nil {
			return err
		}
		if err := w.endChunk(ctx, chunk, offset, length); err != nil {
			return err
		}
	}
	return sr.Err()
}

// malformedCounter is implemented by walkers that keep statistics.
type malformedCounter interface {
	countMalformed(err error)
}

func (b *Backup) malformed(offset int64, err error) error {
	if b.opts.onMalformed == PolicyAbort {
		return fmt.Errorf("chunk at offset %d: %w", offset, err)
	}
	b.log.Warn("malformed record, skipping rest of chunk", "offset", offset, "error", err)
	return nil
}

// visitWalker adapts a plain callback to walker.
type visitWalker struct {
	visit func(Position, record.Record) error
}

func (visitWalker) beginChunk(context.Context, int, int64) error { return nil }

func (v visitWalker) record(_ context.Context, pos Position, rec record.Record) error {
	return v.visit(pos, rec)
}

func (visitWalker) endChunk(context.Context, int, int64, int64) error { return nil }

// Replay calls visit for every record of the log in order, whatever its
// verb. It stops at the first error from visit, at ordering corruption, or
// at a malformed record when the malformed policy is abort. On an append
// handle the open chunk is ended first.
func (b *Backup) Replay(ctx context.Context, visit func(Position, record.Record) error) error {
	if err := b.check(); err != nil {
		return err
	}
	if b.w != nil && b.w.InChunk() {
		if err := b.endChunk(ctx); err != nil {
			return err
		}
	}
	return b.walk(ctx, visitWalker{visit: visit})
}

// IsOrderingError reports whether err is or wraps an *OrderingError.
func IsOrderingError(err error) bool {
	var oe *OrderingError
	return errors.As(err, &oe)
}
