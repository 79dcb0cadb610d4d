package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/roach88/mailbackup/internal/record"
	"github.com/roach88/mailbackup/internal/segment"
	"github.com/roach88/mailbackup/internal/store"
)

// tail describes the last chunk of a log when it was cut short: a session
// that crashed before ending its chunk leaves a gzip member without its
// trailer.
type tail struct {
	torn   bool
	offset int64
	data   []byte
}

// findTail reports whether the final chunk of the log is torn. The scan
// starts at the newest chunk the index knows of and falls back to the
// start of the log when that offset does not lead to a clean walk.
func (b *Backup) findTail(ctx context.Context, size int64) (tail, error) {
	var from int64
	last, err := b.index.LastChunk(ctx)
	switch {
	case err == nil && last.Offset < size:
		from = last.Offset
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return tail{}, err
	}

	t, err := b.scanTail(from)
	if err != nil && from > 0 {
		b.log.Debug("tail scan from indexed chunk failed, rescanning log", "offset", from, "error", err)
		return b.scanTail(0)
	}
	return t, err
}

// scanTail walks the chunks from offset. Only input that runs out in the
// middle of a chunk counts as torn; any other decoding failure is returned
// as an error.
func (b *Backup) scanTail(from int64) (tail, error) {
	sr := segment.NewReaderAt(b.fd, from)
	defer sr.Close()

	var buf bytes.Buffer
	for !sr.EOF() {
		if err := sr.BeginChunk(); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return tail{torn: true, offset: sr.ChunkOffset()}, nil
			}
			return tail{}, err
		}
		buf.Reset()
		_, err := io.Copy(&buf, sr)
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return tail{torn: true, offset: sr.ChunkOffset(), data: buf.Bytes()}, nil
		}
		if err != nil {
			return tail{}, fmt.Errorf("chunk at offset %d: %w", sr.ChunkOffset(), err)
		}
		if _, err := sr.EndChunk(); err != nil {
			return tail{}, err
		}
	}
	return tail{}, sr.Err()
}

// repairTail replaces a torn final chunk with a complete one holding the
// records that reached the disk before the crash, so appends after it stay
// readable. It returns the new size of the log.
func (b *Backup) repairTail(ctx context.Context, size int64) (int64, error) {
	t, err := b.findTail(ctx, size)
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", b.paths.Log, err)
	}
	if !t.torn {
		return size, nil
	}

	// Records were flushed whole; a partial last one is dropped.
	var (
		recs []record.Record
		out  bytes.Buffer
	)
	rr := record.NewReader(bytes.NewReader(t.data), record.SuppressLiteralSync())
	for {
		res := rr.Next()
		if res.Status != record.OK {
			break
		}
		recs = append(recs, res.Record)
	}

	stamp := b.opts.now().UTC().Format(time.RFC3339)
	if err := record.EncodeComment(&out, fmt.Sprintf("recovered %d record(s) %s", len(recs), stamp)); err != nil {
		return 0, err
	}
	info := store.ChunkInfo{Offset: t.offset, Records: len(recs)}
	for i, rec := range recs {
		if err := record.Encode(&out, rec); err != nil {
			return 0, err
		}
		if i == 0 {
			info.TSStart = rec.Timestamp
		}
		info.TSEnd = rec.Timestamp
	}

	if err := b.fd.Truncate(t.offset); err != nil {
		return 0, fmt.Errorf("truncate %s: %w", b.paths.Log, err)
	}
	w, err := segment.NewWriter(b.fd, t.offset, b.opts.level)
	if err != nil {
		return 0, err
	}
	if err := w.BeginChunk(); err != nil {
		return 0, err
	}
	if _, err := w.Write(out.Bytes()); err != nil {
		return 0, err
	}
	length, err := w.EndChunk()
	if err != nil {
		return 0, err
	}
	if err := b.fd.Sync(); err != nil {
		return 0, fmt.Errorf("sync %s: %w", b.paths.Log, err)
	}
	info.Length = length

	// The index row of the torn chunk, if the crash left one, now
	// describes the rewritten chunk.
	last, err := b.index.LastChunk(ctx)
	switch {
	case err == nil && last.Offset == t.offset:
		info.ID = last.ID
		if err := b.index.EndChunk(ctx, info); err != nil {
			return 0, err
		}
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return 0, err
	}

	b.log.Warn("repaired torn chunk at end of log",
		"offset", t.offset, "cut_bytes", size-t.offset, "recovered", len(recs), "length", length)
	return t.offset + length, nil
}
