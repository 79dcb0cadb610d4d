package backup

import (
	"context"
	"fmt"

	"github.com/roach88/mailbackup/internal/record"
	"github.com/roach88/mailbackup/internal/store"
)

// Stats summarizes a reindex or compaction.
type Stats struct {
	Chunks  int `json:"chunks"`
	Records int `json:"records"`
	// Applied counts APPLY records; Skipped counts records with any other verb.
	Applied   int           `json:"applied"`
	Indexed   int           `json:"indexed"`
	Skipped   int           `json:"skipped"`
	Malformed int           `json:"malformed"`
	Failures  []*IndexError `json:"failures,omitempty"`
}

// indexer is the walker behind Reindex. It writes one chunk row per chunk
// and one event per APPLY record.
type indexer struct {
	b     *Backup
	stats *Stats
	chunk store.ChunkInfo
}

func (ix *indexer) beginChunk(ctx context.Context, _ int, offset int64) error {
	id, err := ix.b.index.BeginChunk(ctx, offset)
	if err != nil {
		return err
	}
	ix.chunk = store.ChunkInfo{ID: id, Offset: offset}
	ix.stats.Chunks++
	return nil
}

func (ix *indexer) record(ctx context.Context, pos Position, rec record.Record) error {
	ix.stats.Records++
	if ix.chunk.Records == 0 {
		ix.chunk.TSStart = rec.Timestamp
	}
	ix.chunk.TSEnd = rec.Timestamp
	ix.chunk.Records++

	// Verbs match exactly: "apply" is not an APPLY record.
	if rec.Verb != record.VerbApply {
		ix.stats.Skipped++
		return nil
	}
	ix.stats.Applied++
	return ix.b.indexApplied(ctx, ix.stats, ix.chunk.ID, pos.ChunkOffset, rec)
}

func (ix *indexer) endChunk(ctx context.Context, _ int, _, length int64) error {
	ix.chunk.Length = length
	return ix.b.index.EndChunk(ctx, ix.chunk)
}

func (ix *indexer) countMalformed(error) {
	ix.stats.Malformed++
}

// indexApplied upper-cases the command name of an APPLY record and writes
// it to the index, applying the index error policy.
func (b *Backup) indexApplied(ctx context.Context, stats *Stats, chunkID, chunkOffset int64, rec record.Record) error {
	rec.Payload.UpperName()
	err := b.index.IndexRecord(ctx, store.Entry{
		Timestamp: rec.Timestamp,
		Payload:   rec.Payload,
		ChunkID:   chunkID,
	})
	if err == nil {
		stats.Indexed++
		return nil
	}

	ie := &IndexError{ChunkOffset: chunkOffset, Timestamp: rec.Timestamp, Command: rec.Payload.Name, Err: err}
	if b.opts.onIndexError == PolicyAbort {
		return ie
	}
	b.log.Warn("index write failed, skipping record", "error", ie)
	stats.Failures = append(stats.Failures, ie)
	return nil
}

// Reindex rebuilds the index of the named backup from its log. The
// previous index is kept as <index>.old. The handle is closed on every
// path; the returned Stats cover the work done before any error.
func Reindex(ctx context.Context, name string, opts ...Option) (stats Stats, err error) {
	b, err := open(name, LockExclusive, DataNormal, IndexCreate, buildOptions(opts))
	if err != nil {
		return Stats{}, err
	}
	defer func() {
		if cerr := b.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	stats, err = b.reindex(ctx)
	if err != nil {
		return stats, err
	}
	b.log.Info("reindex complete",
		"chunks", stats.Chunks, "records", stats.Records,
		"indexed", stats.Indexed, "malformed", stats.Malformed, "failures", len(stats.Failures))
	return stats, nil
}

func (b *Backup) reindex(ctx context.Context) (Stats, error) {
	if b.indexMode != IndexCreate {
		return Stats{}, fmt.Errorf("reindex needs a fresh index: %w", ErrWrongMode)
	}
	var stats Stats
	err := b.walk(ctx, &indexer{b: b, stats: &stats})
	return stats, err
}
