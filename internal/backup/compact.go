package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/google/uuid"

	"github.com/roach88/mailbackup/internal/lock"
	"github.com/roach88/mailbackup/internal/record"
	"github.com/roach88/mailbackup/internal/segment"
	"github.com/roach88/mailbackup/internal/store"
)

const newSuffix = ".new"

// compactor is the walker behind Compact. It copies every record into a
// new log, starting a new chunk whenever the current one reaches the
// chunk target, and indexes APPLY records against the new offsets.
type compactor struct {
	b     *Backup
	w     *segment.Writer
	stats *Stats
	chunk store.ChunkInfo
	size  int64
	buf   bytes.Buffer
}

func (c *compactor) beginChunk(context.Context, int, int64) error {
	return nil
}

func (c *compactor) record(ctx context.Context, _ Position, rec record.Record) error {
	c.stats.Records++

	c.buf.Reset()
	if err := record.Encode(&c.buf, rec); err != nil {
		return err
	}

	if !c.w.InChunk() {
		if err := c.startChunk(ctx); err != nil {
			return err
		}
	}
	if _, err := c.w.Write(c.buf.Bytes()); err != nil {
		return err
	}
	c.size += int64(c.buf.Len())
	if c.chunk.Records == 0 {
		c.chunk.TSStart = rec.Timestamp
	}
	c.chunk.TSEnd = rec.Timestamp
	c.chunk.Records++

	if rec.Verb != record.VerbApply {
		c.stats.Skipped++
	} else {
		c.stats.Applied++
		if err := c.b.indexApplied(ctx, c.stats, c.chunk.ID, c.chunk.Offset, rec); err != nil {
			return err
		}
	}

	if c.b.opts.chunkTarget > 0 && c.size >= c.b.opts.chunkTarget {
		return c.finishChunk(ctx)
	}
	return nil
}

func (c *compactor) endChunk(context.Context, int, int64, int64) error {
	return nil
}

func (c *compactor) countMalformed(error) {
	c.stats.Malformed++
}

func (c *compactor) startChunk(ctx context.Context) error {
	if err := c.w.BeginChunk(); err != nil {
		return err
	}
	offset := c.w.ChunkOffset()
	var comment bytes.Buffer
	if err := record.EncodeComment(&comment, "compacted "+uuid.NewString()); err != nil {
		return err
	}
	if _, err := c.w.Write(comment.Bytes()); err != nil {
		return err
	}

	id, err := c.b.index.BeginChunk(ctx, offset)
	if err != nil {
		return err
	}
	c.chunk = store.ChunkInfo{ID: id, Offset: offset}
	c.size = 0
	c.stats.Chunks++
	return nil
}

func (c *compactor) finishChunk(ctx context.Context) error {
	if !c.w.InChunk() {
		return nil
	}
	length, err := c.w.EndChunk()
	if err != nil {
		return err
	}
	c.chunk.Length = length
	return c.b.index.EndChunk(ctx, c.chunk)
}

// Compact rewrites the log of the named backup, merging small chunks up to
// the chunk target and dropping session comments, then rebuilds the index
// against the new log. The new log replaces the old one only once it is
// complete and synced; on failure the old log is untouched.
//
// A malformed record always aborts compaction, whatever the malformed
// policy: the rewritten log replaces the old one, so anything skipped
// would be gone for good.
func Compact(ctx context.Context, name string, opts ...Option) (stats Stats, err error) {
	o := buildOptions(opts)
	o.onMalformed = PolicyAbort
	b, err := open(name, LockExclusive, DataNormal, IndexCreate, o)
	if err != nil {
		return Stats{}, err
	}
	defer func() {
		if cerr := b.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	stats, err = b.compact(ctx)
	if err != nil {
		return stats, err
	}
	b.log.Info("compaction complete",
		"chunks", stats.Chunks, "records", stats.Records, "indexed", stats.Indexed)
	return stats, nil
}

func (b *Backup) compact(ctx context.Context) (_ Stats, err error) {
	if b.indexMode != IndexCreate {
		return Stats{}, fmt.Errorf("compact needs a fresh index: %w", ErrWrongMode)
	}

	tmp := b.paths.Log + newSuffix
	if err := os.Remove(tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Stats{}, err
	}
	f, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return Stats{}, err
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	w, err := segment.NewWriter(f, 0, b.opts.level)
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	c := &compactor{b: b, w: w, stats: &stats}
	if err := b.walk(ctx, c); err != nil {
		return stats, err
	}
	if err := c.finishChunk(ctx); err != nil {
		return stats, err
	}
	if err := f.Sync(); err != nil {
		return stats, err
	}

	// The new log is locked before it becomes visible under the log's
	// name, and the handle moves over to it, so the index is never open
	// without the lock on the current log held.
	if err := lock.Acquire(f, lock.Exclusive); err != nil {
		return stats, fmt.Errorf("lock %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, b.paths.Log); err != nil {
		return stats, err
	}
	old := b.fd
	b.fd = f
	if err := lock.Release(old); err != nil {
		b.log.Warn("releasing lock on replaced log", "error", err)
	}
	if err := old.Close(); err != nil {
		b.log.Warn("closing replaced log", "error", err)
	}
	return stats, nil
}
