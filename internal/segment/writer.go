package segment

import (
	"compress/gzip"
	"fmt"
	"io"
)

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Writer appends chunks to a log.
type Writer struct {
	dst     *countingWriter
	base    int64
	level   int
	zw      *gzip.Writer
	start   int64
	inChunk bool
}

// NewWriter returns a Writer that appends to w. offset is the size of the
// log before the first write, so chunk offsets match the file.
func NewWriter(w io.Writer, offset int64, level int) (*Writer, error) {
	if _, err := gzip.NewWriterLevel(io.Discard, level); err != nil {
		return nil, fmt.Errorf("segment writer: %w", err)
	}
	return &Writer{
		dst:   &countingWriter{w: w},
		base:  offset,
		level: level,
	}, nil
}

// InChunk reports whether a chunk is currently open.
func (w *Writer) InChunk() bool {
	return w.inChunk
}

// BeginChunk starts a new gzip member.
func (w *Writer) BeginChunk() error {
	if w.inChunk {
		return ErrChunkOpen
	}
	w.start = w.dst.n
	if w.zw == nil {
		zw, err := gzip.NewWriterLevel(w.dst, w.level)
		if err != nil {
			return err
		}
		w.zw = zw
	} else {
		w.zw.Reset(w.dst)
	}
	w.inChunk = true
	return nil
}

// ChunkOffset returns the file offset of the current (or last) chunk.
func (w *Writer) ChunkOffset() int64 {
	return w.base + w.start
}

// Write compresses p into the current chunk.
func (w *Writer) Write(p []byte) (int, error) {
	if !w.inChunk {
		return 0, ErrNoChunk
	}
	return w.zw.Write(p)
}

// Flush pushes all pending compressed data to the underlying writer.
func (w *Writer) Flush() error {
	if !w.inChunk {
		return nil
	}
	return w.zw.Flush()
}

// EndChunk writes the gzip trailer and returns the compressed length of the
// chunk.
func (w *Writer) EndChunk() (int64, error) {
	if !w.inChunk {
		return 0, ErrNoChunk
	}
	w.inChunk = false
	if err := w.zw.Close(); err != nil {
		return w.dst.n - w.start, fmt.Errorf("end chunk at offset %d: %w", w.ChunkOffset(), err)
	}
	return w.dst.n - w.start, nil
}

// Close ends any open chunk. The underlying writer is not closed.
func (w *Writer) Close() error {
	if !w.inChunk {
		return nil
	}
	_, err := w.EndChunk()
	return err
}
