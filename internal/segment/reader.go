package segment

import (
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"math"
)

var (
	// ErrChunkOpen is returned by BeginChunk when the previous chunk was not ended.
	ErrChunkOpen = errors.New("segment: chunk already open")

	// ErrNoChunk is returned by EndChunk when no chunk is open.
	ErrNoChunk = errors.New("segment: no chunk open")
)

// countingReader counts consumed bytes. It implements io.ByteReader so the
// gzip decoder uses it directly instead of wrapping it in its own buffer,
// which keeps the count exact at member boundaries.
type countingReader struct {
	r *bufio.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingReader) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err == nil {
		c.n++
	}
	return b, err
}

// Reader walks the chunks of a log sequentially.
type Reader struct {
	src     *countingReader
	base    int64
	zr      *gzip.Reader
	start   int64
	inChunk bool
	err     error
}

// NewReader returns a Reader positioned at the start of the log.
func NewReader(r io.ReaderAt) *Reader {
	return NewReaderAt(r, 0)
}

// NewReaderAt returns a Reader positioned at offset, which must be the first
// byte of a chunk.
func NewReaderAt(r io.ReaderAt, offset int64) *Reader {
	sr := io.NewSectionReader(r, offset, math.MaxInt64-offset)
	return &Reader{
		src:  &countingReader{r: bufio.NewReader(sr)},
		base: offset,
	}
}

func (r *Reader) offset() int64 {
	return r.base + r.src.n
}

// EOF reports whether there are no more chunks to read. A read failure while
// probing also ends the walk; it is reported by Err.
func (r *Reader) EOF() bool {
	if r.inChunk {
		return false
	}
	if r.err != nil {
		return true
	}
	if _, err := r.src.r.Peek(1); err != nil {
		if !errors.Is(err, io.EOF) {
			r.err = err
		}
		return true
	}
	return false
}

// Err returns the I/O error that ended the walk, if any.
func (r *Reader) Err() error {
	return r.err
}

// BeginChunk starts decoding the next chunk.
func (r *Reader) BeginChunk() error {
	if r.inChunk {
		return ErrChunkOpen
	}
	r.start = r.offset()

	var err error
	if r.zr == nil {
		r.zr, err = gzip.NewReader(r.src)
	} else {
		err = r.zr.Reset(r.src)
	}
	if err != nil {
		return fmt.Errorf("chunk at offset %d: %w", r.start, err)
	}
	r.zr.Multistream(false)
	r.inChunk = true
	return nil
}

// ChunkOffset returns the byte offset of the current (or last) chunk.
func (r *Reader) ChunkOffset() int64 {
	return r.start
}

// Read reads decompressed bytes from the current chunk. It returns io.EOF
// at the end of the chunk; the next chunk needs another BeginChunk.
func (r *Reader) Read(p []byte) (int, error) {
	if !r.inChunk {
		return 0, io.EOF
	}
	return r.zr.Read(p)
}

// EndChunk finishes the current chunk, discarding anything the caller did
// not read and verifying the gzip trailer. It returns the compressed length
// of the chunk.
func (r *Reader) EndChunk() (int64, error) {
	if !r.inChunk {
		return 0, ErrNoChunk
	}
	r.inChunk = false

	if _, err := io.Copy(io.Discard, r.zr); err != nil {
		return r.offset() - r.start, fmt.Errorf("chunk at offset %d: %w", r.start, err)
	}
	return r.offset() - r.start, nil
}

// Close releases the decoder. The underlying file is not closed.
func (r *Reader) Close() error {
	r.inChunk = false
	if r.zr == nil {
		return nil
	}
	return r.zr.Close()
}
