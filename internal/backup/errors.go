package backup

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by operations on a closed handle.
	ErrClosed = errors.New("backup: handle closed")

	// ErrWrongMode is returned when an operation is not allowed by the
	// handle's data or index mode.
	ErrWrongMode = errors.New("backup: operation not permitted in this mode")

	// ErrTimestampRegression is returned by AppendRecord for a timestamp
	// older than the newest one already in the backup.
	ErrTimestampRegression = errors.New("backup: timestamp older than last record")
)

// OrderingError reports a record whose timestamp is lower than the one
// before it. Nothing at or after it is trusted.
type OrderingError struct {
	ChunkOffset int64
	Record      int
	Previous    int64
	Timestamp   int64
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("backup: timestamp regression in chunk at offset %d, record %d: %d after %d",
		e.ChunkOffset, e.Record, e.Timestamp, e.Previous)
}

// IndexError reports a record that could not be written to the index.
type IndexError struct {
	ChunkOffset int64  `json:"chunk_offset"`
	Timestamp   int64  `json:"ts"`
	Command     string `json:"command"`
	Err         error  `json:"-"`
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("backup: index %s at %d (chunk offset %d): %v", e.Command, e.Timestamp, e.ChunkOffset, e.Err)
}

func (e *IndexError) Unwrap() error {
	return e.Err
}
