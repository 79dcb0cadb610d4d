package record

import (
	"fmt"

	"github.com/roach88/mailbackup/internal/dlist"
)

// VerbApply is the only verb that produces index entries.
const VerbApply = "APPLY"

// Record is one timestamped, verb-tagged payload.
type Record struct {
	Timestamp int64
	Verb      string
	Payload   *dlist.Value
}

// Status is the outcome of a parse attempt.
type Status int

const (
	// OK means Result.Record holds a complete record.
	OK Status = iota
	// Exhausted means the input ended cleanly before another record.
	Exhausted
	// Malformed means a record was present but could not be parsed.
	Malformed
)

func (s Status) String() string {
	switch s {
	case OK:
		return "ok"
	case Exhausted:
		return "exhausted"
	case Malformed:
		return "malformed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result is returned by Reader.Next.
type Result struct {
	Status Status
	// Index is the 1-based position of the record within the reader. It is
	// zero for Exhausted.
	Index  int
	Record Record
	// Err is a *ParseError when Status is Malformed.
	Err error
}

// Stage names the part of a record being parsed when it failed.
type Stage string

const (
	StageTimestamp  Stage = "timestamp"
	StageVerb       Stage = "verb"
	StagePayload    Stage = "payload"
	StageTerminator Stage = "terminator"
)

// ParseError describes a malformed record.
type ParseError struct {
	// Index is the 1-based position of the record within the reader.
	Index int
	Stage Stage
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("record %d: bad %s: %v", e.Index, e.Stage, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
