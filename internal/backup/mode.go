package backup

import "fmt"

// LockType is the advisory lock held for the life of a handle.
type LockType int

const (
	LockShared LockType = iota
	LockExclusive
)

func (t LockType) String() string {
	switch t {
	case LockShared:
		return "shared"
	case LockExclusive:
		return "exclusive"
	}
	panic(fmt.Sprintf("backup: invalid lock type %d", int(t)))
}

// DataMode selects how the log file is opened.
type DataMode int

const (
	// DataNormal opens an existing log for reading.
	DataNormal DataMode = iota
	// DataAppend opens an existing log positioned at its end.
	DataAppend
	// DataCreate creates a log that must not exist yet.
	DataCreate
)

func (m DataMode) String() string {
	switch m {
	case DataNormal:
		return "normal"
	case DataAppend:
		return "append"
	case DataCreate:
		return "create"
	}
	panic(fmt.Sprintf("backup: invalid data mode %d", int(m)))
}

// IndexMode selects how the index is opened.
type IndexMode int

const (
	// IndexRead opens an existing index read-only.
	IndexRead IndexMode = iota
	// IndexWrite opens the index for writing, creating it if missing.
	IndexWrite
	// IndexCreate moves any existing index aside and starts a fresh one.
	IndexCreate
	// IndexNone leaves the index closed; only the log is read.
	IndexNone
)

func (m IndexMode) String() string {
	switch m {
	case IndexRead:
		return "read"
	case IndexWrite:
		return "write"
	case IndexCreate:
		return "create"
	case IndexNone:
		return "none"
	}
	panic(fmt.Sprintf("backup: invalid index mode %d", int(m)))
}

// Policy decides what happens when replay meets a malformed record or an
// index write fails.
type Policy int

const (
	// PolicyAbort stops and returns the error.
	PolicyAbort Policy = iota
	// PolicySkip logs the problem, counts it in Stats and carries on.
	PolicySkip
)

func (p Policy) String() string {
	switch p {
	case PolicyAbort:
		return "abort"
	case PolicySkip:
		return "skip"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy converts "abort" or "skip" to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "abort", "":
		return PolicyAbort, nil
	case "skip":
		return PolicySkip, nil
	}
	return 0, fmt.Errorf("unknown policy %q (want abort or skip)", s)
}
