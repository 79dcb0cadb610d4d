package lock

import "errors"

// Type selects between a shared (reader) and exclusive (writer) lock.
type Type int

const (
	// Shared allows any number of concurrent holders and no exclusive holder.
	Shared Type = iota
	// Exclusive allows exactly one holder.
	Exclusive
)

// String returns the lowercase name of the lock type.
func (t Type) String() string {
	switch t {
	case Shared:
		return "shared"
	case Exclusive:
		return "exclusive"
	default:
		return "unknown"
	}
}

var (
	// ErrBusy is returned when the lock is held by someone else.
	ErrBusy = errors.New("lock busy")

	// ErrUnsupported is returned on platforms without flock.
	ErrUnsupported = errors.New("file locking not supported on this platform")
)
