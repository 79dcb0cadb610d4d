//go:build !unix

package lock

import "os"

// Acquire always fails on platforms without flock.
func Acquire(f *os.File, t Type) error {
	return ErrUnsupported
}

// Release always fails on platforms without flock.
func Release(f *os.File) error {
	return ErrUnsupported
}
