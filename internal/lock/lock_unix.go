//go:build unix

package lock

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// Acquire places a non-blocking advisory lock of type t on f.
//
// If another descriptor holds a conflicting lock the call returns an error
// wrapping ErrBusy without waiting. Other failures wrap the OS error.
func Acquire(f *os.File, t Type) error {
	how := syscall.LOCK_SH
	if t == Exclusive {
		how = syscall.LOCK_EX
	}

	for {
		err := syscall.Flock(int(f.Fd()), how|syscall.LOCK_NB)
		if err == nil {
			return nil
		}
		if errors.Is(err, syscall.EINTR) {
			continue
		}
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return fmt.Errorf("%s lock on %s: %w", t, f.Name(), ErrBusy)
		}
		return fmt.Errorf("%s lock on %s: %w", t, f.Name(), err)
	}
}

// Release drops any lock held through f.
func Release(f *os.File) error {
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_UN); err != nil {
		return fmt.Errorf("unlock %s: %w", f.Name(), err)
	}
	return nil
}
