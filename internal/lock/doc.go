// Package lock provides whole-file advisory locks for backup logs.
//
// Locks are taken with flock(2) on the log's own descriptor and are never
// waited for: a lock held elsewhere fails immediately with ErrBusy and the
// caller decides whether to retry. Because flock locks belong to the open
// file description, two descriptors of the same file conflict even within
// one process.
//
// There is no upgrade or downgrade. A lock lives until Release or until the
// descriptor is closed.
package lock
