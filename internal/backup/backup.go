package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/roach88/mailbackup/internal/lock"
	"github.com/roach88/mailbackup/internal/segment"
	"github.com/roach88/mailbackup/internal/store"
)

// Backup is an open backup. It is not safe for concurrent use; other
// processes are kept out by the file lock.
type Backup struct {
	paths     Paths
	lockType  LockType
	dataMode  DataMode
	indexMode IndexMode

	fd     *os.File
	locked bool
	index  *store.Store
	opts   options
	log    *slog.Logger
	closed bool

	// append state
	w               *segment.Writer
	chunk           store.ChunkInfo
	lastChunkID     int64
	lastChunkOffset int64
	pending         int64
	lastTS          int64
	haveLast        bool
	session         string
	failures        []*IndexError
}

// OpenShared opens an existing backup for reading. Any number of shared
// handles may coexist; none can while an exclusive handle is open.
func OpenShared(name string, opts ...Option) (*Backup, error) {
	return open(name, LockShared, DataNormal, IndexRead, buildOptions(opts))
}

// OpenLog opens an existing backup's log for reading under a shared lock
// without opening the index, so a backup whose index is missing or damaged
// can still be replayed. Index lookups on the handle fail with ErrWrongMode.
func OpenLog(name string, opts ...Option) (*Backup, error) {
	return open(name, LockShared, DataNormal, IndexNone, buildOptions(opts))
}

// OpenAppend opens an existing backup for live appends.
func OpenAppend(name string, opts ...Option) (*Backup, error) {
	return open(name, LockExclusive, DataAppend, IndexWrite, buildOptions(opts))
}

// Create creates a new, empty backup. The log must not exist; an existing
// index is moved aside.
func Create(name string, opts ...Option) (*Backup, error) {
	return open(name, LockExclusive, DataCreate, IndexCreate, buildOptions(opts))
}

func open(name string, lockType LockType, dataMode DataMode, indexMode IndexMode, o options) (_ *Backup, err error) {
	// Invalid enums are caller bugs; String panics on them.
	_, _, _ = lockType.String(), dataMode.String(), indexMode.String()

	b := &Backup{
		paths:     NewPaths(name, o.logSuffix, o.indexSuffix),
		indexMode: indexMode,
		opts:      o,
		log:       o.logger.With("backup", name),
	}

	var flags int
	switch dataMode {
	case DataNormal:
		flags = os.O_RDWR
	case DataAppend:
		flags = os.O_RDWR | os.O_APPEND
		lockType = LockExclusive
	case DataCreate:
		flags = os.O_RDWR | os.O_CREATE | os.O_EXCL
		lockType = LockExclusive
	}

	createdLog := false
	movedIndex := false
	defer func() {
		if err == nil {
			return
		}
		b.unwind(createdLog, movedIndex)
	}()

	b.fd, err = os.OpenFile(b.paths.Log, flags, 0o600)
	if err != nil {
		return nil, err
	}
	b.dataMode = dataMode
	createdLog = dataMode == DataCreate

	lt := lock.Shared
	if lockType == LockExclusive {
		lt = lock.Exclusive
	}
	if err = lock.Acquire(b.fd, lt); err != nil {
		return nil, fmt.Errorf("lock %s: %w", b.paths.Log, err)
	}
	b.locked = true
	b.lockType = lockType

	storeOpts := store.Options{}
	switch indexMode {
	case IndexRead:
		storeOpts.ReadOnly = true
	case IndexWrite:
		storeOpts.Init = true
	case IndexCreate:
		storeOpts.Init = true
		if err = moveIndexAside(b.paths); err != nil {
			return nil, err
		}
		movedIndex = true
	}

	if indexMode != IndexNone {
		b.index, err = store.Open(b.paths.Index, storeOpts)
		if err != nil {
			return nil, err
		}
	}

	if dataMode == DataAppend {
		if err = b.initAppend(); err != nil {
			return nil, err
		}
	}

	b.log.Debug("backup opened",
		"lock", b.lockType, "data", b.dataMode, "index", b.indexMode)
	return b, nil
}

// unwind releases whatever a failed open acquired and undoes its file
// system changes.
func (b *Backup) unwind(createdLog, movedIndex bool) {
	if b.index != nil {
		b.index.Close()
		b.index = nil
	}
	if movedIndex {
		for _, c := range indexCompanions {
			os.Remove(b.paths.Index + c)
		}
		restoreIndex(b.paths)
	}
	if b.locked {
		lock.Release(b.fd)
		b.locked = false
	}
	if b.fd != nil {
		b.fd.Close()
		b.fd = nil
	}
	if createdLog {
		os.Remove(b.paths.Log)
	}
}

// moveIndexAside renames the index and its companions to the .old name.
// Stale .old companions are removed first so the pair stays consistent.
func moveIndexAside(p Paths) error {
	for _, c := range indexCompanions {
		if err := os.Remove(p.OldIndex + c); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	for _, c := range indexCompanions {
		if err := os.Rename(p.Index+c, p.OldIndex+c); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func restoreIndex(p Paths) {
	for _, c := range indexCompanions {
		os.Rename(p.OldIndex+c, p.Index+c)
	}
}

// initAppend repairs a torn final chunk, positions the writer at the end
// of the log and loads the newest timestamp from the index.
func (b *Backup) initAppend() error {
	fi, err := b.fd.Stat()
	if err != nil {
		return err
	}
	size, err := b.repairTail(context.Background(), fi.Size())
	if err != nil {
		return err
	}
	b.w, err = segment.NewWriter(b.fd, size, b.opts.level)
	if err != nil {
		return err
	}
	b.lastTS, b.haveLast, err = b.index.LastTimestamp(context.Background())
	return err
}

// Paths returns the files of the backup.
func (b *Backup) Paths() Paths {
	return b.paths
}

// LockType returns the lock held by the handle.
func (b *Backup) LockType() LockType {
	return b.lockType
}

// DataMode returns the mode the log was opened in.
func (b *Backup) DataMode() DataMode {
	return b.dataMode
}

// IndexMode returns the mode the index was opened in.
func (b *Backup) IndexMode() IndexMode {
	return b.indexMode
}

// Close finishes any open chunk, closes the index, releases the lock and
// closes the log. Every step runs; their errors are joined.
func (b *Backup) Close() error {
	if b.closed {
		return ErrClosed
	}
	b.closed = true

	var errs []error
	if b.w != nil && b.w.InChunk() {
		errs = append(errs, b.endChunk(context.Background()))
	}
	if b.fd != nil && b.dataMode != DataNormal {
		errs = append(errs, b.fd.Sync())
	}
	if b.index != nil {
		errs = append(errs, b.index.Close())
		b.index = nil
	}
	if b.locked {
		errs = append(errs, lock.Release(b.fd))
		b.locked = false
	}
	if b.fd != nil {
		errs = append(errs, b.fd.Close())
		b.fd = nil
	}

	b.log.Debug("backup closed")
	return errors.Join(errs...)
}

func (b *Backup) check() error {
	if b.closed {
		return ErrClosed
	}
	return nil
}

// checkIndex is check for operations that read the index.
func (b *Backup) checkIndex() error {
	if err := b.check(); err != nil {
		return err
	}
	if b.index == nil {
		return fmt.Errorf("index lookup in %s mode: %w", b.indexMode, ErrWrongMode)
	}
	return nil
}
