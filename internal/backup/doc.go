// Package backup owns a replication backup: an append-only log of
// gzip-compressed chunks plus the SQLite index derived from it.
//
// A Backup handle holds the log's file descriptor, a whole-file advisory
// lock on it, and the index connection. Handles are only created in the
// supported mode combinations:
//
//	OpenShared  SHARED     NORMAL  READ     restore and inspection
//	OpenLog     SHARED     NORMAL  NONE     log dump without an index
//	OpenAppend  EXCLUSIVE  APPEND  WRITE    live writer
//	Create      EXCLUSIVE  CREATE  CREATE   new backup
//	Reindex     EXCLUSIVE  NORMAL  CREATE   full index rebuild
//	Compact     EXCLUSIVE  NORMAL  CREATE   log rewrite
//
// Locks are never waited for; a held lock fails the open with lock.ErrBusy.
// Opening the index in CREATE mode keeps the previous index at
// <index>.old until the next rebuild. OpenAppend repairs a final chunk
// that a crashed writer left without its gzip trailer.
//
// Records within the log must have non-decreasing timestamps. A decrease is
// treated as corruption: replay stops with an *OrderingError and nothing
// after it is indexed.
package backup
