// Package store is the SQLite index of a backup log.
//
// The index is a derived, rebuildable projection of the log's APPLY
// records. Each record becomes one row in event plus a command-specific
// projection:
//
//   - MAILBOX: upsert into mailbox (keyed by UNIQUEID, else MBOXNAME) and
//     mailbox_message for each entry of RECORD
//   - UNMAILBOX: mark the named mailbox deleted
//   - RENAME: move a mailbox from OLDMBOXNAME to NEWMBOXNAME
//   - MESSAGE: one message row per file literal
//   - SUB / UNSUB: subscription state per (USERID, MBOXNAME)
//
// Other commands only produce the event row. Each IndexRecord call is one
// transaction. The store does not deduplicate; calling it twice for the
// same record produces two event rows.
//
// # Schema versions
//
// The schema version lives in PRAGMA user_version. Opening an older index
// applies Upgrades in order; opening one newer than CurrentVersion fails
// with ErrSchemaTooNew.
//
//   - 1: chunk, event, mailbox, mailbox_message, message
//   - 2: subscription table and the (command, identity) event index
//
// # Database Configuration
//
//   - WAL mode
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
//   - a single connection; callers hold the backup lock while the store is open
//
// All queries order by (ts, id) so results follow log order.
package store
