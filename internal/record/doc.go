// Package record reads and writes the line framing of backup log records.
//
// Inside one decompressed chunk a record is
//
//	<int64 seconds> SP <VERB> SP <payload> [CR] LF
//
// optionally preceded by a "#" comment line. The payload is a dlist value
// parsed in key mode and may span several physical lines through embedded
// literals.
//
// Reader.Next reports one of three outcomes: a record, a clean end of input,
// or a malformed record. The last two are never conflated; callers decide
// what a malformed record means for them.
package record
