// Package dlist implements the structured payload carried by backup log
// records.
//
// A payload is a tree of values: atoms, quoted strings, literals, NIL,
// parenthesised lists, key/value lists written as %( ... ), and file
// literals written as %{partition guid size} followed by the raw bytes.
// Every value can carry a Name, the key it was parsed under. A record
// payload is parsed in key mode, so its Name is the command name, for
// example MAILBOX in
//
//	MAILBOX %(UNIQUEID 5f1c MBOXNAME user.anne LAST_UID 12)
//
// Parse and Encode are inverses: Encode writes text that Parse turns back
// into an Equal value. MarshalCanonical produces a deterministic JSON form
// used by the index, and Identity hashes that form.
package dlist
