package dlist

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// Encode writes the wire form of v without its name.
func Encode(w io.Writer, v *Value) error {
	bw := bufio.NewWriter(w)
	if err := encodeValue(bw, v); err != nil {
		return err
	}
	return bw.Flush()
}

// EncodeKeyed writes v.Name, a space, and the wire form of v. This is the
// form of a record payload.
func EncodeKeyed(w io.Writer, v *Value) error {
	if v.Name == "" {
		return fmt.Errorf("encode: payload has no name")
	}
	bw := bufio.NewWriter(w)
	writeAString(bw, []byte(v.Name))
	bw.WriteByte(' ')
	if err := encodeValue(bw, v); err != nil {
		return err
	}
	return bw.Flush()
}

func encodeValue(w *bufio.Writer, v *Value) error {
	if v == nil {
		w.WriteString("NIL")
		return nil
	}
	switch v.Kind {
	case Nil:
		w.WriteString("NIL")
	case Atom:
		writeAString(w, v.Data)
	case String:
		if quotable(v.Data) {
			writeQuoted(w, v.Data)
		} else {
			writeLiteral(w, v.Data)
		}
	case Literal:
		writeLiteral(w, v.Data)
	case List:
		w.WriteByte('(')
		for i, c := range v.Children {
			if i > 0 {
				w.WriteByte(' ')
			}
			if err := encodeValue(w, c); err != nil {
				return err
			}
		}
		w.WriteByte(')')
	case KVList:
		w.WriteString("%(")
		for i, c := range v.Children {
			if c.Name == "" {
				return fmt.Errorf("encode: kvlist entry %d has no key", i)
			}
			if i > 0 {
				w.WriteByte(' ')
			}
			writeAString(w, []byte(c.Name))
			w.WriteByte(' ')
			if err := encodeValue(w, c); err != nil {
				return err
			}
		}
		w.WriteByte(')')
	case File:
		if !isAtom([]byte(v.Partition)) || !isAtom([]byte(v.GUID)) {
			return fmt.Errorf("encode: file literal partition %q or guid %q is not an atom", v.Partition, v.GUID)
		}
		fmt.Fprintf(w, "%%{%s %s %d}\r\n", v.Partition, v.GUID, len(v.Data))
		w.Write(v.Data)
	default:
		return fmt.Errorf("encode: unknown kind %d", v.Kind)
	}
	return nil
}

func isAtom(b []byte) bool {
	if len(b) == 0 || string(b) == "NIL" {
		return false
	}
	for _, c := range b {
		if c >= 0x80 || isAtomDelim(c) || c == '\\' {
			return false
		}
	}
	return true
}

func quotable(b []byte) bool {
	if len(b) > 1024 {
		return false
	}
	for _, c := range b {
		if c == 0 || c == '\r' || c == '\n' || c >= 0x80 {
			return false
		}
	}
	return true
}

// writeAString writes b in the simplest form that parses back to the same
// bytes.
func writeAString(w *bufio.Writer, b []byte) {
	switch {
	case isAtom(b):
		w.Write(b)
	case quotable(b):
		writeQuoted(w, b)
	default:
		writeLiteral(w, b)
	}
}

func writeQuoted(w *bufio.Writer, b []byte) {
	w.WriteByte('"')
	for _, c := range b {
		if c == '"' || c == '\\' {
			w.WriteByte('\\')
		}
		w.WriteByte(c)
	}
	w.WriteByte('"')
}

func writeLiteral(w *bufio.Writer, b []byte) {
	w.WriteByte('{')
	w.WriteString(strconv.Itoa(len(b)))
	w.WriteString("+}\r\n")
	w.Write(b)
}
