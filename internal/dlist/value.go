package dlist

import (
	"bytes"
	"strings"
)

// Kind identifies the type of a Value.
type Kind int

const (
	Nil Kind = iota
	Atom
	String
	Literal
	List
	KVList
	File
)

var kindNames = [...]string{"nil", "atom", "string", "literal", "list", "kvlist", "file"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// IsText reports whether values of kind k carry plain bytes. Atoms, quoted
// strings and literals differ only in how they are written.
func (k Kind) IsText() bool {
	return k == Atom || k == String || k == Literal
}

// Value is one node of a payload tree.
type Value struct {
	Name     string
	Kind     Kind
	Data     []byte
	Children []*Value

	// Set for File values only.
	Partition string
	GUID      string
}

// NewNil returns a NIL value.
func NewNil(name string) *Value {
	return &Value{Name: name, Kind: Nil}
}

// NewAtom returns an atom value.
func NewAtom(name, s string) *Value {
	return &Value{Name: name, Kind: Atom, Data: []byte(s)}
}

// NewString returns a quoted string value.
func NewString(name, s string) *Value {
	return &Value{Name: name, Kind: String, Data: []byte(s)}
}

// NewLiteral returns a literal value.
func NewLiteral(name string, b []byte) *Value {
	return &Value{Name: name, Kind: Literal, Data: b}
}

// NewList returns a list of the given children.
func NewList(name string, children ...*Value) *Value {
	return &Value{Name: name, Kind: List, Children: children}
}

// NewKVList returns a key/value list. Each child's Name is its key.
func NewKVList(name string, children ...*Value) *Value {
	return &Value{Name: name, Kind: KVList, Children: children}
}

// NewFile returns a file literal.
func NewFile(name, partition, guid string, data []byte) *Value {
	return &Value{Name: name, Kind: File, Partition: partition, GUID: guid, Data: data}
}

// Text returns the bytes of a text or file value as a string.
func (v *Value) Text() string {
	if v == nil {
		return ""
	}
	return string(v.Data)
}

// Get returns the first child named key, or nil.
func (v *Value) Get(key string) *Value {
	if v == nil {
		return nil
	}
	for _, c := range v.Children {
		if c.Name == key {
			return c
		}
	}
	return nil
}

// GetText returns the text of the child named key, or "" if it is missing
// or not text.
func (v *Value) GetText(key string) string {
	c := v.Get(key)
	if c == nil || !c.Kind.IsText() {
		return ""
	}
	return string(c.Data)
}

// UpperName upper-cases v.Name in place (ASCII only).
func (v *Value) UpperName() {
	v.Name = strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' {
			return r - 'a' + 'A'
		}
		return r
	}, v.Name)
}

// Equal reports whether two values have the same name and content. Text
// kinds compare equal to each other when their bytes match.
func (v *Value) Equal(o *Value) bool {
	if v == nil || o == nil {
		return v == o
	}
	if v.Name != o.Name {
		return false
	}
	if v.Kind.IsText() && o.Kind.IsText() {
		return bytes.Equal(v.Data, o.Data)
	}
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case File:
		return v.Partition == o.Partition && v.GUID == o.GUID && bytes.Equal(v.Data, o.Data)
	case List, KVList:
		if len(v.Children) != len(o.Children) {
			return false
		}
		for i := range v.Children {
			if !v.Children[i].Equal(o.Children[i]) {
				return false
			}
		}
	}
	return true
}

// String returns the wire form of v, including its name if it has one.
func (v *Value) String() string {
	var buf bytes.Buffer
	if v.Name != "" {
		_ = EncodeKeyed(&buf, v)
	} else {
		_ = Encode(&buf, v)
	}
	return buf.String()
}
