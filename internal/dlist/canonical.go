package dlist

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DomainPayload separates payload identity hashes from any other hash
// computed over the same bytes.
const DomainPayload = "mailbackup/payload/v1"

// MarshalCanonical produces a deterministic JSON form of v for storage and
// hashing. v's own name is not included.
//
//   - text values become strings (NFC normalized); text that is not valid
//     UTF-8 becomes {"base64": "..."}
//   - NIL becomes null
//   - lists become arrays
//   - kvlists become objects with keys in RFC 8785 order; a repeated key
//     keeps its last value
//   - file literals become {"guid","partition","size"}; the content is
//     not included
func MarshalCanonical(v *Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := marshalCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func marshalCanonical(buf *bytes.Buffer, v *Value) error {
	if v == nil {
		buf.WriteString("null")
		return nil
	}
	switch v.Kind {
	case Nil:
		buf.WriteString("null")
	case Atom, String, Literal:
		if !utf8.Valid(v.Data) {
			buf.WriteString(`{"base64":`)
			marshalCanonicalString(buf, base64.StdEncoding.EncodeToString(v.Data))
			buf.WriteByte('}')
			return nil
		}
		marshalCanonicalString(buf, string(v.Data))
	case List:
		buf.WriteByte('[')
		for i, c := range v.Children {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := marshalCanonical(buf, c); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case KVList:
		byKey := make(map[string]*Value, len(v.Children))
		for _, c := range v.Children {
			byKey[c.Name] = c
		}
		keys := make([]string, 0, len(byKey))
		for k := range byKey {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, compareKeysRFC8785)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			marshalCanonicalString(buf, k)
			buf.WriteByte(':')
			if err := marshalCanonical(buf, byKey[k]); err != nil {
				return fmt.Errorf("%q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	case File:
		buf.WriteString(`{"guid":`)
		marshalCanonicalString(buf, v.GUID)
		buf.WriteString(`,"partition":`)
		marshalCanonicalString(buf, v.Partition)
		buf.WriteString(`,"size":`)
		buf.WriteString(strconv.Itoa(len(v.Data)))
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported kind %d", v.Kind)
	}
	return nil
}

// marshalCanonicalString writes s as a JSON string without HTML escaping
// and without escaping U+2028/U+2029.
func marshalCanonicalString(buf *bytes.Buffer, s string) {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(norm.NFC.String(s))

	out := bytes.TrimSuffix(tmp.Bytes(), []byte("\n"))
	buf.Write(unescapeLineSeparators(out))
}

// unescapeLineSeparators turns \u2028 and \u2029 escapes back into the
// literal characters, leaving \\u2028 (an escaped backslash) alone.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] == '\\' && i+1 < len(data) {
			if i+5 < len(data) && data[i+1] == 'u' && data[i+2] == '2' && data[i+3] == '0' && data[i+4] == '2' &&
				(data[i+5] == '8' || data[i+5] == '9') {
				if data[i+5] == '8' {
					out = append(out, "\u2028"...)
				} else {
					out = append(out, "\u2029"...)
				}
				i += 5
				continue
			}
			// any other escape: copy both bytes so an escaped backslash
			// never starts a match
			out = append(out, data[i], data[i+1])
			i++
			continue
		}
		out = append(out, data[i])
	}
	return out
}

// compareKeysRFC8785 orders strings by UTF-16 code units.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// Identity returns a content hash of v: SHA-256 over a domain prefix, a
// zero byte, the name, another zero byte and the
// canonical JSON of v.
func Identity(v *Value) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("identity: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(DomainPayload))
	h.Write([]byte{0x00})
	h.Write([]byte(v.Name))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}
