package dlist

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ErrSyntax is wrapped by every parse failure caused by bad input, as
// opposed to a read error from the source.
var ErrSyntax = errors.New("dlist syntax error")

// ParseOptions controls Parse.
type ParseOptions struct {
	// ParseKey treats the first atom as the value's name.
	ParseKey bool

	// SuppressLiteralSync disables the continuation prompt for
	// synchronizing literals. Set it when replaying a file.
	SuppressLiteralSync bool

	// Prompt receives "+ go ahead" continuations for synchronizing
	// literals unless SuppressLiteralSync is set. Nil disables prompts.
	Prompt io.Writer
}

type parser struct {
	r    *bufio.Reader
	opts ParseOptions
}

// Parse reads one value from r. On success r is positioned at the first
// byte after the value.
func Parse(r *bufio.Reader, opts ParseOptions) (*Value, error) {
	p := &parser{r: r, opts: opts}

	if !opts.ParseKey {
		return p.value()
	}

	key, err := p.astring()
	if err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}
	if err := p.expect(' '); err != nil {
		return nil, fmt.Errorf("after key %q: %w", key, err)
	}
	v, err := p.value()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	v.Name = string(key)
	return v, nil
}

func syntaxf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSyntax, fmt.Sprintf(format, args...))
}

// eof converts a clean EOF inside a value into an unexpected one.
func eof(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

func (p *parser) peek() (byte, error) {
	b, err := p.r.Peek(1)
	if err != nil {
		return 0, eof(err)
	}
	return b[0], nil
}

func (p *parser) next() (byte, error) {
	c, err := p.r.ReadByte()
	return c, eof(err)
}

func (p *parser) expect(want byte) error {
	c, err := p.next()
	if err != nil {
		return err
	}
	if c != want {
		return syntaxf("expected %q, got %q", want, c)
	}
	return nil
}

// newline consumes an optional CR followed by LF.
func (p *parser) newline() error {
	c, err := p.next()
	if err != nil {
		return err
	}
	if c == '\r' {
		if c, err = p.next(); err != nil {
			return err
		}
	}
	if c != '\n' {
		return syntaxf("expected newline, got %q", c)
	}
	return nil
}

func (p *parser) value() (*Value, error) {
	c, err := p.peek()
	if err != nil {
		return nil, err
	}

	switch c {
	case '(':
		p.r.ReadByte()
		return p.list(List)
	case '%':
		p.r.ReadByte()
		c, err := p.next()
		if err != nil {
			return nil, err
		}
		switch c {
		case '(':
			return p.list(KVList)
		case '{':
			return p.file()
		default:
			return nil, syntaxf("unexpected %q after '%%'", c)
		}
	case '"':
		s, err := p.quoted()
		if err != nil {
			return nil, err
		}
		return &Value{Kind: String, Data: s}, nil
	case '{':
		b, err := p.literal()
		if err != nil {
			return nil, err
		}
		return &Value{Kind: Literal, Data: b}, nil
	default:
		a, err := p.atom()
		if err != nil {
			return nil, err
		}
		if string(a) == "NIL" {
			return &Value{Kind: Nil}, nil
		}
		return &Value{Kind: Atom, Data: a}, nil
	}
}

// list parses the elements of a list or kvlist; the opening bracket has
// already been consumed.
func (p *parser) list(kind Kind) (*Value, error) {
	v := &Value{Kind: kind}

	c, err := p.peek()
	if err != nil {
		return nil, err
	}
	if c == ')' {
		p.r.ReadByte()
		return v, nil
	}

	for {
		var child *Value
		if kind == KVList {
			key, err := p.astring()
			if err != nil {
				return nil, err
			}
			if err := p.expect(' '); err != nil {
				return nil, fmt.Errorf("after key %q: %w", key, err)
			}
			if child, err = p.value(); err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			child.Name = string(key)
		} else {
			if child, err = p.value(); err != nil {
				return nil, err
			}
		}
		v.Children = append(v.Children, child)

		c, err := p.next()
		if err != nil {
			return nil, err
		}
		switch c {
		case ' ':
			continue
		case ')':
			return v, nil
		default:
			return nil, syntaxf("unexpected %q in %s", c, kind)
		}
	}
}

// file parses "partition guid size}" CRLF <size bytes>; "%{" has already
// been consumed.
func (p *parser) file() (*Value, error) {
	hdr, err := p.r.ReadBytes('}')
	if err != nil {
		return nil, eof(err)
	}
	fields := bytes.Fields(hdr[:len(hdr)-1])
	if len(fields) != 3 {
		return nil, syntaxf("file literal header %q", hdr)
	}
	size, err := strconv.ParseInt(string(fields[2]), 10, 64)
	if err != nil || size < 0 {
		return nil, syntaxf("file literal size %q", fields[2])
	}
	if err := p.newline(); err != nil {
		return nil, err
	}
	data, err := p.bytes(size)
	if err != nil {
		return nil, err
	}
	return &Value{
		Kind:      File,
		Partition: string(fields[0]),
		GUID:      string(fields[1]),
		Data:      data,
	}, nil
}

// literal parses "{N}" or "{N+}" CRLF <N bytes>.
func (p *parser) literal() ([]byte, error) {
	if err := p.expect('{'); err != nil {
		return nil, err
	}
	hdr, err := p.r.ReadBytes('}')
	if err != nil {
		return nil, eof(err)
	}
	hdr = hdr[:len(hdr)-1]
	sync := true
	if n := len(hdr); n > 0 && hdr[n-1] == '+' {
		sync = false
		hdr = hdr[:n-1]
	}
	size, err := strconv.ParseInt(string(hdr), 10, 64)
	if err != nil || size < 0 {
		return nil, syntaxf("literal size %q", hdr)
	}
	if err := p.newline(); err != nil {
		return nil, err
	}
	if sync && !p.opts.SuppressLiteralSync && p.opts.Prompt != nil {
		if _, err := io.WriteString(p.opts.Prompt, "+ go ahead\r\n"); err != nil {
			return nil, err
		}
	}
	return p.bytes(size)
}

func (p *parser) bytes(n int64) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, p.r, n); err != nil {
		return nil, eof(err)
	}
	return buf.Bytes(), nil
}

func (p *parser) quoted() ([]byte, error) {
	if err := p.expect('"'); err != nil {
		return nil, err
	}
	var out []byte
	for {
		c, err := p.next()
		if err != nil {
			return nil, err
		}
		switch c {
		case '"':
			if out == nil {
				out = []byte{}
			}
			return out, nil
		case '\\':
			if c, err = p.next(); err != nil {
				return nil, err
			}
		case '\r', '\n':
			return nil, syntaxf("newline in quoted string")
		}
		out = append(out, c)
	}
}

func isAtomDelim(c byte) bool {
	switch c {
	case ' ', '(', ')', '\r', '\n', '"', '{', '}', '%':
		return true
	}
	return c < 0x20 || c == 0x7f
}

func (p *parser) atom() ([]byte, error) {
	var out []byte
	for {
		b, err := p.r.Peek(1)
		if err != nil {
			if errors.Is(err, io.EOF) && len(out) > 0 {
				return out, nil
			}
			return nil, eof(err)
		}
		if isAtomDelim(b[0]) {
			break
		}
		out = append(out, b[0])
		p.r.ReadByte()
	}
	if len(out) == 0 {
		c, _ := p.peek()
		return nil, syntaxf("unexpected %q", c)
	}
	return out, nil
}

// astring reads an atom, quoted string or literal.
func (p *parser) astring() ([]byte, error) {
	c, err := p.peek()
	if err != nil {
		return nil, err
	}
	switch c {
	case '"':
		return p.quoted()
	case '{':
		return p.literal()
	default:
		return p.atom()
	}
}
