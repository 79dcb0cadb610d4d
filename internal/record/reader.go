package record

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/roach88/mailbackup/internal/dlist"
)

// Option configures a Reader.
type Option func(*Reader)

// SuppressLiteralSync disables literal continuation prompts. Use it for
// static replay of a log file.
func SuppressLiteralSync() Option {
	return func(r *Reader) { r.opts.SuppressLiteralSync = true }
}

// WithPrompt sends literal continuation prompts to w.
func WithPrompt(w io.Writer) Option {
	return func(r *Reader) { r.opts.Prompt = w }
}

// Reader is a pull parser over a byte source.
type Reader struct {
	r     *bufio.Reader
	opts  dlist.ParseOptions
	index int
}

// NewReader returns a Reader pulling from src.
func NewReader(src io.Reader, opts ...Option) *Reader {
	r := &Reader{
		r:    bufio.NewReader(src),
		opts: dlist.ParseOptions{ParseKey: true},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Next parses the next record.
func (r *Reader) Next() Result {
	r.index++

	c, err := r.r.Peek(1)
	if err != nil {
		return r.exhaustedOr(StageTimestamp, err)
	}
	if c[0] == '#' {
		if _, err := r.r.ReadBytes('\n'); err != nil {
			return r.exhaustedOr(StageTimestamp, err)
		}
	}

	ts, res, ok := r.timestamp()
	if !ok {
		return res
	}

	verb, res, ok := r.verb()
	if !ok {
		return res
	}

	payload, err := dlist.Parse(r.r, r.opts)
	if err != nil {
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			r.discardLine()
		}
		return r.malformed(StagePayload, err)
	}

	if err := r.terminator(); err != nil {
		return r.malformed(StageTerminator, err)
	}

	return Result{
		Status: OK,
		Index:  r.index,
		Record: Record{Timestamp: ts, Verb: verb, Payload: payload},
	}
}

func (r *Reader) exhaustedOr(stage Stage, err error) Result {
	if errors.Is(err, io.EOF) {
		r.index--
		return Result{Status: Exhausted}
	}
	return r.malformed(stage, err)
}

func (r *Reader) malformed(stage Stage, err error) Result {
	return Result{
		Status: Malformed,
		Index:  r.index,
		Err:    &ParseError{Index: r.index, Stage: stage, Err: err},
	}
}

// timestamp reads a signed decimal int64 followed by a single space.
func (r *Reader) timestamp() (int64, Result, bool) {
	var (
		n      uint64
		neg    bool
		digits int
	)
	for {
		c, err := r.r.ReadByte()
		if err != nil {
			return 0, r.exhaustedOr(StageTimestamp, err), false
		}
		switch {
		case c == '-' && digits == 0 && !neg:
			neg = true
		case c >= '0' && c <= '9':
			d := uint64(c - '0')
			limit := uint64(math.MaxInt64)
			if neg {
				limit++
			}
			if n > (limit-d)/10 {
				r.discardLine()
				return 0, r.malformed(StageTimestamp, errors.New("overflows int64")), false
			}
			n = n*10 + d
			digits++
		case c == ' ' && digits > 0:
			if neg {
				return -int64(n), Result{}, true
			}
			return int64(n), Result{}, true
		default:
			if c != '\n' {
				r.discardLine()
			}
			return 0, r.malformed(StageTimestamp, fmt.Errorf("unexpected %q", c)), false
		}
	}
}

// verb reads one word terminated by a single space.
func (r *Reader) verb() (string, Result, bool) {
	var word []byte
	for {
		c, err := r.r.ReadByte()
		if err != nil {
			return "", r.exhaustedOr(StageVerb, err), false
		}
		switch c {
		case ' ':
			if len(word) == 0 {
				r.discardLine()
				return "", r.malformed(StageVerb, errors.New("empty verb")), false
			}
			return string(word), Result{}, true
		case '\r', '\n', '\t':
			if c != '\n' {
				r.discardLine()
			}
			return "", r.malformed(StageVerb, fmt.Errorf("unexpected %q after %q", c, word)), false
		default:
			word = append(word, c)
		}
	}
}

func (r *Reader) terminator() error {
	c, err := r.r.ReadByte()
	if err != nil {
		return fmt.Errorf("missing newline: %w", err)
	}
	if c == '\r' {
		if c, err = r.r.ReadByte(); err != nil {
			return fmt.Errorf("missing newline: %w", err)
		}
	}
	if c != '\n' {
		r.discardLine()
		return fmt.Errorf("expected newline, got %q", c)
	}
	return nil
}

// discardLine drops input up to and including the next LF.
func (r *Reader) discardLine() {
	_, _ = r.r.ReadBytes('\n')
}
