package record

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/roach88/mailbackup/internal/dlist"
)

// ErrInvalidRecord is returned when a record cannot be framed.
var ErrInvalidRecord = errors.New("invalid record")

// Encode writes rec in wire form, terminated by LF.
func Encode(w io.Writer, rec Record) error {
	if rec.Verb == "" || strings.ContainsAny(rec.Verb, " \t\r\n") {
		return fmt.Errorf("%w: verb %q", ErrInvalidRecord, rec.Verb)
	}
	if rec.Payload == nil || rec.Payload.Name == "" {
		return fmt.Errorf("%w: payload needs a command name", ErrInvalidRecord)
	}

	bw := bufio.NewWriter(w)
	bw.WriteString(strconv.FormatInt(rec.Timestamp, 10))
	bw.WriteByte(' ')
	bw.WriteString(rec.Verb)
	bw.WriteByte(' ')
	if err := dlist.EncodeKeyed(bw, rec.Payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	bw.WriteByte('\n')
	return bw.Flush()
}

// EncodeComment writes a "# text" comment line.
func EncodeComment(w io.Writer, text string) error {
	if strings.ContainsAny(text, "\r\n") {
		return fmt.Errorf("%w: comment contains a newline", ErrInvalidRecord)
	}
	_, err := io.WriteString(w, "# "+text+"\n")
	return err
}
