package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/mailbackup/internal/backup"
	"github.com/roach88/mailbackup/internal/dlist"
	"github.com/roach88/mailbackup/internal/record"
)

// DumpRecord is one log record in dump output.
type DumpRecord struct {
	backup.Position
	Timestamp int64           `json:"ts"`
	Verb      string          `json:"verb"`
	Command   string          `json:"command"`
	Payload   json.RawMessage `json:"payload"`

	wire string
}

// DumpResult is the output of the dump command.
type DumpResult struct {
	Name    string       `json:"name"`
	Records []DumpRecord `json:"records"`
}

// WriteText prints each chunk under a header, followed by its records in
// wire form.
func (r DumpResult) WriteText(w io.Writer) error {
	chunk := -1
	for _, rec := range r.Records {
		if rec.Chunk != chunk {
			chunk = rec.Chunk
			if _, err := fmt.Fprintf(w, "== chunk %d ==\n", chunk); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, rec.wire); err != nil {
			return err
		}
	}
	return nil
}

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dump <name>",
		Short: "Print every record of the log",
		Long: `Print every record of a backup's log in order, whatever its verb,
without touching the index, so it also works when the index is missing
or damaged. Text output repeats each record in wire form under a header
per chunk; JSON output carries the payload in canonical form.

Examples:
  mailbackup dump /var/backup/user.anne
  mailbackup dump /var/backup/user.anne --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			opts, err := rootOpts.backupOptions()
			if err != nil {
				return WrapExitError(ExitCommandError, "bad options", err)
			}

			b, err := backup.OpenLog(args[0], opts...)
			if err != nil {
				return out.Fail("failed to open backup", err, nil)
			}
			defer b.Close()

			result, err := dump(cmd.Context(), b)
			if err != nil {
				return out.Fail("failed to read log", err, nil)
			}
			result.Name = args[0]
			return out.Success(result)
		},
	}
}

func dump(ctx context.Context, b *backup.Backup) (DumpResult, error) {
	result := DumpResult{Records: []DumpRecord{}}
	err := b.Replay(ctx, func(pos backup.Position, rec record.Record) error {
		var wire bytes.Buffer
		if err := record.Encode(&wire, rec); err != nil {
			return err
		}
		payload, err := dlist.MarshalCanonical(rec.Payload)
		if err != nil {
			return err
		}
		result.Records = append(result.Records, DumpRecord{
			Position:  pos,
			Timestamp: rec.Timestamp,
			Verb:      rec.Verb,
			Command:   rec.Payload.Name,
			Payload:   payload,
			wire:      wire.String(),
		})
		return nil
	})
	return result, err
}
