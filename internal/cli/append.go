package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/mailbackup/internal/backup"
	"github.com/roach88/mailbackup/internal/record"
)

// AppendOptions holds flags for the append command.
type AppendOptions struct {
	*RootOptions
	Interactive bool
}

// AppendResult is the output of the append command.
type AppendResult struct {
	Name      string               `json:"name"`
	Appended  int                  `json:"appended"`
	Ignored   int                  `json:"ignored"`
	Malformed int                  `json:"malformed"`
	Failures  []*backup.IndexError `json:"failures,omitempty"`
}

func (r AppendResult) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "appended %d record(s) to %s\n", r.Appended, r.Name)
	if r.Ignored > 0 {
		fmt.Fprintf(w, "ignored %d non-APPLY record(s)\n", r.Ignored)
	}
	if r.Malformed > 0 {
		fmt.Fprintf(w, "skipped %d malformed record(s)\n", r.Malformed)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "not indexed: %s at %d: %v\n", f.Command, f.Timestamp, f.Err)
	}
	return nil
}

// NewAppendCommand creates the append command.
func NewAppendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AppendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "append <name>",
		Short: "Append records read from stdin",
		Long: `Read wire-format records from stdin and apply them to a backup: each
APPLY record is appended to the log and written to the index. Records
with any other verb are ignored.

With --interactive, synchronizing literals ({N}) are acknowledged with a
"+ go ahead" prompt on stdout, as a live replication peer expects.

Exit codes:
  0 - All records applied
  1 - Malformed input or failed index write (with the abort policy)
  2 - Command error (backup missing, lock busy, etc.)

Examples:
  mailbackup append /var/backup/user.anne < changes.txt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAppend(opts, cmd, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Interactive, "interactive", false, "send literal continuation prompts")

	return cmd
}

func runAppend(opts *AppendOptions, cmd *cobra.Command, name string) error {
	ctx := cmd.Context()
	out := opts.formatter(cmd)
	log := opts.Logger

	bopts, err := opts.backupOptions()
	if err != nil {
		return WrapExitError(ExitCommandError, "bad options", err)
	}
	b, err := backup.OpenAppend(name, bopts...)
	if err != nil {
		return out.Fail("failed to open backup", err, nil)
	}
	defer func() {
		if cerr := b.Close(); cerr != nil {
			log.Error("error closing backup", "error", cerr)
		}
	}()

	readerOpts := []record.Option{record.SuppressLiteralSync()}
	if opts.Interactive {
		readerOpts = []record.Option{record.WithPrompt(cmd.OutOrStdout())}
	}
	rr := record.NewReader(cmd.InOrStdin(), readerOpts...)

	result := AppendResult{Name: name}
	for {
		res := rr.Next()
		if res.Status == record.Exhausted {
			break
		}
		if res.Status == record.Malformed {
			result.Malformed++
			if opts.Config.OnMalformed != backup.PolicySkip.String() {
				return out.Fail("malformed input", res.Err, result)
			}
			log.Warn("skipping malformed input", "error", res.Err)
			continue
		}

		rec := res.Record
		if rec.Verb != record.VerbApply {
			result.Ignored++
			log.Debug("ignoring record", "verb", rec.Verb, "ts", rec.Timestamp)
			continue
		}
		if err := b.Apply(ctx, rec.Timestamp, rec.Payload); err != nil {
			return out.Fail("failed to apply record", err, result)
		}
		result.Appended++
	}

	result.Failures = b.Failures()
	return out.Success(result)
}
