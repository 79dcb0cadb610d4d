package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/mailbackup/internal/backup"
)

// StatsResult is the output of reindex and compact.
type StatsResult struct {
	Name   string `json:"name"`
	Action string `json:"action"`
	backup.Stats
}

func (r StatsResult) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "%s %s\n", r.Action, r.Name)
	fmt.Fprintf(w, "  chunks:    %d\n", r.Chunks)
	fmt.Fprintf(w, "  records:   %d\n", r.Records)
	fmt.Fprintf(w, "  applied:   %d\n", r.Applied)
	fmt.Fprintf(w, "  indexed:   %d\n", r.Indexed)
	fmt.Fprintf(w, "  skipped:   %d\n", r.Skipped)
	fmt.Fprintf(w, "  malformed: %d\n", r.Malformed)
	fmt.Fprintf(w, "  failures:  %d\n", len(r.Failures))
	for _, f := range r.Failures {
		fmt.Fprintf(w, "    %s at %d (chunk offset %d): %v\n", f.Command, f.Timestamp, f.ChunkOffset, f.Err)
	}
	return nil
}

type rebuildFunc func(ctx context.Context, name string, opts ...backup.Option) (backup.Stats, error)

func newRebuildCommand(rootOpts *RootOptions, use, short, long, action string, rebuild rebuildFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			opts, err := rootOpts.backupOptions()
			if err != nil {
				return WrapExitError(ExitCommandError, "bad options", err)
			}

			stats, err := rebuild(cmd.Context(), args[0], opts...)
			result := StatsResult{Name: args[0], Action: action, Stats: stats}
			if err != nil {
				return out.Fail(action+" failed", err, result)
			}
			return out.Success(result)
		},
	}
}

// NewReindexCommand creates the reindex command.
func NewReindexCommand(rootOpts *RootOptions) *cobra.Command {
	return newRebuildCommand(rootOpts, "reindex <name>", "Rebuild the index from the log",
		`Rebuild the index of a backup by replaying its whole log in order.

The previous index is kept as <index>.old. A timestamp that goes backwards
stops the rebuild at once; nothing after it is indexed.

Exit codes:
  0 - Index rebuilt
  1 - Ordering corruption, malformed record or failed index write
  2 - Command error (backup missing, lock busy, etc.)

Examples:
  mailbackup reindex /var/backup/user.anne
  mailbackup reindex /var/backup/user.anne --format json`,
		"reindexed", backup.Reindex)
}

// NewCompactCommand creates the compact command.
func NewCompactCommand(rootOpts *RootOptions) *cobra.Command {
	return newRebuildCommand(rootOpts, "compact <name>", "Rewrite the log into fewer chunks",
		`Rewrite the log of a backup, merging chunks up to chunk_target_bytes of
uncompressed data, and rebuild the index against the new log. The old log
is replaced only after the new one is complete.

Examples:
  mailbackup compact /var/backup/user.anne`,
		"compacted", backup.Compact)
}
