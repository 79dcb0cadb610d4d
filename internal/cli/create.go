package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/mailbackup/internal/backup"
)

// CreateResult is the output of the create command.
type CreateResult struct {
	Name  string `json:"name"`
	Log   string `json:"log"`
	Index string `json:"index"`
}

func (r CreateResult) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "created %s\n  log:   %s\n  index: %s\n", r.Name, r.Log, r.Index)
	return err
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new, empty backup",
		Long: `Create the log and index files for a new backup.

The log must not exist yet. An index left over from an earlier backup of
the same name is moved aside to <index>.old.

Examples:
  mailbackup create /var/backup/user.anne`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			opts, err := rootOpts.backupOptions()
			if err != nil {
				return WrapExitError(ExitCommandError, "bad options", err)
			}

			b, err := backup.Create(args[0], opts...)
			if err != nil {
				return out.Fail("failed to create backup", err, nil)
			}
			paths := b.Paths()
			if err := b.Close(); err != nil {
				return out.Fail("failed to close backup", err, nil)
			}

			return out.Success(CreateResult{Name: paths.Name, Log: paths.Log, Index: paths.Index})
		},
	}
}
