package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/mailbackup/internal/backup"
	"github.com/roach88/mailbackup/internal/store"
)

// MessagesResult is the output of the messages command.
type MessagesResult struct {
	Messages []store.Message `json:"messages"`
}

func (r MessagesResult) WriteText(w io.Writer) error {
	for _, m := range r.Messages {
		if _, err := fmt.Fprintf(w, "%s %s %d %d\n", m.GUID, m.Partition, m.Size, m.FirstTimestamp); err != nil {
			return err
		}
	}
	return nil
}

// NewMessagesCommand creates the messages command.
func NewMessagesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "messages <name>",
		Short: "List the message bodies held by the backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withShared(rootOpts, cmd, args[0], func(b *backup.Backup) (any, error) {
				msgs, err := b.Messages(cmd.Context())
				if err != nil {
					return nil, err
				}
				return MessagesResult{Messages: msgs}, nil
			})
		},
	}
}

// SubscriptionsResult is the output of the subscriptions command.
type SubscriptionsResult struct {
	Subscriptions []store.Subscription `json:"subscriptions"`
}

func (r SubscriptionsResult) WriteText(w io.Writer) error {
	for _, s := range r.Subscriptions {
		state := ""
		if s.Unsubscribed {
			state = " (unsubscribed)"
		}
		if _, err := fmt.Fprintf(w, "%s %s %d%s\n", s.UserID, s.Mailbox, s.LastTimestamp, state); err != nil {
			return err
		}
	}
	return nil
}

// NewSubscriptionsCommand creates the subscriptions command.
func NewSubscriptionsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "subscriptions <name> [userid]",
		Short: "List mailbox subscriptions",
		Long: `List the latest subscription state per user and mailbox, for every
user or only for userid.

Examples:
  mailbackup subscriptions /var/backup/user.anne
  mailbackup subscriptions /var/backup/user.anne anne`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var user string
			if len(args) == 2 {
				user = args[1]
			}
			return withShared(rootOpts, cmd, args[0], func(b *backup.Backup) (any, error) {
				subs, err := b.Subscriptions(cmd.Context(), user)
				if err != nil {
					return nil, err
				}
				return SubscriptionsResult{Subscriptions: subs}, nil
			})
		},
	}
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export <name>",
		Short: "Stream indexed events as JSON lines",
		Long: `Write every indexed event of a backup to stdout in log order, one JSON
object per line, for loading into another system. Events are streamed
from the index rather than collected first, so the output format flag
does not apply.

Examples:
  mailbackup export /var/backup/user.anne > anne.ndjson`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			opts, err := rootOpts.backupOptions()
			if err != nil {
				return WrapExitError(ExitCommandError, "bad options", err)
			}

			b, err := backup.OpenShared(args[0], opts...)
			if err != nil {
				return out.Fail("failed to open backup", err, nil)
			}
			defer b.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetEscapeHTML(false)
			err = b.ReplayEvents(cmd.Context(), func(ev store.Event) error {
				return enc.Encode(ev)
			})
			if err != nil {
				return out.Fail("export failed", err, nil)
			}
			return nil
		},
	}
}
