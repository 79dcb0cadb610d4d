package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/mailbackup/internal/backup"
	"github.com/roach88/mailbackup/internal/store"
)

// withShared opens name with a shared handle, runs fn and closes the
// handle again.
func withShared(rootOpts *RootOptions, cmd *cobra.Command, name string, fn func(*backup.Backup) (any, error)) error {
	out := rootOpts.formatter(cmd)
	opts, err := rootOpts.backupOptions()
	if err != nil {
		return WrapExitError(ExitCommandError, "bad options", err)
	}

	b, err := backup.OpenShared(name, opts...)
	if err != nil {
		return out.Fail("failed to open backup", err, nil)
	}
	defer b.Close()

	result, err := fn(b)
	if err != nil {
		return out.Fail("query failed", err, nil)
	}
	return out.Success(result)
}

// EventsResult is the output of the events command.
type EventsResult struct {
	Events []store.Event `json:"events"`
}

func (r EventsResult) WriteText(w io.Writer) error {
	for _, ev := range r.Events {
		if _, err := fmt.Fprintf(w, "%d %s %s\n", ev.Timestamp, ev.Command, ev.Identity); err != nil {
			return err
		}
	}
	return nil
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	var q store.EventQuery

	cmd := &cobra.Command{
		Use:   "events <name>",
		Short: "List indexed events",
		Long: `List the indexed APPLY records of a backup in log order.

--filter takes a CEL expression over ts, command, identity and payload
(the canonical JSON payload as a map).

Examples:
  mailbackup events /var/backup/user.anne --command MAILBOX
  mailbackup events /var/backup/user.anne --since 1700000000 --limit 10
  mailbackup events /var/backup/user.anne --filter 'payload.MBOXNAME.startsWith("user.anne.")'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withShared(rootOpts, cmd, args[0], func(b *backup.Backup) (any, error) {
				events, err := b.Events(cmd.Context(), q)
				if err != nil {
					return nil, err
				}
				if events == nil {
					events = []store.Event{}
				}
				return EventsResult{Events: events}, nil
			})
		},
	}

	cmd.Flags().Int64Var(&q.Since, "since", 0, "only events at or after this timestamp")
	cmd.Flags().Int64Var(&q.Until, "until", 0, "only events at or before this timestamp")
	cmd.Flags().StringVar(&q.Command, "command", "", "only events with this command name")
	cmd.Flags().StringVar(&q.Identity, "identity", "", "only events with this payload identity")
	cmd.Flags().Int64Var(&q.ChunkID, "chunk", 0, "only events from this chunk id")
	cmd.Flags().StringVar(&q.Filter, "filter", "", "CEL expression events must satisfy")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "maximum number of events (0 = no limit)")

	return cmd
}

// ChunksResult is the output of the chunks command.
type ChunksResult struct {
	Chunks []store.ChunkInfo `json:"chunks"`
}

func (r ChunksResult) WriteText(w io.Writer) error {
	for _, c := range r.Chunks {
		if _, err := fmt.Fprintf(w, "%d offset=%d length=%d records=%d ts=%d..%d\n",
			c.ID, c.Offset, c.Length, c.Records, c.TSStart, c.TSEnd); err != nil {
			return err
		}
	}
	return nil
}

// NewChunksCommand creates the chunks command.
func NewChunksCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chunks <name>",
		Short: "List the chunks recorded in the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withShared(rootOpts, cmd, args[0], func(b *backup.Backup) (any, error) {
				chunks, err := b.Chunks(cmd.Context())
				if err != nil {
					return nil, err
				}
				if chunks == nil {
					chunks = []store.ChunkInfo{}
				}
				return ChunksResult{Chunks: chunks}, nil
			})
		},
	}
}

// MailboxesResult is the output of the mailboxes command.
type MailboxesResult struct {
	Mailboxes []store.Mailbox `json:"mailboxes"`
}

func (r MailboxesResult) WriteText(w io.Writer) error {
	for _, m := range r.Mailboxes {
		state := ""
		if m.Deleted {
			state = " (deleted)"
		}
		if _, err := fmt.Fprintf(w, "%s %s %d%s\n", m.UniqueID, m.Name, m.LastTimestamp, state); err != nil {
			return err
		}
	}
	return nil
}

// MailboxResult is the output of the mailboxes command for one mailbox.
type MailboxResult struct {
	Mailbox  store.Mailbox          `json:"mailbox"`
	Messages []store.MailboxMessage `json:"messages"`
}

func (r MailboxResult) WriteText(w io.Writer) error {
	if err := (MailboxesResult{Mailboxes: []store.Mailbox{r.Mailbox}}).WriteText(w); err != nil {
		return err
	}
	for _, m := range r.Messages {
		if _, err := fmt.Fprintf(w, "  %d %s %d %s\n", m.UID, m.GUID, m.LastTimestamp, strings.Join(m.Flags, " ")); err != nil {
			return err
		}
	}
	return nil
}

// NewMailboxesCommand creates the mailboxes command.
func NewMailboxesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mailboxes <name> [uniqueid]",
		Short: "List the mailboxes known to the index",
		Long: `List the latest known state of every mailbox in a backup. Given a
mailbox unique id, show that mailbox with its message records by uid.

Examples:
  mailbackup mailboxes /var/backup/user.anne
  mailbackup mailboxes /var/backup/user.anne 5f0c2a1e-inbox`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withShared(rootOpts, cmd, args[0], func(b *backup.Backup) (any, error) {
				if len(args) == 2 {
					return mailbox(cmd.Context(), b, args[1])
				}
				boxes, err := b.Mailboxes(cmd.Context())
				if err != nil {
					return nil, err
				}
				if boxes == nil {
					boxes = []store.Mailbox{}
				}
				return MailboxesResult{Mailboxes: boxes}, nil
			})
		},
	}
}

func mailbox(ctx context.Context, b *backup.Backup, uniqueID string) (MailboxResult, error) {
	mb, err := b.Mailbox(ctx, uniqueID)
	if err != nil {
		return MailboxResult{}, err
	}
	msgs, err := b.MailboxMessages(ctx, uniqueID)
	if err != nil {
		return MailboxResult{}, err
	}
	return MailboxResult{Mailbox: mb, Messages: msgs}, nil
}
