package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/mailbackup/internal/backup"
	"github.com/roach88/mailbackup/internal/config"
)

// RootOptions holds global flags and the state they produce.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	Config config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the mailbackup CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "mailbackup",
		Short: "mailbackup - replication backup log and index",
		Long: `Manage replication backups: an append-only, chunked log of mail
server changes and the SQLite index derived from it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.setup(cmd)
		},
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "bad flags", err)
	})

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")

	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewAppendCommand(opts))
	cmd.AddCommand(NewReindexCommand(opts))
	cmd.AddCommand(NewCompactCommand(opts))
	cmd.AddCommand(NewDumpCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))
	cmd.AddCommand(NewChunksCommand(opts))
	cmd.AddCommand(NewMailboxesCommand(opts))
	cmd.AddCommand(NewMessagesCommand(opts))
	cmd.AddCommand(NewSubscriptionsCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// setup loads the configuration and builds the logger.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if err := config.FromEnv(&cfg); err != nil {
		return WrapExitError(ExitCommandError, "failed to read environment", err)
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "bad config", err)
	}
	o.Config = cfg

	level := cfg.Level()
	if o.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(cmd.ErrOrStderr(), handlerOpts)
	} else {
		handler = slog.NewTextHandler(cmd.ErrOrStderr(), handlerOpts)
	}
	o.Logger = slog.New(handler)
	return nil
}

// backupOptions turns the configuration into handle options.
func (o *RootOptions) backupOptions() ([]backup.Option, error) {
	onMalformed, err := backup.ParsePolicy(o.Config.OnMalformed)
	if err != nil {
		return nil, err
	}
	onIndexError, err := backup.ParsePolicy(o.Config.OnIndexError)
	if err != nil {
		return nil, err
	}
	return []backup.Option{
		backup.WithLogger(o.Logger),
		backup.WithSuffixes(o.Config.LogSuffix, o.Config.IndexSuffix),
		backup.WithCompressionLevel(o.Config.CompressionLevel),
		backup.WithChunkTarget(o.Config.ChunkTargetBytes),
		backup.WithMalformedPolicy(onMalformed),
		backup.WithIndexErrorPolicy(onIndexError),
	}, nil
}

// formatter returns the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
