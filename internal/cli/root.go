// Package cli implements the docindex commands.
package cli

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/markdave123-py/docindex/internal/app"
	"github.com/markdave123-py/docindex/internal/config"
	"github.com/markdave123-py/docindex/internal/logging"
)

// rootOptions is shared by every subcommand. cfg and log are filled in by
// the root PersistentPreRunE.
type rootOptions struct {
	dbPath     string
	logLevel   string
	paragraphs bool

	cfg *config.Config
	log *logrus.Logger
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "docindex",
		Short:         "Ingest documents into a searchable chunk index",
		Long:          "Extracts text from PDF, Word, text and Markdown files, splits it into overlapping chunks and stores them in Postgres or SQLite.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.load(cmd)
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&opts.dbPath, "db", "d", "", "Database URL or SQLite file (default: $DATABASE_URL)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (default: $LOG_LEVEL or info)")
	root.PersistentFlags().BoolVar(&opts.paragraphs, "paragraphs", false, "Chunk on blank lines instead of sentences")

	root.AddCommand(
		newIngestCmd(opts),
		newStatusCmd(opts),
		newWatchCmd(opts),
		newFoldersCmd(opts),
		newEmbedCmd(opts),
		newServeCmd(opts),
	)
	return root
}

// Execute runs the root command and returns the error for main to turn
// into an exit status.
func Execute(ctx context.Context) error {
	root := NewRootCmd()
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(root.ErrOrStderr(), "error: %v\n", err)
	}
	return err
}

func (o *rootOptions) load(cmd *cobra.Command) {
	cfg := config.LoadConfig()
	if o.dbPath != "" {
		cfg.DatabaseURL = o.dbPath
		cfg.DBDriver = config.DetectDriver(o.dbPath)
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.paragraphs {
		cfg.ChunkParagraphs = true
	}
	o.cfg = cfg
	o.log = logging.NewWithOutput(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	for _, w := range cfg.Warnings {
		o.log.Warn(w)
	}
}

func (o *rootOptions) openApp(ctx context.Context) (*app.App, error) {
	a, err := app.NewApp(ctx, o.cfg, o.log)
	if err != nil {
		return nil, fmt.Errorf("startup failed: %w", err)
	}
	return a, nil
}
