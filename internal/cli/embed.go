package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/docindex/internal/services"
)

func newEmbedCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Compute embeddings for chunks that have none",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if a.Embedder == nil {
				return errors.New("embeddings need GEMINI_API_KEY")
			}

			svc := services.NewEmbeddingService(a.DBClient, a.Embedder, services.EmbeddingConfig{
				BatchSize:   opts.cfg.EmbedBatchSize,
				Concurrency: opts.cfg.EmbedConcurrency,
				MaxChunks:   limit,
				Dimension:   opts.cfg.EmbedDim,
			}, opts.log)

			report, err := svc.Backfill(cmd.Context())
			if report != nil {
				okColor.Fprintf(cmd.OutOrStdout(), "✅ embedded %d chunks in %d batches\n", report.Embedded, report.Batches)
			}
			if err != nil {
				return fmt.Errorf("embedding backfill: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Stop after this many chunks (0 means all)")
	return cmd
}
