package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/docindex/internal/core/ingestion_engine"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <path>...",
		Short: "Show the stored status of ingested files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			missing := 0
			for _, path := range args {
				st, err := a.Coordinator.GetStatus(cmd.Context(), path)
				if errors.Is(err, ingestion_engine.ErrDocumentNotFound) {
					skipColor.Fprintf(out, "%s: not ingested\n", path)
					missing++
					continue
				}
				if err != nil {
					return err
				}

				doc := st.Document
				headColor.Fprintf(out, "%s\n", doc.FilePath)
				fmt.Fprintf(out, "  ID:        %s\n", doc.ID)
				fmt.Fprintf(out, "  Status:    %s\n", doc.Status)
				fmt.Fprintf(out, "  Project:   %s\n", doc.ProjectFolder)
				fmt.Fprintf(out, "  Type:      %s\n", doc.FileType)
				fmt.Fprintf(out, "  Size:      %d bytes\n", doc.FileSize)
				fmt.Fprintf(out, "  Chunks:    %d\n", st.ChunkCount)
				fmt.Fprintf(out, "  Created:   %s\n", doc.CreatedAt.Format(time.DateTime))
				fmt.Fprintf(out, "  Updated:   %s\n", doc.UpdatedAt.Format(time.DateTime))
				if doc.ProcessedAt != nil {
					fmt.Fprintf(out, "  Processed: %s\n", doc.ProcessedAt.Format(time.DateTime))
				}
				if st.ErrorMessage != "" {
					failColor.Fprintf(out, "  Error:     %s\n", st.ErrorMessage)
				}
			}
			if missing > 0 {
				return fmt.Errorf("%d of %d paths not ingested", missing, len(args))
			}
			return nil
		},
	}
}
