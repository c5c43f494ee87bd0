package cli

import (
	"errors"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/docindex/internal/core/ingestion_engine"
)

type ingestFlags struct {
	project   string
	chunkSize int
	overlap   int
}

func (f *ingestFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.project, "project", "p", "", "Project folder recorded with the documents (default: $DEFAULT_PROJECT)")
	cmd.Flags().IntVar(&f.chunkSize, "chunk-size", 0, "Maximum chunk size in characters (0 keeps the configured size)")
	cmd.Flags().IntVar(&f.overlap, "overlap", 0, "Overlap carried between chunks (0 keeps the configured overlap, negative disables it)")
}

func (f *ingestFlags) options() ingestion_engine.IngestOptions {
	return ingestion_engine.IngestOptions{Project: f.project, ChunkSize: f.chunkSize, Overlap: f.overlap}
}

func newIngestCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest files, directories or S3 objects",
	}
	cmd.AddCommand(
		newIngestFileCmd(opts),
		newIngestDirectoryCmd(opts),
		newIngestS3Cmd(opts),
	)
	return cmd
}

func newIngestFileCmd(opts *rootOptions) *cobra.Command {
	var flags ingestFlags
	cmd := &cobra.Command{
		Use:   "file <path>...",
		Short: "Ingest one or more files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			report := &ingestion_engine.DirectoryReport{}
			for _, path := range args {
				res, err := a.Coordinator.IngestFile(cmd.Context(), path, flags.options())
				printOutcome(cmd.OutOrStdout(), path, res, err)
				report.Supported++
				if err != nil {
					report.Failed++
				}
			}
			return reportErr(report)
		},
	}
	flags.bind(cmd)
	return cmd
}

func newIngestDirectoryCmd(opts *rootOptions) *cobra.Command {
	var (
		flags     ingestFlags
		recursive bool
	)
	cmd := &cobra.Command{
		Use:     "directory <dir>",
		Aliases: []string{"dir"},
		Short:   "Ingest every supported file in a directory",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Coordinator.IngestDirectory(cmd.Context(), args[0], ingestion_engine.DirectoryOptions{
				Recursive:     recursive,
				IngestOptions: flags.options(),
			})
			if report != nil {
				printReport(cmd.OutOrStdout(), report)
			}
			if err != nil {
				return err
			}
			return reportErr(report)
		},
	}
	flags.bind(cmd)
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Descend into subdirectories")
	return cmd
}

func newIngestS3Cmd(opts *rootOptions) *cobra.Command {
	var flags ingestFlags
	cmd := &cobra.Command{
		Use:   "s3 <s3://bucket/key-or-prefix>",
		Short: "Ingest an S3 object, or every supported object under a prefix",
		Long:  "A URL whose key has a supported extension is ingested as a single object. Anything else is treated as a prefix. A bare key uses $BUCKET_NAME.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if a.ObjectClient == nil {
				return errors.New("object storage is not configured; set BUCKET_NAME or AWS_ACCESS_KEY")
			}

			bucket, key, err := ingestion_engine.ParseObjectURL(args[0])
			if err != nil {
				bucket, key = a.ObjectClient.DefaultBucket(), args[0]
				if bucket == "" {
					return err
				}
			}

			if key != "" && a.Coordinator.Processor().IsSupported(filepath.Ext(key)) {
				res, err := a.Coordinator.IngestObject(cmd.Context(), bucket, key, flags.options())
				printOutcome(cmd.OutOrStdout(), ingestion_engine.ObjectURL(bucket, key), res, err)
				return err
			}

			report, err := a.Coordinator.IngestBucket(cmd.Context(), bucket, key, flags.options())
			if report != nil {
				printReport(cmd.OutOrStdout(), report)
			}
			if err != nil {
				return err
			}
			return reportErr(report)
		},
	}
	flags.bind(cmd)
	return cmd
}
