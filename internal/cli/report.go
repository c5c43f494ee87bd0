package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/markdave123-py/docindex/internal/core/ingestion_engine"
)

var (
	okColor   = color.New(color.FgGreen)
	skipColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed)
	headColor = color.New(color.FgCyan, color.Bold)
)

// printOutcome writes one report line for an ingested file.
func printOutcome(w io.Writer, path string, res *ingestion_engine.IngestResult, err error) {
	switch {
	case err != nil:
		failColor.Fprintf(w, "❌ %s: %v\n", path, err)
	case res.AlreadyIngested:
		skipColor.Fprintf(w, "⏭️  %s: already ingested (%s)\n", path, res.Status)
	default:
		okColor.Fprintf(w, "✅ %s: %d chunks\n", path, res.ChunkCount)
	}
}

func printReport(w io.Writer, report *ingestion_engine.DirectoryReport) {
	headColor.Fprintf(w, "Ingesting %s\n", report.Root)
	for _, f := range report.Files {
		printOutcome(w, f.Path, f.Result, f.Err)
	}
	fmt.Fprintf(w, "\nFound %d files, %d supported, %d skipped\n", report.Total, report.Supported, report.Skipped)
	fmt.Fprintf(w, "Succeeded: %d  Already ingested: %d  Failed: %d\n", report.Succeeded, report.AlreadyIngested, report.Failed)
}

// reportErr turns failed files into a command error so the process exits
// non-zero.
func reportErr(report *ingestion_engine.DirectoryReport) error {
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d files failed", report.Failed, report.Supported)
	}
	return nil
}
