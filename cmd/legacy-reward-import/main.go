// legacy-reward-import loads the legacy crowdfunding reward exports into the
// store. Run it once per export drop; re-runs update existing rows in place.
//
// Usage:
//
//	SUPABASE_DB_URL=... go run ./cmd/legacy-reward-import -bucket legacy-exports
//	go run ./cmd/legacy-reward-import -scratch-dir ./exports -files kickstarter_rewards.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/reelfund/donors_backend/config"
	"github.com/reelfund/donors_backend/models"
	"github.com/reelfund/donors_backend/workflow"
)

func main() {
	bucket := flag.String("bucket", "", "Optional: GCS bucket holding the export files. If empty, files are read from the scratch dir.")
	scratchDir := flag.String("scratch-dir", "", "Directory for downloaded/local export files (default: system temp dir)")
	logFile := flag.String("log-file", "legacy-reward-import.log", "Append-only per-row run log")
	files := flag.String("files", "", "Optional: comma-separated subset of export files to import. If empty, imports all known exports.")
	flag.Parse()

	if *bucket == "" {
		*bucket = os.Getenv("LEGACY_EXPORT_BUCKET")
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set SUPABASE_DB_URL or DB_* env vars.")
		os.Exit(1)
	}
	logger := config.GetLogger()

	// Ensure schema is up-to-date (creates rewards/reward_import_errors if missing).
	models.MigrateTable()

	formats := workflow.DefaultSourceFormats
	if strings.TrimSpace(*files) != "" {
		wanted := make(map[string]bool)
		for _, f := range strings.Split(*files, ",") {
			wanted[strings.TrimSpace(f)] = true
		}
		selected := make([]workflow.SourceFormat, 0, len(wanted))
		for _, format := range workflow.DefaultSourceFormats {
			if wanted[format.File] {
				selected = append(selected, format)
				delete(wanted, format.File)
			}
		}
		for unknown := range wanted {
			fmt.Fprintf(os.Stderr, "unknown export file %q (no layout registered)\n", unknown)
			os.Exit(2)
		}
		formats = selected
	}

	summary, err := workflow.RunLegacyRewardImport(ctx, db, logger, workflow.ImportOptions{
		Bucket:     *bucket,
		ScratchDir: *scratchDir,
		LogPath:    *logFile,
		Formats:    formats,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("files processed: %d (skipped %d)\n", summary.FilesProcessed, summary.FilesSkipped)
	fmt.Printf("rows staged:     %d\n", summary.RowsStaged)
	fmt.Printf("rewards created: %d, updated: %d\n", summary.RewardsCreated, summary.RewardsUpdated)
	fmt.Printf("warnings: %d, errors: %d\n", summary.Warnings, summary.Errors)
	if summary.Errors > 0 {
		os.Exit(3)
	}
}
