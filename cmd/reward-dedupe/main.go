// reward-dedupe runs the canonical reward deduplication pass from the
// command line, guarded by the same operation lock as the ops endpoint.
//
// Usage:
//
//	SUPABASE_DB_URL=... REDIS_ADDRESS=... go run ./cmd/reward-dedupe
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/reelfund/donors_backend/config"
	"github.com/reelfund/donors_backend/workflow"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set SUPABASE_DB_URL or DB_* env vars.")
		os.Exit(1)
	}
	logger := config.GetLogger()

	release, err := workflow.AcquireOperationLock(ctx, db, logger, "reward-dedupe")
	if err != nil {
		if errors.Is(err, workflow.ErrOperationInProgress) {
			fmt.Fprintln(os.Stderr, "a reward dedupe run is already in progress; try again later")
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "could not acquire operation lock: %v\n", err)
		os.Exit(1)
	}
	defer release()

	summary, err := workflow.RunRewardDedupe(ctx, db, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dedupe failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("canonical rewards: %d created, %d already present\n", summary.CanonicalCreated, summary.CanonicalExisting)
	fmt.Printf("duplicates: %d found, %d deleted\n", summary.DuplicatesFound, summary.DuplicatesDeleted)
	fmt.Printf("pledges: %d reassigned, %d backfilled\n", summary.PledgesReassigned, summary.PledgesBackfilled)
}
