package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"bitbucket.org/brokerlink/customs_backend/config"
	"bitbucket.org/brokerlink/customs_backend/feedsync"
	"bitbucket.org/brokerlink/customs_backend/models"
	"bitbucket.org/brokerlink/customs_backend/utils"
)

// replay-deliveries re-queues past delivery runs from their stored origin
// objects, for recovering after an outage or a bug fix. Only object-backed
// runs can be replayed; manual inline-data runs are skipped because the feed
// content was never persisted.
func main() {
	sourceSystem := flag.String("source-system", "", "Optional: replay only one source system")
	status := flag.String("status", "failed,partial", "Comma-separated run statuses to replay")
	since := flag.String("since", "", "Optional: only runs created on/after this date (YYYY-MM-DD)")
	dryRun := flag.Bool("dry-run", false, "If true, do not queue anything; only print actions")
	flag.Parse()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	statuses := splitAndTrim(*status)
	if len(statuses) == 0 {
		fmt.Fprintln(os.Stderr, "--status must name at least one run status")
		os.Exit(1)
	}

	query := db.WithContext(ctx).
		Where("status IN ?", statuses).
		Where("origin_bucket <> '' AND origin_path <> ''")
	if strings.TrimSpace(*sourceSystem) != "" {
		query = query.Where("source_system = ?", strings.TrimSpace(*sourceSystem))
	}
	if strings.TrimSpace(*since) != "" {
		from, err := time.Parse("2006-01-02", strings.TrimSpace(*since))
		if err != nil {
			fmt.Fprintln(os.Stderr, "--since must be YYYY-MM-DD")
			os.Exit(1)
		}
		query = query.Where("created_at >= ?", from)
	}

	var runs []models.DeliveryRun
	if err := query.Order("id asc").Find(&runs).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to list delivery runs: %v\n", err)
		os.Exit(1)
	}
	if len(runs) == 0 {
		fmt.Println("no delivery runs match")
		return
	}

	queued, skipped := 0, 0
	for _, run := range runs {
		exists, err := utils.ObjectExistsInGCS(ctx, run.OriginBucket, run.OriginPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "run %d: object check failed: %v\n", run.ID, err)
			skipped++
			continue
		}
		if !exists {
			fmt.Fprintf(os.Stderr, "run %d: origin object gs://%s/%s is gone, skipping\n",
				run.ID, run.OriginBucket, run.OriginPath)
			skipped++
			continue
		}

		fmt.Printf("replaying run=%d source=%s object=gs://%s/%s\n",
			run.ID, run.SourceSystem, run.OriginBucket, run.OriginPath)
		if *dryRun {
			queued++
			continue
		}

		parentId := run.ID
		newRun := models.DeliveryRun{
			SourceSystem: run.SourceSystem,
			Dialect:      run.Dialect,
			Status:       models.DeliveryRunStatusQueued,
			TriggeredBy:  models.DeliveryTriggeredRetry,
			OriginBucket: run.OriginBucket,
			OriginPath:   run.OriginPath,
			ExtractedAt:  run.ExtractedAt,
			ParentRunId:  &parentId,
		}
		if err := db.WithContext(ctx).Create(&newRun).Error; err != nil {
			fmt.Fprintf(os.Stderr, "run %d: failed to create retry run: %v\n", run.ID, err)
			skipped++
			continue
		}
		if err := feedsync.PublishDeliveryRun(ctx, newRun.ID, newRun.SourceSystem); err != nil {
			fmt.Fprintf(os.Stderr, "run %d: failed to publish retry run %d: %v\n", run.ID, newRun.ID, err)
			skipped++
			continue
		}
		queued++
	}

	fmt.Printf("replay complete: queued=%d skipped=%d\n", queued, skipped)
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
