package main

import (
	"context"
	"flag"
	"log"
	"os"

	"maintenance-tracker-backend/config"
	"maintenance-tracker-backend/internal/db"
	"maintenance-tracker-backend/internal/reconcile"
	"maintenance-tracker-backend/internal/store"
)

// Offline repair tool: rebuilds the automatic usage ledger and the current
// usage counter from the daily summary history. Run it against a quiesced
// machine (or fleet); it never fires threshold evaluation.
func main() {
	logger := log.New(os.Stdout, "reconcile ", log.LstdFlags)

	var (
		configPath = flag.String("config", "./config/config.yaml", "path to the configuration file")
		machineID  = flag.Int64("machine", 0, "machine ID to reconcile")
		all        = flag.Bool("all", false, "reconcile every active machine")
		dryRun     = flag.Bool("dry-run", false, "report what would change without writing")
	)
	flag.Parse()

	if *machineID == 0 && !*all {
		logger.Fatal("specify -machine <id> or -all")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", *configPath, err)
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}

	job := reconcile.NewJob(store.NewGormStore(gormDB), *dryRun)
	ctx := context.Background()

	var reports []reconcile.Report
	if *all {
		reports, err = job.RunAll(ctx)
	} else {
		var report *reconcile.Report
		report, err = job.Run(ctx, *machineID)
		if report != nil {
			reports = append(reports, *report)
		}
	}

	for _, r := range reports {
		logger.Printf("machine %d: usage %.2f -> %.2f (baseline %.2f, %d days replayed, %d auto entries rewritten)",
			r.MachineID, r.OldUsage, r.NewUsage, r.Baseline, r.DaysReplayed, r.AutoDeleted)
	}
	if err != nil {
		logger.Fatalf("reconciliation failed: %v", err)
	}
	if *dryRun {
		logger.Println("dry run: no changes were written")
	}
}
