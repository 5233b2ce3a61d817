// Package main provides the etl command that runs the sales pipeline for the configured sources.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"salesetl/internal/config"
	"salesetl/internal/database"
	"salesetl/internal/logger"
	"salesetl/internal/pipeline"
)

func main() {
	configPath := flag.String("config", "configs/etl.yaml", "Path to the pipeline configuration file")
	envFile := flag.String("env", ".env", "Path to an optional .env file")
	source := flag.String("source", "all", "Source name to process, or 'all' for every enabled source")
	report := flag.Bool("report", false, "Write a markdown report for each source")

	flag.Parse()

	if err := config.LoadEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		flag.PrintDefaults()
		os.Exit(1)
	}

	log := logger.NewLoggerWithWriter(os.Stderr, cfg.Pipeline.Logging.Level, cfg.Pipeline.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		log.Error("database unavailable", "error", err)
		os.Exit(1)
	}

	if db != nil {
		defer db.Close()
	}

	var names []string
	if *source != "all" {
		names = strings.Split(*source, ",")
	}

	log.Info("🚀 Starting sales ETL pipeline", "config", *configPath, "sources", *source)

	start := time.Now()
	orch := pipeline.NewOrchestrator(cfg, log, pipeline.Options{DB: db, Report: *report})

	results, runErr := orch.Run(ctx, names...)

	printSummary(results, time.Since(start))

	if runErr != nil {
		log.Error("pipeline finished with errors", "error", runErr)
		os.Exit(1)
	}
}

// openDatabase connects when the sink is enabled or a sql source is configured.
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	need := cfg.Pipeline.Database.Enabled

	for _, src := range cfg.GetEnabledSources() {
		if src.Type == config.SourceSQL {
			need = true
		}
	}

	if !need {
		return nil, nil
	}

	return database.Open(ctx, cfg.Pipeline.Database.Driver, cfg.Pipeline.Database.DSN)
}

func printSummary(results []*pipeline.SourceResult, elapsed time.Duration) {
	fmt.Println("\n------------------------------------------------")
	fmt.Println("📊 Summary Report")
	fmt.Println("------------------------------------------------")

	for _, r := range results {
		if r == nil {
			continue
		}

		switch {
		case r.Skipped:
			fmt.Printf("⏭️  %s: no data extracted\n", r.Source)

			continue
		case r.Canonical.Sales == nil:
			fmt.Printf("❌ %s: failed (run %s)\n", r.Source, r.RunID)

			continue
		}

		fmt.Printf("✅ %s (run %s)\n", r.Source, r.RunID)
		fmt.Printf("   Rows: %d in, %d sales, %d products, %d customers\n",
			r.Raw.Len(), r.Canonical.Sales.Len(), r.Canonical.Products.Len(), r.Canonical.Customers.Len())

		for _, v := range r.Validation {
			fmt.Printf("   %-10s %s\n", v.Name, v.Result)
		}

		if !r.Consistency.Consistent {
			fmt.Printf("   ⚠️  Consistency: %d warnings, %d errors\n", len(r.Consistency.Warnings), len(r.Consistency.Errors))
		}

		fmt.Printf("   Files written: %d, rows loaded: %d\n", len(r.Outputs), r.RowsLoaded)

		if r.ReportPath != "" {
			fmt.Printf("   Report: %s\n", r.ReportPath)
		}

		for _, w := range r.Warnings {
			fmt.Printf("   ⚠️  %s\n", w)
		}
	}

	fmt.Printf("Total Duration: %v\n", elapsed)
	fmt.Println("------------------------------------------------")
}
