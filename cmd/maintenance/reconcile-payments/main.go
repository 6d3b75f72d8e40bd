package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/safaritrails/booking-backend/internal/config"
	"github.com/safaritrails/booking-backend/internal/database"
	"github.com/safaritrails/booking-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// Runs one payment reconciliation sweep outside the server's cron schedule.
// Reads the same environment as the server.
//
//	go run ./cmd/maintenance/reconcile-payments -stale-minutes 15 -batch 200
func main() {
	var (
		dbURLFlag    string
		staleMinutes int
		batchSize    int
		timeout      time.Duration
		verbose      bool
	)
	flag.StringVar(&dbURLFlag, "database-url", "", "Postgres connection string (overrides DATABASE_URL)")
	flag.IntVar(&staleMinutes, "stale-minutes", 0, "Reconcile payments older than this many minutes (default from RECONCILE_AFTER_MINUTES)")
	flag.IntVar(&batchSize, "batch", 0, "Maximum payments to check (default from RECONCILE_BATCH_SIZE)")
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "Overall timeout for the sweep")
	flag.BoolVar(&verbose, "v", false, "Debug logging")
	flag.Parse()

	if dbURLFlag != "" {
		os.Setenv("DATABASE_URL", dbURLFlag)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if staleMinutes > 0 {
		cfg.Reconcile.StaleAfter = time.Duration(staleMinutes) * time.Minute
	}
	if batchSize > 0 {
		cfg.Reconcile.BatchSize = batchSize
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	dbCfg := config.DatabaseConfig{
		URL:                cfg.Database.URL,
		MaxConnections:     5,
		MaxIdleConnections: 2,
	}
	db, err := database.NewConnection(dbCfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	paymentService := services.NewPaymentService(
		database.NewPaymentRepository(db.DB),
		database.NewBookingRepository(db.DB),
		database.NewPaymentAuditRepository(db.DB, logger),
		services.NewGatewayRouter(cfg, logger),
		cfg.Booking,
		cfg.Reconcile,
		logger,
	)

	fmt.Printf("Reconciling payments older than %s (batch %d)...\n", cfg.Reconcile.StaleAfter, cfg.Reconcile.BatchSize)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	summary, err := paymentService.ReconcileStalePayments(ctx)
	if err != nil {
		log.Fatalf("Reconciliation failed: %v", err)
	}

	fmt.Println("\nSummary:")
	fmt.Printf("  %-14s %d\n", "checked", summary.Checked)
	fmt.Printf("  %-14s %d\n", "orphaned", summary.Orphaned)
	fmt.Printf("  %-14s %d\n", "completed", summary.Completed)
	fmt.Printf("  %-14s %d\n", "failed", summary.Failed)
	fmt.Printf("  %-14s %d\n", "still pending", summary.StillPending)
	fmt.Printf("  %-14s %d\n", "errors", summary.Errors)

	if summary.Errors > 0 {
		os.Exit(1)
	}
}
