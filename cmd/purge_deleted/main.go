package main

import (
	"context"
	"flag"
	"log"
	"time"

	"marketplace/internal/config"
	"marketplace/internal/database"
	"marketplace/internal/logger"
	"marketplace/internal/modules/booking"
	"marketplace/internal/repository"

	"go.uber.org/zap"
)

// purge_deleted permanently removes bookings that stayed soft-deleted past
// the retention window. Ledger rows are kept. Meant to run from cron.
func main() {
	retention := flag.Duration("retention", 90*24*time.Hour, "how long soft-deleted bookings are kept")
	batch := flag.Int("batch", 500, "maximum bookings removed per run")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	zl, err := logger.New(cfg.IsProdLike(), cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = zl.Sync() }()

	db, err := database.Connect(cfg.DatabaseURL, zl)
	if err != nil {
		zl.Fatal("db connect failed", zap.Error(err))
	}

	// Purging never validates, prices or notifies.
	svc := booking.NewService(repository.NewStore(db), nil, booking.FeePolicy{}, nil, zl, booking.Options{
		TxTimeout: cfg.Booking.TxTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	n, err := svc.PurgeDeleted(ctx, *retention, *batch)
	if err != nil {
		zl.Fatal("purge failed", zap.Int("purged", n), zap.Error(err))
	}
	zl.Info("purge completed", zap.Int("purged", n), zap.Duration("retention", *retention))
}
