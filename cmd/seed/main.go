package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"accounts-api/core"
)

func main() {
	count := flag.Int("count", 25, "number of users to create")
	prefix := flag.String("prefix", "user", "username prefix")
	password := flag.String("password", "password123", "password for every seeded user")
	role := flag.String("role", core.DefaultRole, "role code for seeded users")
	concurrency := flag.Int("concurrency", 4, "number of concurrent workers")
	flag.Parse()

	cfg, err := core.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, logCloser, err := core.SetupLogging(cfg, "seed.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	db, err := core.Connect(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect database")
	}
	defer db.Close()

	repo := core.NewPgUserRepository(db)
	logger.WithFields(logrus.Fields{"count": *count, "concurrency": *concurrency}).Info("seeding users")

	report, err := core.SeedUsers(ctx, repo, core.SeedOptions{
		Count:       *count,
		Prefix:      *prefix,
		Password:    *password,
		Role:        *role,
		Iterations:  cfg.PasswordIterations,
		Concurrency: *concurrency,
	}, logger)
	entry := logger.WithFields(logrus.Fields{
		"created": report.Created,
		"skipped": report.Skipped,
		"failed":  report.Failed,
	})
	if err != nil {
		entry.WithError(err).Error("seeding stopped")
		os.Exit(1)
	}
	entry.Info("seeding finished")
}
