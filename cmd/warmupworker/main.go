// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/oauth2/google"

	"github.com/skyfunnel/warmup-worker/internal/application/batch"
	"github.com/skyfunnel/warmup-worker/internal/application/ingest"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/config"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/cooldown"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/credentials"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/database"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/logger"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/mail"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/queue"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/rescue"
)

// Build-time variables set via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logger.Level))
	logger.Logger.Info("starting warmup worker", "version", Version, "commit", Commit)

	db, err := database.InitDB(ctx, database.Config{DSN: cfg.Database.DSN})
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	defer db.Close()

	sqsAdapter, err := queue.NewSQSAdapter(ctx, cfg.Queue)
	if err != nil {
		log.Fatalf("failed to initialize queue adapter: %v", err)
	}

	store, err := cooldown.NewRedisStore(ctx, cfg.Cooldown)
	if err != nil {
		log.Fatalf("failed to initialize cooldown store: %v", err)
	}

	credRepo := database.NewCredentialRepository(db)
	logRepo := database.NewWarmupLogRepository(db)
	issueRepo := database.NewIssueRepository(db)

	resolver, err := credentials.NewResolver(credRepo, cfg.Crypto, google.Endpoint)
	if err != nil {
		log.Fatalf("failed to initialize credential resolver: %v", err)
	}

	smtpDispatcher := mail.NewSMTPDispatcher()
	gmailDispatcher := mail.NewGmailDispatcher(resolver)
	dispatcher := mail.NewDispatcher(smtpDispatcher, gmailDispatcher)

	imapRescuer := rescue.NewIMAPRescuer()
	gmailRescuer := rescue.NewGmailRescuer(resolver)
	rescuer := rescue.NewRescuer(imapRescuer, gmailRescuer)

	ingestLoop := ingest.New(sqsAdapter, store, issueRepo, ingest.Config{
		TickInterval:  cfg.Ingest.TickInterval,
		MaxConcurrent: cfg.Ingest.MaxConcurrent,
		ReceiveLimit:  cfg.Ingest.ReceiveLimit,
	})

	batchLoop := batch.New(sqsAdapter, store, resolver, dispatcher, rescuer, logRepo, issueRepo, batch.Config{
		TickInterval:  cfg.Batch.TickInterval,
		MaxConcurrent: cfg.Batch.MaxConcurrent,
	})

	if err := ingestLoop.Start(); err != nil {
		log.Fatalf("failed to start ingest loop: %v", err)
	}
	if err := batchLoop.Start(); err != nil {
		log.Fatalf("failed to start batch loop: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Logger.Info("shutting down warmup worker...")

	// Batch stops first so in-flight sends finish draining the bucket
	// before ingest could admit anything new into it.
	if err := batchLoop.Stop(); err != nil {
		logger.Logger.Warn("batch loop stop reported an error", "error", err.Error())
	}
	if err := ingestLoop.Stop(); err != nil {
		logger.Logger.Warn("ingest loop stop reported an error", "error", err.Error())
	}

	logger.Logger.Info("warmup worker exited")
}
