// SPDX-License-Identifier: AGPL-3.0-or-later
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/skyfunnel/warmup-worker/internal/domain/models"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/cooldown"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/credentials"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/database"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/logger"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/mail"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/queue"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/rescue"
)

// IssueReporter is the minimal interface the loop needs to report a
// critical error (satisfied by *database.IssueRepository).
type IssueReporter interface {
	Report(ctx context.Context, issue models.Issue)
}

// LogRecorder is the minimal interface the loop needs to append a terminal
// status row (satisfied by *database.WarmupLogRepository).
type LogRecorder interface {
	Record(ctx context.Context, warmupID, recipientEmail string, status models.WarmupLogStatus) error
}

var (
	_ IssueReporter = (*database.IssueRepository)(nil)
	_ LogRecorder   = (*database.WarmupLogRepository)(nil)
)

// hideOnBlock is how long a blocked sender's remaining envelopes are hidden
// for before the receiveCount give-up threshold kicks in (same window the
// ingest loop uses for cooldown, spec.md §7).
const hideOnBlock = 12 * time.Hour

// giveUpAfterReceiveCount mirrors the ingest loop's threshold.
const giveUpAfterReceiveCount = 2

// Config controls the loop's tick period and per-sender fan-out width.
type Config struct {
	TickInterval  time.Duration
	MaxConcurrent int
}

// Loop is the batch side of the pipeline (C7): once an hour it reads the
// bucket, runs one spam rescue per sender, and replies to each of that
// sender's coalesced entries in turn.
type Loop struct {
	queue     queue.Adapter
	store     cooldown.Store
	resolver  *credentials.Resolver
	dispatch  mail.Dispatcher
	rescuer   rescue.Rescuer
	logs      LogRecorder
	issues    IssueReporter
	cfg       Config

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopChan chan struct{}
	mu       sync.Mutex
	started  bool
}

func New(
	q queue.Adapter,
	store cooldown.Store,
	resolver *credentials.Resolver,
	dispatch mail.Dispatcher,
	rescuer rescue.Rescuer,
	logs LogRecorder,
	issues IssueReporter,
	cfg Config,
) *Loop {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 60 * time.Minute
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		queue:    q,
		store:    store,
		resolver: resolver,
		dispatch: dispatch,
		rescuer:  rescuer,
		logs:     logs,
		issues:   issues,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		stopChan: make(chan struct{}),
	}
}

func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return fmt.Errorf("batch loop already started")
	}

	logger.Component("batch").Info("starting batch loop", "tick_interval", l.cfg.TickInterval, "max_concurrent", l.cfg.MaxConcurrent)

	l.started = true
	l.wg.Add(1)
	go l.run()

	return nil
}

func (l *Loop) Stop() error {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return fmt.Errorf("batch loop not started")
	}
	l.mu.Unlock()

	logger.Component("batch").Info("stopping batch loop...")

	l.cancel()
	close(l.stopChan)

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Component("batch").Info("batch loop stopped gracefully")
	case <-time.After(30 * time.Second):
		logger.Component("batch").Warn("batch loop stop timeout, some senders may be mid-processing")
	}

	l.mu.Lock()
	l.started = false
	l.mu.Unlock()

	return nil
}

func (l *Loop) run() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.tick()
		}
	}
}

func (l *Loop) tick() {
	ctx, cancel := context.WithTimeout(l.ctx, 50*time.Minute)
	defer cancel()

	bucket, err := l.store.ReadBucket(ctx)
	if err != nil {
		logger.Component("batch").Error("failed to read hour bucket", "error", err.Error())
		return
	}

	if len(bucket) == 0 {
		logger.Component("batch").Debug("batch tick: bucket empty")
		return
	}

	logger.Component("batch").Info("batch tick starting", "senders", len(bucket))

	var mu sync.Mutex
	var processed []string

	sem := make(chan struct{}, l.cfg.MaxConcurrent)
	var wg sync.WaitGroup

	for replyFrom, entries := range bucket {
		wg.Add(1)
		sem <- struct{}{}

		go func(sender string, entries []cooldown.Entry) {
			defer wg.Done()
			defer func() { <-sem }()
			defer l.recoverPanic(ctx, sender)

			l.processSender(ctx, sender, entries)

			mu.Lock()
			processed = append(processed, sender)
			mu.Unlock()
		}(replyFrom, entries)
	}

	wg.Wait()

	if err := l.store.RemoveSenders(ctx, processed); err != nil {
		logger.Component("batch").Error("failed to remove processed senders from bucket", "error", err.Error())
	}

	logger.Component("batch").Info("batch tick complete", "senders_processed", len(processed))
}

// processSender implements spec.md §4.7 steps 2-3 for one sender's
// coalesced entries, strictly in order (spec.md §5).
func (l *Loop) processSender(ctx context.Context, replyFrom string, entries []cooldown.Entry) {
	blocked, err := l.store.IsBlocked(ctx, replyFrom)
	if err != nil {
		logger.Component("batch").Warn("cooldown store unavailable, leaving entries for next tick", "reply_from", replyFrom, "error", err.Error())
		return
	}
	if blocked {
		l.giveUpOrHideAll(ctx, entries)
		return
	}

	creds, err := l.resolver.Resolve(ctx, replyFrom)
	if err != nil {
		logger.Component("batch").Error("failed to resolve credentials, leaving entries for next tick", "reply_from", replyFrom, "error", err.Error())
		l.issues.Report(ctx, models.Issue{
			Title:       "credential resolution failed",
			Description: err.Error(),
			Service:     "batch",
			Priority:    models.PriorityHigh,
			Context:     map[string]any{"reply_from": replyFrom},
		})
		return
	}

	// One spam rescue per sender-hour, keyed off the first coalesced entry.
	rescueOutcome := l.rescuer.Rescue(ctx, entries[0].CustomMailID, replyFrom, creds)
	if rescueOutcome == models.Success {
		if err := l.logs.Record(ctx, entries[0].WarmupID, entries[0].To, models.StatusInSpam); err != nil {
			logger.Component("batch").Warn("failed to record rescue log", "reply_from", replyFrom, "error", err.Error())
		}
	}
	if rescueOutcome == models.AuthFailure {
		l.markAuthFailure(ctx, replyFrom)
		l.giveUpOrHideAll(ctx, entries)
		return
	}

	for _, entry := range entries {
		if !entry.WantsReply() {
			if err := l.queue.Delete(ctx, entry.ReceiptHandle); err != nil {
				logger.Component("batch").Warn("failed to delete no-reply entry", "reply_from", replyFrom, "error", err.Error())
			}
			continue
		}

		reply := mail.Reply{
			From:            replyFrom,
			To:              entry.To,
			Subject:         entry.OriginalSubject,
			Body:            entry.Body,
			InReplyTo:       entry.InReplyTo,
			ReferenceID:     entry.ReferenceID,
			OriginalSubject: entry.OriginalSubject,
		}

		outcome := l.dispatch.Dispatch(ctx, reply, creds)

		switch outcome {
		case models.Success:
			if err := l.logs.Record(ctx, entry.WarmupID, entry.To, models.StatusReplied); err != nil {
				logger.Component("batch").Warn("failed to record replied log", "warmup_id", entry.WarmupID, "error", err.Error())
			}
			if err := l.queue.Delete(ctx, entry.ReceiptHandle); err != nil {
				logger.Component("batch").Warn("failed to delete replied entry", "warmup_id", entry.WarmupID, "error", err.Error())
			}
		case models.AuthFailure:
			l.markAuthFailure(ctx, replyFrom)
			l.giveUpOrHide(ctx, entry)
			return
		case models.TransientFailure:
			logger.Component("batch").Warn("transient dispatch failure, leaving entry for redelivery", "warmup_id", entry.WarmupID)
		}
	}
}

// recoverPanic stops one sender's panic from taking down the whole process.
// The panicking sender is left out of `processed`, so its entries (and the
// bucket hash field) survive for the next tick to retry.
func (l *Loop) recoverPanic(ctx context.Context, replyFrom string) {
	if r := recover(); r != nil {
		logger.Component("batch").Error("recovered from panic processing sender", "reply_from", replyFrom, "panic", fmt.Sprintf("%v", r))
		l.issues.Report(ctx, models.Issue{
			Title:       "panic in batch sender handler",
			Description: fmt.Sprintf("%v", r),
			Service:     "batch",
			Priority:    models.PriorityHigh,
			Context:     map[string]any{"reply_from": replyFrom},
		})
	}
}

func (l *Loop) markAuthFailure(ctx context.Context, replyFrom string) {
	if err := l.store.MarkBlocked(ctx, replyFrom); err != nil {
		logger.Component("batch").Error("failed to mark sender blocked", "reply_from", replyFrom, "error", err.Error())
	}
	if err := l.store.MarkCooldown(ctx, replyFrom); err != nil {
		logger.Component("batch").Error("failed to mark sender cooldown", "reply_from", replyFrom, "error", err.Error())
	}
}

func (l *Loop) giveUpOrHideAll(ctx context.Context, entries []cooldown.Entry) {
	for _, entry := range entries {
		l.giveUpOrHide(ctx, entry)
	}
}

func (l *Loop) giveUpOrHide(ctx context.Context, entry cooldown.Entry) {
	if entry.ReceiveCount >= giveUpAfterReceiveCount {
		if err := l.queue.Delete(ctx, entry.ReceiptHandle); err != nil {
			logger.Component("batch").Warn("failed to delete given-up entry", "warmup_id", entry.WarmupID, "error", err.Error())
		}
		return
	}

	if err := l.queue.Hide(ctx, entry.ReceiptHandle, hideOnBlock); err != nil {
		logger.Component("batch").Warn("failed to hide entry", "warmup_id", entry.WarmupID, "error", err.Error())
	}
}
