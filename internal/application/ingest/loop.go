// SPDX-License-Identifier: AGPL-3.0-or-later
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/skyfunnel/warmup-worker/internal/domain/models"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/cooldown"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/database"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/logger"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/queue"
)

var _ IssueReporter = (*database.IssueRepository)(nil)

// IssueReporter is the minimal interface the loop needs to report a
// malformed envelope to the critical-error sink (satisfied by
// *database.IssueRepository).
type IssueReporter interface {
	Report(ctx context.Context, issue models.Issue)
}

// hideOnCooldown is how long an envelope is hidden when its sender is in
// cooldown and hasn't been redelivered enough times to give up on yet
// (spec.md §4.6 step 4 / §7).
const hideOnCooldown = 12 * time.Hour

// giveUpAfterReceiveCount is the receiveCount threshold past which a
// cooldown/blocked envelope is dropped rather than hidden again.
const giveUpAfterReceiveCount = 2

// Config controls the loop's tick period and per-tick fan-out width.
type Config struct {
	TickInterval  time.Duration
	MaxConcurrent int
	ReceiveLimit  int
}

// Loop is the ingest side of the pipeline (C6): it drains the queue,
// admits each envelope through the cooldown/block gate, and coalesces
// admitted requests into the current hour bucket. Built in the same
// ticker + context.CancelFunc + stopChan + sync.WaitGroup + started-bool
// shape the teacher uses for all three of its background workers.
type Loop struct {
	queue    queue.Adapter
	store    cooldown.Store
	issues   IssueReporter
	cfg      Config

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopChan chan struct{}
	mu       sync.Mutex
	started  bool
}

func New(q queue.Adapter, store cooldown.Store, issues IssueReporter, cfg Config) *Loop {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 2 * time.Minute
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 10
	}
	if cfg.ReceiveLimit <= 0 {
		cfg.ReceiveLimit = 10
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		queue:    q,
		store:    store,
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
		return fmt.Errorf("ingest loop already started")
	}

	logger.Component("ingest").Info("starting ingest loop", "tick_interval", l.cfg.TickInterval, "max_concurrent", l.cfg.MaxConcurrent)

	l.started = true
	l.wg.Add(1)
	go l.run()

	return nil
}

func (l *Loop) Stop() error {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return fmt.Errorf("ingest loop not started")
	}
	l.mu.Unlock()

	logger.Component("ingest").Info("stopping ingest loop...")

	l.cancel()
	close(l.stopChan)

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Component("ingest").Info("ingest loop stopped gracefully")
	case <-time.After(30 * time.Second):
		logger.Component("ingest").Warn("ingest loop stop timeout, some envelopes may be in flight")
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

	l.tick()

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

// tallyOutcome is a single tick's summary, logged as one structured line
// rather than one line per envelope (mirrors performCleanup/processBatch's
// single-summary-line habit).
type tallyOutcome struct {
	received int
	admitted int
	deleted  int
	hidden   int
	requeued int
	skipped  int
}

func (l *Loop) tick() {
	ctx, cancel := context.WithTimeout(l.ctx, 5*time.Minute)
	defer cancel()

	envelopes, err := l.queue.Receive(ctx, l.cfg.ReceiveLimit)
	if err != nil {
		logger.Component("ingest").Error("failed to receive from queue", "error", err.Error())
		return
	}

	if len(envelopes) == 0 {
		logger.Component("ingest").Debug("ingest tick: nothing to receive")
		return
	}

	tally := &tallyOutcome{received: len(envelopes)}
	var mu sync.Mutex

	sem := make(chan struct{}, l.cfg.MaxConcurrent)
	var wg sync.WaitGroup

	for _, envelope := range envelopes {
		wg.Add(1)
		sem <- struct{}{}

		go func(env queue.Envelope) {
			defer wg.Done()
			defer func() { <-sem }()
			defer l.recoverPanic(ctx, env)

			outcome := l.processEnvelope(ctx, env)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeAdmitted:
				tally.admitted++
			case outcomeDeleted:
				tally.deleted++
			case outcomeHidden:
				tally.hidden++
			case outcomeRequeued:
				tally.requeued++
			case outcomeSkipped:
				tally.skipped++
			}
		}(envelope)
	}

	wg.Wait()

	logger.Component("ingest").Info("ingest tick complete",
		"received", tally.received, "admitted", tally.admitted, "deleted", tally.deleted,
		"hidden", tally.hidden, "requeued", tally.requeued, "skipped", tally.skipped)
}

type envelopeOutcome int

const (
	outcomeAdmitted envelopeOutcome = iota
	outcomeDeleted
	outcomeHidden
	outcomeRequeued
	outcomeSkipped
)

// processEnvelope implements spec.md §4.6 steps 2-6 for one envelope.
func (l *Loop) processEnvelope(ctx context.Context, env queue.Envelope) envelopeOutcome {
	var req models.WarmupRequest
	if err := json.Unmarshal([]byte(env.Body), &req); err != nil {
		l.reportMalformed(ctx, env, err)
		return outcomeDeleted
	}
	if err := req.Validate(); err != nil {
		l.reportMalformed(ctx, env, err)
		return outcomeDeleted
	}

	now := time.Now()
	nowMs := now.UnixMilli()

	if req.IsScheduledAfter(nowMs) {
		delay := time.Duration(*req.ScheduledFor-nowMs) * time.Millisecond
		if delay > queue.MaxDelaySeconds*time.Second {
			delay = queue.MaxDelaySeconds * time.Second
		}
		if err := l.queue.DelayRequeue(ctx, env.Body, delay); err != nil {
			logger.Component("ingest").Warn("failed to requeue scheduled envelope", "warmup_id", req.WarmupID, "error", err.Error())
			return outcomeSkipped
		}
		if err := l.queue.Delete(ctx, env.ReceiptHandle); err != nil {
			logger.Component("ingest").Warn("failed to delete requeued envelope", "warmup_id", req.WarmupID, "error", err.Error())
		}
		return outcomeRequeued
	}

	inCooldown, err := l.store.IsInCooldown(ctx, req.ReplyFrom)
	if err != nil {
		logger.Component("ingest").Warn("cooldown store unavailable, leaving envelope for retry", "reply_from", req.ReplyFrom, "error", err.Error())
		return outcomeSkipped
	}
	if inCooldown {
		return l.admitOrHide(ctx, env)
	}

	blocked, err := l.store.IsBlocked(ctx, req.ReplyFrom)
	if err != nil {
		logger.Component("ingest").Warn("cooldown store unavailable, leaving envelope for retry", "reply_from", req.ReplyFrom, "error", err.Error())
		return outcomeSkipped
	}
	if blocked {
		if err := l.queue.Delete(ctx, env.ReceiptHandle); err != nil {
			logger.Component("ingest").Warn("failed to delete blocked-sender envelope", "reply_from", req.ReplyFrom, "error", err.Error())
		}
		return outcomeDeleted
	}

	entry := cooldown.Entry{
		WarmupRequest: req,
		ReceiptHandle: env.ReceiptHandle,
		AddedAt:       now,
		ReceiveCount:  env.ApproximateReceiveCount,
	}

	inserted, err := l.store.AddToBucket(ctx, req.ReplyFrom, entry)
	if err != nil || !inserted {
		if err != nil {
			logger.Component("ingest").Warn("failed to admit envelope into bucket, leaving for retry", "reply_from", req.ReplyFrom, "error", err.Error())
		}
		return outcomeSkipped
	}

	if err := l.queue.Delete(ctx, env.ReceiptHandle); err != nil {
		logger.Component("ingest").Warn("bucket admit succeeded but delete failed, duplicate may be redelivered", "reply_from", req.ReplyFrom, "error", err.Error())
	}

	return outcomeAdmitted
}

// admitOrHide applies the cooldown give-up rule: delete once receiveCount
// has reached the threshold, else hide for 12h and let the visibility
// timeout retry it later (spec.md §4.6 step 4).
func (l *Loop) admitOrHide(ctx context.Context, env queue.Envelope) envelopeOutcome {
	if env.ApproximateReceiveCount >= giveUpAfterReceiveCount {
		if err := l.queue.Delete(ctx, env.ReceiptHandle); err != nil {
			logger.Component("ingest").Warn("failed to delete cooled-down envelope", "error", err.Error())
		}
		return outcomeDeleted
	}

	if err := l.queue.Hide(ctx, env.ReceiptHandle, hideOnCooldown); err != nil {
		logger.Component("ingest").Warn("failed to hide cooled-down envelope", "error", err.Error())
		return outcomeSkipped
	}
	return outcomeHidden
}

// recoverPanic stops a single envelope handler's panic from taking down the
// whole process — the rest of the tick's fan-out keeps running and the
// panicking envelope is left in the queue for its visibility timeout to
// re-deliver rather than being force-deleted.
func (l *Loop) recoverPanic(ctx context.Context, env queue.Envelope) {
	if r := recover(); r != nil {
		logger.Component("ingest").Error("recovered from panic handling envelope", "panic", fmt.Sprintf("%v", r))
		l.issues.Report(ctx, models.Issue{
			Title:       "panic in ingest envelope handler",
			Description: fmt.Sprintf("%v", r),
			Service:     "ingest",
			Priority:    models.PriorityHigh,
		})
	}
}

func (l *Loop) reportMalformed(ctx context.Context, env queue.Envelope, cause error) {
	logger.Component("ingest").Error("dropping malformed envelope", "error", cause.Error())

	if err := l.queue.Delete(ctx, env.ReceiptHandle); err != nil {
		logger.Component("ingest").Error("failed to delete malformed envelope", "error", err.Error())
	}

	l.issues.Report(ctx, models.Issue{
		Title:       "malformed warmup queue envelope",
		Description: cause.Error(),
		Service:     "ingest",
		Priority:    models.PriorityLow,
	})
}
