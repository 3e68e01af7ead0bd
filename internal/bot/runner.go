// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package bot runs the poll/process cycle: fetch unread mail, classify
// each message, resolve a templated auto-response where the category
// warrants one, and record every decision in the audit log. One
// background loop runs cycles sequentially; a cycle finishes or fails
// before the next begins.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mailclerk/automation/internal/audit"
	"github.com/mailclerk/automation/internal/classify"
	"github.com/mailclerk/automation/internal/config"
	"github.com/mailclerk/automation/internal/models"
	"github.com/mailclerk/automation/internal/templates"
)

var (
	ErrAlreadyRunning = errors.New("bot is already running")
	ErrNotRunning     = errors.New("bot is not running")

	// ErrNotConfigured means the mail provider is absent; cycles are
	// skipped with a visible status flag rather than failing hard.
	ErrNotConfigured = errors.New("mail provider not configured")
)

// Provider is the mail provider consumed by the poll cycle.
type Provider interface {
	ListUnread(ctx context.Context, max int) ([]string, error)
	GetMessage(ctx context.Context, id string) (*models.InboundMessage, error)
	MarkProcessed(ctx context.Context, id string) error
}

// DedupFilter remembers processed message ids across cycles. Optional.
type DedupFilter interface {
	IsNew(ctx context.Context, messageID string) (bool, error)
	Forget(ctx context.Context, messageID string) error
}

// Archiver mirrors audit entries into secondary storage. Optional,
// best-effort; the log file stays authoritative.
type Archiver interface {
	Insert(ctx context.Context, e audit.Entry) error
}

// Config holds the runner's dependencies and behaviour.
type Config struct {
	Provider   Provider
	Classifier *classify.Classifier
	Log        *audit.Store
	Templates  *templates.Store
	Dedup      DedupFilter // optional
	Archive    Archiver    // optional
	Settings   config.Settings

	// ErrorBackoff is the wait after a failed cycle. Kept longer than
	// the poll interval so a persistent fault doesn't spin.
	ErrorBackoff time.Duration
}

// Runner owns the poll loop and its state.
type Runner struct {
	provider     Provider
	classifier   *classify.Classifier
	log          *audit.Store
	templates    *templates.Store
	dedup        DedupFilter
	archive      Archiver
	interval     time.Duration
	maxPerCheck  int
	autoRespond  bool
	errorBackoff time.Duration

	state *State

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a runner from the given configuration.
func NewRunner(cfg Config) *Runner {
	interval := time.Duration(cfg.Settings.CheckInterval) * time.Second
	backoff := cfg.ErrorBackoff
	if backoff <= interval {
		backoff = 2 * interval
	}

	r := &Runner{
		provider:     cfg.Provider,
		classifier:   cfg.Classifier,
		log:          cfg.Log,
		templates:    cfg.Templates,
		dedup:        cfg.Dedup,
		archive:      cfg.Archive,
		interval:     interval,
		maxPerCheck:  cfg.Settings.MaxEmailsPerCheck,
		autoRespond:  cfg.Settings.AutoResponseEnabled,
		errorBackoff: backoff,
		state:        NewState(),
	}

	// Surface the missing provider immediately instead of reporting
	// "stopped" until the first cycle runs.
	if r.provider == nil {
		r.state.setNotConfigured()
	}

	return r
}

// State returns a snapshot of the bot state.
func (r *Runner) State() Snapshot {
	return r.state.Snapshot()
}

// Start launches the background poll loop. The first cycle runs
// immediately. Returns ErrAlreadyRunning if the loop is active.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.state.markStarted()

	r.wg.Add(1)
	go r.loop(loopCtx)

	slog.Info("bot started",
		"interval", r.interval,
		"error_backoff", r.errorBackoff,
		"max_per_check", r.maxPerCheck,
		"auto_response", r.autoRespond,
	)
	return nil
}

// Stop cancels the loop and waits for an in-flight cycle to finish.
// Returns ErrNotRunning if the loop is not active.
func (r *Runner) Stop() error {
	r.mu.Lock()
	if r.cancel == nil {
		r.mu.Unlock()
		return ErrNotRunning
	}
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
	r.state.markStopped()
	slog.Info("bot stopped")
	return nil
}

// loop runs poll cycles until the context is cancelled. A failed cycle
// waits the error back-off instead of the normal interval; a missing
// provider just skips the cycle.
func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()

	for {
		delay := r.interval

		err := r.ProcessOnce(ctx)
		switch {
		case err == nil:
			// state updated inside ProcessOnce
		case errors.Is(err, ErrNotConfigured):
			slog.Warn("skipping poll cycle", "reason", err)
		case ctx.Err() != nil:
			return
		default:
			slog.Error("poll cycle failed", "error", err)
			r.state.cycleFailed()
			delay = r.errorBackoff
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// ProcessOnce runs a single poll cycle. The dashboard's process-now
// endpoint calls it directly. Failures for one message are contained to
// that message; an audit log write failure aborts the remainder of the
// batch since every later message would hit the same fault.
func (r *Runner) ProcessOnce(ctx context.Context) error {
	if r.provider == nil {
		r.state.setNotConfigured()
		return ErrNotConfigured
	}

	ids, err := r.provider.ListUnread(ctx, r.maxPerCheck)
	if err != nil {
		return fmt.Errorf("list unread: %w", err)
	}

	if len(ids) == 0 {
		slog.Debug("no unread messages")
		r.state.cycleDone(0)
		return nil
	}

	slog.Info("processing unread messages", "count", len(ids))

	processed, contained := 0, 0
	for _, id := range ids {
		if r.dedup != nil {
			isNew, err := r.dedup.IsNew(ctx, id)
			if err != nil {
				slog.Warn("dedup check failed, proceeding", "error", err)
			} else if !isNew {
				slog.Debug("skipping already-processed message", "message_id", id)
				continue
			}
		}

		msg, err := r.provider.GetMessage(ctx, id)
		if err != nil {
			slog.Error("fetch message failed", "message_id", id, "error", err)
			// Release the dedup mark; otherwise a transient fetch error
			// leaves the message marked seen and it is never retried
			// within the TTL window.
			if r.dedup != nil {
				if ferr := r.dedup.Forget(ctx, id); ferr != nil {
					slog.Warn("dedup rollback failed", "message_id", id, "error", ferr)
				}
			}
			contained++
			continue
		}
		if msg == nil {
			continue
		}

		category := r.classifier.Classify(*msg)

		action := "categorized_only: " + string(category)
		if r.autoRespond && r.sendAutoResponse(*msg, category) {
			action = "auto_response_sent: " + string(category)
		}

		entry, err := r.log.Append(*msg, category, action)
		if err != nil {
			// Release the dedup mark so the message is retried once the
			// log is writable again.
			if r.dedup != nil {
				if ferr := r.dedup.Forget(ctx, id); ferr != nil {
					slog.Warn("dedup rollback failed", "message_id", id, "error", ferr)
				}
			}
			r.state.addErrors(contained)
			return fmt.Errorf("append audit entry for %s: %w", id, err)
		}

		if r.archive != nil {
			if err := r.archive.Insert(ctx, *entry); err != nil {
				slog.Warn("audit archive insert failed",
					"incident_id", entry.IncidentID,
					"error", err,
				)
			}
		}

		if err := r.provider.MarkProcessed(ctx, id); err != nil {
			// At-least-once: the message may come back next cycle, and
			// classify+log are safe to repeat.
			slog.Warn("mark processed failed", "message_id", id, "error", err)
			contained++
		}

		processed++
		slog.Info("processed message",
			"message_id", id,
			"category", category,
			"incident_id", entry.IncidentID,
			"action", action,
		)
	}

	r.state.cycleDone(processed)
	r.state.addErrors(contained)
	return nil
}

// sendAutoResponse resolves the template for a category and records the
// intent to reply; delivery belongs to the mail provider. Returns false
// for categories with no mapped template and for missing template files.
func (r *Runner) sendAutoResponse(msg models.InboundMessage, category models.Category) bool {
	name, ok := r.templates.ForCategory(category)
	if !ok {
		return false
	}

	body, err := r.templates.Load(name)
	if err != nil {
		slog.Warn("response template missing, skipping auto-response",
			"template", name,
			"category", category,
			"error", err,
		)
		return false
	}

	slog.Info("auto-response prepared",
		"template", name,
		"recipient", msg.From,
		"in_reply_to", msg.Subject,
		"body_bytes", len(body),
	)
	return true
}
