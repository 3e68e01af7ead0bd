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

// Package backfill classifies and logs historical messages that predate
// the live poller. Unlike the live cycle it never touches message labels,
// so a backfill run leaves the mailbox exactly as it found it.
package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mailclerk/automation/internal/audit"
	"github.com/mailclerk/automation/internal/classify"
	"github.com/mailclerk/automation/internal/models"
)

// Provider lists and fetches historical messages.
type Provider interface {
	List(ctx context.Context, query string, max int) ([]string, error)
	GetMessage(ctx context.Context, id string) (*models.InboundMessage, error)
}

// DedupFilter skips messages a previous run already handled.
type DedupFilter interface {
	IsNew(ctx context.Context, messageID string) (bool, error)
}

// Result summarises a completed backfill run.
type Result struct {
	Processed int
	Skipped   int
	Errors    int
	Elapsed   time.Duration
}

// Runner performs historical classification runs.
type Runner struct {
	provider   Provider
	classifier *classify.Classifier
	log        *audit.Store
	dedup      DedupFilter
}

// RunnerConfig holds dependencies for the backfill runner.
type RunnerConfig struct {
	Provider   Provider
	Classifier *classify.Classifier
	Log        *audit.Store
	Dedup      DedupFilter
}

// NewRunner creates a backfill runner.
func NewRunner(cfg RunnerConfig) *Runner {
	return &Runner{
		provider:   cfg.Provider,
		classifier: cfg.Classifier,
		log:        cfg.Log,
		dedup:      cfg.Dedup,
	}
}

// Run lists messages matching query, classifies each, and appends audit
// entries. Individual message failures are counted and skipped; an audit
// write failure aborts the run since later entries would be pointless
// without it.
func (r *Runner) Run(ctx context.Context, query string, max int) (*Result, error) {
	start := time.Now()

	slog.Info("starting backfill", "query", query, "max", max)

	ids, err := r.provider.List(ctx, query, max)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	result := &Result{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if r.dedup != nil {
			fresh, err := r.dedup.IsNew(ctx, "backfill:"+id)
			if err != nil {
				slog.Warn("dedup check failed, processing anyway", "message_id", id, "error", err)
			} else if !fresh {
				result.Skipped++
				continue
			}
		}

		msg, err := r.provider.GetMessage(ctx, id)
		if err != nil {
			slog.Error("fetch failed", "message_id", id, "error", err)
			result.Errors++
			continue
		}
		if msg == nil {
			result.Skipped++
			continue
		}

		category := r.classifier.Classify(*msg)
		action := fmt.Sprintf("backfill_categorized: %s", category)

		if _, err := r.log.Append(*msg, category, action); err != nil {
			result.Errors++
			return result, fmt.Errorf("append audit entry: %w", err)
		}
		result.Processed++
	}

	result.Elapsed = time.Since(start)

	slog.Info("backfill complete",
		"processed", result.Processed,
		"skipped", result.Skipped,
		"errors", result.Errors,
		"elapsed", result.Elapsed.Round(time.Millisecond),
	)

	return result, nil
}
