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

// Mailclerk — Historical Backfill Command
//
// Standalone CLI tool that classifies historical emails and appends them
// to the audit log. Messages are never marked as read, so a backfill run
// is safe against a live mailbox.
//
// Usage:
//
//	go run ./cmd/backfill/ [--query "newer_than:30d"] [--max 500]
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/mailclerk/automation/internal/audit"
	"github.com/mailclerk/automation/internal/backfill"
	"github.com/mailclerk/automation/internal/classify"
	"github.com/mailclerk/automation/internal/config"
	"github.com/mailclerk/automation/internal/dedup"
	"github.com/mailclerk/automation/internal/gmail"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	_ = godotenv.Load()

	// --- CLI Flags ---
	queryFlag := flag.String("query", "newer_than:7d", "Gmail search query scoping the backfill")
	maxFlag := flag.Int("max", 500, "Maximum number of messages to process")
	flag.Parse()

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	mediaDomains, err := config.LoadMediaDomains(cfg.MediaListPath)
	if err != nil {
		slog.Warn("media list unreadable, media classification disabled", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Gmail Client (required for backfill) ---
	client, err := gmail.NewClientFromFiles(ctx, cfg.CredentialsPath, cfg.TokenPath)
	if err != nil {
		slog.Error("gmail client unavailable, cannot backfill", "error", err)
		os.Exit(1)
	}

	// --- Optional: Redis dedup ---
	var filter backfill.DedupFilter
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unreachable, backfill may reprocess messages", "error", err)
		} else {
			filter = dedup.NewFilter(rdb)
			slog.Info("connected to Redis")
		}
	}

	// --- Run Backfill ---
	runner := backfill.NewRunner(backfill.RunnerConfig{
		Provider:   client,
		Classifier: classify.New(mediaDomains),
		Log:        audit.NewStore(cfg.AuditLogPath),
		Dedup:      filter,
	})

	result, err := runner.Run(ctx, *queryFlag, *maxFlag)
	if err != nil {
		slog.Error("backfill failed", "error", err)
		os.Exit(1)
	}

	slog.Info("backfill complete",
		"processed", result.Processed,
		"skipped", result.Skipped,
		"errors", result.Errors,
		"elapsed", result.Elapsed,
	)
}
