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

// Mailclerk — mailbox automation service
//
// Entry point for the classification service. It:
//  1. Loads configuration, settings, and the media domain list
//  2. Connects to optional backing services (Redis dedup, Postgres archive)
//  3. Builds the Gmail client from OAuth credential files
//  4. Starts the polling bot (unless autostart is disabled)
//  5. Serves the dashboard API
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/mailclerk/automation/internal/archive"
	"github.com/mailclerk/automation/internal/audit"
	"github.com/mailclerk/automation/internal/bot"
	"github.com/mailclerk/automation/internal/classify"
	"github.com/mailclerk/automation/internal/config"
	"github.com/mailclerk/automation/internal/dashboard"
	"github.com/mailclerk/automation/internal/dedup"
	"github.com/mailclerk/automation/internal/gmail"
	"github.com/mailclerk/automation/internal/templates"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	slog.Info("starting mailclerk automation service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	settings, err := config.LoadSettings(cfg.SettingsPath)
	if err != nil {
		slog.Warn("settings file unreadable, using defaults", "error", err)
	}

	mediaDomains, err := config.LoadMediaDomains(cfg.MediaListPath)
	if err != nil {
		slog.Warn("media list unreadable, media classification disabled", "error", err)
	}

	slog.Info("configuration loaded",
		"check_interval", settings.CheckInterval,
		"max_per_check", settings.MaxEmailsPerCheck,
		"auto_response", settings.AutoResponseEnabled,
		"media_domains", len(mediaDomains),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Optional: Redis (dedup + distribution queue) ---
	var rdb *redis.Client
	var filter bot.DedupFilter
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unreachable, running without dedup", "error", err)
			rdb.Close()
			rdb = nil
		} else {
			filter = dedup.NewFilter(rdb)
			slog.Info("connected to Redis")
		}
	}

	// --- Optional: Postgres (audit archive mirror) ---
	var pgPool *pgxpool.Pool
	var archiver bot.Archiver
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to create Postgres pool", "error", err)
			os.Exit(1)
		}
		if err := pool.Ping(ctx); err != nil {
			slog.Warn("postgres unreachable, running without archive", "error", err)
			pool.Close()
		} else {
			store, err := archive.NewStore(ctx, pool)
			if err != nil {
				slog.Warn("archive init failed, running without archive", "error", err)
				pool.Close()
			} else {
				pgPool = pool
				archiver = store
				slog.Info("connected to PostgreSQL")
			}
		}
	}

	// --- Gmail Client ---
	// A missing credential or token file is not fatal: the service comes
	// up with the dashboard available and the bot reporting not_configured.
	var provider bot.Provider
	client, err := gmail.NewClientFromFiles(ctx, cfg.CredentialsPath, cfg.TokenPath)
	switch {
	case err == nil:
		provider = client
		slog.Info("gmail client ready")
	case errors.Is(err, gmail.ErrNotConfigured):
		slog.Warn("gmail credentials not found, bot will be inactive", "error", err)
	default:
		slog.Error("failed to build gmail client", "error", err)
		os.Exit(1)
	}

	// --- Core components ---
	auditLog := audit.NewStore(cfg.AuditLogPath)
	runner := bot.NewRunner(bot.Config{
		Provider:     provider,
		Classifier:   classify.New(mediaDomains),
		Log:          auditLog,
		Templates:    templates.NewStore(cfg.TemplatesDir),
		Dedup:        filter,
		Archive:      archiver,
		Settings:     settings,
		ErrorBackoff: cfg.ErrorBackoff,
	})

	if cfg.Autostart && provider != nil {
		if err := runner.Start(ctx); err != nil {
			slog.Error("failed to start bot", "error", err)
			os.Exit(1)
		}
		slog.Info("bot started")
	}

	// --- Dashboard Server ---
	handler := dashboard.NewHandler(ctx, runner, auditLog, cfg.SettingsPath)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)

		if err := runner.Stop(); err != nil && !errors.Is(err, bot.ErrNotRunning) {
			slog.Error("bot stop error", "error", err)
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}

		if rdb != nil {
			rdb.Close()
		}
		if pgPool != nil {
			pgPool.Close()
		}
	}()

	slog.Info("dashboard listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("mailclerk automation service stopped")
}
