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

// Package dashboard exposes the JSON control API: bot status and
// lifecycle, audit log queries, statistics, and runtime settings.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mailclerk/automation/internal/audit"
	"github.com/mailclerk/automation/internal/bot"
	"github.com/mailclerk/automation/internal/config"
)

// defaultLogLimit caps /api/logs responses when the caller gives no limit.
const defaultLogLimit = 100

// Handler serves the dashboard API.
type Handler struct {
	// baseCtx outlives individual requests; bot starts triggered over
	// HTTP must not die with the request context.
	baseCtx      context.Context
	runner       *bot.Runner
	log          *audit.Store
	settingsPath string
}

// NewHandler creates a dashboard handler.
func NewHandler(baseCtx context.Context, runner *bot.Runner, log *audit.Store, settingsPath string) *Handler {
	return &Handler{
		baseCtx:      baseCtx,
		runner:       runner,
		log:          log,
		settingsPath: settingsPath,
	}
}

// Routes returns the API mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.serveHealth)
	mux.HandleFunc("/api/status", h.serveStatus)
	mux.HandleFunc("/api/logs", h.serveLogs)
	mux.HandleFunc("/api/statistics", h.serveStatistics)
	mux.HandleFunc("/api/bot/start", h.serveBotStart)
	mux.HandleFunc("/api/bot/stop", h.serveBotStop)
	mux.HandleFunc("/api/bot/process-now", h.serveProcessNow)
	mux.HandleFunc("/api/config", h.serveConfig)
	return mux
}

func (h *Handler) serveHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) serveStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bot_state": h.runner.State(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) serveLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	category := r.URL.Query().Get("category")

	entries, total, err := h.log.Query(category, limit)
	if err != nil {
		slog.Error("audit log query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read audit log")
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"logs":  entries,
		"total": total,
	})
}

func (h *Handler) serveStatistics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	stats, err := h.log.Stats()
	if err != nil {
		slog.Error("audit log stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read audit log")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) serveBotStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	if err := h.runner.Start(h.baseCtx); err != nil {
		if errors.Is(err, bot.ErrAlreadyRunning) {
			writeError(w, http.StatusBadRequest, "bot is already running")
			return
		}
		slog.Error("bot start failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	slog.Info("bot started via API")
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "bot started",
		"bot_state": h.runner.State(),
	})
}

func (h *Handler) serveBotStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	if err := h.runner.Stop(); err != nil {
		if errors.Is(err, bot.ErrNotRunning) {
			writeError(w, http.StatusBadRequest, "bot is not running")
			return
		}
		slog.Error("bot stop failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	slog.Info("bot stopped via API")
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "bot stopped",
		"bot_state": h.runner.State(),
	})
}

func (h *Handler) serveProcessNow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	if err := h.runner.ProcessOnce(r.Context()); err != nil {
		if errors.Is(err, bot.ErrNotConfigured) {
			writeError(w, http.StatusBadRequest, "mail provider is not configured")
			return
		}
		slog.Error("manual processing failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "processing complete",
		"bot_state": h.runner.State(),
	})
}

// serveConfig reads or updates runtime settings. Updates are persisted
// to disk and take effect the next time the bot is started.
func (h *Handler) serveConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		settings, err := config.LoadSettings(h.settingsPath)
		if err != nil {
			slog.Warn("settings file unreadable, serving defaults", "error", err)
		}
		writeJSON(w, http.StatusOK, settings)

	case http.MethodPost:
		current, err := config.LoadSettings(h.settingsPath)
		if err != nil {
			slog.Warn("settings file unreadable, updating from defaults", "error", err)
		}
		if err := json.NewDecoder(r.Body).Decode(&current); err != nil {
			writeError(w, http.StatusBadRequest, "invalid settings payload")
			return
		}
		if current.CheckInterval < 1 || current.MaxEmailsPerCheck < 1 {
			writeError(w, http.StatusBadRequest, "check_interval and max_emails_per_check must be positive")
			return
		}
		if err := config.SaveSettings(h.settingsPath, current); err != nil {
			slog.Error("failed to save settings", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
		slog.Info("settings updated via API",
			"check_interval", current.CheckInterval,
			"max_emails_per_check", current.MaxEmailsPerCheck,
			"auto_response_enabled", current.AutoResponseEnabled,
		)
		writeJSON(w, http.StatusOK, map[string]any{
			"message":  "settings saved, applied on next bot start",
			"settings": current,
		})

	default:
		methodNotAllowed(w)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
