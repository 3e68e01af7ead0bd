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

// Mailclerk — Distribution Command
//
// Queues a piece of content for posting to social platforms. Without a
// Redis URL configured the prepared manifest is printed instead of
// queued, which doubles as a dry run.
//
// Usage:
//
//	go run ./cmd/distribute/ --content "Case update..." [--title "Update"] [--platforms twitter,discord]
//	go run ./cmd/distribute/ --file announcement.txt
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/mailclerk/automation/internal/config"
	"github.com/mailclerk/automation/internal/distribution"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	_ = godotenv.Load()

	// --- CLI Flags ---
	contentFlag := flag.String("content", "", "Content to distribute")
	fileFlag := flag.String("file", "", "Read content from a file instead of --content")
	titleFlag := flag.String("title", "", "Optional title; also renders web publishing formats")
	platformsFlag := flag.String("platforms", "", "Comma-separated platform subset (default: all)")
	flag.Parse()

	content := *contentFlag
	if *fileFlag != "" {
		data, err := os.ReadFile(*fileFlag)
		if err != nil {
			slog.Error("failed to read content file", "path", *fileFlag, "error", err)
			os.Exit(1)
		}
		content = strings.TrimSpace(string(data))
	}
	if content == "" {
		fmt.Fprintf(os.Stderr, "Error: --content or --file is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	var platforms []string
	if *platformsFlag != "" {
		for _, p := range strings.Split(*platformsFlag, ",") {
			p = strings.TrimSpace(strings.ToLower(p))
			if p != "" {
				platforms = append(platforms, p)
			}
		}
	}

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Build Manifest ---
	manifest := distribution.NewManifest(content, platforms)
	slog.Info("manifest prepared",
		"manifest_id", manifest.ID,
		"platforms", manifest.Platforms,
		"content_hash", manifest.ContentHash,
	)

	if *titleFlag != "" {
		doc := distribution.NewWebDocument(*titleFlag, content)
		out, _ := json.MarshalIndent(doc, "", "  ")
		fmt.Println(string(out))
	}

	// --- Queue or dry-run ---
	if cfg.RedisURL == "" {
		slog.Info("no REDIS_URL configured, dry run only")
		out, _ := json.MarshalIndent(manifest, "", "  ")
		fmt.Println(string(out))
		return
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	publisher := distribution.NewPublisher(rdb, cfg.DistributionQueue)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	if err := publisher.Publish(ctx, manifest); err != nil {
		slog.Error("failed to queue manifest", "error", err)
		os.Exit(1)
	}

	slog.Info("manifest queued", "queue", cfg.DistributionQueue)
}
