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

// Package config loads service configuration from config.yaml and
// environment variables, and the operator-editable bot settings JSON.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all deployment-level configuration for the service.
// A missing config.yaml is not an error; every field has a default.
type Config struct {
	// Dashboard HTTP server
	Port int

	// On-disk state
	AuditLogPath  string
	MediaListPath string
	TemplatesDir  string
	SettingsPath  string

	// Gmail credentials
	CredentialsPath string
	TokenPath       string

	// Optional backing services. Empty means the corresponding feature
	// (dedup, distribution queue, audit archive) is disabled.
	RedisURL          string
	DatabaseURL       string
	DistributionQueue string

	// Poll loop behaviour
	ErrorBackoff time.Duration
	Autostart    bool
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Paths struct {
		AuditLog  string `yaml:"audit_log"`
		MediaList string `yaml:"media_list"`
		Templates string `yaml:"templates"`
		Settings  string `yaml:"settings"`
	} `yaml:"paths"`
	Gmail struct {
		Credentials string `yaml:"credentials"`
		Token       string `yaml:"token"`
	} `yaml:"gmail"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Distribution string `yaml:"distribution"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables. An absent file falls back to defaults; only an
// unreadable or unparseable file is an error.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "config/config.yaml")

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	case os.IsNotExist(err):
		// Defaults only
	default:
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	cfg := &Config{
		Port:              firstNonZero(raw.Server.Port, envOrDefaultInt("PORT", 8080)),
		AuditLogPath:      firstNonEmpty(raw.Paths.AuditLog, envOrDefault("AUDIT_LOG_PATH", "data/audit_log.json")),
		MediaListPath:     firstNonEmpty(raw.Paths.MediaList, envOrDefault("MEDIA_LIST_PATH", "config/media_list.txt")),
		TemplatesDir:      firstNonEmpty(raw.Paths.Templates, envOrDefault("TEMPLATES_DIR", "templates/email")),
		SettingsPath:      firstNonEmpty(raw.Paths.Settings, envOrDefault("SETTINGS_PATH", "config/email_config.json")),
		CredentialsPath:   firstNonEmpty(raw.Gmail.Credentials, envOrDefault("GMAIL_CREDENTIALS_PATH", "credentials.json")),
		TokenPath:         firstNonEmpty(raw.Gmail.Token, envOrDefault("GMAIL_TOKEN_PATH", "token.json")),
		RedisURL:          firstNonEmpty(raw.Redis.URL, os.Getenv("REDIS_URL")),
		DatabaseURL:       firstNonEmpty(raw.Postgres.URL, os.Getenv("DATABASE_URL")),
		DistributionQueue: firstNonEmpty(raw.Redis.Queues.Distribution, envOrDefault("DISTRIBUTION_QUEUE", "distribution")),
		ErrorBackoff:      envOrDefaultDuration("ERROR_BACKOFF", 10*time.Minute),
		Autostart:         envOrDefaultBool("BOT_AUTOSTART", true),
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
