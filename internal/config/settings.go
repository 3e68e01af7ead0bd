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

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Settings is the operator-editable bot configuration, stored as a JSON
// file so the dashboard can read and update it. Changes take effect the
// next time the bot is started.
type Settings struct {
	AutoResponseEnabled bool `json:"auto_response_enabled"`
	CheckInterval       int  `json:"check_interval"` // seconds between poll cycles
	MaxEmailsPerCheck   int  `json:"max_emails_per_check"`
}

// DefaultSettings returns the settings used when no settings file exists.
func DefaultSettings() Settings {
	return Settings{
		AutoResponseEnabled: true,
		CheckInterval:       300,
		MaxEmailsPerCheck:   50,
	}
}

// LoadSettings reads the bot settings file. An absent file yields the
// defaults with no error; a malformed file yields the defaults and the
// parse error so the caller can log it.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return DefaultSettings(), fmt.Errorf("read settings %s: %w", path, err)
	}

	s := DefaultSettings()
	if err := json.Unmarshal(data, &s); err != nil {
		return DefaultSettings(), fmt.Errorf("parse settings %s: %w", path, err)
	}

	if s.CheckInterval <= 0 {
		s.CheckInterval = DefaultSettings().CheckInterval
	}
	if s.MaxEmailsPerCheck <= 0 {
		s.MaxEmailsPerCheck = DefaultSettings().MaxEmailsPerCheck
	}

	return s, nil
}

// SaveSettings writes the bot settings file, creating its directory if needed.
func SaveSettings(path string, s Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings dir: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write settings %s: %w", path, err)
	}
	return nil
}

// LoadMediaDomains reads the newline-delimited media domain list. Blank
// lines are ignored and entries are lowercased. An absent file yields an
// empty list with no error.
func LoadMediaDomains(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read media list %s: %w", path, err)
	}

	var domains []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.ToLower(strings.TrimSpace(line))
		if line != "" {
			domains = append(domains, line)
		}
	}
	return domains, nil
}
