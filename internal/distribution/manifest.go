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

// Package distribution prepares outbound announcements for social
// platforms and the web. A manifest carries one piece of content with
// per-platform renditions; posting workers consume manifests from the
// Redis queue.
package distribution

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Platform character limits. Zero means unlimited.
var platformLimits = map[string]int{
	"twitter":  280,
	"linkedin": 3000,
	"telegram": 0,
	"discord":  2000,
	"mastodon": 500,
}

// DefaultPlatforms is the posting order used when the caller does not
// pick a subset.
var DefaultPlatforms = []string{"twitter", "linkedin", "telegram", "discord", "mastodon"}

// Manifest describes one piece of content queued for distribution.
type Manifest struct {
	ID          string            `json:"id"`
	Content     string            `json:"content"`
	Timestamp   string            `json:"timestamp"`
	Platforms   []string          `json:"platforms"`
	Status      map[string]string `json:"status"`
	Formatted   map[string]string `json:"formatted"`
	ContentHash string            `json:"content_hash"`
}

// NewManifest builds a manifest with every platform rendition prepared
// and status "pending". An empty platform list means all defaults.
func NewManifest(content string, platforms []string) *Manifest {
	if len(platforms) == 0 {
		platforms = DefaultPlatforms
	}

	m := &Manifest{
		ID:          uuid.New().String(),
		Content:     content,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Platforms:   platforms,
		Status:      make(map[string]string, len(platforms)),
		Formatted:   make(map[string]string, len(platforms)),
		ContentHash: contentHash(content),
	}
	for _, p := range platforms {
		m.Status[p] = "pending"
		m.Formatted[p] = FormatForPlatform(content, p)
	}
	return m
}

// FormatForPlatform truncates content to the platform's character limit,
// appending an ellipsis when cut. Unknown platforms pass through as-is.
func FormatForPlatform(content, platform string) string {
	limit, ok := platformLimits[platform]
	if !ok || limit == 0 {
		return content
	}
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit-3]) + "..."
}

// WebDocument is a piece of content rendered for web publishing in
// several formats at once.
type WebDocument struct {
	Title     string            `json:"title"`
	Timestamp string            `json:"timestamp"`
	Formats   map[string]string `json:"formats"`
}

// NewWebDocument renders content as markdown, html, and json fragments.
func NewWebDocument(title, content string) *WebDocument {
	ts := time.Now().UTC().Format(time.RFC3339)
	return &WebDocument{
		Title:     title,
		Timestamp: ts,
		Formats: map[string]string{
			"markdown": fmt.Sprintf("# %s\n\n%s\n\n_Published %s_\n", title, content, ts),
			"html":     fmt.Sprintf("<article><h1>%s</h1><p>%s</p><footer>Published %s</footer></article>", title, content, ts),
			"json":     mustJSON(map[string]string{"title": title, "content": content, "published": ts}),
		},
	}
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
