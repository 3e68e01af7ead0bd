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

// Package audit provides the append-only log of classification decisions.
// The log is a single pretty-printed JSON array on disk; every write
// replaces the whole file via temp-file + rename so a crash mid-write
// never corrupts entries already on disk. Appended entries are never
// modified or deleted.
package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mailclerk/automation/internal/models"
)

const (
	// Source and EventType are fixed for entries produced by the email path.
	Source    = "email"
	EventType = "inbound_email"

	incidentPrefix = "SL"
	recentCount    = 10
)

// Details carries the message-level fields of an audit entry.
type Details struct {
	From        string `json:"from"`
	Subject     string `json:"subject"`
	MessageID   string `json:"message_id"`
	ActionTaken string `json:"action_taken"`
}

// Entry is one persisted audit record.
type Entry struct {
	IncidentID   string  `json:"incident_id"`
	Timestamp    string  `json:"timestamp"` // UTC, RFC 3339 with trailing Z
	Source       string  `json:"source"`
	EventType    string  `json:"event_type"`
	Category     string  `json:"category"`
	Details      Details `json:"details"`
	EvidenceHash string  `json:"evidence_hash"`
}

// Stats summarises the log for the dashboard.
type Stats struct {
	Total          int            `json:"total"`
	ByCategory     map[string]int `json:"by_category"`
	ByDate         map[string]int `json:"by_date"`
	RecentActivity []Entry        `json:"recent_activity"`
}

// Store is the audit log backed by a single JSON file. Writers serialize
// on the store's mutex; readers go straight to the file and rely on the
// atomic replace, so they may transiently miss the newest entry but never
// see a partial write.
type Store struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewStore creates a store for the given log file path. The file is
// created on first append.
func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Append records one classification decision. On return the entry is
// durably part of the log and visible to every subsequent read. Appending
// twice for the same message id is safe; each append gets its own entry
// and incident id.
func (s *Store) Append(msg models.InboundMessage, category models.Category, action string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	entry := Entry{
		IncidentID: nextIncidentID(entries, now),
		Timestamp:  now.Format(time.RFC3339),
		Source:     Source,
		EventType:  EventType,
		Category:   string(category),
		Details: Details{
			From:        msg.From,
			Subject:     msg.Subject,
			MessageID:   msg.ID,
			ActionTaken: action,
		},
		EvidenceHash: EvidenceHash(msg),
	}

	entries = append(entries, entry)
	if err := s.write(entries); err != nil {
		return nil, err
	}

	return &entry, nil
}

// ReadAll returns every entry in append order.
func (s *Store) ReadAll() ([]Entry, error) {
	return s.load()
}

// Query returns up to limit entries, most recent first, optionally
// filtered by exact category match ("" or "all" means no filter). The
// returned total is the match count before the limit is applied.
func (s *Store) Query(category string, limit int) ([]Entry, int, error) {
	entries, err := s.load()
	if err != nil {
		return nil, 0, err
	}

	if category != "" && category != "all" {
		filtered := entries[:0:0]
		for _, e := range entries {
			if e.Category == category {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	total := len(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	reverse(entries)
	return entries, total, nil
}

// Stats computes processing statistics over the whole log.
func (s *Store) Stats() (*Stats, error) {
	entries, err := s.load()
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Total:          len(entries),
		ByCategory:     make(map[string]int),
		ByDate:         make(map[string]int),
		RecentActivity: []Entry{},
	}

	for _, e := range entries {
		category := e.Category
		if category == "" {
			category = string(models.CategoryUnknown)
		}
		stats.ByCategory[category]++
		stats.ByDate[entryDate(e)]++
	}

	recent := entries
	if len(recent) > recentCount {
		recent = recent[len(recent)-recentCount:]
	}
	recent = append([]Entry(nil), recent...)
	reverse(recent)
	stats.RecentActivity = recent

	return stats, nil
}

// load reads and parses the whole log. A missing or empty file is an
// empty log, not an error.
func (s *Store) load() ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse audit log: %w", err)
	}
	return entries, nil
}

// write replaces the log atomically: marshal the full array, write it to
// a temp file in the same directory, fsync, then rename over the old
// file. Readers either see the old array or the new one, never a
// truncated file.
func (s *Store) write(entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal audit log: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create audit log dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".audit-*.json")
	if err != nil {
		return fmt.Errorf("create temp audit log: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp audit log: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp audit log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp audit log: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace audit log: %w", err)
	}
	return nil
}

// nextIncidentID builds an id of the form SL-YYYY-MMDD-NNN, where NNN is
// derived from how many entries were already logged on the same UTC date.
// Unique per day for a single log file only.
func nextIncidentID(entries []Entry, now time.Time) string {
	prefix := fmt.Sprintf("%s-%s-", incidentPrefix, now.Format("2006-0102"))
	seq := 1
	for _, e := range entries {
		if strings.HasPrefix(e.IncidentID, prefix) {
			seq++
		}
	}
	return fmt.Sprintf("%s%03d", prefix, seq)
}

// EvidenceHash fingerprints a message: SHA-256 over its sorted-key JSON
// serialisation, truncated to 12 hex characters. Collisions are
// acceptable for a fingerprint at this length; this is tamper-evidence,
// not cryptographic non-repudiation.
func EvidenceHash(msg models.InboundMessage) string {
	canonical := map[string]string{
		"from":     msg.From,
		"id":       msg.ID,
		"snippet":  msg.Snippet,
		"subject":  msg.Subject,
		"threadId": msg.ThreadID,
	}
	// Map keys marshal in sorted order, which makes the serialisation canonical.
	data, _ := json.Marshal(canonical)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:12]
}

func entryDate(e Entry) string {
	if i := strings.Index(e.Timestamp, "T"); i > 0 {
		return e.Timestamp[:i]
	}
	return "Unknown"
}

func reverse(entries []Entry) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}
