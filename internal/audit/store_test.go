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

package audit

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mailclerk/automation/internal/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "audit_log.json"))
}

func testMessage(id string) models.InboundMessage {
	return models.InboundMessage{
		ID:      id,
		Subject: "Subject " + id,
		From:    "sender@example.com",
		Snippet: "snippet",
	}
}

// TestAppend_Monotonic verifies that after N appends, ReadAll returns
// exactly N entries in append order.
func TestAppend_Monotonic(t *testing.T) {
	s := testStore(t)

	const n = 5
	for i := 0; i < n; i++ {
		if _, err := s.Append(testMessage(fmt.Sprintf("msg-%d", i)), models.CategoryUnknown, "categorized_only: Unknown"); err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
	}

	entries, err := s.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(entries) != n {
		t.Fatalf("got %d entries, want %d", len(entries), n)
	}
	for i, e := range entries {
		want := fmt.Sprintf("msg-%d", i)
		if e.Details.MessageID != want {
			t.Errorf("entry %d message id = %q, want %q", i, e.Details.MessageID, want)
		}
	}
}

// TestAppend_SurvivesReopen verifies a fresh store over the same file
// sees existing entries and keeps extending the sequence.
func TestAppend_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit_log.json")

	s1 := NewStore(path)
	for i := 0; i < 3; i++ {
		if _, err := s1.Append(testMessage(fmt.Sprintf("a-%d", i)), models.CategoryLegal, "auto_response_sent: Legal"); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	s2 := NewStore(path)
	entries, err := s2.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll after reopen failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("after reopen: got %d entries, want 3", len(entries))
	}

	if _, err := s2.Append(testMessage("a-3"), models.CategoryLegal, "auto_response_sent: Legal"); err != nil {
		t.Fatalf("append after reopen failed: %v", err)
	}
	entries, _ = s2.ReadAll()
	if len(entries) != 4 {
		t.Fatalf("after reopen append: got %d entries, want 4", len(entries))
	}
	if entries[0].Details.MessageID != "a-0" {
		t.Errorf("existing entries were reordered: first = %q", entries[0].Details.MessageID)
	}
}

// TestIncidentID_SequencePerDay verifies the incident id sequence is
// derived from the same-day entry count.
func TestIncidentID_SequencePerDay(t *testing.T) {
	s := testStore(t)

	day1 := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return day1 }

	e1, err := s.Append(testMessage("m1"), models.CategoryUnknown, "categorized_only: Unknown")
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if e1.IncidentID != "SL-2026-0830-001" {
		t.Errorf("first incident id = %q, want SL-2026-0830-001", e1.IncidentID)
	}

	e2, _ := s.Append(testMessage("m2"), models.CategoryUnknown, "categorized_only: Unknown")
	if e2.IncidentID != "SL-2026-0830-002" {
		t.Errorf("second incident id = %q, want SL-2026-0830-002", e2.IncidentID)
	}

	// Sequence resets on a new UTC date
	s.now = func() time.Time { return day1.Add(24 * time.Hour) }
	e3, _ := s.Append(testMessage("m3"), models.CategoryUnknown, "categorized_only: Unknown")
	if e3.IncidentID != "SL-2026-0831-001" {
		t.Errorf("next day incident id = %q, want SL-2026-0831-001", e3.IncidentID)
	}
}

// TestAppend_SameMessageTwice verifies idempotent re-processing: a second
// append for the same message id neither fails nor corrupts the log.
func TestAppend_SameMessageTwice(t *testing.T) {
	s := testStore(t)

	msg := testMessage("dup-1")
	if _, err := s.Append(msg, models.CategoryVendor, "categorized_only: Vendor"); err != nil {
		t.Fatalf("first append failed: %v", err)
	}
	if _, err := s.Append(msg, models.CategoryVendor, "categorized_only: Vendor"); err != nil {
		t.Fatalf("second append failed: %v", err)
	}

	entries, err := s.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].EvidenceHash != entries[1].EvidenceHash {
		t.Errorf("same message produced different evidence hashes: %q vs %q",
			entries[0].EvidenceHash, entries[1].EvidenceHash)
	}
}

// TestEvidenceHash verifies the fingerprint is stable, 12 hex chars, and
// sensitive to content.
func TestEvidenceHash(t *testing.T) {
	msg := testMessage("h-1")

	h1 := EvidenceHash(msg)
	h2 := EvidenceHash(msg)
	if h1 != h2 {
		t.Errorf("hash not deterministic: %q vs %q", h1, h2)
	}
	if len(h1) != 12 {
		t.Errorf("hash length = %d, want 12", len(h1))
	}
	for _, r := range h1 {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			t.Errorf("hash %q contains non-hex character %q", h1, r)
		}
	}

	other := msg
	other.Subject = "different"
	if EvidenceHash(other) == h1 {
		t.Error("different content produced the same hash")
	}
}

// TestQuery_FilterLimitOrder verifies category filtering, last-N limiting,
// and most-recent-first ordering.
func TestQuery_FilterLimitOrder(t *testing.T) {
	s := testStore(t)

	for i := 0; i < 4; i++ {
		s.Append(testMessage(fmt.Sprintf("l-%d", i)), models.CategoryLegal, "auto_response_sent: Legal")
	}
	for i := 0; i < 2; i++ {
		s.Append(testMessage(fmt.Sprintf("v-%d", i)), models.CategoryVendor, "categorized_only: Vendor")
	}

	entries, total, err := s.Query("Legal", 2)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if total != 4 {
		t.Errorf("total = %d, want 4", total)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	// Most recent first: the last Legal append comes back first
	if entries[0].Details.MessageID != "l-3" {
		t.Errorf("first entry = %q, want l-3", entries[0].Details.MessageID)
	}
	if entries[1].Details.MessageID != "l-2" {
		t.Errorf("second entry = %q, want l-2", entries[1].Details.MessageID)
	}

	// "all" and "" mean no filter
	entries, total, _ = s.Query("all", 0)
	if total != 6 || len(entries) != 6 {
		t.Errorf(`Query("all") = %d entries, total %d, want 6/6`, len(entries), total)
	}
	entries, _, _ = s.Query("", 0)
	if len(entries) != 6 {
		t.Errorf(`Query("") = %d entries, want 6`, len(entries))
	}
}

// TestStats verifies per-category and per-date counts and recent activity.
func TestStats(t *testing.T) {
	s := testStore(t)
	s.now = func() time.Time { return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC) }

	s.Append(testMessage("s-1"), models.CategoryLegal, "auto_response_sent: Legal")
	s.Append(testMessage("s-2"), models.CategoryLegal, "auto_response_sent: Legal")
	s.Append(testMessage("s-3"), models.CategoryMedia, "auto_response_sent: Media")

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("total = %d, want 3", stats.Total)
	}
	if stats.ByCategory["Legal"] != 2 || stats.ByCategory["Media"] != 1 {
		t.Errorf("by_category = %v", stats.ByCategory)
	}
	if stats.ByDate["2026-08-30"] != 3 {
		t.Errorf("by_date = %v", stats.ByDate)
	}
	if len(stats.RecentActivity) != 3 {
		t.Fatalf("recent activity = %d entries, want 3", len(stats.RecentActivity))
	}
	if stats.RecentActivity[0].Details.MessageID != "s-3" {
		t.Errorf("recent activity not most-recent-first: %q", stats.RecentActivity[0].Details.MessageID)
	}
}

// TestReadAll_MissingFile verifies a missing log reads as empty.
func TestReadAll_MissingFile(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "does-not-exist.json"))

	entries, err := s.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll on missing file failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries, want 0", len(entries))
	}
}

// TestWrite_FileIsJSONArray verifies the on-disk format consumed by the
// dashboard: a pretty-printed JSON array, with no temp files left behind.
func TestWrite_FileIsJSONArray(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "audit_log.json"))

	if _, err := s.Append(testMessage("f-1"), models.CategoryUnknown, "categorized_only: Unknown"); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		t.Errorf("log file is not a JSON array: %q", string(trimmed[:min(len(trimmed), 20)]))
	}
	if !bytes.Contains(data, []byte("\n  ")) {
		t.Error("log file is not pretty-printed")
	}

	files, _ := os.ReadDir(dir)
	if len(files) != 1 {
		t.Errorf("expected only the log file in dir, found %d files", len(files))
	}
}
