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

package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/mailclerk/automation/internal/audit"
	"github.com/mailclerk/automation/internal/classify"
	"github.com/mailclerk/automation/internal/config"
	"github.com/mailclerk/automation/internal/models"
	"github.com/mailclerk/automation/internal/templates"
)

// --- Fake provider ---

type fakeProvider struct {
	mu        sync.Mutex
	messages  map[string]models.InboundMessage
	order     []string
	processed []string

	failGet  map[string]bool
	failMark map[string]bool
	listErr  error
}

func newFakeProvider(msgs ...models.InboundMessage) *fakeProvider {
	p := &fakeProvider{
		messages: make(map[string]models.InboundMessage),
		failGet:  make(map[string]bool),
		failMark: make(map[string]bool),
	}
	for _, m := range msgs {
		p.messages[m.ID] = m
		p.order = append(p.order, m.ID)
	}
	return p
}

func (p *fakeProvider) ListUnread(_ context.Context, max int) ([]string, error) {
	if p.listErr != nil {
		return nil, p.listErr
	}
	ids := p.order
	if max > 0 && len(ids) > max {
		ids = ids[:max]
	}
	return append([]string(nil), ids...), nil
}

func (p *fakeProvider) GetMessage(_ context.Context, id string) (*models.InboundMessage, error) {
	if p.failGet[id] {
		return nil, errors.New("fetch failed")
	}
	m, ok := p.messages[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (p *fakeProvider) MarkProcessed(_ context.Context, id string) error {
	if p.failMark[id] {
		return errors.New("modify failed")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed = append(p.processed, id)
	return nil
}

// --- Fake dedup filter ---

type fakeDedup struct {
	seen      map[string]bool
	forgotten []string
}

func newFakeDedup() *fakeDedup {
	return &fakeDedup{seen: make(map[string]bool)}
}

func (d *fakeDedup) IsNew(_ context.Context, messageID string) (bool, error) {
	if d.seen[messageID] {
		return false, nil
	}
	d.seen[messageID] = true
	return true, nil
}

func (d *fakeDedup) Forget(_ context.Context, messageID string) error {
	delete(d.seen, messageID)
	d.forgotten = append(d.forgotten, messageID)
	return nil
}

// --- Helpers ---

func testRunner(t *testing.T, provider Provider, templateDir string) (*Runner, *audit.Store) {
	t.Helper()

	log := audit.NewStore(filepath.Join(t.TempDir(), "audit_log.json"))
	r := NewRunner(Config{
		Provider:   provider,
		Classifier: classify.New([]string{"knownmedia.com"}),
		Log:        log,
		Templates:  templates.NewStore(templateDir),
		Settings: config.Settings{
			AutoResponseEnabled: true,
			CheckInterval:       1,
			MaxEmailsPerCheck:   50,
		},
	})
	return r, log
}

func writeTemplates(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"FCRA-Initial-Guidance", "Media-Inquiry-Response", "Thank-You-Patron"} {
		if err := os.WriteFile(filepath.Join(dir, name+".txt"), []byte("canned reply"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// --- Tests ---

// TestProcessOnce_ClassifiesAndLogs verifies the full cycle: classify,
// respond, log, mark processed.
func TestProcessOnce_ClassifiesAndLogs(t *testing.T) {
	provider := newFakeProvider(
		models.InboundMessage{ID: "m-1", Subject: "FCRA Violation Inquiry", From: "user@example.com"},
		models.InboundMessage{ID: "m-2", Subject: "Random subject", From: "x@y.com"},
	)
	r, log := testRunner(t, provider, writeTemplates(t))

	if err := r.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("ProcessOnce failed: %v", err)
	}

	entries, err := log.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	if entries[0].Category != "Legal" {
		t.Errorf("first category = %q, want Legal", entries[0].Category)
	}
	if entries[0].Details.ActionTaken != "auto_response_sent: Legal" {
		t.Errorf("first action = %q", entries[0].Details.ActionTaken)
	}
	if entries[1].Category != "Unknown" {
		t.Errorf("second category = %q, want Unknown", entries[1].Category)
	}
	if entries[1].Details.ActionTaken != "categorized_only: Unknown" {
		t.Errorf("second action = %q", entries[1].Details.ActionTaken)
	}

	if len(provider.processed) != 2 {
		t.Errorf("marked processed = %v, want both messages", provider.processed)
	}

	snap := r.State()
	if snap.ProcessedCount != 2 {
		t.Errorf("processed count = %d, want 2", snap.ProcessedCount)
	}
	if snap.ErrorCount != 0 {
		t.Errorf("error count = %d, want 0", snap.ErrorCount)
	}
}

// TestProcessOnce_NotConfigured verifies the skip path without a provider.
func TestProcessOnce_NotConfigured(t *testing.T) {
	r, log := testRunner(t, nil, t.TempDir())

	err := r.ProcessOnce(context.Background())
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}

	if snap := r.State(); snap.Status != StatusNotConfigured {
		t.Errorf("status = %q, want %q", snap.Status, StatusNotConfigured)
	}

	entries, _ := log.ReadAll()
	if len(entries) != 0 {
		t.Errorf("got %d entries, want 0", len(entries))
	}
}

// TestProcessOnce_FetchFailureIsolated verifies one bad message doesn't
// stop the batch.
func TestProcessOnce_FetchFailureIsolated(t *testing.T) {
	provider := newFakeProvider(
		models.InboundMessage{ID: "bad", Subject: "whatever", From: "a@b.com"},
		models.InboundMessage{ID: "good", Subject: "Invoice for services", From: "billing@vendor.com"},
	)
	provider.failGet["bad"] = true
	r, log := testRunner(t, provider, t.TempDir())

	if err := r.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("ProcessOnce failed: %v", err)
	}

	entries, _ := log.ReadAll()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Details.MessageID != "good" {
		t.Errorf("logged message = %q, want good", entries[0].Details.MessageID)
	}

	snap := r.State()
	if snap.ErrorCount != 1 {
		t.Errorf("error count = %d, want 1", snap.ErrorCount)
	}
	if snap.ProcessedCount != 1 {
		t.Errorf("processed count = %d, want 1", snap.ProcessedCount)
	}
}

// TestProcessOnce_FetchFailureReleasesDedupMark verifies a transient
// fetch error does not leave the message marked seen: the mark is rolled
// back, and a later cycle classifies and logs the message.
func TestProcessOnce_FetchFailureReleasesDedupMark(t *testing.T) {
	provider := newFakeProvider(
		models.InboundMessage{ID: "flaky", Subject: "FCRA dispute", From: "user@example.com"},
	)
	provider.failGet["flaky"] = true
	dedup := newFakeDedup()

	log := audit.NewStore(filepath.Join(t.TempDir(), "audit_log.json"))
	r := NewRunner(Config{
		Provider:   provider,
		Classifier: classify.New(nil),
		Log:        log,
		Templates:  templates.NewStore(t.TempDir()),
		Dedup:      dedup,
		Settings: config.Settings{
			CheckInterval:     1,
			MaxEmailsPerCheck: 50,
		},
	})

	if err := r.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}
	if len(dedup.forgotten) != 1 || dedup.forgotten[0] != "flaky" {
		t.Fatalf("forgotten = %v, want the failed fetch rolled back", dedup.forgotten)
	}
	if dedup.seen["flaky"] {
		t.Fatal("message still marked seen after fetch failure")
	}

	// Fetch recovers; the next cycle must pick the message up.
	provider.failGet["flaky"] = false
	if err := r.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}

	entries, err := log.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries after recovery, want 1", len(entries))
	}
	if entries[0].Details.MessageID != "flaky" {
		t.Errorf("logged message = %q, want flaky", entries[0].Details.MessageID)
	}
}

// TestNewRunner_WithoutProvider verifies the missing-provider state is
// visible before any cycle has run.
func TestNewRunner_WithoutProvider(t *testing.T) {
	r, _ := testRunner(t, nil, t.TempDir())

	snap := r.State()
	if snap.Status != StatusNotConfigured {
		t.Errorf("status at construction = %q, want %q", snap.Status, StatusNotConfigured)
	}
	if snap.Running {
		t.Error("runner reported running before start")
	}
}

// TestProcessOnce_MarkFailureContinues verifies a mark-processed failure
// is contained: the entry is still logged and the cycle continues.
func TestProcessOnce_MarkFailureContinues(t *testing.T) {
	provider := newFakeProvider(
		models.InboundMessage{ID: "m-1", Subject: "hello", From: "a@b.com"},
		models.InboundMessage{ID: "m-2", Subject: "hi", From: "c@d.com"},
	)
	provider.failMark["m-1"] = true
	r, log := testRunner(t, provider, t.TempDir())

	if err := r.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("ProcessOnce failed: %v", err)
	}

	entries, _ := log.ReadAll()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2 (both should be logged)", len(entries))
	}
	if len(provider.processed) != 1 || provider.processed[0] != "m-2" {
		t.Errorf("marked processed = %v, want [m-2]", provider.processed)
	}

	if snap := r.State(); snap.ErrorCount != 1 {
		t.Errorf("error count = %d, want 1", snap.ErrorCount)
	}
}

// TestProcessOnce_MissingTemplate verifies a missing template file skips
// the response without a spurious "sent" action, while the message is
// still logged.
func TestProcessOnce_MissingTemplate(t *testing.T) {
	provider := newFakeProvider(
		models.InboundMessage{ID: "m-1", Subject: "Patreon subscription", From: "fan@example.com"},
	)
	// Empty template dir: Supporter maps to a template but the file is absent.
	r, log := testRunner(t, provider, t.TempDir())

	if err := r.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("ProcessOnce failed: %v", err)
	}

	entries, _ := log.ReadAll()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Category != "Supporter" {
		t.Errorf("category = %q, want Supporter", entries[0].Category)
	}
	if !strings.HasPrefix(entries[0].Details.ActionTaken, "categorized_only") {
		t.Errorf("action = %q, want categorized_only prefix", entries[0].Details.ActionTaken)
	}
}

// TestProcessOnce_AutoResponseDisabled verifies the settings switch.
func TestProcessOnce_AutoResponseDisabled(t *testing.T) {
	provider := newFakeProvider(
		models.InboundMessage{ID: "m-1", Subject: "FCRA dispute", From: "user@example.com"},
	)
	log := audit.NewStore(filepath.Join(t.TempDir(), "audit_log.json"))
	r := NewRunner(Config{
		Provider:   provider,
		Classifier: classify.New(nil),
		Log:        log,
		Templates:  templates.NewStore(writeTemplates(t)),
		Settings: config.Settings{
			AutoResponseEnabled: false,
			CheckInterval:       1,
			MaxEmailsPerCheck:   50,
		},
	})

	if err := r.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("ProcessOnce failed: %v", err)
	}

	entries, _ := log.ReadAll()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Details.ActionTaken != "categorized_only: Legal" {
		t.Errorf("action = %q, want categorized_only: Legal", entries[0].Details.ActionTaken)
	}
}

// TestProcessOnce_RespectsMaxPerCheck verifies the batch size limit.
func TestProcessOnce_RespectsMaxPerCheck(t *testing.T) {
	var msgs []models.InboundMessage
	for i := 0; i < 5; i++ {
		msgs = append(msgs, models.InboundMessage{
			ID:      fmt.Sprintf("m-%d", i),
			Subject: "hello",
			From:    "a@b.com",
		})
	}
	provider := newFakeProvider(msgs...)

	log := audit.NewStore(filepath.Join(t.TempDir(), "audit_log.json"))
	r := NewRunner(Config{
		Provider:   provider,
		Classifier: classify.New(nil),
		Log:        log,
		Templates:  templates.NewStore(t.TempDir()),
		Settings: config.Settings{
			CheckInterval:     1,
			MaxEmailsPerCheck: 3,
		},
	})

	if err := r.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("ProcessOnce failed: %v", err)
	}

	entries, _ := log.ReadAll()
	if len(entries) != 3 {
		t.Errorf("got %d entries, want 3", len(entries))
	}
}

// TestStartStop verifies the start/stop contract and its sentinel errors.
func TestStartStop(t *testing.T) {
	provider := newFakeProvider()
	r, _ := testRunner(t, provider, t.TempDir())

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := r.Start(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start = %v, want ErrAlreadyRunning", err)
	}

	if snap := r.State(); !snap.Running {
		t.Error("state not running after Start")
	}

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := r.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("second Stop = %v, want ErrNotRunning", err)
	}

	if snap := r.State(); snap.Running || snap.Status != StatusStopped {
		t.Errorf("state after Stop = %+v", snap)
	}
}

// TestProcessOnce_ListFailure verifies a list error surfaces as a cycle failure.
func TestProcessOnce_ListFailure(t *testing.T) {
	provider := newFakeProvider()
	provider.listErr = errors.New("upstream down")
	r, _ := testRunner(t, provider, t.TempDir())

	if err := r.ProcessOnce(context.Background()); err == nil {
		t.Fatal("expected error when list fails")
	}
}
