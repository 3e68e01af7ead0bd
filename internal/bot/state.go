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
	"sync"
	"time"
)

// Bot status values exposed to the dashboard.
const (
	StatusStopped       = "stopped"
	StatusRunning       = "running"
	StatusError         = "error"
	StatusNotConfigured = "not_configured"
)

// State is the mutable bot state shared between the poll loop and the
// dashboard. All access goes through its methods; the dashboard only ever
// sees snapshots.
type State struct {
	mu        sync.Mutex
	running   bool
	status    string
	lastRun   time.Time
	processed int
	errors    int
}

// Snapshot is a point-in-time copy of the bot state, safe to serialise.
type Snapshot struct {
	Running        bool   `json:"running"`
	Status         string `json:"status"`
	LastRun        string `json:"last_run,omitempty"` // RFC 3339; empty before the first cycle
	ProcessedCount int    `json:"processed_count"`
	ErrorCount     int    `json:"error_count"`
}

// NewState creates a stopped state.
func NewState() *State {
	return &State{status: StatusStopped}
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Running:        s.running,
		Status:         s.status,
		ProcessedCount: s.processed,
		ErrorCount:     s.errors,
	}
	if !s.lastRun.IsZero() {
		snap.LastRun = s.lastRun.UTC().Format(time.RFC3339)
	}
	return snap
}

func (s *State) markStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.status = StatusRunning
}

func (s *State) markStopped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.status = StatusStopped
}

// cycleDone records a completed poll cycle and the messages it processed.
func (s *State) cycleDone(processed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun = time.Now()
	s.processed += processed
	if s.running {
		s.status = StatusRunning
	}
}

// cycleFailed records a failed poll cycle.
func (s *State) cycleFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun = time.Now()
	s.errors++
	s.status = StatusError
}

// setNotConfigured flags that cycles are being skipped for lack of a
// mail provider.
func (s *State) setNotConfigured() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusNotConfigured
}

// addErrors bumps the error counter for contained per-message failures.
func (s *State) addErrors(n int) {
	if n == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors += n
}
