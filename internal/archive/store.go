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

// Package archive provides a Postgres mirror of the audit log. The JSON
// file remains the source of truth; the mirror exists so entries can be
// queried with SQL long after the operator has rotated the file away.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mailclerk/automation/internal/audit"
)

// Record is a single archived audit entry as stored in Postgres.
type Record struct {
	ID           int64
	IncidentID   string
	LoggedAt     time.Time
	Source       string
	EventType    string
	Category     string
	Sender       string
	Subject      string
	MessageID    string
	ActionTaken  string
	EvidenceHash string
	CreatedAt    time.Time
}

// Store mirrors audit entries into Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an archive store backed by the given Postgres pool.
// It ensures the audit_entries table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure archive schema: %w", err)
	}
	slog.Info("audit archive initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS audit_entries (
			id            BIGSERIAL PRIMARY KEY,
			incident_id   TEXT NOT NULL,
			logged_at     TIMESTAMPTZ NOT NULL,
			source        TEXT NOT NULL,
			event_type    TEXT NOT NULL,
			category      TEXT NOT NULL,
			sender        TEXT DEFAULT '',
			subject       TEXT DEFAULT '',
			message_id    TEXT DEFAULT '',
			action_taken  TEXT DEFAULT '',
			evidence_hash TEXT DEFAULT '',
			created_at    TIMESTAMPTZ DEFAULT NOW(),
			UNIQUE(incident_id)
		);
		CREATE INDEX IF NOT EXISTS idx_audit_category ON audit_entries(category);
		CREATE INDEX IF NOT EXISTS idx_audit_logged ON audit_entries(logged_at);
	`)
	return err
}

// Insert mirrors one audit entry. Re-inserting an incident ID is a no-op,
// so replaying the JSON file through the archive is safe.
func (s *Store) Insert(ctx context.Context, e audit.Entry) error {
	loggedAt, err := time.Parse(time.RFC3339, e.Timestamp)
	if err != nil {
		loggedAt = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_entries
			(incident_id, logged_at, source, event_type, category,
			 sender, subject, message_id, action_taken, evidence_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (incident_id) DO NOTHING
	`, e.IncidentID, loggedAt, e.Source, e.EventType, e.Category,
		e.Details.From, e.Details.Subject, e.Details.MessageID,
		e.Details.ActionTaken, e.EvidenceHash)
	if err != nil {
		return fmt.Errorf("archive insert: %w", err)
	}
	return nil
}

// ListByCategory returns archived entries for one category, most recent first.
func (s *Store) ListByCategory(ctx context.Context, category string, limit int) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, incident_id, logged_at, source, event_type, category,
		       sender, subject, message_id, action_taken, evidence_hash, created_at
		FROM audit_entries
		WHERE category = $1
		ORDER BY logged_at DESC
		LIMIT $2
	`, category, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// CountByCategory returns entry counts grouped by category.
func (s *Store) CountByCategory(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT category, COUNT(*) FROM audit_entries GROUP BY category
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return nil, err
		}
		counts[category] = n
	}
	return counts, rows.Err()
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(
			&r.ID, &r.IncidentID, &r.LoggedAt, &r.Source, &r.EventType,
			&r.Category, &r.Sender, &r.Subject, &r.MessageID,
			&r.ActionTaken, &r.EvidenceHash, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
