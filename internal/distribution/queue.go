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

package distribution

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Publisher pushes distribution manifests onto a Redis list queue.
// Posting workers BRPOP from the same queue.
type Publisher struct {
	rdb       *redis.Client
	queueName string
}

// NewPublisher creates a publisher targeting the specified queue.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
	}
}

// task wraps a manifest for transport so workers can route on the
// task name without parsing the payload.
type task struct {
	ID       string    `json:"id"`
	Task     string    `json:"task"`
	QueuedAt string    `json:"queued_at"`
	Manifest *Manifest `json:"manifest"`
}

// Publish serialises a manifest and pushes it onto the queue.
func (p *Publisher) Publish(ctx context.Context, m *Manifest) error {
	t := task{
		ID:       uuid.New().String(),
		Task:     "distribution.post",
		QueuedAt: time.Now().UTC().Format(time.RFC3339),
		Manifest: m,
	}

	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal distribution task: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.queueName, string(payload)).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("queued manifest for distribution",
		"task_id", t.ID,
		"manifest_id", m.ID,
		"platforms", m.Platforms,
		"queue", p.queueName,
	)

	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
