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

package gmail

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mailclerk/automation/internal/models"
)

// Defaults substituted for absent headers.
const (
	defaultSubject = "No Subject"
	defaultFrom    = "Unknown"
)

// gmailMessage represents the relevant fields from a Gmail message response.
type gmailMessage struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
	Snippet  string `json:"snippet"`
	Payload  struct {
		Headers []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"headers"`
	} `json:"payload"`
}

// parseMessage converts a Gmail message response into an InboundMessage.
// Missing Subject/From headers get fixed defaults rather than failing.
func parseMessage(body io.Reader) (*models.InboundMessage, error) {
	var msg gmailMessage
	if err := json.NewDecoder(body).Decode(&msg); err != nil {
		return nil, fmt.Errorf("decode gmail message: %w", err)
	}

	subject := defaultSubject
	from := defaultFrom
	for _, h := range msg.Payload.Headers {
		switch {
		case strings.EqualFold(h.Name, "Subject"):
			subject = h.Value
		case strings.EqualFold(h.Name, "From"):
			from = h.Value
		}
	}

	return &models.InboundMessage{
		ID:       msg.ID,
		Subject:  subject,
		From:     from,
		ThreadID: msg.ThreadID,
		Snippet:  msg.Snippet,
	}, nil
}
