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

// Package classify assigns a category to inbound messages using ordered
// keyword and sender-domain rules. Rule order is part of the contract:
// the keyword sets overlap (a media outlet can email about "billing"),
// so the first matching rule wins.
package classify

import (
	"strings"

	"github.com/mailclerk/automation/internal/models"
)

var legalKeywords = []string{
	"fcra", "credit report", "dispute", "violation",
	"litigation", "complaint", "legal", "attorney",
}

var supporterKeywords = []string{
	"patreon", "subscribe", "support", "donation", "contribute",
}

var vendorKeywords = []string{
	"invoice", "payment", "printful", "stripe", "billing",
}

// Classifier maps a message's subject and sender to a category. It holds
// the media domain list loaded at startup and is otherwise stateless;
// classification never depends on prior history.
type Classifier struct {
	mediaDomains []string
}

// New creates a classifier with the given media domain substrings.
// Entries are lowercased; blanks are dropped.
func New(mediaDomains []string) *Classifier {
	domains := make([]string, 0, len(mediaDomains))
	for _, d := range mediaDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			domains = append(domains, d)
		}
	}
	return &Classifier{mediaDomains: domains}
}

// Classify returns the category for a message. Matching is
// case-insensitive; missing fields degrade to empty-string matching and
// never fail. Same inputs always yield the same category.
func (c *Classifier) Classify(msg models.InboundMessage) models.Category {
	subject := strings.ToLower(msg.Subject)
	sender := strings.ToLower(msg.From)

	if containsAny(subject, legalKeywords) {
		return models.CategoryLegal
	}

	domain := senderDomain(sender)
	for _, media := range c.mediaDomains {
		if strings.Contains(domain, media) {
			return models.CategoryMedia
		}
	}

	if containsAny(subject, supporterKeywords) {
		return models.CategorySupporter
	}

	if containsAny(subject, vendorKeywords) {
		return models.CategoryVendor
	}

	return models.CategoryUnknown
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// senderDomain returns the text after the last '@' in a free-text From
// header, or "" when no '@' is present. Media matching is substring
// containment against this value, not an exact domain comparison.
func senderDomain(from string) string {
	i := strings.LastIndex(from, "@")
	if i < 0 {
		return ""
	}
	return from[i+1:]
}
