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

// Package models defines the data structures shared across the automation service.
package models

// Category labels an inbound message. Exactly one category is assigned per
// message, as a pure function of the message content and the configured
// media domain list.
type Category string

const (
	CategoryLegal     Category = "Legal"
	CategoryMedia     Category = "Media"
	CategorySupporter Category = "Supporter"
	CategoryVendor    Category = "Vendor"
	CategorySpam      Category = "Spam" // reserved; no current rule assigns it
	CategoryUnknown   Category = "Unknown"
)

// InboundMessage is a single provider message as seen by one poll cycle.
// It is built from provider data when fetched and discarded after the
// cycle; nothing mutates it.
type InboundMessage struct {
	ID       string `json:"id"`
	Subject  string `json:"subject"`
	From     string `json:"from"`
	ThreadID string `json:"threadId,omitempty"`
	Snippet  string `json:"snippet,omitempty"`
}
