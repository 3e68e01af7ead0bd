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

// Package gmail provides a minimal Gmail REST client for the poll cycle:
// listing messages by search query, fetching message metadata, and
// clearing the UNREAD label once a message has been processed.
package gmail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/mailclerk/automation/internal/models"
)

const defaultBaseURL = "https://gmail.googleapis.com/gmail/v1"

// scopeModify allows reading mail and changing labels, nothing broader.
const scopeModify = "https://www.googleapis.com/auth/gmail.modify"

// ErrNotConfigured indicates missing credential or token files. Callers
// treat this as "run without a mail provider", not a fatal condition.
var ErrNotConfigured = errors.New("gmail credentials not configured")

// Client talks to the Gmail REST API for a single mailbox ("me").
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a client using the given authenticated HTTP client.
func NewClient(httpClient *http.Client) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    defaultBaseURL,
	}
}

// oauthCredentials mirrors the credentials.json layout produced by the
// Google Cloud console. Desktop apps use "installed", web apps "web".
type oauthCredentials struct {
	Installed *oauthClientInfo `json:"installed"`
	Web       *oauthClientInfo `json:"web"`
}

type oauthClientInfo struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// NewClientFromFiles builds a client from an OAuth client credentials
// file and a previously obtained token file. Returns ErrNotConfigured
// when either file is absent; running the consent flow to produce the
// token is outside this service.
func NewClientFromFiles(ctx context.Context, credentialsPath, tokenPath string) (*Client, error) {
	credData, err := os.ReadFile(credentialsPath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s missing", ErrNotConfigured, credentialsPath)
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var creds oauthCredentials
	if err := json.Unmarshal(credData, &creds); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	info := creds.Installed
	if info == nil {
		info = creds.Web
	}
	if info == nil || info.ClientID == "" {
		return nil, fmt.Errorf("%w: no client_id in %s", ErrNotConfigured, credentialsPath)
	}

	tokenData, err := os.ReadFile(tokenPath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s missing", ErrNotConfigured, tokenPath)
	}
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(tokenData, &token); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	conf := &oauth2.Config{
		ClientID:     info.ClientID,
		ClientSecret: info.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{scopeModify},
	}

	return NewClient(conf.Client(ctx, &token)), nil
}

// listResponse is a page of the messages.list endpoint.
type listResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// ListUnread returns the ids of up to max unread messages.
func (c *Client) ListUnread(ctx context.Context, max int) ([]string, error) {
	return c.List(ctx, "is:unread", max)
}

// List returns message ids matching a Gmail search query.
func (c *Client) List(ctx context.Context, query string, max int) ([]string, error) {
	params := url.Values{}
	params.Set("q", query)
	if max > 0 {
		params.Set("maxResults", strconv.Itoa(max))
	}

	listURL := fmt.Sprintf("%s/users/me/messages?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		slog.Error("messages list error", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("messages list returned HTTP %d", resp.StatusCode)
	}

	var page listResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}

	ids := make([]string, 0, len(page.Messages))
	for _, m := range page.Messages {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// GetMessage retrieves a message's headers and snippet. Returns nil for a
// message that no longer exists.
func (c *Client) GetMessage(ctx context.Context, id string) (*models.InboundMessage, error) {
	params := url.Values{}
	params.Set("format", "metadata")
	params.Add("metadataHeaders", "Subject")
	params.Add("metadataHeaders", "From")

	getURL := fmt.Sprintf("%s/users/me/messages/%s?%s", c.baseURL, url.PathEscape(id), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, getURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		slog.Warn("message not found (may have been deleted)", "message_id", id)
		return nil, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gmail API returned HTTP %d for message %s", resp.StatusCode, id)
	}

	msg, err := parseMessage(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	return msg, nil
}

// MarkProcessed clears the UNREAD label so the next poll cycle skips the
// message.
func (c *Client) MarkProcessed(ctx context.Context, id string) error {
	body, err := json.Marshal(map[string][]string{
		"removeLabelIds": {"UNREAD"},
	})
	if err != nil {
		return fmt.Errorf("marshal modify request: %w", err)
	}

	modifyURL := fmt.Sprintf("%s/users/me/messages/%s/modify", c.baseURL, url.PathEscape(id))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, modifyURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("modify message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("modify returned HTTP %d for message %s", resp.StatusCode, id)
	}
	return nil
}
