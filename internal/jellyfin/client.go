// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package jellyfin triggers media library refreshes and duplicate lookups on
// a Jellyfin server. The API key is stateless, so unlike the other backends
// there is no session to manage.
package jellyfin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/sam9s/media-assistant/internal/buildinfo"
)

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Emby-Token", c.apiKey)
	req.Header.Set("User-Agent", buildinfo.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("jellyfin %s: unexpected status %d", path, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// RefreshLibrary asks Jellyfin to rescan all libraries.
func (c *Client) RefreshLibrary(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/Library/Refresh")
	return errors.Wrap(err, "refresh library")
}

// Item is one matched library entry.
type Item struct {
	ID             string `json:"Id"`
	Name           string `json:"Name"`
	Type           string `json:"Type"`
	ProductionYear int    `json:"ProductionYear"`
}

// Search looks a title up across movie and series items.
func (c *Client) Search(ctx context.Context, query string) ([]Item, error) {
	params := url.Values{}
	params.Set("searchTerm", query)
	params.Set("includeItemTypes", "Movie,Series")
	params.Set("recursive", "true")

	body, err := c.do(ctx, http.MethodGet, "/Items?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var payload struct {
		Items []Item `json:"Items"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Wrap(err, "decode items")
	}
	return payload.Items, nil
}

// IsInLibrary reports whether a title is already present on the server.
func (c *Client) IsInLibrary(ctx context.Context, title string) (bool, error) {
	items, err := c.Search(ctx, title)
	if err != nil {
		return false, err
	}

	want := strings.ToLower(strings.TrimSpace(title))
	for _, item := range items {
		if strings.ToLower(strings.TrimSpace(item.Name)) == want {
			return true, nil
		}
	}
	return false, nil
}
