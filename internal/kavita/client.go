// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package kavita talks to a Kavita ebook server: library lookup, duplicate
// detection for search results, and the post-download scan trigger.
package kavita

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/pkg/errors"

	"github.com/sam9s/media-assistant/internal/buildinfo"
	"github.com/sam9s/media-assistant/internal/session"
)

// Kavita JWTs are valid well past this, but a short TTL keeps the cached
// token comfortably fresh across server restarts.
const sessionTTL = 20 * time.Minute

type Client struct {
	baseURL string
	http    *http.Client
	session *session.Manager
}

func NewClient(baseURL, username, password string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	c.session = session.NewManager("kavita", sessionTTL, func(ctx context.Context) (string, error) {
		return c.login(ctx, username, password)
	})
	return c
}

func (c *Client) login(ctx context.Context, username, password string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/Account/login", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("credentials rejected (status %d)", resp.StatusCode)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", errors.Wrap(err, "decode login response")
	}
	if body.Token == "" {
		return "", errors.New("login response carried no token")
	}
	return body.Token, nil
}

// do issues one bearer-authenticated request. 401 surfaces as
// ErrAuthRejected for the session manager's single re-auth retry.
func (c *Client) do(ctx context.Context, token, method, path string, payload io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", buildinfo.UserAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, errors.Wrapf(session.ErrAuthRejected, "kavita %s", path)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("kavita %s: unexpected status %d", path, resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// Library is one Kavita library as listed by /api/Library/libraries.
type Library struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func (c *Client) Libraries(ctx context.Context) ([]Library, error) {
	return session.Do(ctx, c.session, func(ctx context.Context, token string) ([]Library, error) {
		body, err := c.do(ctx, token, http.MethodGet, "/api/Library/libraries", nil)
		if err != nil {
			return nil, err
		}
		var libraries []Library
		if err := json.Unmarshal(body, &libraries); err != nil {
			return nil, errors.Wrap(err, "decode libraries")
		}
		return libraries, nil
	})
}

// LibraryID resolves a library by name: exact match (case-insensitive)
// first, fuzzy match second so "novels" still finds "Novels (EN)".
func (c *Client) LibraryID(ctx context.Context, name string) (int, error) {
	libraries, err := c.Libraries(ctx)
	if err != nil {
		return 0, err
	}

	for _, lib := range libraries {
		if strings.EqualFold(lib.Name, name) {
			return lib.ID, nil
		}
	}
	for _, lib := range libraries {
		if fuzzy.MatchNormalizedFold(name, lib.Name) {
			return lib.ID, nil
		}
	}
	return 0, fmt.Errorf("no kavita library matches %q", name)
}

// ScanLibrary asks Kavita to rescan one library's folders.
func (c *Client) ScanLibrary(ctx context.Context, libraryID int) error {
	return c.session.With(ctx, func(ctx context.Context, token string) error {
		path := fmt.Sprintf("/api/Library/scan?libraryId=%d", libraryID)
		_, err := c.do(ctx, token, http.MethodPost, path, bytes.NewReader([]byte("{}")))
		return err
	})
}

// Series is one matched series from Kavita's search.
type Series struct {
	ID        int    `json:"seriesId"`
	Name      string `json:"name"`
	LibraryID int    `json:"libraryId"`
}

// Search runs Kavita's instant search and returns the matched series.
func (c *Client) Search(ctx context.Context, query string) ([]Series, error) {
	return session.Do(ctx, c.session, func(ctx context.Context, token string) ([]Series, error) {
		path := "/api/Search/search?queryString=" + url.QueryEscape(query)
		body, err := c.do(ctx, token, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}

		var payload struct {
			Series []Series `json:"series"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, errors.Wrap(err, "decode search response")
		}
		return payload.Series, nil
	})
}

// IsInLibrary reports whether a title already exists on the Kavita server.
// Matching is fuzzy: series names rarely equal catalog titles exactly.
func (c *Client) IsInLibrary(ctx context.Context, title string) (bool, error) {
	series, err := c.Search(ctx, title)
	if err != nil {
		return false, err
	}

	want := strings.ToLower(strings.TrimSpace(title))
	for _, s := range series {
		have := strings.ToLower(strings.TrimSpace(s.Name))
		if have == want || strings.Contains(have, want) || fuzzy.MatchNormalizedFold(want, have) {
			return true, nil
		}
	}
	return false, nil
}
