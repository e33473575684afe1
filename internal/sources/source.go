// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package sources contains the adapters that translate each external
// catalog or tracker into the common result schema. Adapters return an error
// only for transport-level failures (after their internal retry budget);
// a payload the upstream mangled yields an empty result set instead, so the
// aggregator can tell "source said nothing" apart from "source is down".
package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/dustin/go-humanize"

	"github.com/sam9s/media-assistant/internal/buildinfo"
	"github.com/sam9s/media-assistant/internal/domain"
)

// Query is one logical search request handed to an adapter.
type Query struct {
	Text    string
	Quality string
	Limit   int
}

// Source is implemented by every catalog/tracker adapter.
type Source interface {
	Name() string
	Search(ctx context.Context, q Query) ([]domain.SearchResult, error)
}

const (
	transportAttempts = 3
	transportDelay    = 500 * time.Millisecond
)

// fetch performs a GET with the adapters' shared bounded retry policy.
// Non-2xx responses count as transport failures and are retried.
func fetch(ctx context.Context, client *http.Client, url string, header http.Header) ([]byte, error) {
	var body []byte

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			req.Header.Set("User-Agent", buildinfo.UserAgent)
			for k, vals := range header {
				for _, v := range vals {
					req.Header.Add(k, v)
				}
			}

			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
				return fmt.Errorf("unexpected status %d", resp.StatusCode)
			}

			body, err = io.ReadAll(resp.Body)
			return err
		},
		retry.Attempts(transportAttempts),
		retry.Delay(transportDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		return nil, err
	}

	return body, nil
}

// matchesQuality applies the client-side quality filter: case-insensitive
// substring match against the title. Empty filter matches everything.
func matchesQuality(title, quality string) bool {
	if quality == "" {
		return true
	}
	return strings.Contains(strings.ToLower(title), strings.ToLower(quality))
}

// formatSize renders a byte count as the human-readable size carried in the
// common schema, e.g. "9.2 GB".
func formatSize(b int64) string {
	if b <= 0 {
		return domain.SizeUnknown
	}
	return humanize.Bytes(uint64(b))
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
