// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package tmdb looks up display metadata (poster, overview, year, rating)
// for search results. Metadata is decoration: callers treat a failed lookup
// as "no metadata", never as a failed search.
package tmdb

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

const (
	defaultBaseURL = "https://api.themoviedb.org/3"
	imageBaseURL   = "https://image.tmdb.org/t/p/w500"

	overviewLimit = 280
)

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Metadata is the display payload attached to a recognized title.
type Metadata struct {
	Title     string  `json:"title"`
	MediaType string  `json:"media_type"`
	Year      string  `json:"year,omitempty"`
	Overview  string  `json:"overview,omitempty"`
	PosterURL string  `json:"poster_url,omitempty"`
	Rating    float64 `json:"rating,omitempty"`
	Genres    []string `json:"genres,omitempty"`
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	params.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tmdb %s: unexpected status %d", path, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

type multiResult struct {
	ID           int     `json:"id"`
	MediaType    string  `json:"media_type"`
	Title        string  `json:"title"`
	Name         string  `json:"name"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
	Overview     string  `json:"overview"`
	PosterPath   string  `json:"poster_path"`
	VoteAverage  float64 `json:"vote_average"`
}

// Lookup resolves a free-text title to its best TMDB match and fetches the
// detail record for genres. Returns nil when nothing matched.
func (c *Client) Lookup(ctx context.Context, query string) (*Metadata, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("include_adult", "false")

	body, err := c.get(ctx, "/search/multi", params)
	if err != nil {
		return nil, errors.Wrap(err, "tmdb search")
	}

	var payload struct {
		Results []multiResult `json:"results"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Wrap(err, "decode search response")
	}

	var best *multiResult
	for i := range payload.Results {
		if t := payload.Results[i].MediaType; t == "movie" || t == "tv" {
			best = &payload.Results[i]
			break
		}
	}
	if best == nil {
		return nil, nil
	}

	meta := &Metadata{
		Title:     best.Title,
		MediaType: best.MediaType,
		Overview:  truncateOverview(best.Overview),
		Rating:    best.VoteAverage,
	}
	if meta.Title == "" {
		meta.Title = best.Name
	}
	if date := firstNonEmpty(best.ReleaseDate, best.FirstAirDate); len(date) >= 4 {
		meta.Year = date[:4]
	}
	if best.PosterPath != "" {
		meta.PosterURL = imageBaseURL + best.PosterPath
	}

	// Genres come from the per-type detail endpoint; a failure here still
	// yields usable metadata.
	if genres, err := c.genres(ctx, best.MediaType, best.ID); err == nil {
		meta.Genres = genres
	}

	return meta, nil
}

func (c *Client) genres(ctx context.Context, mediaType string, id int) ([]string, error) {
	body, err := c.get(ctx, fmt.Sprintf("/%s/%d", mediaType, id), url.Values{})
	if err != nil {
		return nil, err
	}

	var detail struct {
		Genres []struct {
			Name string `json:"name"`
		} `json:"genres"`
	}
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(detail.Genres))
	for _, g := range detail.Genres {
		names = append(names, g.Name)
	}
	return names, nil
}

func truncateOverview(overview string) string {
	runes := []rune(strings.TrimSpace(overview))
	if len(runes) <= overviewLimit {
		return string(runes)
	}
	return strings.TrimSpace(string(runes[:overviewLimit])) + "..."
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
