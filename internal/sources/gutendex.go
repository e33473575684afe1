// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sam9s/media-assistant/internal/domain"
)

const gutendexDefaultURL = "https://gutendex.com/books"

// GutendexSource searches Project Gutenberg through the Gutendex REST API.
// Free, no API key, structured JSON.
type GutendexSource struct {
	baseURL string
}

func NewGutendexSource() *GutendexSource {
	return &GutendexSource{baseURL: gutendexDefaultURL}
}

func (s *GutendexSource) Name() string {
	return "Gutenberg"
}

type gutendexResponse struct {
	Results []struct {
		ID      int               `json:"id"`
		Title   string            `json:"title"`
		Authors []struct{ Name string } `json:"authors"`
		Formats map[string]string `json:"formats"`
	} `json:"results"`
}

func (s *GutendexSource) Search(ctx context.Context, q Query) ([]domain.SearchResult, error) {
	params := url.Values{}
	params.Set("search", q.Text)
	params.Set("languages", "en")

	body, err := fetch(ctx, newHTTPClient(15*time.Second), s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("gutendex search: %w", err)
	}

	var payload gutendexResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, nil
	}

	results := make([]domain.SearchResult, 0, len(payload.Results))
	for _, book := range payload.Results {
		title := strings.TrimSpace(book.Title)
		if title == "" || !matchesQuality(title, q.Quality) {
			continue
		}

		format, downloadURL := pickGutendexFormat(book.Formats)
		if format == "" {
			continue
		}

		author := "Unknown"
		if len(book.Authors) > 0 {
			author = flipAuthorName(book.Authors[0].Name)
		}

		results = append(results, domain.SearchResult{
			Title:       title,
			Size:        domain.SizeUnknown, // Gutendex does not report file sizes
			DownloadURL: downloadURL,
			Source:      s.Name(),
			Author:      author,
			Format:      format,
			CoverURL:    book.Formats["image/jpeg"],
		})
	}

	return results, nil
}

// pickGutendexFormat prefers EPUB over PDF, skipping books with neither.
func pickGutendexFormat(formats map[string]string) (string, string) {
	for _, mime := range []string{"application/epub+zip", "application/epub"} {
		if u, ok := formats[mime]; ok {
			return "epub", u
		}
	}
	if u, ok := formats["application/pdf"]; ok {
		return "pdf", u
	}
	return "", ""
}

// flipAuthorName converts catalog order "Last, First" into "First Last".
func flipAuthorName(name string) string {
	if last, first, ok := strings.Cut(name, ","); ok {
		return strings.TrimSpace(first) + " " + strings.TrimSpace(last)
	}
	return name
}
