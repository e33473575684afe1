// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sam9s/media-assistant/internal/domain"
)

const archiveDefaultURL = "https://archive.org"

var (
	archiveYearPattern       = regexp.MustCompile(`^(\d{4})`)
	archiveAuthorYearPattern = regexp.MustCompile(`,\s*\d{3,4}[-–]?\d{0,4}\s*$`)
)

// ArchiveSource searches the Internet Archive's texts collection. Largest
// catalog of the ebook sources, good for obscure titles, no API key.
type ArchiveSource struct {
	baseURL string
}

func NewArchiveSource() *ArchiveSource {
	return &ArchiveSource{baseURL: archiveDefaultURL}
}

func (s *ArchiveSource) Name() string {
	return "Archive.org"
}

type archiveResponse struct {
	Response struct {
		Docs []struct {
			Identifier string          `json:"identifier"`
			Title      string          `json:"title"`
			Creator    json.RawMessage `json:"creator"`
			Date       string          `json:"date"`
			Format     json.RawMessage `json:"format"`
		} `json:"docs"`
	} `json:"response"`
}

func (s *ArchiveSource) Search(ctx context.Context, q Query) ([]domain.SearchResult, error) {
	params := url.Values{}
	params.Set("q", fmt.Sprintf("%s AND mediatype:texts", q.Text))
	params.Add("fl[]", "identifier")
	params.Add("fl[]", "title")
	params.Add("fl[]", "creator")
	params.Add("fl[]", "date")
	params.Add("fl[]", "format")
	params.Add("sort[]", "downloads desc")
	params.Set("rows", strconv.Itoa(q.Limit*3)) // over-fetch to filter for epub/pdf
	params.Set("page", "1")
	params.Set("output", "json")

	body, err := fetch(ctx, newHTTPClient(20*time.Second), s.baseURL+"/advancedsearch.php?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("archive.org search: %w", err)
	}

	var payload archiveResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, nil
	}

	results := make([]domain.SearchResult, 0, len(payload.Response.Docs))
	for _, doc := range payload.Response.Docs {
		if doc.Identifier == "" {
			continue
		}

		title := strings.TrimSpace(doc.Title)
		if title == "" || !matchesQuality(title, q.Quality) {
			continue
		}

		format := pickArchiveFormat(stringList(doc.Format))
		if format == "" {
			continue
		}

		results = append(results, domain.SearchResult{
			Title:       title,
			Size:        domain.SizeUnknown,
			DownloadURL: fmt.Sprintf("%s/download/%s/%s.%s", s.baseURL, doc.Identifier, doc.Identifier, format),
			Source:      s.Name(),
			Author:      cleanArchiveAuthor(firstString(doc.Creator)),
			Year:        extractYear(doc.Date),
			Format:      format,
			CoverURL:    fmt.Sprintf("%s/services/img/%s", s.baseURL, doc.Identifier),
		})
	}

	return results, nil
}

// pickArchiveFormat prefers EPUB > PDF > CBZ > CBR.
func pickArchiveFormat(formats []string) string {
	available := make(map[string]struct{}, len(formats))
	for _, f := range formats {
		available[strings.ToLower(f)] = struct{}{}
	}
	for _, want := range []string{"epub", "pdf", "cbz", "cbr"} {
		if _, ok := available[want]; ok {
			return want
		}
	}
	return ""
}

// cleanArchiveAuthor strips trailing lifespan years and flips catalog order:
// "Carroll, Lewis, 1832-1898" becomes "Lewis Carroll".
func cleanArchiveAuthor(name string) string {
	if name == "" {
		return "Unknown"
	}
	name = strings.TrimSpace(archiveAuthorYearPattern.ReplaceAllString(name, ""))
	return flipAuthorName(name)
}

func extractYear(date string) int {
	if m := archiveYearPattern.FindStringSubmatch(date); m != nil {
		if y, err := strconv.Atoi(m[1]); err == nil {
			return y
		}
	}
	return 0
}

// Archive.org fields are sometimes a string, sometimes a list of strings.

func stringList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}
	}
	return nil
}

func firstString(raw json.RawMessage) string {
	values := stringList(raw)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
