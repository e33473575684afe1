// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package sources

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sam9s/media-assistant/internal/domain"
)

const standardEbooksDefaultURL = "https://standardebooks.org"

// Book entries render as articles with typeof="schema:Book" and an about
// attribute of /ebooks/{author}/{title}[/{translator}]; either attribute
// order appears in the markup.
var (
	seBookPattern        = regexp.MustCompile(`typeof="schema:Book"[^>]+about="(/ebooks/[^"]+)"`)
	seBookPatternFlipped = regexp.MustCompile(`about="(/ebooks/[^"]+)"[^>]+typeof="schema:Book"`)
)

var seTitleCaser = cases.Title(language.English)

// StandardEbooksSource scrapes standardebooks.org search results. The site
// has no API; the EPUB download URL follows a fixed slug convention.
type StandardEbooksSource struct {
	baseURL string
}

func NewStandardEbooksSource() *StandardEbooksSource {
	return &StandardEbooksSource{baseURL: standardEbooksDefaultURL}
}

func (s *StandardEbooksSource) Name() string {
	return "Standard Ebooks"
}

func (s *StandardEbooksSource) Search(ctx context.Context, q Query) ([]domain.SearchResult, error) {
	params := url.Values{}
	params.Set("query", q.Text)

	body, err := fetch(ctx, newHTTPClient(20*time.Second), s.baseURL+"/ebooks?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("standard ebooks search: %w", err)
	}

	html := string(body)
	paths := seBookPattern.FindAllStringSubmatch(html, -1)
	paths = append(paths, seBookPatternFlipped.FindAllStringSubmatch(html, -1)...)

	seen := make(map[string]struct{})
	results := make([]domain.SearchResult, 0, len(paths))
	for _, m := range paths {
		path := m[1]
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}

		title, author := parseSEPath(path)
		if title == "" || !matchesQuality(title, q.Quality) {
			continue
		}

		// EPUB slug = path segments joined with underscores.
		slug := strings.ReplaceAll(strings.TrimPrefix(strings.TrimPrefix(path, "/"), "ebooks/"), "/", "_")

		results = append(results, domain.SearchResult{
			Title:       title,
			Size:        domain.SizeUnknown,
			DownloadURL: fmt.Sprintf("%s%s/downloads/%s.epub", s.baseURL, path, slug),
			Source:      s.Name(),
			Author:      author,
			Format:      "epub",
			CoverURL:    fmt.Sprintf("%s%s/downloads/%s_cover.jpg", s.baseURL, path, slug),
		})
	}

	return results, nil
}

// parseSEPath turns /ebooks/alexandre-dumas/the-count-of-monte-cristo into
// ("The Count Of Monte Cristo", "Alexandre Dumas").
func parseSEPath(path string) (title, author string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) > 0 && parts[0] == "ebooks" {
		parts = parts[1:]
	}
	if len(parts) < 2 {
		return "", ""
	}
	return slugToTitle(parts[1]), slugToTitle(parts[0])
}

func slugToTitle(slug string) string {
	return seTitleCaser.String(strings.ReplaceAll(slug, "-", " "))
}
