// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sam9s/media-assistant/internal/domain"
)

var (
	rssSizePattern    = regexp.MustCompile(`(?i)([\d.]+\s*(?:GB|MB|TB))`)
	rssSeedersPattern = regexp.MustCompile(`(?i)seed(?:ers?)?\s*:?\s*(\d+)`)
)

// RSSSource queries IPTorrents' server-side-filtered RSS feed. The base URL
// is the full feed URL without the q= parameter; the query is appended with
// the tracker's semicolon separator convention.
type RSSSource struct {
	name    string
	baseURL string
}

func NewRSSSource(name, baseURL string) *RSSSource {
	return &RSSSource{name: name, baseURL: baseURL}
}

func (s *RSSSource) Name() string {
	return s.name
}

type rssFeed struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Items []rssEntry `xml:"item"`
	} `xml:"channel"`
}

type rssEntry struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	PubDate     string `xml:"pubDate"`
	Description string `xml:"description"`
	Enclosure   struct {
		URL string `xml:"url,attr"`
	} `xml:"enclosure"`
}

func (s *RSSSource) Search(ctx context.Context, q Query) ([]domain.SearchResult, error) {
	// IPTorrents uses semicolons as parameter separators, + for spaces.
	feedURL := fmt.Sprintf("%s;q=%s", s.baseURL, strings.ReplaceAll(q.Text, " ", "+"))

	body, err := fetch(ctx, newHTTPClient(30*time.Second), feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("rss search %s: %w", s.name, err)
	}

	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, nil
	}

	results := make([]domain.SearchResult, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		title := strings.TrimSpace(item.Title)
		if title == "" || !matchesQuality(title, q.Quality) {
			continue
		}

		// The .torrent URL lives in <link>; some feed variants use the
		// enclosure instead.
		downloadURL := strings.TrimSpace(item.Link)
		if downloadURL == "" {
			downloadURL = item.Enclosure.URL
		}

		result := domain.SearchResult{
			Title:       title,
			Size:        parseDescribedSize(item.Description, title),
			DownloadURL: downloadURL,
			Source:      s.name,
			PublishedAt: strings.TrimSpace(item.PubDate),
		}

		// This feed omits seeders by protocol design more often than not;
		// absent stays absent rather than becoming zero.
		if m := rssSeedersPattern.FindStringSubmatch(item.Description); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				result.Seeders = &n
			}
		}

		results = append(results, result)
	}

	return results, nil
}

// parseDescribedSize scans the item description for a human-readable size,
// falling back to the title.
func parseDescribedSize(description, title string) string {
	for _, text := range []string{description, title} {
		if m := rssSizePattern.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return domain.SizeUnknown
}
