// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sam9s/media-assistant/internal/domain"
)

// TorznabSource queries a Jackett Torznab endpoint. With indexer "all" it
// represents every tracker configured behind the proxy; with a dedicated
// indexer id it represents a single tracker under its own source name.
type TorznabSource struct {
	name    string
	baseURL string
	apiKey  string
	indexer string
}

func NewTorznabSource(name, baseURL, apiKey, indexer string) *TorznabSource {
	return &TorznabSource{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		indexer: indexer,
	}
}

func (s *TorznabSource) Name() string {
	return s.name
}

type torznabFeed struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Items []torznabItem `xml:"item"`
	} `xml:"channel"`
}

type torznabItem struct {
	Title          string `xml:"title"`
	Link           string `xml:"link"`
	Size           string `xml:"size"`
	PubDate        string `xml:"pubDate"`
	JackettIndexer string `xml:"jackettindexer"`
	Enclosure      struct {
		URL    string `xml:"url,attr"`
		Length string `xml:"length,attr"`
	} `xml:"enclosure"`
	Attrs []torznabAttr `xml:"http://torznab.com/schemas/2015/feed attr"`
}

type torznabAttr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

func (i *torznabItem) attr(name string) string {
	for _, a := range i.Attrs {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

func (s *TorznabSource) Search(ctx context.Context, q Query) ([]domain.SearchResult, error) {
	endpoint := fmt.Sprintf("%s/api/v2.0/indexers/%s/results/torznab/api", s.baseURL, s.indexer)

	params := url.Values{}
	params.Set("apikey", s.apiKey)
	params.Set("t", "search")
	params.Set("q", q.Text)
	// Over-fetch so the client-side quality filter has room to discard.
	params.Set("limit", strconv.Itoa(min(q.Limit*4, 100)))

	body, err := fetch(ctx, newHTTPClient(30*time.Second), endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("torznab search %s: %w", s.indexer, err)
	}

	var feed torznabFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		// Jackett answers configuration problems with an <error> document;
		// that and any other mangled payload degrades to "nothing found".
		return nil, nil
	}

	results := make([]domain.SearchResult, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		title := strings.TrimSpace(item.Title)
		if title == "" || !matchesQuality(title, q.Quality) {
			continue
		}

		downloadURL := item.Enclosure.URL
		if downloadURL == "" {
			downloadURL = strings.TrimSpace(item.Link)
		}

		result := domain.SearchResult{
			Title:       title,
			Size:        s.itemSize(&item),
			DownloadURL: downloadURL,
			Source:      s.sourceName(&item),
			PublishedAt: strings.TrimSpace(item.PubDate),
		}

		// Torznab encodes seeders as a typed attribute; when the tracker
		// omits it the result carries no seeder count at all.
		if v := item.attr("seeders"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				result.Seeders = &n
			}
		}

		results = append(results, result)
	}

	return results, nil
}

// itemSize prefers the <size> element, then the torznab size attribute, then
// the enclosure length. Unparsable sizes degrade to the unknown sentinel.
func (s *TorznabSource) itemSize(item *torznabItem) string {
	for _, raw := range []string{item.Size, item.attr("size"), item.Enclosure.Length} {
		if raw == "" {
			continue
		}
		if b, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil {
			return formatSize(b)
		}
	}
	return domain.SizeUnknown
}

func (s *TorznabSource) sourceName(item *torznabItem) string {
	// The aggregate endpoint mixes trackers; Jackett names the origin in
	// <jackettindexer>. Dedicated indexers keep the configured name.
	if s.indexer != "all" {
		return s.name
	}
	if tracker := strings.TrimSpace(item.JackettIndexer); tracker != "" {
		return tracker
	}
	if tracker := item.attr("tracker"); tracker != "" {
		return tracker
	}
	return s.name
}
