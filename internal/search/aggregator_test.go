// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sam9s/media-assistant/internal/domain"
	"github.com/sam9s/media-assistant/internal/sources"
)

type stubSource struct {
	name    string
	results []domain.SearchResult
	err     error
	delay   time.Duration

	mu    sync.Mutex
	calls int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Search(ctx context.Context, q sources.Query) ([]domain.SearchResult, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func intPtr(n int) *int { return &n }

func result(source, title, size string, seeders *int) domain.SearchResult {
	return domain.SearchResult{Title: title, Size: size, Seeders: seeders, Source: source}
}

func TestSearchFanOutQueriesAllSources(t *testing.T) {
	first := &stubSource{name: "jackett", results: []domain.SearchResult{result("jackett", "A", "1.0 GB", intPtr(5))}}
	second := &stubSource{name: "iptorrents", results: []domain.SearchResult{result("iptorrents", "B", "2.0 GB", intPtr(3))}}

	resp := New(first, second).Search(context.Background(), Options{Query: "test", Limit: 10})

	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, map[string]int{"jackett": 1, "iptorrents": 1}, resp.Sources)
}

func TestSearchSourceFailureDegradesGracefully(t *testing.T) {
	healthy := &stubSource{name: "jackett", results: []domain.SearchResult{result("jackett", "A", "1.0 GB", intPtr(5))}}
	broken := &stubSource{name: "iptorrents", err: errors.New("connection refused")}

	resp := New(healthy, broken).Search(context.Background(), Options{Query: "test", Limit: 10})

	require.Len(t, resp.Results, 1)
	assert.Equal(t, "jackett", resp.Results[0].Source)
	assert.NotContains(t, resp.Sources, "iptorrents")
}

func TestSearchAllSourcesFailingReturnsEmptySuccess(t *testing.T) {
	resp := New(
		&stubSource{name: "jackett", err: errors.New("timeout")},
		&stubSource{name: "iptorrents", err: errors.New("timeout")},
	).Search(context.Background(), Options{Query: "test", Limit: 10})

	assert.Empty(t, resp.Results)
	assert.Empty(t, resp.Sources)
}

func TestSearchMergeOrderIndependentOfCompletionOrder(t *testing.T) {
	// The slower source is registered first and must still come first.
	slow := &stubSource{name: "jackett", delay: 50 * time.Millisecond, results: []domain.SearchResult{result("jackett", "Slow", "1.0 GB", intPtr(1))}}
	fast := &stubSource{name: "iptorrents", results: []domain.SearchResult{result("iptorrents", "Fast", "1.0 GB", intPtr(9))}}

	resp := New(slow, fast).Search(context.Background(), Options{Query: "test", Limit: 10})

	require.Len(t, resp.Results, 2)
	assert.Equal(t, "jackett", resp.Results[0].Source)
	assert.Equal(t, "iptorrents", resp.Results[1].Source)
}

func TestSearchRanksContiguouslyAcrossSources(t *testing.T) {
	first := &stubSource{name: "jackett", results: []domain.SearchResult{
		result("jackett", "A", "1.0 GB", intPtr(5)),
		result("jackett", "B", "1.0 GB", intPtr(2)),
	}}
	second := &stubSource{name: "iptorrents", results: []domain.SearchResult{
		result("iptorrents", "C", "1.0 GB", intPtr(7)),
	}}

	resp := New(first, second).Search(context.Background(), Options{Query: "test", Limit: 10})

	require.Len(t, resp.Results, 3)
	for i, r := range resp.Results {
		assert.Equal(t, i+1, r.Rank)
	}
}

func TestSearchSortsWithinSourceBySeeders(t *testing.T) {
	src := &stubSource{name: "jackett", results: []domain.SearchResult{
		result("jackett", "Low", "1.0 GB", intPtr(2)),
		result("jackett", "High", "1.0 GB", intPtr(50)),
		result("jackett", "NoSeeders", "1.0 GB", nil),
	}}

	resp := New(src).Search(context.Background(), Options{Query: "test", Limit: 10})

	require.Len(t, resp.Results, 3)
	assert.Equal(t, "High", resp.Results[0].Title)
	assert.Equal(t, "Low", resp.Results[1].Title)
	assert.Equal(t, "NoSeeders", resp.Results[2].Title)
}

func TestSearchTruncatesPerSourceBeforeMerge(t *testing.T) {
	first := &stubSource{name: "jackett", results: []domain.SearchResult{
		result("jackett", "A", "1.0 GB", intPtr(9)),
		result("jackett", "B", "1.0 GB", intPtr(8)),
		result("jackett", "C", "1.0 GB", intPtr(7)),
	}}
	second := &stubSource{name: "iptorrents", results: []domain.SearchResult{
		result("iptorrents", "D", "1.0 GB", intPtr(1)),
	}}

	resp := New(first, second).Search(context.Background(), Options{Query: "test", Limit: 2})

	// Two from the first source, then the second source's single result.
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "A", resp.Results[0].Title)
	assert.Equal(t, "B", resp.Results[1].Title)
	assert.Equal(t, "D", resp.Results[2].Title)
}

func TestSearchSizeFilter(t *testing.T) {
	min, max := 9.0, 15.0
	src := &stubSource{name: "jackett", results: []domain.SearchResult{
		result("jackett", "TooSmall", "8.2 GB", intPtr(5)),
		result("jackett", "InRange", "12 GB", intPtr(5)),
		result("jackett", "Unparseable", domain.SizeUnknown, intPtr(5)),
	}}

	resp := New(src).Search(context.Background(), Options{Query: "test", Limit: 10, MinSizeGB: &min, MaxSizeGB: &max})

	require.Len(t, resp.Results, 2)
	assert.Equal(t, "InRange", resp.Results[0].Title)
	assert.Equal(t, "Unparseable", resp.Results[1].Title)
}

func TestSearchDedupeKeepsHigherPrioritySource(t *testing.T) {
	first := &stubSource{name: "standardebooks", results: []domain.SearchResult{
		result("standardebooks", "The Great Gatsby", domain.SizeUnknown, nil),
	}}
	second := &stubSource{name: "gutenberg", results: []domain.SearchResult{
		result("gutenberg", "the   great gatsby", domain.SizeUnknown, nil),
		result("gutenberg", "Tender Is the Night", domain.SizeUnknown, nil),
	}}

	resp := New(first, second).Search(context.Background(), Options{Query: "gatsby", Limit: 10, Dedupe: true})

	require.Len(t, resp.Results, 2)
	assert.Equal(t, "standardebooks", resp.Results[0].Source)
	assert.Equal(t, "The Great Gatsby", resp.Results[0].Title)
	assert.Equal(t, "Tender Is the Night", resp.Results[1].Title)
	assert.Equal(t, map[string]int{"standardebooks": 1, "gutenberg": 1}, resp.Sources)
}

func TestSearchDuplicatesSurviveWithoutDedupe(t *testing.T) {
	first := &stubSource{name: "jackett", results: []domain.SearchResult{
		result("jackett", "Same Release", "1.0 GB", intPtr(4)),
	}}
	second := &stubSource{name: "iptorrents", results: []domain.SearchResult{
		result("iptorrents", "Same Release", "1.0 GB", intPtr(4)),
	}}

	resp := New(first, second).Search(context.Background(), Options{Query: "test", Limit: 10})

	assert.Len(t, resp.Results, 2)
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, NormalizeTitle("The Great Gatsby"), NormalizeTitle("the   great gatsby"))
	assert.NotEqual(t, NormalizeTitle("The Great Gatsby"), NormalizeTitle("The Greater Gatsby"))
}
