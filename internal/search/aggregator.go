// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package search merges results from multiple source adapters into one
// ranked list. A source failing is a diagnostics event, never a caller-facing
// error; the merge order is deterministic and independent of which source
// settles first.
package search

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"github.com/sam9s/media-assistant/internal/domain"
	"github.com/sam9s/media-assistant/internal/metrics"
	"github.com/sam9s/media-assistant/internal/sources"
)

// Options describes one aggregated search.
type Options struct {
	Query   string
	Quality string
	Limit   int

	// Optional size-range bounds in decimal gigabytes. Results whose size
	// cannot be parsed are kept: unknown favors inclusion.
	MinSizeGB *float64
	MaxSizeGB *float64

	// Dedupe drops cross-source duplicate titles, keeping the occurrence
	// from the higher-priority source. Used by the ebook path; tracker
	// results rarely duplicate exactly and intentionally co-exist.
	Dedupe bool
}

// Response is the merged, ranked outcome. Sources counts contributions per
// source id as present in the final list.
type Response struct {
	Results []domain.SearchResult `json:"results"`
	Sources map[string]int        `json:"sources"`
}

// Aggregator fans a query out to its sources in a fixed priority order.
type Aggregator struct {
	sources []sources.Source
}

// New builds an aggregator. Registration order is priority order: the first
// source's results are merged first and win dedup conflicts. Sources that
// are not configured are simply never registered.
func New(srcs ...sources.Source) *Aggregator {
	return &Aggregator{sources: srcs}
}

// Search queries every source concurrently and merges the settled results.
// It never fails as a whole; a source that errors contributes nothing.
func (a *Aggregator) Search(ctx context.Context, opts Options) Response {
	perSource := make([][]domain.SearchResult, len(a.sources))

	var wg sync.WaitGroup
	for i, src := range a.sources {
		wg.Add(1)
		go func(i int, src sources.Source) {
			defer wg.Done()

			results, err := src.Search(ctx, sources.Query{
				Text:    opts.Query,
				Quality: opts.Quality,
				Limit:   opts.Limit,
			})
			if err != nil {
				log.Warn().Err(err).Str("source", src.Name()).Str("query", opts.Query).Msg("Source unavailable, degrading without it")
				metrics.IncSourceFailure(src.Name())
				return
			}
			perSource[i] = results
		}(i, src)
	}
	wg.Wait()

	merged := make([]domain.SearchResult, 0, opts.Limit*len(a.sources))
	for _, results := range perSource {
		merged = append(merged, a.prepare(results, opts)...)
	}

	if opts.Dedupe {
		merged = dedupeByTitle(merged)
	}

	counts := make(map[string]int, len(a.sources))
	for i := range merged {
		merged[i].Rank = i + 1
		counts[merged[i].Source]++
	}

	return Response{Results: merged, Sources: counts}
}

// prepare applies the size filter, the advisory seeders-descending order and
// the per-source truncation to one source's contribution.
func (a *Aggregator) prepare(results []domain.SearchResult, opts Options) []domain.SearchResult {
	kept := make([]domain.SearchResult, 0, len(results))
	for _, r := range results {
		if sizeWithinRange(r.Size, opts.MinSizeGB, opts.MaxSizeGB) {
			kept = append(kept, r)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].SeedersValue() > kept[j].SeedersValue()
	})

	if opts.Limit > 0 && len(kept) > opts.Limit {
		kept = kept[:opts.Limit]
	}
	return kept
}

// sizeWithinRange checks the human-readable size against the optional
// bounds. Sizes that fail to parse pass the filter.
func sizeWithinRange(size string, minGB, maxGB *float64) bool {
	if minGB == nil && maxGB == nil {
		return true
	}

	bytes, err := humanize.ParseBytes(size)
	if err != nil {
		return true
	}

	gb := float64(bytes) / 1e9
	if minGB != nil && gb < *minGB {
		return false
	}
	if maxGB != nil && gb > *maxGB {
		return false
	}
	return true
}

// dedupeByTitle keeps the first occurrence of each normalized title; merge
// order already reflects source priority.
func dedupeByTitle(results []domain.SearchResult) []domain.SearchResult {
	seen := make(map[string]struct{}, len(results))
	deduped := results[:0]
	for _, r := range results {
		key := NormalizeTitle(r.Title)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, r)
	}
	return deduped
}

// NormalizeTitle case-folds and collapses whitespace; two results are
// duplicates iff their normalized titles are equal.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}
