// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/sam9s/media-assistant/internal/metrics"
	"github.com/sam9s/media-assistant/internal/search"
	"github.com/sam9s/media-assistant/internal/tmdb"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// MetadataLookup resolves display metadata for a query. Optional.
type MetadataLookup interface {
	Lookup(ctx context.Context, query string) (*tmdb.Metadata, error)
}

// LibraryChecker reports whether a title already exists on the media server.
type LibraryChecker interface {
	IsInLibrary(ctx context.Context, title string) (bool, error)
}

// SearchHandler serves the tracker search endpoint.
type SearchHandler struct {
	aggregator *search.Aggregator
	metadata   MetadataLookup
	library    LibraryChecker
}

func NewSearchHandler(aggregator *search.Aggregator, metadata MetadataLookup, library LibraryChecker) *SearchHandler {
	return &SearchHandler{
		aggregator: aggregator,
		metadata:   metadata,
		library:    library,
	}
}

type searchResponse struct {
	Query            string         `json:"query"`
	Results          any            `json:"results"`
	Sources          map[string]int `json:"sources"`
	Metadata         *tmdb.Metadata `json:"metadata,omitempty"`
	AlreadyInLibrary bool           `json:"already_in_library"`
}

// Search handles GET /api/search?q=...&quality=...&limit=...&min_size_gb=...&max_size_gb=...
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		respondError(w, http.StatusBadRequest, "q parameter is required")
		return
	}

	opts := search.Options{
		Query:   query,
		Quality: r.URL.Query().Get("quality"),
		Limit:   parseLimit(r.URL.Query().Get("limit")),
	}

	var err error
	if opts.MinSizeGB, err = parseSizeGB(r.URL.Query().Get("min_size_gb")); err != nil {
		respondError(w, http.StatusBadRequest, "min_size_gb must be a number")
		return
	}
	if opts.MaxSizeGB, err = parseSizeGB(r.URL.Query().Get("max_size_gb")); err != nil {
		respondError(w, http.StatusBadRequest, "max_size_gb must be a number")
		return
	}

	metrics.IncSearch("media")
	merged := h.aggregator.Search(r.Context(), opts)

	resp := searchResponse{
		Query:   query,
		Results: merged.Results,
		Sources: merged.Sources,
	}

	// Metadata and the duplicate flag are decoration; their failures never
	// fail the search.
	if h.metadata != nil {
		if meta, err := h.metadata.Lookup(r.Context(), query); err != nil {
			log.Warn().Err(err).Str("query", query).Msg("Metadata lookup failed")
		} else {
			resp.Metadata = meta
		}
	}
	if h.library != nil {
		if found, err := h.library.IsInLibrary(r.Context(), query); err != nil {
			log.Warn().Err(err).Str("query", query).Msg("Library duplicate check failed")
		} else {
			resp.AlreadyInLibrary = found
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

func parseLimit(raw string) int {
	if raw == "" {
		return defaultSearchLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultSearchLimit
	}
	return min(n, maxSearchLimit)
}

func parseSizeGB(raw string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
