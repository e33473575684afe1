// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/sam9s/media-assistant/internal/librarian"
	"github.com/sam9s/media-assistant/internal/metrics"
)

// LibrarianHandler serves the ebook endpoints.
type LibrarianHandler struct {
	librarian *librarian.Librarian
}

func NewLibrarianHandler(l *librarian.Librarian) *LibrarianHandler {
	return &LibrarianHandler{librarian: l}
}

// Routes registers the librarian routes.
func (h *LibrarianHandler) Routes(r chi.Router) {
	r.Route("/librarian", func(r chi.Router) {
		r.Get("/search", h.Search)
		r.Post("/download", h.Download)
		r.Post("/scan", h.Scan)
		r.Get("/status", h.Status)
	})
}

// Search handles GET /api/librarian/search?q=...&limit=...
func (h *LibrarianHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		respondError(w, http.StatusBadRequest, "q parameter is required")
		return
	}

	metrics.IncSearch("ebook")
	resp, err := h.librarian.Search(r.Context(), query, parseLimit(r.URL.Query().Get("limit")))
	if err != nil {
		log.Error().Err(err).Str("query", query).Msg("Ebook search failed")
		respondError(w, http.StatusBadGateway, "ebook search unavailable")
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// Download handles POST /api/librarian/download.
func (h *LibrarianHandler) Download(w http.ResponseWriter, r *http.Request) {
	var req librarian.DownloadRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Title == "" {
		respondError(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.DownloadURL == "" {
		respondError(w, http.StatusBadRequest, "download_url is required")
		return
	}
	if req.Category == "" {
		respondError(w, http.StatusBadRequest, "category is required")
		return
	}

	result, err := h.librarian.Download(r.Context(), req)
	if err != nil {
		log.Error().Err(err).Str("title", req.Title).Msg("Ebook download failed")
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	metrics.IncDownload("ebook")
	respondJSON(w, http.StatusOK, result)
}

type scanRequest struct {
	Category string `json:"category"`
}

// Scan handles POST /api/librarian/scan.
func (h *LibrarianHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Category == "" {
		respondError(w, http.StatusBadRequest, "category is required")
		return
	}

	if err := h.librarian.Scan(r.Context(), req.Category); err != nil {
		log.Error().Err(err).Str("category", req.Category).Msg("Ebook scan failed")
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "scan started"})
}

// Status handles GET /api/librarian/status.
func (h *LibrarianHandler) Status(w http.ResponseWriter, r *http.Request) {
	entries := h.librarian.Status()
	respondJSON(w, http.StatusOK, map[string]any{
		"count": len(entries),
		"books": entries,
	})
}
