// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/sam9s/media-assistant/internal/domain"
	"github.com/sam9s/media-assistant/internal/metrics"
)

// Completer runs the post-download pipeline for one finished torrent.
type Completer interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResult, error)
}

// CompletionHandler receives the download client's on-completion hook.
type CompletionHandler struct {
	pipeline Completer
}

func NewCompletionHandler(pipeline Completer) *CompletionHandler {
	return &CompletionHandler{pipeline: pipeline}
}

// Complete handles POST /api/complete.
func (h *CompletionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req domain.CompletionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.ContentPath == "" {
		respondError(w, http.StatusBadRequest, "content_path is required")
		return
	}
	if req.Category == "" {
		respondError(w, http.StatusBadRequest, "category is required")
		return
	}

	result, err := h.pipeline.Complete(r.Context(), req)
	if err != nil {
		log.Error().Err(err).Str("name", req.Name).Str("category", req.Category).Msg("Completion pipeline failed")
		metrics.IncCompletion("error")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	metrics.IncCompletion("ok")
	respondJSON(w, http.StatusOK, result)
}
