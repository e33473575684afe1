// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/sam9s/media-assistant/internal/metrics"
	"github.com/sam9s/media-assistant/internal/qbittorrent"
)

// DownloadClient is the slice of the qBittorrent client the download
// endpoints use.
type DownloadClient interface {
	AddTorrentFromURL(ctx context.Context, opts qbittorrent.AddTorrentOptions) error
	ActiveDownloads(ctx context.Context) ([]qbittorrent.DownloadStatus, error)
}

// DownloadsHandler queues torrents and reports download progress.
type DownloadsHandler struct {
	client    DownloadClient
	library   LibraryChecker
	savePaths map[string]string
}

func NewDownloadsHandler(client DownloadClient, library LibraryChecker, savePaths map[string]string) *DownloadsHandler {
	return &DownloadsHandler{client: client, library: library, savePaths: savePaths}
}

type downloadRequest struct {
	DownloadURL string `json:"download_url"`
	Title       string `json:"title"`
	Year        string `json:"year"`
	Category    string `json:"category"`
}

// Add handles POST /api/download. The title and year are attached to the
// torrent as a tag so the completion pipeline can recover them later.
func (h *DownloadsHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.DownloadURL == "" {
		respondError(w, http.StatusBadRequest, "download_url is required")
		return
	}
	if req.Title == "" {
		respondError(w, http.StatusBadRequest, "title is required")
		return
	}
	savePath, ok := h.savePaths[req.Category]
	if !ok {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown category %q", req.Category))
		return
	}

	err := h.client.AddTorrentFromURL(r.Context(), qbittorrent.AddTorrentOptions{
		DownloadURL: req.DownloadURL,
		SavePath:    savePath,
		Category:    req.Category,
		Tags:        fmt.Sprintf("%s|%s", req.Title, req.Year),
	})
	if err != nil {
		log.Error().Err(err).Str("title", req.Title).Msg("Failed to queue download")
		respondError(w, http.StatusBadGateway, "download client rejected the request")
		return
	}

	metrics.IncDownload("media")
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "queued",
		"title":  req.Title,
	})
}

// Status handles GET /api/status. An optional title parameter adds a media
// server lookup, so a caller can tell a finished download from one that was
// never queued.
func (h *DownloadsHandler) Status(w http.ResponseWriter, r *http.Request) {
	downloads, err := h.client.ActiveDownloads(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to query download status")
		respondError(w, http.StatusBadGateway, "download client unavailable")
		return
	}

	resp := map[string]any{
		"count":     len(downloads),
		"downloads": downloads,
	}

	if title := r.URL.Query().Get("title"); title != "" && h.library != nil {
		if found, err := h.library.IsInLibrary(r.Context(), title); err != nil {
			log.Warn().Err(err).Str("title", title).Msg("Library lookup failed")
		} else {
			resp["title"] = title
			resp["already_in_library"] = found
		}
	}

	respondJSON(w, http.StatusOK, resp)
}
