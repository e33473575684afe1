// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sam9s/media-assistant/internal/qbittorrent"
)

type stubDownloadClient struct {
	downloads []qbittorrent.DownloadStatus
}

func (s *stubDownloadClient) AddTorrentFromURL(ctx context.Context, opts qbittorrent.AddTorrentOptions) error {
	return nil
}

func (s *stubDownloadClient) ActiveDownloads(ctx context.Context) ([]qbittorrent.DownloadStatus, error) {
	return s.downloads, nil
}

type stubLibraryChecker struct {
	found bool
	err   error
}

func (s *stubLibraryChecker) IsInLibrary(ctx context.Context, title string) (bool, error) {
	return s.found, s.err
}

func statusBody(t *testing.T, h *DownloadsHandler, url string) map[string]any {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	h.Status(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestStatusWithTitleReportsLibraryMatch(t *testing.T) {
	h := NewDownloadsHandler(&stubDownloadClient{}, &stubLibraryChecker{found: true}, nil)

	body := statusBody(t, h, "/api/status?title=Dune")
	assert.Equal(t, "Dune", body["title"])
	assert.Equal(t, true, body["already_in_library"])
}

func TestStatusWithoutTitleOmitsLibraryFields(t *testing.T) {
	h := NewDownloadsHandler(&stubDownloadClient{}, &stubLibraryChecker{found: true}, nil)

	body := statusBody(t, h, "/api/status")
	assert.NotContains(t, body, "title")
	assert.NotContains(t, body, "already_in_library")
}

func TestStatusTitleCheckDegradesOnLibraryError(t *testing.T) {
	h := NewDownloadsHandler(&stubDownloadClient{}, &stubLibraryChecker{err: assert.AnError}, nil)

	body := statusBody(t, h, "/api/status?title=Dune")
	assert.Equal(t, float64(0), body["count"])
	assert.NotContains(t, body, "already_in_library")
}
