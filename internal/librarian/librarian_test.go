// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package librarian

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sam9s/media-assistant/internal/domain"
	"github.com/sam9s/media-assistant/internal/search"
	"github.com/sam9s/media-assistant/internal/sources"
)

type stubKavita struct {
	inLibrary bool
	checkErr  error
	scanned   []int
	libraries map[string]int
}

func (s *stubKavita) LibraryID(ctx context.Context, name string) (int, error) {
	if id, ok := s.libraries[name]; ok {
		return id, nil
	}
	return 0, errors.New("no such library")
}

func (s *stubKavita) ScanLibrary(ctx context.Context, libraryID int) error {
	s.scanned = append(s.scanned, libraryID)
	return nil
}

func (s *stubKavita) IsInLibrary(ctx context.Context, title string) (bool, error) {
	return s.inLibrary, s.checkErr
}

type stubCatalog struct {
	name    string
	results []domain.SearchResult
}

func (s *stubCatalog) Name() string { return s.name }

func (s *stubCatalog) Search(ctx context.Context, q sources.Query) ([]domain.SearchResult, error) {
	return s.results, nil
}

func newLibrarian(t *testing.T, kavita *stubKavita, catalogs ...sources.Source) (*Librarian, string) {
	root := t.TempDir()
	ebookPaths := map[string]string{
		"novel": filepath.Join(root, "novels"),
		"comic": filepath.Join(root, "comics"),
	}
	for _, dir := range ebookPaths {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	libraryNames := map[string]string{"novel": "Novels", "comic": "Comics"}
	return New(search.New(catalogs...), kavita, ebookPaths, libraryNames), root
}

func TestSearchDedupesAndFlagsDuplicates(t *testing.T) {
	se := &stubCatalog{name: "standardebooks", results: []domain.SearchResult{
		{Title: "The Great Gatsby", Source: "standardebooks", Size: domain.SizeUnknown},
	}}
	gutenberg := &stubCatalog{name: "gutenberg", results: []domain.SearchResult{
		{Title: "the  great  gatsby", Source: "gutenberg", Size: domain.SizeUnknown},
	}}
	kavita := &stubKavita{inLibrary: true}

	l, _ := newLibrarian(t, kavita, se, gutenberg)
	resp, err := l.Search(context.Background(), "great gatsby", 10)
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.Equal(t, "standardebooks", resp.Results[0].Source)
	assert.True(t, resp.AlreadyInLibrary)
}

func TestSearchDuplicateCheckFailureDegrades(t *testing.T) {
	kavita := &stubKavita{checkErr: errors.New("kavita down")}
	l, _ := newLibrarian(t, kavita, &stubCatalog{name: "gutenberg"})

	resp, err := l.Search(context.Background(), "moby dick", 10)
	require.NoError(t, err)
	assert.False(t, resp.AlreadyInLibrary)
}

func TestDownloadFilesBookAndTriggersScan(t *testing.T) {
	payload := bytes.Repeat([]byte("book"), 1000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	kavita := &stubKavita{libraries: map[string]int{"Novels": 1}}
	l, root := newLibrarian(t, kavita)

	result, err := l.Download(context.Background(), DownloadRequest{
		Title:       "The Great Gatsby",
		Author:      "F. Scott Fitzgerald",
		DownloadURL: srv.URL + "/gatsby.epub",
		Format:      "epub",
		Category:    "novel",
	})
	require.NoError(t, err)

	want := filepath.Join(root, "novels", "F. Scott Fitzgerald", "The Great Gatsby.epub")
	assert.Equal(t, want, result.Path)
	assert.False(t, result.Skipped)
	assert.True(t, result.ScanStarted)
	assert.Equal(t, []int{1}, kavita.scanned)

	got, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestDownloadSkipsExistingFile(t *testing.T) {
	kavita := &stubKavita{libraries: map[string]int{"Novels": 1}}
	l, root := newLibrarian(t, kavita)

	existing := filepath.Join(root, "novels", "Unknown", "Walden.epub")
	require.NoError(t, os.MkdirAll(filepath.Dir(existing), 0o755))
	require.NoError(t, os.WriteFile(existing, []byte("already here"), 0o644))

	result, err := l.Download(context.Background(), DownloadRequest{
		Title:       "Walden",
		DownloadURL: "http://unused.invalid/walden.epub",
		Category:    "novel",
	})
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Empty(t, kavita.scanned)
}

func TestDownloadRejectsTinyPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>rate limited</html>"))
	}))
	defer srv.Close()

	l, root := newLibrarian(t, &stubKavita{})
	_, err := l.Download(context.Background(), DownloadRequest{
		Title:       "Tiny",
		DownloadURL: srv.URL + "/tiny.epub",
		Category:    "novel",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too small")
	assert.NoFileExists(t, filepath.Join(root, "novels", "Unknown", "Tiny.epub"))
}

func TestDownloadUnknownCategoryRejected(t *testing.T) {
	l, _ := newLibrarian(t, &stubKavita{})
	_, err := l.Download(context.Background(), DownloadRequest{
		Title:       "X",
		DownloadURL: "http://unused.invalid/x.epub",
		Category:    "audiobook",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "category")
}

func TestScanResolvesLibraryByCategory(t *testing.T) {
	kavita := &stubKavita{libraries: map[string]int{"Comics": 7}}
	l, _ := newLibrarian(t, kavita)

	require.NoError(t, l.Scan(context.Background(), "comic"))
	assert.Equal(t, []int{7}, kavita.scanned)

	assert.Error(t, l.Scan(context.Background(), "magazine"))
}

func TestStatusListsShelvedBooks(t *testing.T) {
	l, root := newLibrarian(t, &stubKavita{})

	for _, p := range []string{
		filepath.Join(root, "novels", "Herman Melville", "Moby Dick.epub"),
		filepath.Join(root, "comics", "Alan Moore", "Watchmen.cbz"),
		filepath.Join(root, "novels", "Herman Melville", "notes.txt"), // not an ebook
	} {
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("content-that-is-here"), 0o644))
	}

	entries := l.Status()
	require.Len(t, entries, 2)
	assert.Equal(t, "comic", entries[0].Category)
	assert.Equal(t, "Watchmen.cbz", entries[0].File)
	assert.Equal(t, "novel", entries[1].Category)
	assert.Equal(t, "Herman Melville", entries[1].Author)
}
