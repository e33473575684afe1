// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package librarian runs the ebook side of the house: catalog search with
// duplicate suppression, direct download into the ebook tree, and Kavita
// scan triggers.
package librarian

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/sam9s/media-assistant/internal/buildinfo"
	"github.com/sam9s/media-assistant/internal/domain"
	"github.com/sam9s/media-assistant/internal/pipeline"
	"github.com/sam9s/media-assistant/internal/search"
)

// Catalog downloads are slow; public archives throttle hard. Anything under
// the size floor is an HTML error page, not a book.
const (
	downloadTimeout = 120 * time.Second
	minEbookBytes   = 1000
)

// LibraryService is the slice of the Kavita client the librarian needs.
type LibraryService interface {
	LibraryID(ctx context.Context, name string) (int, error)
	ScanLibrary(ctx context.Context, libraryID int) error
	IsInLibrary(ctx context.Context, title string) (bool, error)
}

type Librarian struct {
	aggregator   *search.Aggregator
	kavita       LibraryService
	http         *http.Client
	ebookPaths   map[string]string
	libraryNames map[string]string
}

// New builds a librarian. ebookPaths maps category (novel, comic, magazine)
// to its download directory; libraryNames maps the same categories to
// Kavita library names. kavita may be nil when no server is configured.
func New(aggregator *search.Aggregator, kavita LibraryService, ebookPaths, libraryNames map[string]string) *Librarian {
	return &Librarian{
		aggregator:   aggregator,
		kavita:       kavita,
		http:         &http.Client{Timeout: downloadTimeout},
		ebookPaths:   ebookPaths,
		libraryNames: libraryNames,
	}
}

// SearchResponse adds the duplicate flag to the merged catalog results: true
// when the queried title already lives on the ebook server.
type SearchResponse struct {
	Results          []domain.SearchResult `json:"results"`
	Sources          map[string]int        `json:"sources"`
	AlreadyInLibrary bool                  `json:"already_in_library"`
}

// Search fans out across the ebook catalogs with cross-source dedup. The
// duplicate check is advisory; a Kavita outage degrades it to false.
func (l *Librarian) Search(ctx context.Context, query string, limit int) (*SearchResponse, error) {
	merged := l.aggregator.Search(ctx, search.Options{
		Query:  query,
		Limit:  limit,
		Dedupe: true,
	})

	resp := &SearchResponse{Results: merged.Results, Sources: merged.Sources}

	if l.kavita != nil {
		inLibrary, err := l.kavita.IsInLibrary(ctx, query)
		if err != nil {
			log.Warn().Err(err).Str("query", query).Msg("Duplicate check unavailable")
		} else {
			resp.AlreadyInLibrary = inLibrary
		}
	}

	return resp, nil
}

// DownloadRequest asks for one catalog item to be fetched into the tree.
type DownloadRequest struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	DownloadURL string `json:"download_url"`
	Format      string `json:"format"`
	Category    string `json:"category"`
}

// DownloadResult reports where the book landed.
type DownloadResult struct {
	Path        string `json:"path"`
	Skipped     bool   `json:"skipped"`
	ScanStarted bool   `json:"scan_started"`
}

// Download fetches the book and files it under {category}/{Author}/{Title}.
// An existing file is never overwritten. A successful download triggers a
// Kavita scan of the matching library, best-effort.
func (l *Librarian) Download(ctx context.Context, req DownloadRequest) (*DownloadResult, error) {
	root, ok := l.ebookPaths[req.Category]
	if !ok {
		return nil, fmt.Errorf("no ebook path configured for category %q", req.Category)
	}

	author := pipeline.SafeName(req.Author)
	if author == "" {
		author = "Unknown"
	}
	title := pipeline.SafeName(req.Title)
	if title == "" {
		return nil, errors.New("title is empty after sanitizing")
	}
	format := strings.TrimPrefix(strings.ToLower(req.Format), ".")
	if format == "" {
		format = "epub"
	}

	dest := filepath.Join(root, author, fmt.Sprintf("%s.%s", title, format))
	if _, err := os.Stat(dest); err == nil {
		log.Info().Str("path", dest).Msg("Book already downloaded, skipping")
		return &DownloadResult{Path: dest, Skipped: true}, nil
	}

	if err := l.fetchTo(ctx, req.DownloadURL, dest); err != nil {
		return nil, err
	}

	result := &DownloadResult{Path: dest}
	if err := l.Scan(ctx, req.Category); err != nil {
		log.Warn().Err(err).Str("category", req.Category).Msg("Post-download scan failed, book is on disk")
	} else {
		result.ScanStarted = true
	}
	return result, nil
}

func (l *Librarian) fetchTo(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent)

	resp, err := l.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "download book")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download book: unexpected status %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read book payload")
	}
	if len(payload) < minEbookBytes {
		return fmt.Errorf("payload too small (%d bytes), likely an error page", len(payload))
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, payload, 0o644)
}

// Scan triggers a Kavita rescan of the library backing a category.
func (l *Librarian) Scan(ctx context.Context, category string) error {
	if l.kavita == nil {
		return errors.New("no ebook server configured")
	}
	name, ok := l.libraryNames[category]
	if !ok {
		return fmt.Errorf("no library mapped for category %q", category)
	}

	id, err := l.kavita.LibraryID(ctx, name)
	if err != nil {
		return err
	}
	return l.kavita.ScanLibrary(ctx, id)
}

// ShelfEntry is one downloaded book as reported by the status endpoint.
type ShelfEntry struct {
	Category string `json:"category"`
	Author   string `json:"author"`
	File     string `json:"file"`
	Size     int64  `json:"size"`
}

// Status walks the ebook tree and lists what is on disk, grouped by
// category and sorted by file name.
func (l *Librarian) Status() []ShelfEntry {
	var entries []ShelfEntry

	for category, root := range l.ebookPaths {
		filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return nil
			}
			if !domain.IsEbookExtension(strings.ToLower(filepath.Ext(path))) {
				return nil
			}
			entries = append(entries, ShelfEntry{
				Category: category,
				Author:   filepath.Base(filepath.Dir(path)),
				File:     filepath.Base(path),
				Size:     info.Size(),
			})
			return nil
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Category != entries[j].Category {
			return entries[i].Category < entries[j].Category
		}
		return entries[i].File < entries[j].File
	})
	return entries
}
