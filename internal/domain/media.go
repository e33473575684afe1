// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// SizeUnknown is the sentinel used when a source does not report a parseable size.
const SizeUnknown = "unknown"

// SearchResult is one discovered item in the common schema shared by every
// source adapter. Rank is assigned by the aggregator after the final merge,
// never by an adapter.
type SearchResult struct {
	Title       string `json:"title"`
	Size        string `json:"size"`
	Seeders     *int   `json:"seeders,omitempty"`
	DownloadURL string `json:"download_url"`
	Source      string `json:"source"`
	PublishedAt string `json:"pub_date,omitempty"`
	Rank        int    `json:"rank,omitempty"`

	// Ebook catalogs report these; tracker sources leave them empty.
	Author   string `json:"author,omitempty"`
	Year     int    `json:"year,omitempty"`
	Format   string `json:"format,omitempty"`
	CoverURL string `json:"cover_url,omitempty"`
}

// SeedersValue returns the seeder count with absent treated as 0 for sorting.
// Absent and zero stay distinct on the wire.
func (r *SearchResult) SeedersValue() int {
	if r.Seeders == nil {
		return 0
	}
	return *r.Seeders
}

// CompletionRequest describes one finished acquisition as reported by the
// download daemon's completion hook.
type CompletionRequest struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	ContentPath string `json:"content_path"`
	InfoHash    string `json:"info_hash"`
}

// CompletionResult reports what the completion pipeline did. Renamed holds
// path fragments (file or directory names), not absolute paths.
type CompletionResult struct {
	Target           string   `json:"target"`
	Renamed          []string `json:"renamed"`
	Copied           bool     `json:"copied"`
	LibraryRefreshed bool     `json:"library_refreshed"`
}

var videoExtensions = map[string]struct{}{
	".mkv": {}, ".mp4": {}, ".avi": {}, ".m4v": {}, ".ts": {}, ".wmv": {}, ".mov": {},
}

var ebookExtensions = map[string]struct{}{
	".epub": {}, ".pdf": {}, ".cbz": {}, ".cbr": {}, ".mobi": {}, ".azw3": {},
}

// IsVideoExtension reports whether ext (lowercase, with leading dot) belongs
// to the recognized media-extension set used for primary-asset resolution.
func IsVideoExtension(ext string) bool {
	_, ok := videoExtensions[ext]
	return ok
}

// IsEbookExtension reports whether ext is a recognized ebook extension.
func IsEbookExtension(ext string) bool {
	_, ok := ebookExtensions[ext]
	return ok
}
