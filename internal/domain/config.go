// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

type Config struct {
	Version string

	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"apiKey"`

	LogLevel      string `mapstructure:"logLevel"`
	LogPath       string `mapstructure:"logPath"`
	LogMaxSize    int    `mapstructure:"logMaxSize"`
	LogMaxBackups int    `mapstructure:"logMaxBackups"`

	MetricsEnabled bool   `mapstructure:"metricsEnabled"`
	MetricsHost    string `mapstructure:"metricsHost"`
	MetricsPort    int    `mapstructure:"metricsPort"`

	QBittorrentURL      string `mapstructure:"qbittorrentUrl"`
	QBittorrentUsername string `mapstructure:"qbittorrentUsername"`
	QBittorrentPassword string `mapstructure:"qbittorrentPassword"`

	JackettURL    string `mapstructure:"jackettUrl"`
	JackettAPIKey string `mapstructure:"jackettApiKey"`

	// Dedicated PrivateHD indexer behind the same Jackett proxy, searched
	// ahead of the all-indexer query when enabled.
	PrivateHDEnabled bool `mapstructure:"privatehdEnabled"`

	// Full RSS URL without the q= search param; the query is appended at search time.
	IPTorrentsRSSURL string `mapstructure:"iptorrentsRssUrl"`

	JellyfinURL    string `mapstructure:"jellyfinUrl"`
	JellyfinAPIKey string `mapstructure:"jellyfinApiKey"`

	KavitaURL      string `mapstructure:"kavitaUrl"`
	KavitaUsername string `mapstructure:"kavitaUsername"`
	KavitaPassword string `mapstructure:"kavitaPassword"`

	TMDBAPIKey string `mapstructure:"tmdbApiKey"`

	// Where the download daemon drops completed content, per category.
	SavePaths map[string]string `mapstructure:"savePaths"`
	// Where completed and renamed content is copied for the library, per category.
	MediaPaths map[string]string `mapstructure:"mediaPaths"`
	// Ebook library directories, per ebook category.
	EbookPaths map[string]string `mapstructure:"ebookPaths"`
}

// DefaultSavePaths mirrors the download daemon's completed-download layout.
func DefaultSavePaths() map[string]string {
	return map[string]string{
		"hollywood":     "/downloads/complete/Movies/Hollywood",
		"hindi":         "/downloads/complete/Movies/Hindi",
		"tv-hollywood":  "/downloads/complete/TV/Hollywood",
		"tv-indian":     "/downloads/complete/TV/Indian",
		"music-english": "/downloads/complete/Music/English",
		"music-hindi":   "/downloads/complete/Music/Hindi",
		"music-punjabi": "/downloads/complete/Music/Punjabi",
	}
}

// DefaultMediaPaths points at the library tree watched by Jellyfin.
func DefaultMediaPaths() map[string]string {
	return map[string]string{
		"hollywood":     "/media/Movies/Hollywood",
		"hindi":         "/media/Movies/Hindi",
		"tv-hollywood":  "/media/TV/Hollywood",
		"tv-indian":     "/media/TV/Indian",
		"music-english": "/media/Music/English",
		"music-hindi":   "/media/Music/Hindi",
		"music-punjabi": "/media/Music/Punjabi",
	}
}

// DefaultEbookPaths points at the library tree watched by Kavita.
func DefaultEbookPaths() map[string]string {
	return map[string]string{
		"novel":    "/media/Books",
		"comic":    "/media/Comics",
		"magazine": "/media/Magazines",
	}
}

// EbookLibraryNames maps ebook categories to Kavita library name fragments
// used for scan resolution.
var EbookLibraryNames = map[string]string{
	"novel":    "novels",
	"comic":    "comics",
	"magazine": "magazines",
}
