// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sam9s/media-assistant/internal/api"
	"github.com/sam9s/media-assistant/internal/api/handlers"
	"github.com/sam9s/media-assistant/internal/buildinfo"
	"github.com/sam9s/media-assistant/internal/config"
	"github.com/sam9s/media-assistant/internal/domain"
	"github.com/sam9s/media-assistant/internal/jellyfin"
	"github.com/sam9s/media-assistant/internal/kavita"
	"github.com/sam9s/media-assistant/internal/librarian"
	"github.com/sam9s/media-assistant/internal/metrics"
	"github.com/sam9s/media-assistant/internal/pipeline"
	"github.com/sam9s/media-assistant/internal/qbittorrent"
	"github.com/sam9s/media-assistant/internal/search"
	"github.com/sam9s/media-assistant/internal/sources"
	"github.com/sam9s/media-assistant/internal/tmdb"
)

func main() {
	config.InitDefaultLogger(buildinfo.Version)

	var rootCmd = &cobra.Command{
		Use:   "media-assistant",
		Short: "A self-hosted media search and download assistant",
		Long: `media-assistant - search trackers and ebook catalogs, queue downloads,
and file completed content into your media libraries.`,
	}

	rootCmd.Version = buildinfo.Version

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunVersionCommand(buildinfo.Version))
	rootCmd.AddCommand(RunGenerateConfigCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func RunServeCommand() *cobra.Command {
	var (
		configDir string
		logPath   string
	)

	var command = &cobra.Command{
		Use:   "serve",
		Short: "Start the server",
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory path (default is OS-specific: ~/.config/media-assistant/ or %APPDATA%\\media-assistant\\). Can also be a direct path to a .toml file")
	command.Flags().StringVar(&logPath, "log-path", "", "log file path (default is stdout)")

	command.Run = func(cmd *cobra.Command, args []string) {
		runServer(configDir, logPath)
	}

	return command
}

func RunVersionCommand(version string) *cobra.Command {
	var command = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of media-assistant",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	return command
}

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a default configuration file",
		Long: `Generate a default configuration file without starting the server.

If no --config-dir is specified, uses the OS-specific default location:
- Linux/macOS: ~/.config/media-assistant/config.toml
- Windows: %APPDATA%\media-assistant\config.toml

You can specify either a directory path or a direct file path:
- Directory: media-assistant generate-config --config-dir /path/to/config/
- File: media-assistant generate-config --config-dir /path/to/myconfig.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var configPath string
			if configDir != "" {
				if strings.HasSuffix(strings.ToLower(configDir), ".toml") {
					configPath = configDir
				} else if info, err := os.Stat(configDir); err == nil && !info.IsDir() {
					configPath = configDir
				} else {
					configPath = filepath.Join(configDir, "config.toml")
				}
			} else {
				defaultDir := config.GetDefaultConfigDir()
				configPath = filepath.Join(defaultDir, "config.toml")
			}

			if _, err := os.Stat(configPath); err == nil {
				cmd.Printf("Configuration file already exists at: %s\n", configPath)
				cmd.Println("Skipping generation to avoid overwriting existing configuration.")
				return nil
			}

			if err := config.WriteDefaultConfig(configPath); err != nil {
				return fmt.Errorf("failed to create configuration file: %w", err)
			}

			cmd.Printf("Configuration file created successfully at: %s\n", configPath)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")

	return command
}

func runServer(configDir, logPath string) {
	cfg, err := config.New(configDir, buildinfo.Version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize configuration")
	}

	if logPath != "" {
		cfg.Config.LogPath = logPath
	}

	cfg.ApplyLogConfig()

	log.Info().Str("version", buildinfo.Version).Msg("Starting media-assistant")

	// Download client. The rest of the backends are optional; qBittorrent
	// is where everything lands, so it is always constructed.
	qbt := qbittorrent.NewClient(cfg.Config.QBittorrentURL, cfg.Config.QBittorrentUsername, cfg.Config.QBittorrentPassword)

	var metadata handlers.MetadataLookup
	if cfg.Config.TMDBAPIKey != "" {
		metadata = tmdb.NewClient(cfg.Config.TMDBAPIKey)
	} else {
		log.Warn().Msg("No TMDB API key configured - search results will carry no metadata")
	}

	var library handlers.LibraryChecker
	var refresher pipeline.LibraryRefresher
	if cfg.Config.JellyfinURL != "" && cfg.Config.JellyfinAPIKey != "" {
		jf := jellyfin.NewClient(cfg.Config.JellyfinURL, cfg.Config.JellyfinAPIKey)
		library = jf
		refresher = jf
	} else {
		log.Warn().Msg("No Jellyfin server configured - library refresh and duplicate checks disabled")
	}

	var ebookLibrary librarian.LibraryService
	if cfg.Config.KavitaURL != "" {
		ebookLibrary = kavita.NewClient(cfg.Config.KavitaURL, cfg.Config.KavitaUsername, cfg.Config.KavitaPassword)
	} else {
		log.Warn().Msg("No Kavita server configured - ebook library scans disabled")
	}

	// Registration order is merge priority: PrivateHD first, then the
	// Jackett all-indexer query, then IPTorrents RSS.
	var mediaSources []sources.Source
	if cfg.Config.JackettURL != "" && cfg.Config.JackettAPIKey != "" {
		if cfg.Config.PrivateHDEnabled {
			mediaSources = append(mediaSources, sources.NewTorznabSource("privatehd", cfg.Config.JackettURL, cfg.Config.JackettAPIKey, "privatehd"))
		}
		mediaSources = append(mediaSources, sources.NewTorznabSource("jackett", cfg.Config.JackettURL, cfg.Config.JackettAPIKey, "all"))
	}
	if cfg.Config.IPTorrentsRSSURL != "" {
		mediaSources = append(mediaSources, sources.NewRSSSource("iptorrents", cfg.Config.IPTorrentsRSSURL))
	}
	if len(mediaSources) == 0 {
		log.Warn().Msg("No tracker sources configured - media search will return nothing")
	}
	mediaSearch := search.New(mediaSources...)

	ebookSearch := search.New(
		sources.NewStandardEbooksSource(),
		sources.NewGutendexSource(),
		sources.NewArchiveSource(),
	)

	completionPipeline := pipeline.New(qbt, refresher, cfg.Config.MediaPaths)
	bookLibrarian := librarian.New(ebookSearch, ebookLibrary, cfg.Config.EbookPaths, domain.EbookLibraryNames)

	httpServer := api.NewServer(&api.Dependencies{
		Config:      cfg,
		Version:     buildinfo.Version,
		MediaSearch: mediaSearch,
		Metadata:    metadata,
		Library:     library,
		Downloads:   qbt,
		Pipeline:    completionPipeline,
		Librarian:   bookLibrarian,
	})

	errorChannel := make(chan error)
	serverReady := make(chan struct{}, 1)
	go func() {
		if err := httpServer.ListenAndServeReady(serverReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errorChannel <- err
		}
	}()

	select {
	case <-serverReady:
	case err := <-errorChannel:
		log.Fatal().Err(err).Msg("failed to start HTTP server")
	}

	if cfg.Config.MetricsEnabled {
		metrics.Register()

		go func() {
			addr := fmt.Sprintf("%s:%d", cfg.Config.MetricsHost, cfg.Config.MetricsPort)
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())

			log.Info().Str("addr", addr).Msg("Starting metrics server")
			errorChannel <- (&http.Server{Addr: addr, Handler: mux}).ListenAndServe()
		}()
	}

	// Wait for interrupt signal to gracefully shutdown the server
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Msgf("got signal %v, shutting down server", sig.String())
	case err := <-errorChannel:
		log.Error().Err(err).Msg("got unexpected error from server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("got error during graceful http shutdown")

		os.Exit(1)
	}

	os.Exit(0)
}
