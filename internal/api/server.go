// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/CAFxX/httpcompression"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sam9s/media-assistant/internal/api/handlers"
	"github.com/sam9s/media-assistant/internal/config"
	"github.com/sam9s/media-assistant/internal/librarian"
	"github.com/sam9s/media-assistant/internal/search"
)

type Server struct {
	server  *http.Server
	logger  zerolog.Logger
	config  *config.AppConfig
	version string

	mediaSearch *search.Aggregator
	metadata    handlers.MetadataLookup
	library     handlers.LibraryChecker
	downloads   handlers.DownloadClient
	pipeline    handlers.Completer
	librarian   *librarian.Librarian
}

type Dependencies struct {
	Config  *config.AppConfig
	Version string

	// MediaSearch fans queries out across the tracker sources.
	MediaSearch *search.Aggregator
	// Metadata decorates search responses; nil when TMDB is not configured.
	Metadata handlers.MetadataLookup
	// Library answers already-in-library checks; nil without a media server.
	Library handlers.LibraryChecker
	// Downloads is the torrent client surface for queueing and status.
	Downloads handlers.DownloadClient
	// Pipeline runs post-download completion.
	Pipeline handlers.Completer
	// Librarian serves the ebook endpoints.
	Librarian *librarian.Librarian
}

func NewServer(deps *Dependencies) *Server {
	return &Server{
		server: &http.Server{
			ReadHeaderTimeout: time.Second * 15,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      120 * time.Second,
			IdleTimeout:       180 * time.Second,
		},
		logger:      log.Logger.With().Str("module", "api").Logger(),
		config:      deps.Config,
		version:     deps.Version,
		mediaSearch: deps.MediaSearch,
		metadata:    deps.Metadata,
		library:     deps.Library,
		downloads:   deps.Downloads,
		pipeline:    deps.Pipeline,
		librarian:   deps.Librarian,
	}
}

func (s *Server) ListenAndServe() error {
	return s.open(nil)
}

// ListenAndServeReady behaves like ListenAndServe but signals once the listener is active.
func (s *Server) ListenAndServeReady(ready chan<- struct{}) error {
	return s.open(ready)
}

func (s *Server) open(ready chan<- struct{}) error {
	addr := fmt.Sprintf("%s:%d", s.config.Config.Host, s.config.Config.Port)

	var lastErr error
	for _, proto := range []string{"tcp", "tcp4", "tcp6"} {
		err := s.tryToServe(addr, proto, ready)
		if err == nil {
			return nil
		}

		if errors.Is(err, http.ErrServerClosed) {
			return err
		}

		s.logger.Error().Err(err).Str("addr", addr).Str("proto", proto).Msgf("Failed to start server")
		lastErr = err
	}

	return lastErr
}

func (s *Server) tryToServe(addr, protocol string, ready chan<- struct{}) error {
	listener, err := net.Listen(protocol, addr)
	if err != nil {
		return err
	}

	host := listener.Addr().String()
	// Replace 0.0.0.0 or :: with localhost for clickable links
	if strings.HasPrefix(host, "0.0.0.0:") || strings.HasPrefix(host, "[::]:") {
		host = strings.Replace(host, "0.0.0.0:", "localhost:", 1)
		host = strings.Replace(host, "[::]:", "localhost:", 1)
	}

	s.logger.Info().
		Str("protocol", protocol).
		Str("addr", listener.Addr().String()).
		Msgf("Starting API server - Open: http://%s", host)

	s.server.Handler = s.Handler()

	if ready != nil {
		select {
		case ready <- struct{}{}:
		default:
		}
	}

	return s.server.Serve(listener)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) Handler() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	// HTTP compression - handles gzip, brotli, zstd, deflate automatically
	compressor, err := httpcompression.DefaultAdapter(
		httpcompression.MinSize(1024),
		httpcompression.GzipCompressionLevel(2),
		httpcompression.Prefer(httpcompression.PreferServer),
	)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create HTTP compression adapter")
	} else {
		r.Use(compressor)
	}

	corsMiddleware := cors.New(cors.Options{
		AllowCredentials: true,
		AllowedMethods:   []string{"HEAD", "OPTIONS", "GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowOriginFunc:  func(origin string) bool { return true },
		MaxAge:           300,
	})
	r.Use(corsMiddleware.Handler)

	healthHandler := handlers.NewHealthHandler(s.version)
	searchHandler := handlers.NewSearchHandler(s.mediaSearch, s.metadata, s.library)
	downloadsHandler := handlers.NewDownloadsHandler(s.downloads, s.library, s.config.Config.SavePaths)
	completionHandler := handlers.NewCompletionHandler(s.pipeline)
	librarianHandler := handlers.NewLibrarianHandler(s.librarian)

	r.Get("/health", healthHandler.HandleHealth)
	r.Get("/healthz/readiness", healthHandler.HandleReady)
	r.Get("/healthz/liveness", healthHandler.HandleLiveness)

	r.Route("/api", func(r chi.Router) {
		r.Use(requireAPIKey(s.config.Config.APIKey))

		r.Get("/search", searchHandler.Search)
		r.Post("/download", downloadsHandler.Add)
		r.Get("/status", downloadsHandler.Status)
		r.Post("/complete", completionHandler.Complete)

		librarianHandler.Routes(r)
	})

	return r
}
