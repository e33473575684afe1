// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package metrics exposes the service's Prometheus instrumentation. The
// metrics endpoint runs on its own listener so the main API surface and the
// scrape surface can live on different networks.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "media_assistant"

var (
	registerOnce sync.Once

	searchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "searches_total",
		Help:      "Total number of search requests by kind (media, ebook)",
	}, []string{"kind"})
	sourceFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "source_failures_total",
		Help:      "Total number of source fan-out failures by source",
	}, []string{"source"})
	downloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "downloads_total",
		Help:      "Total number of queued or fetched downloads by kind",
	}, []string{"kind"})
	completionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "completions_total",
		Help:      "Total number of completion pipeline runs by outcome",
	}, []string{"outcome"})
	sessionLoginsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_logins_total",
		Help:      "Total number of backend logins by backend",
	}, []string{"backend"})
)

// Register adds the service metrics to the default registry. Idempotent so
// tests constructing the server repeatedly do not panic.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(searchesTotal, sourceFailuresTotal, downloadsTotal, completionsTotal, sessionLoginsTotal)
	})
}

// Handler serves the scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

func IncSearch(kind string)          { searchesTotal.WithLabelValues(kind).Inc() }
func IncSourceFailure(source string) { sourceFailuresTotal.WithLabelValues(source).Inc() }
func IncDownload(kind string)        { downloadsTotal.WithLabelValues(kind).Inc() }
func IncCompletion(outcome string)   { completionsTotal.WithLabelValues(outcome).Inc() }
func IncSessionLogin(backend string) { sessionLoginsTotal.WithLabelValues(backend).Inc() }
