package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the counters below.
const (
	OutcomeOK       = "ok"
	OutcomeEmpty    = "empty"
	OutcomeError    = "error"
	OutcomeRejected = "rejected"
)

var (
	SearchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rivalscout_search_requests_total",
			Help: "Total number of search provider calls",
		},
		[]string{"provider", "outcome"},
	)

	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rivalscout_search_duration_seconds",
			Help:    "Duration of search provider calls in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider"},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rivalscout_cache_lookups_total",
			Help: "Search cache lookups by result",
		},
		[]string{"result"},
	)

	FetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rivalscout_fetch_attempts_total",
			Help: "Content fetch attempts per provider tier",
		},
		[]string{"provider", "outcome"},
	)

	FetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rivalscout_fetch_bytes_total",
			Help: "Total bytes of accepted content per provider tier",
		},
		[]string{"provider"},
	)

	ImageDownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rivalscout_image_downloads_total",
			Help: "Image asset downloads by outcome",
		},
		[]string{"outcome"},
	)

	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rivalscout_extractions_total",
			Help: "Candidate extraction requests by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordSearch updates the search metrics for one provider call.
func RecordSearch(provider string, results int, err error, d time.Duration) {
	outcome := OutcomeOK
	switch {
	case err != nil:
		outcome = OutcomeError
	case results == 0:
		outcome = OutcomeEmpty
	}
	SearchRequestsTotal.WithLabelValues(provider, outcome).Inc()
	SearchDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordCacheLookup counts a cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordFetch updates the fetch metrics for one tier attempt.
func RecordFetch(provider, outcome string, bytes int) {
	FetchAttemptsTotal.WithLabelValues(provider, outcome).Inc()
	if outcome == OutcomeOK {
		FetchBytesTotal.WithLabelValues(provider).Add(float64(bytes))
	}
}

// RecordImage counts one image download attempt.
func RecordImage(ok bool) {
	outcome := OutcomeOK
	if !ok {
		outcome = OutcomeError
	}
	ImageDownloadsTotal.WithLabelValues(outcome).Inc()
}

// RecordExtraction counts one extraction request.
func RecordExtraction(candidates int, err error) {
	outcome := OutcomeOK
	switch {
	case err != nil:
		outcome = OutcomeError
	case candidates == 0:
		outcome = OutcomeEmpty
	}
	ExtractionsTotal.WithLabelValues(outcome).Inc()
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		// Suppress the error from intentional shutdown
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
