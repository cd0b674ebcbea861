// Package metrics exposes Prometheus collectors for the archiver.
package metrics

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	archiveEntriesTotal *prometheus.CounterVec
	fetchAttemptsTotal  *prometheus.CounterVec
	fetchRetriesTotal   *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		archiveEntriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_entries_total",
				Help: "Total number of processed entries, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_fetch_attempts_total",
				Help: "Total number of fetch attempts, labeled by host.",
			},
			[]string{"host"},
		)

		fetchRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_fetch_retries_total",
				Help: "Total number of fetch retries, labeled by host.",
			},
			[]string{"host"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server exposes the collectors over HTTP for the duration of one run,
// so a scrape during a long archival pass can observe progress.
type Server struct {
	listener net.Listener
	srv      *http.Server
}

// NewServer starts serving /metrics on addr. The caller owns the server
// and must Close it when the run ends.
func NewServer(addr string) (*Server, error) {
	Init()

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	s := &Server{
		listener: listener,
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
	go func() {
		_ = s.srv.Serve(listener)
	}()
	return s, nil
}

// Addr reports the bound listen address, useful when addr requested an
// ephemeral port.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Close stops the listener.
func (s *Server) Close() error {
	return s.srv.Close()
}

// ObserveEntry increments the entry counter for the given outcome.
func ObserveEntry(outcome string) {
	Init()
	archiveEntriesTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetchAttempt increments the attempt counter for host.
func ObserveFetchAttempt(host string) {
	Init()
	fetchAttemptsTotal.WithLabelValues(host).Inc()
}

// ObserveFetchRetry increments the retry counter for host.
func ObserveFetchRetry(host string) {
	Init()
	fetchRetriesTotal.WithLabelValues(host).Inc()
}
