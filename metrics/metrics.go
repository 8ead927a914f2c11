// Package metrics exposes Prometheus instrumentation for the custody
// backend and a standalone metrics HTTP server.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	recordOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "custody_record_operations_total",
		Help: "Record operations by kind and outcome.",
	}, []string{"operation", "outcome"})

	recordOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "custody_record_operation_duration_seconds",
		Help:    "End to end duration of record operations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	ledgerSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "custody_ledger_submissions_total",
		Help: "State-changing ledger submissions by method and outcome.",
	}, []string{"method", "outcome"})
)

// RecordOp counts one record operation. Outcome is "ok" or "error".
func RecordOp(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	recordOps.WithLabelValues(operation, outcome).Inc()
}

// ObserveOp records the duration of one record operation.
func ObserveOp(operation string, start time.Time) {
	recordOpDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// LedgerSubmission counts one state-changing ledger call.
func LedgerSubmission(method string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ledgerSubmissions.WithLabelValues(method, outcome).Inc()
}

// MetricsServer serves the Prometheus endpoint on its own listener, kept
// separate from the API server so scrapes survive API drain.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server for the given namespace and listen address.
func New(namespace, addr string) (*MetricsServer, error) {
	registry := prometheus.DefaultRegisterer.(*prometheus.Registry)
	if err := registry.Register(collectors.NewBuildInfoCollector()); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			return nil, err
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	return &MetricsServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// ListenAndServe blocks serving the metrics endpoint.
func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
