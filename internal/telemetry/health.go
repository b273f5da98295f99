// Package telemetry exposes Prometheus metrics for pipeline health.
package telemetry

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Config configures the health metrics server.
type Config struct {
	// Addr is the listen address for the health metrics server.
	// Defaults to ":9090".
	Addr string `yaml:"addr"`
}

// Metrics exposes Prometheus metrics for pipeline health. All
// components accept a nil *Metrics and skip recording.
type Metrics struct {
	log      logrus.FieldLogger
	addr     string
	server   *http.Server
	listener net.Listener
	registry *prometheus.Registry

	// Ingestion.
	SamplesReceived prometheus.Counter
	SamplesDropped  *prometheus.CounterVec // reason
	GroupsClosed    prometheus.Counter
	OpenGroups      prometheus.Gauge

	// Dispatch.
	QueueLength    prometheus.Gauge
	BatchesSent    prometheus.Counter
	BatchEntries   prometheus.Histogram
	DeliveryErrors *prometheus.CounterVec // error_type

	// Definitions.
	DefinitionsLoaded prometheus.Gauge

	running atomic.Bool
}

// New creates a new health metrics server.
func New(log logrus.FieldLogger, cfg Config) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		log:      log.WithField("component", "telemetry"),
		addr:     cfg.Addr,
		registry: reg,

		SamplesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "influxpipe",
			Name:      "samples_received_total",
			Help:      "Total metric samples received by the grouping table.",
		}),
		SamplesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "influxpipe",
				Name:      "samples_dropped_total",
				Help:      "Total samples dropped by reason.",
			},
			[]string{"reason"},
		),
		GroupsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "influxpipe",
			Name:      "groups_closed_total",
			Help:      "Total groups closed and queued for dispatch.",
		}),
		OpenGroups: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "influxpipe",
			Name:      "open_groups",
			Help:      "Number of currently open groups across all buckets.",
		}),
		QueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "influxpipe",
			Name:      "queue_length",
			Help:      "Number of entries waiting in the dispatch queue.",
		}),
		BatchesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "influxpipe",
			Name:      "batches_sent_total",
			Help:      "Total batches posted to the write endpoint.",
		}),
		BatchEntries: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "influxpipe",
			Name:      "batch_entries",
			Help:      "Number of entries per posted batch.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}),
		DeliveryErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "influxpipe",
				Name:      "delivery_errors_total",
				Help:      "Total delivery failures by error type.",
			},
			[]string{"error_type"},
		),
		DefinitionsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "influxpipe",
			Name:      "definitions_loaded",
			Help:      "Whether the definitions snapshot is installed (1=yes, 0=no).",
		}),
	}

	reg.MustRegister(
		m.SamplesReceived,
		m.SamplesDropped,
		m.GroupsClosed,
		m.OpenGroups,
		m.QueueLength,
		m.BatchesSent,
		m.BatchEntries,
		m.DeliveryErrors,
		m.DefinitionsLoaded,
	)

	return m
}

// Start begins serving the /metrics endpoint.
func (m *Metrics) Start(_ context.Context) error {
	if m.addr == "" {
		m.addr = ":9090"
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		m.registry,
		promhttp.HandlerOpts{},
	))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	// pprof endpoints for CPU/memory profiling.
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	ln, err := net.Listen("tcp", m.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", m.addr, err)
	}

	m.listener = ln

	m.server = &http.Server{
		Handler: mux,
	}

	m.running.Store(true)

	go func() {
		m.log.WithField("addr", ln.Addr().String()).
			Info("Health metrics server started")

		if err := m.server.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			m.log.WithError(err).
				Error("Health metrics server error")
		}

		m.running.Store(false)
	}()

	return nil
}

// Addr returns the actual listener address. Useful when started
// with ":0" to get the OS-assigned port.
func (m *Metrics) Addr() string {
	if m.listener != nil {
		return m.listener.Addr().String()
	}

	return m.addr
}

// Stop shuts down the health metrics server.
func (m *Metrics) Stop() error {
	if m.server == nil {
		return nil
	}

	return m.server.Close()
}
