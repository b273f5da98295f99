// Package ingest exposes the HTTP surface through which the host
// delivers metric samples.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/influxpipe/influxpipe/internal/metric"
	"github.com/influxpipe/influxpipe/internal/pipeline"
)

// Config configures the ingest server.
type Config struct {
	// Addr is the listen address. Defaults to ":8089".
	Addr string `yaml:"addr"`
}

// Server accepts metric samples over HTTP and feeds them to the
// grouping table. Ingestion itself never fails a request: a
// well-formed payload always gets 204, whatever happens to the
// samples downstream.
type Server struct {
	log      logrus.FieldLogger
	addr     string
	table    *pipeline.Table
	server   *http.Server
	listener net.Listener
}

// NewServer creates an ingest server feeding the given table.
func NewServer(log logrus.FieldLogger, cfg Config, table *pipeline.Table) *Server {
	addr := cfg.Addr
	if addr == "" {
		addr = ":8089"
	}

	return &Server{
		log:   log.WithField("component", "ingest"),
		addr:  addr,
		table: table,
	}
}

// Start begins serving the ingest endpoint.
func (s *Server) Start(_ context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/metrics", s.handleMetrics)

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}

	s.listener = ln

	s.server = &http.Server{
		Handler: mux,
	}

	go func() {
		s.log.WithField("addr", ln.Addr().String()).
			Info("Ingest server started")

		if err := s.server.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("Ingest server error")
		}
	}()

	return nil
}

// Addr returns the actual listener address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}

	return s.addr
}

// Stop shuts down the ingest server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	return s.server.Close()
}

// handleMetrics accepts a single sample object or an array of them.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	samples, err := decodeSamples(r)
	if err != nil {
		s.log.WithError(err).Debug("Rejected ingest payload")
		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	for _, sample := range samples {
		s.table.Ingest(sample)
	}

	w.WriteHeader(http.StatusNoContent)
}

// decodeSamples accepts either one sample object or an array of them.
func decodeSamples(r *http.Request) ([]metric.Sample, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}

	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	if trimmed[0] == '[' {
		var samples []metric.Sample
		if err := json.Unmarshal(body, &samples); err != nil {
			return nil, fmt.Errorf("decoding samples: %w", err)
		}

		return samples, nil
	}

	var sample metric.Sample
	if err := json.Unmarshal(body, &sample); err != nil {
		return nil, fmt.Errorf("decoding sample: %w", err)
	}

	return []metric.Sample{sample}, nil
}
