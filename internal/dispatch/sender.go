// Package dispatch drains the queue in bounded batches and posts them
// to the InfluxDB write endpoint.
package dispatch

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"

	"github.com/influxpipe/influxpipe/internal/pipeline"
	"github.com/influxpipe/influxpipe/internal/telemetry"
)

const (
	// drainInterval is the fixed sleep between sender cycles,
	// whether or not work was done.
	drainInterval = 100 * time.Millisecond

	// statsInterval is how often the rolling batch/queue statistics
	// are logged and reset.
	statsInterval = 30 * time.Minute

	// productTag identifies this sender to the backend.
	productTag = "influxpipe"
)

// Sender is the background loop shipping queued entries to the
// backend. Delivery is best-effort, at-most-once: a failed batch is
// logged and discarded, never requeued. The loop runs forever; no
// delivery fault stops it.
type Sender struct {
	log    logrus.FieldLogger
	queue  *pipeline.Queue
	health *telemetry.Metrics
	client *http.Client
	stats  *window

	// cfg is an atomically swappable snapshot so a reload takes
	// effect between cycles without coordination.
	cfg atomic.Pointer[Config]

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSender creates a sender draining the given queue.
func NewSender(
	log logrus.FieldLogger,
	cfg Config,
	queue *pipeline.Queue,
	health *telemetry.Metrics,
) *Sender {
	cfg.ApplyDefaults()

	s := &Sender{
		log:    log.WithField("component", "dispatch"),
		queue:  queue,
		health: health,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				// The operator trusts the configured endpoint.
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
		},
		stats: newWindow(time.Now()),
		done:  make(chan struct{}),
	}

	s.cfg.Store(&cfg)

	return s
}

// Enabled reports whether the current config snapshot has a write
// target. The grouping table consults this per sample.
func (s *Sender) Enabled() bool {
	return s.cfg.Load().Enabled()
}

// SetConfig atomically swaps the config snapshot.
func (s *Sender) SetConfig(cfg Config) {
	cfg.ApplyDefaults()
	s.cfg.Store(&cfg)

	state := "disabled"
	if cfg.Enabled() {
		state = "enabled"
	}

	s.log.WithField("state", state).Info("Dispatch config applied")
}

// Start launches the sender loop.
func (s *Sender) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	go s.run(ctx)

	return nil
}

// Stop terminates the sender loop. Entries still queued are left in
// place; they are lost with the process, consistent with best-effort
// delivery.
func (s *Sender) Stop() error {
	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done

	return nil
}

func (s *Sender) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

// cycle drains one bounded batch and posts it. Faults are logged and
// the drained entries discarded.
func (s *Sender) cycle(ctx context.Context) {
	cfg := s.cfg.Load()
	if !cfg.Enabled() {
		// Leave the queue alone so a config fix can still deliver
		// whatever is pending.
		return
	}

	batch := s.drain(cfg.BatchSize)
	if len(batch) == 0 {
		return
	}

	residual := s.queue.Len()
	s.stats.record(len(batch), residual)

	if s.health != nil {
		s.health.QueueLength.Set(float64(residual))
		s.health.BatchEntries.Observe(float64(len(batch)))
	}

	if err := s.post(ctx, cfg, batch); err != nil {
		s.log.WithError(err).Warn("Error sending from queue")

		if s.health != nil {
			s.health.DeliveryErrors.WithLabelValues("transport").Inc()
		}

		// The report only runs after a completed request.
		return
	}

	now := time.Now()
	if s.stats.reportDue(now, statsInterval) {
		batches, queues := s.stats.flush(now)

		s.log.WithFields(logrus.Fields{
			"min": fmt.Sprintf("%.2f", queues.Min),
			"avg": fmt.Sprintf("%.2f", queues.Avg),
			"max": fmt.Sprintf("%.2f", queues.Max),
		}).Info("Queue size stats")
		s.log.WithFields(logrus.Fields{
			"min": fmt.Sprintf("%.2f", batches.Min),
			"avg": fmt.Sprintf("%.2f", batches.Avg),
			"max": fmt.Sprintf("%.2f", batches.Max),
		}).Info("Batch size stats")
	}
}

// drain pops up to limit entries, fewer if the queue empties first.
func (s *Sender) drain(limit int) []string {
	batch := make([]string, 0, limit)

	for len(batch) < limit {
		entry, ok := s.queue.Pop()
		if !ok {
			break
		}

		batch = append(batch, entry)
	}

	return batch
}

func (s *Sender) post(ctx context.Context, cfg *Config, batch []string) error {
	body := []byte(strings.Join(batch, "\n"))

	var encoding string

	if cfg.Compression == CompressionGzip {
		compressed, err := compressGzip(body)
		if err != nil {
			return fmt.Errorf("compressing batch: %w", err)
		}

		body = compressed
		encoding = "gzip"
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, cfg.WriteEndpoint(), bytes.NewReader(body),
	)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("X-Requested-With", productTag)

	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}

	if cfg.Username != "" {
		req.SetBasicAuth(cfg.Username, cfg.Password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		// The batch is already popped; it is not requeued.
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		s.log.WithFields(logrus.Fields{
			"status":   resp.StatusCode,
			"response": string(text),
		}).Warn("Send failed")

		if s.health != nil {
			s.health.DeliveryErrors.WithLabelValues("status").Inc()
		}

		return nil
	}

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	if s.health != nil {
		s.health.BatchesSent.Inc()
	}

	s.log.WithField("entries", len(batch)).Debug("Batch sent")

	return nil
}

func compressGzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w := gzip.NewWriter(&buf)

	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("writing gzip data: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}

	return buf.Bytes(), nil
}
