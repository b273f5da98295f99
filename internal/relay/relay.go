// Package relay wires the definitions loader, grouping table, dispatch
// sender, and the HTTP surfaces into one daemon.
package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/influxpipe/influxpipe/internal/definitions"
	"github.com/influxpipe/influxpipe/internal/dispatch"
	"github.com/influxpipe/influxpipe/internal/ingest"
	"github.com/influxpipe/influxpipe/internal/pipeline"
	"github.com/influxpipe/influxpipe/internal/telemetry"
)

// Relay is the top-level orchestrator.
type Relay interface {
	// Start initializes all components and begins relaying.
	Start(ctx context.Context) error
	// Stop shuts down all components gracefully.
	Stop() error
	// Reload applies a new configuration snapshot.
	Reload(cfg *Config)
}

type relay struct {
	log    logrus.FieldLogger
	cfg    *Config
	health *telemetry.Metrics
	store  *definitions.Store
	loader *definitions.Loader
	queue  *pipeline.Queue
	table  *pipeline.Table
	sender *dispatch.Sender
	ingest *ingest.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Relay.
func New(log logrus.FieldLogger, cfg *Config) (Relay, error) {
	health := telemetry.New(log, cfg.Health)
	store := definitions.NewStore()
	queue := pipeline.NewQueue()
	sender := dispatch.NewSender(log, cfg.Influx, queue, health)
	table := pipeline.NewTable(log, store, queue, sender.Enabled, health)

	r := &relay{
		log:    log.WithField("component", "relay"),
		cfg:    cfg,
		health: health,
		store:  store,
		queue:  queue,
		table:  table,
		sender: sender,
		ingest: ingest.NewServer(log, cfg.Ingest, table),
		loader: definitions.NewLoader(
			log, cfg.Definitions,
			definitions.NewClient(cfg.Definitions), store,
		),
	}

	return r, nil
}

func (r *relay) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)

	if err := r.health.Start(ctx); err != nil {
		return fmt.Errorf("starting health metrics: %w", err)
	}

	r.loader.Start(ctx)

	// Flip the definitions gauge once the snapshot lands.
	go func() {
		<-r.loader.Done()

		if r.store.Loaded() {
			r.health.DefinitionsLoaded.Set(1)
		}
	}()

	if err := r.sender.Start(ctx); err != nil {
		return fmt.Errorf("starting sender: %w", err)
	}

	if err := r.ingest.Start(ctx); err != nil {
		return fmt.Errorf("starting ingest server: %w", err)
	}

	if age := r.cfg.Pipeline.IdleFlushAge; age > 0 {
		r.wg.Add(1)

		go r.sweepIdleGroups(ctx, age)
	}

	state := "disabled"
	if r.cfg.Influx.Enabled() {
		state = "enabled"
	}

	r.log.WithField("state", state).Info("Relay started")

	return nil
}

// sweepIdleGroups periodically flushes groups whose identities
// stopped emitting samples.
func (r *relay) sweepIdleGroups(ctx context.Context, age time.Duration) {
	defer r.wg.Done()

	interval := age / 4
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.table.FlushIdle(age)
		}
	}
}

func (r *relay) Stop() error {
	if r.cancel != nil {
		r.cancel()
	}

	r.wg.Wait()

	// Stop in reverse order: refuse new samples first, then stop
	// shipping, then stop reporting.
	if err := r.ingest.Stop(); err != nil {
		r.log.WithError(err).Error("Error stopping ingest server")
	}

	if err := r.sender.Stop(); err != nil {
		r.log.WithError(err).Error("Error stopping sender")
	}

	if err := r.health.Stop(); err != nil {
		r.log.WithError(err).Error("Error stopping health metrics")
	}

	return nil
}

// Reload swaps the dispatch config snapshot. Listener addresses and
// the definitions endpoint require a restart; only the write target
// settings apply live.
func (r *relay) Reload(cfg *Config) {
	r.cfg = cfg
	r.sender.SetConfig(cfg.Influx)
}
