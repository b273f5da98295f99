package definitions

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Loader populates a Store from the definitions service, retrying
// with a fixed delay until the service reports success. It runs as a
// background task and exits permanently once the snapshot is
// installed.
type Loader struct {
	log    logrus.FieldLogger
	cfg    Config
	client Client
	store  *Store
	done   chan struct{}
}

// NewLoader creates a loader for the given store.
func NewLoader(log logrus.FieldLogger, cfg Config, client Client, store *Store) *Loader {
	cfg.ApplyDefaults()

	return &Loader{
		log:    log.WithField("component", "definitions"),
		cfg:    cfg,
		client: client,
		store:  store,
		done:   make(chan struct{}),
	}
}

// Start launches the retry loop.
func (l *Loader) Start(ctx context.Context) {
	go l.run(ctx)
}

// Done is closed once a snapshot has been installed or the context
// was cancelled.
func (l *Loader) Done() <-chan struct{} {
	return l.done
}

func (l *Loader) run(ctx context.Context) {
	defer close(l.done)

	attempt := func() error {
		resp, err := l.client.FetchDefinitions(ctx)
		if err != nil {
			return err
		}

		if !resp.Success {
			return fmt.Errorf("definitions service reported failure")
		}

		l.store.Install(resp.Definitions)

		return nil
	}

	b := backoff.WithContext(
		backoff.NewConstantBackOff(l.cfg.RetryInterval), ctx,
	)

	err := backoff.RetryNotify(attempt, b, func(err error, _ time.Duration) {
		l.log.WithError(err).Warn("Loading definitions failed, retrying")
	})
	if err != nil {
		// Context cancelled before the service came up.
		l.log.WithError(err).Debug("Definition loading stopped")

		return
	}

	l.log.Info("Definitions loaded")
}
