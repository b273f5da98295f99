package relay

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRelay_EndToEnd drives a sample through ingest, grouping,
// rendering, and batched dispatch against stub backends.
func TestRelay_EndToEnd(t *testing.T) {
	defsServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"success": true,
			"definitions": {
				"OpenMotics": {"energy": {"power": {"tags": ["id"]}}}
			}
		}`))
	}))
	defer defsServer.Close()

	var (
		mu     sync.Mutex
		bodies []string
	)

	influxServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		mu.Lock()
		bodies = append(bodies, string(body))
		mu.Unlock()

		w.WriteHeader(http.StatusNoContent)
	}))
	defer influxServer.Close()

	cfg := DefaultConfig()
	cfg.Definitions.Endpoint = defsServer.URL
	cfg.Definitions.RetryInterval = 10 * time.Millisecond
	cfg.Influx.URL = influxServer.URL
	cfg.Influx.Database = "test"
	cfg.Ingest.Addr = "127.0.0.1:0"
	cfg.Health.Addr = "127.0.0.1:0"

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	iface, err := New(log, cfg)
	require.NoError(t, err)

	r, ok := iface.(*relay)
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, iface.Start(ctx))
	defer func() { require.NoError(t, iface.Stop()) }()

	// Wait for the definitions snapshot.
	select {
	case <-r.loader.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("definitions never loaded")
	}

	post := func(body string) {
		resp, err := http.Post(
			"http://"+r.ingest.Addr()+"/api/v1/metrics",
			"application/json",
			strings.NewReader(body),
		)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
	}

	post(`{"source":"OpenMotics","type":"energy","metric":"power",
		"timestamp":100,"id":0,"value":1234}`)
	// The second timestamp closes the first group.
	post(`{"source":"OpenMotics","type":"energy","metric":"power",
		"timestamp":110,"id":0,"value":1300}`)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(bodies) > 0
	}, 5*time.Second, 20*time.Millisecond, "no batch arrived")

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(
		t,
		"energy,type=openmotics,id=0 power=1234i 100000000000",
		bodies[0],
	)
}

func TestRelay_ReloadSwapsDispatchConfig(t *testing.T) {
	defsServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": true, "definitions": {}}`))
	}))
	defer defsServer.Close()

	cfg := DefaultConfig()
	cfg.Definitions.Endpoint = defsServer.URL
	cfg.Ingest.Addr = "127.0.0.1:0"
	cfg.Health.Addr = "127.0.0.1:0"

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	iface, err := New(log, cfg)
	require.NoError(t, err)

	r, ok := iface.(*relay)
	require.True(t, ok)

	assert.False(t, r.sender.Enabled())

	reloaded := DefaultConfig()
	reloaded.Definitions.Endpoint = defsServer.URL
	reloaded.Influx.URL = "http://localhost:8086"
	reloaded.Influx.Database = "metrics"

	iface.Reload(reloaded)

	assert.True(t, r.sender.Enabled())
}
