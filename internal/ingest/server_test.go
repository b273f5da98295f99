package ingest

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/influxpipe/influxpipe/internal/definitions"
	"github.com/influxpipe/influxpipe/internal/pipeline"
)

func startTestServer(t *testing.T) (*Server, *pipeline.Queue) {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	store := definitions.NewStore()
	store.Install(definitions.Snapshot{
		"OpenMotics": {
			"energy": {
				"power":   {Tags: []string{"id"}},
				"voltage": {Tags: []string{"id"}},
			},
		},
	})

	q := pipeline.NewQueue()
	table := pipeline.NewTable(log, store, q, func() bool { return true }, nil)

	srv := NewServer(log, Config{Addr: "127.0.0.1:0"}, table)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Stop() })

	return srv, q
}

func postMetrics(t *testing.T, srv *Server, body string) *http.Response {
	t.Helper()

	resp, err := http.Post(
		"http://"+srv.Addr()+"/api/v1/metrics",
		"application/json",
		strings.NewReader(body),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func TestServer_SingleSample(t *testing.T) {
	srv, q := startTestServer(t)

	resp := postMetrics(t, srv, `{
		"source": "OpenMotics",
		"type": "energy",
		"metric": "power",
		"timestamp": 100,
		"id": 0,
		"value": 1234
	}`)

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// The group stays open until a later timestamp closes it.
	assert.Equal(t, 0, q.Len())
}

func TestServer_SampleArray(t *testing.T) {
	srv, q := startTestServer(t)

	resp := postMetrics(t, srv, `[
		{"source": "OpenMotics", "type": "energy", "metric": "power",
		 "timestamp": 100, "id": 0, "value": 1234},
		{"source": "OpenMotics", "type": "energy", "metric": "voltage",
		 "timestamp": 100, "id": 0, "value": 234},
		{"source": "OpenMotics", "type": "energy", "metric": "power",
		 "timestamp": 110, "id": 0, "value": 1300}
	]`)

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// The third sample closed the merged group.
	require.Equal(t, 1, q.Len())

	entry, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(
		t,
		"energy,type=openmotics,id=0 power=1234i,voltage=234i 100000000000",
		entry,
	)
}

func TestServer_UnknownMetricAccepted(t *testing.T) {
	srv, q := startTestServer(t)

	// Unknown metrics are dropped downstream, not rejected.
	resp := postMetrics(t, srv, `{
		"source": "OpenMotics",
		"type": "energy",
		"metric": "unknown",
		"timestamp": 100,
		"id": 0,
		"value": 1
	}`)

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, q.Len())
}

func TestServer_MalformedPayload(t *testing.T) {
	srv, _ := startTestServer(t)

	resp := postMetrics(t, srv, `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postMetrics(t, srv, `{"type": "energy"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postMetrics(t, srv, ``)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
