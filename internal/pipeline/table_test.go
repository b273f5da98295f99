package pipeline

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/influxpipe/influxpipe/internal/definitions"
	"github.com/influxpipe/influxpipe/internal/metric"
)

func testDefinitions() definitions.Snapshot {
	return definitions.Snapshot{
		"OpenMotics": {
			"energy": {
				"power":   {Tags: []string{"device", "id"}},
				"voltage": {Tags: []string{"device", "id"}},
			},
		},
	}
}

func newTestTable(t *testing.T, loaded, enabled bool) (*Table, *Queue) {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	store := definitions.NewStore()
	if loaded {
		store.Install(testDefinitions())
	}

	q := NewQueue()
	table := NewTable(log, store, q, func() bool { return enabled }, nil)

	return table, q
}

func powerSample(ts int64, name string, value metric.Value) metric.Sample {
	return metric.Sample{
		Source:    "OpenMotics",
		Family:    "energy",
		Name:      name,
		Timestamp: ts,
		Value:     value,
		Attributes: map[string]metric.Value{
			"device": metric.String("Meter 1"),
			"id":     metric.Int(0),
		},
	}
}

func TestTable_MergesSameIdentityAndTimestamp(t *testing.T) {
	table, q := newTestTable(t, true, true)

	table.Ingest(powerSample(100, "power", metric.Int(1234)))
	table.Ingest(powerSample(100, "voltage", metric.Int(234)))

	// Both samples merged into one still-open group.
	assert.Equal(t, 0, q.Len())

	// A later timestamp closes the group with both fields.
	table.Ingest(powerSample(110, "power", metric.Int(1300)))

	entry, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(
		t,
		`energy,type=openmotics,device=Meter\ 1,id=0 power=1234i,voltage=234i 100000000000`,
		entry,
	)
}

func TestTable_FlushOnTimestampChange(t *testing.T) {
	table, q := newTestTable(t, true, true)

	table.Ingest(powerSample(100, "power", metric.Int(1)))
	table.Ingest(powerSample(200, "power", metric.Int(2)))

	// Exactly one group closed for T1; T2 is open.
	assert.Equal(t, 1, q.Len())

	entry, ok := q.Pop()
	require.True(t, ok)
	assert.Contains(t, entry, "power=1i")
	assert.Contains(t, entry, "100000000000")

	// Closing T2 shows it was started fresh.
	table.Ingest(powerSample(300, "power", metric.Int(3)))

	entry, ok = q.Pop()
	require.True(t, ok)
	assert.Contains(t, entry, "power=2i")
	assert.NotContains(t, entry, "power=1i")
}

func TestTable_DistinctTagSetsStayOpen(t *testing.T) {
	table, q := newTestTable(t, true, true)

	first := powerSample(100, "power", metric.Int(1))

	second := powerSample(100, "power", metric.Int(2))
	second.Attributes["id"] = metric.Int(1)

	table.Ingest(first)
	table.Ingest(second)

	// Different identities never close each other.
	assert.Equal(t, 0, q.Len())

	// Advancing one identity closes only that group.
	third := powerSample(200, "power", metric.Int(3))
	table.Ingest(third)

	assert.Equal(t, 1, q.Len())

	entry, ok := q.Pop()
	require.True(t, ok)
	assert.Contains(t, entry, "id=0")
}

func TestTable_SameFieldOverwritesWhileOpen(t *testing.T) {
	table, q := newTestTable(t, true, true)

	table.Ingest(powerSample(100, "power", metric.Int(1)))
	table.Ingest(powerSample(100, "power", metric.Int(2)))
	table.Ingest(powerSample(200, "power", metric.Int(3)))

	entry, ok := q.Pop()
	require.True(t, ok)
	assert.Contains(t, entry, "power=2i")
}

func TestTable_UnknownMetricDropped(t *testing.T) {
	table, q := newTestTable(t, true, true)

	sample := powerSample(100, "temperature", metric.Float(21.5))
	table.Ingest(sample)

	assert.Equal(t, 0, q.Len())
}

func TestTable_DefinitionsNotLoaded(t *testing.T) {
	table, q := newTestTable(t, false, true)

	table.Ingest(powerSample(100, "power", metric.Int(1)))
	table.Ingest(powerSample(200, "power", metric.Int(2)))

	assert.Equal(t, 0, q.Len())
}

func TestTable_Disabled(t *testing.T) {
	table, q := newTestTable(t, true, false)

	for ts := int64(100); ts < 110; ts++ {
		table.Ingest(powerSample(ts, "power", metric.Int(1)))
	}

	assert.Equal(t, 0, q.Len())
}

func TestTable_MissingRequiredTagDropped(t *testing.T) {
	table, q := newTestTable(t, true, true)

	sample := powerSample(100, "power", metric.Int(1))
	delete(sample.Attributes, "device")

	table.Ingest(sample)
	table.Ingest(powerSample(200, "power", metric.Int(2)))

	// The malformed sample left no group behind to close.
	assert.Equal(t, 0, q.Len())
}

func TestTable_FlushIdle(t *testing.T) {
	table, q := newTestTable(t, true, true)

	table.Ingest(powerSample(100, "power", metric.Int(1)))
	table.Ingest(powerSample(100, "voltage", metric.Int(2)))

	// Young groups stay open.
	assert.Equal(t, 0, table.FlushIdle(time.Hour))
	assert.Equal(t, 0, q.Len())

	// A zero age makes every open group idle.
	assert.Equal(t, 1, table.FlushIdle(0))

	entry, ok := q.Pop()
	require.True(t, ok)
	assert.Contains(t, entry, "power=1i,voltage=2i")

	// Nothing left behind to flush twice.
	assert.Equal(t, 0, table.FlushIdle(0))
}

func TestTable_EncodedValueKinds(t *testing.T) {
	table, q := newTestTable(t, true, true)

	table.Ingest(powerSample(100, "power", metric.Bool(true)))
	table.Ingest(powerSample(200, "power", metric.Int(1)))

	entry, ok := q.Pop()
	require.True(t, ok)
	assert.Contains(t, entry, "power=true")
	assert.NotContains(t, entry, "power=truei")
}
