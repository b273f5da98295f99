package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	s := summarize([]int{4, 1, 7, 2})

	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 3.5, s.Avg)
	assert.Equal(t, 7.0, s.Max)
}

func TestSummarize_Empty(t *testing.T) {
	assert.Equal(t, summary{}, summarize(nil))
}

func TestWindow_ReportDue(t *testing.T) {
	start := time.Now()
	w := newWindow(start)

	// Nothing recorded: never due.
	assert.False(t, w.reportDue(start.Add(time.Hour), time.Minute))

	w.record(5, 10)

	assert.False(t, w.reportDue(start.Add(30*time.Second), time.Minute))
	assert.True(t, w.reportDue(start.Add(2*time.Minute), time.Minute))
}

func TestWindow_FlushResets(t *testing.T) {
	start := time.Now()
	w := newWindow(start)

	w.record(2, 8)
	w.record(4, 6)

	batches, queues := w.flush(start.Add(time.Hour))

	assert.Equal(t, 2.0, batches.Min)
	assert.Equal(t, 3.0, batches.Avg)
	assert.Equal(t, 4.0, batches.Max)
	assert.Equal(t, 6.0, queues.Min)
	assert.Equal(t, 8.0, queues.Max)

	// The window restarts from the flush time.
	assert.False(t, w.reportDue(start.Add(90*time.Minute), time.Hour))
	assert.Empty(t, w.batchSizes)
	assert.Empty(t, w.queueSizes)
}
