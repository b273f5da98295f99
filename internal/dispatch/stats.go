package dispatch

import "time"

// summary holds min/average/max over one reporting window.
type summary struct {
	Min float64
	Avg float64
	Max float64
}

// window accumulates per-batch statistics between periodic reports.
// It is touched only by the sender loop, so it needs no locking.
type window struct {
	batchSizes []int
	queueSizes []int
	lastReport time.Time
}

func newWindow(now time.Time) *window {
	return &window{lastReport: now}
}

func (w *window) record(batchSize, queueLen int) {
	w.batchSizes = append(w.batchSizes, batchSize)
	w.queueSizes = append(w.queueSizes, queueLen)
}

func (w *window) reportDue(now time.Time, interval time.Duration) bool {
	return len(w.batchSizes) > 0 && now.Sub(w.lastReport) >= interval
}

// flush returns the window summaries and resets the series.
func (w *window) flush(now time.Time) (batches, queues summary) {
	batches = summarize(w.batchSizes)
	queues = summarize(w.queueSizes)

	w.batchSizes = nil
	w.queueSizes = nil
	w.lastReport = now

	return batches, queues
}

func summarize(series []int) summary {
	if len(series) == 0 {
		return summary{}
	}

	s := summary{
		Min: float64(series[0]),
		Max: float64(series[0]),
	}

	var sum float64

	for _, v := range series {
		f := float64(v)
		sum += f

		if f < s.Min {
			s.Min = f
		}

		if f > s.Max {
			s.Max = f
		}
	}

	s.Avg = sum / float64(len(series))

	return s
}
