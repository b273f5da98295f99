package pipeline

import "sync"

// Queue is the unbounded hand-off buffer between the grouping table
// and the batch sender. Entries pop in the order they were pushed, so
// records reach the backend in the order their groups closed. There is
// no capacity bound and no backpressure signal to the producer: a
// sustained backend outage grows the queue without limit.
type Queue struct {
	mu      sync.Mutex
	head    int
	entries []string
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends a rendered entry at the tail of the queue.
func (q *Queue) Push(entry string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = append(q.entries, entry)
}

// Pop removes and returns the oldest entry. The second return value
// is false when the queue is empty.
func (q *Queue) Pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head == len(q.entries) {
		// Reset the backing slice so consumed entries get collected.
		q.head = 0
		q.entries = q.entries[:0]

		return "", false
	}

	entry := q.entries[q.head]
	q.entries[q.head] = ""
	q.head++

	// Compact once half the slice is consumed slots, so the backing
	// storage tracks the pending entries rather than total throughput.
	if q.head*2 >= len(q.entries) {
		n := copy(q.entries, q.entries[q.head:])
		q.entries = q.entries[:n]
		q.head = 0
	}

	return entry, true
}

// Len returns the number of entries waiting in the queue.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.entries) - q.head
}
