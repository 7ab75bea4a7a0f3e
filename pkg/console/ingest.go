package console

import "sync"

// DefaultIngestReserve is the initial capacity of the staging buffer
const DefaultIngestReserve = 64 * 1024

// IngestQueue stages raw device bytes between flush ticks
type IngestQueue struct {
	mu      sync.Mutex
	data    []byte
	reserve int
}

// NewIngestQueue creates a staging buffer with the given initial capacity
func NewIngestQueue(reserve int) *IngestQueue {
	if reserve <= 0 {
		reserve = DefaultIngestReserve
	}
	return &IngestQueue{
		data:    make([]byte, 0, reserve),
		reserve: reserve,
	}
}

// OnBytesReceived appends a copy of p. It never processes lines itself.
func (q *IngestQueue) OnBytesReceived(p []byte) {
	if len(p) == 0 {
		return
	}

	q.mu.Lock()
	q.data = append(q.data, p...)
	q.mu.Unlock()
}

// Drain returns everything staged since the last drain and empties the queue
func (q *IngestQueue) Drain() []byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.data) == 0 {
		return nil
	}

	out := make([]byte, len(q.data))
	copy(out, q.data)
	q.data = q.data[:0]
	return out
}

// Reset discards staged bytes and releases memory grown past the reserve
func (q *IngestQueue) Reset() {
	q.mu.Lock()
	if cap(q.data) > q.reserve {
		q.data = make([]byte, 0, q.reserve)
	} else {
		q.data = q.data[:0]
	}
	q.mu.Unlock()
}

// Len returns the number of staged bytes
func (q *IngestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.data)
}
