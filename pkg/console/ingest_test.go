package console

import (
	"bytes"
	"sync"
	"testing"
)

func TestIngestQueue_DrainBatches(t *testing.T) {
	q := NewIngestQueue(0)

	q.OnBytesReceived([]byte("ab"))
	q.OnBytesReceived([]byte("c\n"))

	if q.Len() != 4 {
		t.Errorf("Len() = %d, want 4", q.Len())
	}

	got := q.Drain()
	if !bytes.Equal(got, []byte("abc\n")) {
		t.Errorf("Drain() = %q, want %q", got, "abc\n")
	}

	if got := q.Drain(); got != nil {
		t.Errorf("second Drain() = %q, want nil", got)
	}
}

func TestIngestQueue_DrainCopies(t *testing.T) {
	q := NewIngestQueue(16)

	q.OnBytesReceived([]byte("first"))
	first := q.Drain()

	q.OnBytesReceived([]byte("XXXXX"))

	if string(first) != "first" {
		t.Errorf("drained slice changed to %q after new data", first)
	}
}

func TestIngestQueue_Reset(t *testing.T) {
	q := NewIngestQueue(4)

	q.OnBytesReceived(bytes.Repeat([]byte{'x'}, 64))
	q.Reset()

	if q.Len() != 0 {
		t.Errorf("Len() after Reset() = %d, want 0", q.Len())
	}
	if cap(q.data) != 4 {
		t.Errorf("cap after Reset() = %d, want 4", cap(q.data))
	}
}

func TestIngestQueue_ConcurrentProducers(t *testing.T) {
	q := NewIngestQueue(0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.OnBytesReceived([]byte("ab"))
			}
		}()
	}
	wg.Wait()

	if got := len(q.Drain()); got != 8*100*2 {
		t.Errorf("drained %d bytes, want %d", got, 8*100*2)
	}
}
