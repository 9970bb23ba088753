package reader

import (
	"context"
	"sync"
	"time"

	"github.com/ppiankov/tagreveal/internal/model"
)

// Manual is a reader driven by explicit calls, for embedding and tests
type Manual struct {
	mu       sync.Mutex
	streams  []*stream
	starts   int
	failNext error
}

// NewManual creates a manual reader
func NewManual() *Manual {
	return &Manual{}
}

// StartScan registers a new listener
func (m *Manual) StartScan(ctx context.Context) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.starts++
	if err := m.failNext; err != nil {
		m.failNext = nil
		return nil, err
	}

	s := newStream(16)
	m.streams = append(m.streams, s)
	return s, nil
}

// FailNextStart makes the next StartScan return err
func (m *Manual) FailNextStart(err error) {
	m.mu.Lock()
	m.failNext = err
	m.mu.Unlock()
}

// Tap delivers a payload to every live listener and returns how many received it
func (m *Manual) Tap(payload []byte) int {
	return m.send(model.ScanEvent{Payload: payload, At: time.Now()})
}

// Fail delivers a reader error to every live listener
func (m *Manual) Fail(err error) int {
	return m.send(model.ScanEvent{Err: err, At: time.Now()})
}

// Close ends every live stream as if the reader went away
func (m *Manual) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.live() {
		s.Stop()
	}
	m.live()
}

// Listeners returns the number of streams not yet stopped
func (m *Manual) Listeners() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live())
}

// Starts returns how many times StartScan was called
func (m *Manual) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

func (m *Manual) send(ev model.ScanEvent) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	delivered := 0
	for _, s := range m.live() {
		select {
		case s.events <- ev:
			delivered++
		default:
		}
	}
	return delivered
}

// live prunes stopped streams, ending their event channels; caller holds mu
func (m *Manual) live() []*stream {
	kept := m.streams[:0]
	for _, s := range m.streams {
		select {
		case <-s.done:
			close(s.events)
		default:
			kept = append(kept, s)
		}
	}
	m.streams = kept
	return kept
}
