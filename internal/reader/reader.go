// Package reader adapts tag-reading hardware (or a stand-in) to a cancelable event stream.
package reader

import (
	"context"
	"errors"
	"sync"

	"github.com/ppiankov/tagreveal/internal/model"
)

// ErrBusy is returned when a reader only supports one active stream at a time
var ErrBusy = errors.New("reader already has an active scan")

// Reader starts scans. Each call registers a fresh listener.
type Reader interface {
	StartScan(ctx context.Context) (Stream, error)
}

// Stream is a push-based sequence of scan events.
// Events is closed once the stream ends; Stop unregisters the listener and is idempotent.
type Stream interface {
	Events() <-chan model.ScanEvent
	Stop()
}

// stream is the shared Stream implementation used by the readers in this package
type stream struct {
	events chan model.ScanEvent
	done   chan struct{}
	once   sync.Once
}

func newStream(buffer int) *stream {
	return &stream{
		events: make(chan model.ScanEvent, buffer),
		done:   make(chan struct{}),
	}
}

func (s *stream) Events() <-chan model.ScanEvent {
	return s.events
}

func (s *stream) Stop() {
	s.once.Do(func() {
		close(s.done)
	})
}

// emit delivers an event unless the stream (or ctx) is stopped first
func (s *stream) emit(ctx context.Context, ev model.ScanEvent) bool {
	select {
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	case s.events <- ev:
		return true
	}
}
