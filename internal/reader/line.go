package reader

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/tagreveal/internal/extract"
	"github.com/ppiankov/tagreveal/internal/model"
)

// ErrRead marks scan events produced by an "error:" line
var ErrRead = errors.New("tag read failed")

// emptyMessage is a single NDEF record of TNF empty
var emptyMessage = []byte{0xD0, 0x00, 0x00}

// LineReader emulates a tag reader from line-oriented input.
//
// Line forms:
//
//	text:<s>    NDEF text record containing s
//	hex:<hex>   raw payload bytes
//	empty       NDEF message with a single empty record
//	error:<msg> reader error event
//
// Blank lines and lines starting with # are skipped; other lines are treated as text.
type LineReader struct {
	lines chan string
	delay time.Duration
	now   func() time.Time

	pumpOnce sync.Once
	src      io.Reader

	mu     sync.Mutex
	active *stream
	exited chan struct{}

	heldMu sync.Mutex
	held   *model.ScanEvent // read by a stream that stopped before delivering it
}

// NewLineReader creates a reader over src, pausing delay before each read
func NewLineReader(src io.Reader, delay time.Duration) *LineReader {
	return &LineReader{
		lines: make(chan string),
		delay: delay,
		now:   time.Now,
		src:   src,
	}
}

// StartScan registers a listener. Only one stream may be active; stop it before starting another.
func (r *LineReader) StartScan(ctx context.Context) (Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		select {
		case <-r.active.done:
		default:
			return nil, ErrBusy
		}
	}

	if r.exited != nil {
		<-r.exited
	}
	r.pumpOnce.Do(func() { go r.pump() })

	s := newStream(1)
	r.active = s
	r.exited = make(chan struct{})
	go r.forward(ctx, s, r.exited)
	return s, nil
}

// pump reads src for the lifetime of the reader; lines block until a stream takes them
func (r *LineReader) pump() {
	defer close(r.lines)

	scanner := bufio.NewScanner(r.src)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		r.lines <- line
	}
}

func (r *LineReader) forward(ctx context.Context, s *stream, exited chan struct{}) {
	defer close(exited)
	defer close(s.events)

	if ev := r.takeHeld(); ev != nil {
		if !s.emit(ctx, *ev) {
			r.hold(*ev)
			return
		}
	}

	for {
		if r.delay > 0 {
			select {
			case <-s.done:
				return
			case <-ctx.Done():
				return
			case <-time.After(r.delay):
			}
		}

		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case line, ok := <-r.lines:
			if !ok {
				return
			}
			ev := r.parse(line)
			if !s.emit(ctx, ev) {
				r.hold(ev)
				return
			}
		}
	}
}

func (r *LineReader) hold(ev model.ScanEvent) {
	r.heldMu.Lock()
	r.held = &ev
	r.heldMu.Unlock()
}

func (r *LineReader) takeHeld() *model.ScanEvent {
	r.heldMu.Lock()
	defer r.heldMu.Unlock()
	ev := r.held
	r.held = nil
	return ev
}

// parse converts one input line to a scan event
func (r *LineReader) parse(line string) model.ScanEvent {
	ev := model.ScanEvent{At: r.now()}

	kind, rest, found := strings.Cut(line, ":")
	if !found {
		if strings.EqualFold(line, "empty") {
			ev.Payload = append([]byte(nil), emptyMessage...)
			return ev
		}
		ev.Payload = extract.EncodeText(line, "en")
		return ev
	}

	switch strings.ToLower(kind) {
	case "text":
		ev.Payload = extract.EncodeText(rest, "en")
	case "hex":
		payload, err := hex.DecodeString(strings.ReplaceAll(rest, " ", ""))
		if err != nil {
			ev.Err = fmt.Errorf("%w: decode hex line: %v", ErrRead, err)
			return ev
		}
		ev.Payload = payload
	case "error":
		ev.Err = fmt.Errorf("%w: %s", ErrRead, strings.TrimSpace(rest))
	default:
		// "0x..." has no colon, so anything else with a colon is plain text
		ev.Payload = extract.EncodeText(line, "en")
	}
	return ev
}
