package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/tagreveal/internal/auth"
	"github.com/ppiankov/tagreveal/internal/extract"
	"github.com/ppiankov/tagreveal/internal/ledger"
	"github.com/ppiankov/tagreveal/internal/model"
	"github.com/ppiankov/tagreveal/internal/reader"
	"github.com/ppiankov/tagreveal/internal/timeline"
)

const frame = time.Second / 60

// gateProvider blocks each prompt until the test answers it
type gateProvider struct {
	calls   atomic.Int32
	answers chan error
}

func newGateProvider() *gateProvider {
	return &gateProvider{answers: make(chan error, 4)}
}

func (p *gateProvider) RequestAccess(ctx context.Context) (model.Identity, error) {
	p.calls.Add(1)
	select {
	case err := <-p.answers:
		if err != nil {
			return model.Identity{}, err
		}
		return model.Identity{Address: "0xa5h"}, nil
	case <-ctx.Done():
		return model.Identity{}, ctx.Err()
	}
}

func (p *gateProvider) CurrentIdentity() (model.Identity, bool) {
	return model.Identity{}, false
}

// manualLedger hands out pending receipts the test resolves
type manualLedger struct {
	mu        sync.Mutex
	receipts  []*ledger.Receipt
	calls     map[model.ClaimToken]int
	submitErr error
}

func newManualLedger() *manualLedger {
	return &manualLedger{calls: make(map[model.ClaimToken]int)}
}

func (l *manualLedger) Submit(ctx context.Context, token model.ClaimToken) (*ledger.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls[token]++
	if l.submitErr != nil {
		return nil, l.submitErr
	}
	r := ledger.NewReceipt(token, fmt.Sprintf("tx-%d", len(l.receipts)+1))
	l.receipts = append(l.receipts, r)
	return r, nil
}

func (l *manualLedger) StatusOf(ctx context.Context, itemID uint64) (model.ClaimResult, error) {
	return model.ClaimResult{}, ledger.ErrNotFound
}

func (l *manualLedger) submissions(token model.ClaimToken) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[token]
}

func (l *manualLedger) receipt(i int) *ledger.Receipt {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i >= len(l.receipts) {
		return nil
	}
	return l.receipts[i]
}

// stallingLedger holds the first submission until release is closed,
// then reports it confirmed regardless of ctx
type stallingLedger struct {
	*manualLedger
	stalled  atomic.Bool
	entered  chan struct{}
	release  chan struct{}
	returned chan struct{}
}

func newStallingLedger() *stallingLedger {
	return &stallingLedger{
		manualLedger: newManualLedger(),
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
		returned:     make(chan struct{}),
	}
}

func (l *stallingLedger) Submit(ctx context.Context, token model.ClaimToken) (*ledger.Receipt, error) {
	if !l.stalled.CompareAndSwap(false, true) {
		return l.manualLedger.Submit(ctx, token)
	}
	defer close(l.returned)
	close(l.entered)
	<-l.release
	return ledger.Settled(token, model.Confirmed(9, &model.Item{ID: 9, Name: "Stale"})), nil
}

type harness struct {
	t        *testing.T
	o        *Orchestrator
	reader   *reader.Manual
	provider *gateProvider
	session  *auth.Session
	ledger   ledger.Client
	now      time.Time
	frames   []timeline.Frame
	seen     []Transition
}

type harnessOption func(*harness, *Options)

// withMemoryLedger signs claims with the harness session
func withMemoryLedger() harnessOption {
	return func(h *harness, _ *Options) { h.ledger = ledger.NewMemory(h.session, 0) }
}

func withLedger(l ledger.Client) harnessOption {
	return func(h *harness, _ *Options) { h.ledger = l }
}

func withClaimTimeout(d time.Duration) harnessOption {
	return func(_ *harness, o *Options) { o.ClaimTimeout = d }
}

func newHarness(t *testing.T, connected bool, opts ...harnessOption) *harness {
	t.Helper()

	h := &harness{
		t:        t,
		reader:   reader.NewManual(),
		provider: newGateProvider(),
		ledger:   newManualLedger(),
		now:      time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	h.session = auth.NewSession(h.provider, 0, nil)

	options := Options{ClaimTimeout: time.Minute}
	for _, opt := range opts {
		opt(h, &options)
	}
	options.OnTransition = func(tr Transition) { h.seen = append(h.seen, tr) }

	if connected {
		h.provider.answers <- nil
		if _, err := h.session.Connect(context.Background()); err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
	}

	o, err := New(Deps{Reader: h.reader, Authorizer: h.session, Ledger: h.ledger}, options)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	h.o = o
	t.Cleanup(o.Stop)
	return h
}

func (h *harness) manual() *manualLedger {
	return h.ledger.(*manualLedger)
}

func (h *harness) tick() timeline.Frame {
	f := h.o.Tick(h.now)
	h.frames = append(h.frames, f)
	return f
}

// until ticks without advancing the clock until cond holds
func (h *harness) until(what string, cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		h.tick()
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			h.t.Fatalf("Timed out waiting for %s (state %s)", what, h.o.State())
		}
		time.Sleep(time.Millisecond)
	}
}

// run ticks at 60fps for d of scripted time
func (h *harness) run(d time.Duration) {
	for end := h.now.Add(d); h.now.Before(end); {
		h.now = h.now.Add(frame)
		h.tick()
	}
}

func (h *harness) start() {
	h.t.Helper()
	if err := h.o.Start(); err != nil {
		h.t.Fatalf("Start failed: %v", err)
	}
	h.until("listener", func() bool { return h.reader.Listeners() == 1 })
}

func (h *harness) tap(text string) {
	h.reader.Tap(extract.EncodeText(text, "en"))
}

// await fails the test if ch is not closed in time
func (h *harness) await(what string, ch <-chan struct{}) {
	h.t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		h.t.Fatalf("Timed out waiting for %s", what)
	}
}

func (h *harness) inState(s State) func() bool {
	return func() bool { return h.o.State() == s }
}
