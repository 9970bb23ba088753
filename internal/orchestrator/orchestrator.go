package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ppiankov/tagreveal/internal/extract"
	"github.com/ppiankov/tagreveal/internal/ledger"
	"github.com/ppiankov/tagreveal/internal/model"
	"github.com/ppiankov/tagreveal/internal/reader"
	"github.com/ppiankov/tagreveal/internal/timeline"
)

// Authorizer is the authorization session capability
type Authorizer interface {
	Connect(ctx context.Context) (model.Identity, error)
	CurrentIdentity() (model.Identity, bool)
}

// Extractor resolves a raw scan payload to a claim token
type Extractor func(payload []byte) (model.ClaimToken, error)

// Deps are the injected capabilities
type Deps struct {
	Reader     reader.Reader
	Authorizer Authorizer
	Ledger     ledger.Client
	Extractor  Extractor // defaults to extract.Extract
}

// Options tune orchestrator policy
type Options struct {
	ClaimTimeout time.Duration // Pending claims older than this are rejected; 0 disables
	Timeline     timeline.Durations
	Logger       *log.Logger
	Tracer       trace.Tracer
	OnTransition func(Transition) // Called synchronously; must not call back into the orchestrator
}

// Transition describes one state change
type Transition struct {
	From   State
	To     State
	FlowID string
	Err    *FlowError
}

// Snapshot is a consistent view of orchestrator state for a UI
type Snapshot struct {
	State     State
	Stage     timeline.Stage
	FlowID    string
	Token     model.ClaimToken
	Identity  model.Identity
	Claim     model.ClaimResult
	LastError *FlowError
	Frames    int
}

// flow is one attempt to take a token from scan through presentation
type flow struct {
	id       string
	gen      uint64
	token    model.ClaimToken
	identity model.Identity
	result   model.ClaimResult
	receipt  *ledger.Receipt

	submissions  int
	claimStarted time.Time
	startedAt    time.Time
	finishedAt   time.Time
	frames       int

	ctx    context.Context
	cancel context.CancelFunc
	span   trace.Span
	ended  bool
}

// end closes the flow span once
func (f *flow) end(code codes.Code, description string) {
	if f.ended {
		return
	}
	f.ended = true
	f.span.SetStatus(code, description)
	f.span.End()
}

// Orchestrator runs the reveal state machine.
// All state changes happen under mu; I/O goroutines only post events to the inbox.
type Orchestrator struct {
	deps   Deps
	opts   Options
	logger *log.Logger
	tracer trace.Tracer
	player *timeline.Player

	inboxMu sync.Mutex
	inbox   []event
	wake    chan struct{}

	mu        sync.Mutex
	state     State
	lastErr   *FlowError
	flow      *flow
	listener  *listener
	listenGen uint64
	flowGen   uint64
	lastTick  time.Time
	frame     timeline.Frame
}

// New creates an idle orchestrator
func New(deps Deps, opts Options) (*Orchestrator, error) {
	if deps.Reader == nil {
		return nil, errors.New("orchestrator: reader is required")
	}
	if deps.Authorizer == nil {
		return nil, errors.New("orchestrator: authorizer is required")
	}
	if deps.Ledger == nil {
		return nil, errors.New("orchestrator: ledger is required")
	}
	if deps.Extractor == nil {
		deps.Extractor = extract.Extract
	}
	if opts.Timeline == (timeline.Durations{}) {
		opts.Timeline = timeline.DefaultDurations()
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/ppiankov/tagreveal/internal/orchestrator")
	}

	player := timeline.NewPlayer(timeline.New(opts.Timeline))
	return &Orchestrator{
		deps:   deps,
		opts:   opts,
		logger: logger,
		tracer: tracer,
		player: player,
		wake:   make(chan struct{}, 1),
		state:  StateIdle,
		frame:  player.Frame(time.Time{}, timeline.Gate{Claim: model.ClaimNone}),
	}, nil
}

// Wake receives a value whenever new events are waiting for Tick
func (o *Orchestrator) Wake() <-chan struct{} {
	return o.wake
}

// Start begins listening for tags. Any finished flow is discarded.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateScanning {
		return nil
	}
	if o.state.midFlow() {
		return ErrFlowActive
	}

	o.discardFlow("restarted")
	o.lastErr = nil
	o.transition(StateScanning, nil)
	o.startListener()
	return nil
}

// Stop cancels everything: the listener is unregistered, in-flight waits are abandoned
// and late results are dropped.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.stopListener()
	o.discardFlow("cancelled")
	o.lastErr = nil
	if o.state != StateIdle {
		o.transition(StateIdle, nil)
	}
}

// Open starts a flow from a "hash=<token>" query, as if the token had been scanned.
// The flow starts at authorizing.
func (o *Orchestrator) Open(query string) error {
	values, err := url.ParseQuery(strings.TrimPrefix(strings.TrimSpace(query), "?"))
	if err != nil {
		return fmt.Errorf("open: parse query: %w", err)
	}
	raw := values.Get("hash")
	if raw == "" {
		return fmt.Errorf("open: missing hash parameter")
	}
	token, err := extract.ParseToken(raw)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.midFlow() {
		return ErrFlowActive
	}
	o.lastErr = nil
	o.beginFlow(token, false)
	return nil
}

// Retry re-enters authorizing after an authorization error
func (o *Orchestrator) Retry() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateError || o.flow == nil || o.lastErr == nil || !o.lastErr.Retriable() {
		return ErrNotRetriable
	}

	o.lastErr = nil
	o.flow.finishedAt = time.Time{}
	o.transition(StateAuthorizing, nil)
	o.authorize(o.flow)
	return nil
}

// ReportPresentationError records a renderer failure without changing state
func (o *Orchestrator) ReportPresentationError(err error) {
	if err == nil {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	fe := &FlowError{Kind: KindPresentation, Err: err}
	if o.flow != nil {
		fe.Token = o.flow.token
		o.flow.span.RecordError(err)
	}
	o.lastErr = fe
	o.logger.Printf("reveal: presentation error: %v", err)
}

// State returns the current state
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastError returns the most recent captured error, or nil
func (o *Orchestrator) LastError() *FlowError {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// CurrentStage returns the timeline stage of the last frame
func (o *Orchestrator) CurrentStage() timeline.Stage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.player.Stage()
}

// Pose returns the pose computed by the last Tick
func (o *Orchestrator) Pose() timeline.Pose {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.frame.Pose
}

// Snapshot returns a consistent view of the orchestrator
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := Snapshot{
		State:     o.state,
		Stage:     o.player.Stage(),
		LastError: o.lastErr,
		Claim:     model.ClaimResult{Status: model.ClaimNone},
	}
	if f := o.flow; f != nil {
		s.FlowID = f.id
		s.Token = f.token
		s.Identity = f.identity
		s.Claim = f.result
		s.Frames = f.frames
	}
	return s
}

// Report summarises the current (or last) flow
func (o *Orchestrator) Report() *model.Report {
	o.mu.Lock()
	defer o.mu.Unlock()

	r := &model.Report{
		State: string(o.state),
		Stage: string(o.player.Stage()),
		Claim: model.ClaimResult{Status: model.ClaimNone},
	}
	if o.lastErr != nil {
		r.Error = o.lastErr.Error()
		r.ErrorKind = string(o.lastErr.Kind)
	}
	if f := o.flow; f != nil {
		r.FlowID = f.id
		r.Token = f.token
		r.Identity = f.identity.Address
		r.Claim = f.result
		r.StartedAt = f.startedAt
		r.FinishedAt = f.finishedAt
		r.Frames = f.frames
		if !f.finishedAt.IsZero() && !f.startedAt.IsZero() {
			r.Duration = f.finishedAt.Sub(f.startedAt)
		}
	}
	return r
}

// Tick applies pending events, enforces the claim timeout and advances the timeline by one frame
func (o *Orchestrator) Tick(now time.Time) timeline.Frame {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.lastTick = now
	if f := o.flow; f != nil && f.startedAt.IsZero() {
		f.startedAt = now
	}

	for _, ev := range o.drain() {
		o.apply(ev, now)
	}
	o.checkTimeout(now)
	o.frame = o.advance(now)
	return o.frame
}

func (o *Orchestrator) apply(ev event, now time.Time) {
	switch ev.kind {
	case evScan, evListenFailed, evListenClosed:
		if o.listener == nil || ev.gen != o.listener.gen {
			return
		}
		o.applyListener(ev)
		return
	}

	f := o.flow
	if f == nil || ev.gen != f.gen || ev.token != f.token {
		o.logger.Printf("reveal: dropped stale result for %s", ev.token)
		return
	}

	switch ev.kind {
	case evAuthorized:
		if o.state != StateAuthorizing {
			return
		}
		f.identity = ev.identity
		o.enterClaiming(f)

	case evAuthFailed:
		if o.state != StateAuthorizing {
			return
		}
		o.fail(authorizationError(f.token, ev.err), now)

	case evSubmitted:
		if o.state != StateClaiming {
			return
		}
		f.receipt = ev.receipt
		result := ev.receipt.Result()
		f.result = result
		if result.IsRejected() {
			o.fail(claimError(f.token, result, nil), now)
			return
		}
		o.transition(StatePresenting, nil)

	case evSubmitFailed:
		if o.state != StateClaiming {
			return
		}
		f.result = model.Rejected(ledger.Classify(ev.err))
		o.fail(claimError(f.token, f.result, ev.err), now)

	case evSettled:
		if o.state != StateClaiming && o.state != StatePresenting {
			return
		}
		o.settle(f, ev.result, now)
	}
}

// settle records the ledger's final answer for f
func (o *Orchestrator) settle(f *flow, result model.ClaimResult, now time.Time) {
	f.result = result
	f.span.AddEvent("claim.settled", trace.WithAttributes(
		attribute.String("claim.status", string(result.Status)),
		attribute.String("claim.reason", string(result.Reason)),
	))
	if result.IsRejected() {
		o.fail(claimError(f.token, result, nil), now)
	}
}

func (o *Orchestrator) applyListener(ev event) {
	switch ev.kind {
	case evListenFailed, evListenClosed:
		o.listener = nil
		if o.state != StateScanning {
			return
		}
		err := ev.err
		if err == nil {
			err = errors.New("scan stream ended")
		}
		o.fail(&FlowError{Kind: KindReaderFailure, Err: err}, o.lastTick)

	case evScan:
		if o.state != StateScanning {
			// one flow at a time; repeated or different tags mid-flow are ignored
			return
		}
		if ev.scan.Err != nil {
			o.lastErr = &FlowError{Kind: KindReaderFailure, Err: ev.scan.Err}
			o.logger.Printf("reveal: read failed: %v", ev.scan.Err)
			return
		}
		token, err := o.deps.Extractor(ev.scan.Payload)
		if err != nil {
			o.lastErr = extractionError(err)
			o.logger.Printf("reveal: %v", o.lastErr)
			return
		}
		o.lastErr = nil
		o.beginFlow(token, true)
	}
}

// beginFlow discards any previous flow and starts a new one for token
func (o *Orchestrator) beginFlow(token model.ClaimToken, scanned bool) {
	o.discardFlow("replaced")

	o.flowGen++
	ctx, cancel := context.WithCancel(context.Background())
	ctx, span := o.tracer.Start(ctx, "reveal.flow", trace.WithAttributes(
		attribute.String("claim.token", string(token)),
		attribute.Bool("flow.scanned", scanned),
	))

	f := &flow{
		id:     uuid.NewString(),
		gen:    o.flowGen,
		token:  token,
		result: model.ClaimResult{Status: model.ClaimNone},
		ctx:    ctx,
		cancel: cancel,
		span:   span,
	}
	span.SetAttributes(attribute.String("flow.id", f.id))
	o.flow = f
	o.logger.Printf("reveal: flow %s started for %s", f.id, token)

	if scanned {
		o.transition(StateTokenFound, nil)
	}
	o.transition(StateAuthorizing, nil)
	o.authorize(f)
}

// authorize skips the prompt when the session is already connected
func (o *Orchestrator) authorize(f *flow) {
	if id, ok := o.deps.Authorizer.CurrentIdentity(); ok {
		f.identity = id
		o.enterClaiming(f)
		return
	}
	o.launchConnect(f)
}

func (o *Orchestrator) enterClaiming(f *flow) {
	o.transition(StateClaiming, nil)
	if f.submissions > 0 {
		return
	}
	f.submissions++
	f.claimStarted = time.Time{}
	o.launchSubmit(f)
}

func (o *Orchestrator) checkTimeout(now time.Time) {
	f := o.flow
	if f == nil || (o.state != StateClaiming && o.state != StatePresenting) || f.result.IsSettled() {
		return
	}
	if f.claimStarted.IsZero() {
		f.claimStarted = now
		return
	}
	if o.opts.ClaimTimeout <= 0 || now.Sub(f.claimStarted) < o.opts.ClaimTimeout {
		return
	}

	timeout := model.Rejected(model.RejectTimeout)
	if f.receipt != nil && !f.receipt.Resolve(timeout) {
		// the ledger answered first; its settlement event is still queued
		o.settle(f, f.receipt.Result(), now)
		return
	}
	f.result = timeout
	f.cancel()
	o.fail(claimError(f.token, f.result, fmt.Errorf("claim pending after %s", o.opts.ClaimTimeout)), now)
}

// advance evaluates one frame and moves the timeline on when the stage exits
func (o *Orchestrator) advance(now time.Time) timeline.Frame {
	gate := timeline.Gate{Claim: model.ClaimNone}
	if o.flow != nil {
		gate.Claim = o.flow.result.StatusOrNone()
	}

	if o.state == StatePresenting && o.player.Stage() == timeline.Dormant {
		o.enterStage(timeline.Rising, now, gate)
	}

	frame := o.player.Frame(now, gate)
	if o.flow != nil && o.player.Stage() != timeline.Dormant {
		o.flow.frames++
	}

	if frame.Exited && o.state == StatePresenting {
		switch frame.Stage {
		case timeline.Rising:
			o.enterStage(timeline.AwaitingClaim, now, gate)
		case timeline.AwaitingClaim:
			o.enterStage(timeline.Revealing, now, gate)
		case timeline.Revealing:
			if gate.Claim == model.ClaimConfirmed {
				o.enterStage(timeline.Settled, now, gate)
				o.finish(now)
			}
		}
	}
	return frame
}

func (o *Orchestrator) enterStage(stage timeline.Stage, now time.Time, gate timeline.Gate) {
	if err := o.player.Enter(stage, now, gate); err != nil {
		o.logger.Printf("reveal: %v", err)
		return
	}
	if o.flow != nil {
		o.flow.span.AddEvent("timeline.stage", trace.WithAttributes(attribute.String("stage", string(stage))))
	}
}

// finish completes a confirmed flow
func (o *Orchestrator) finish(now time.Time) {
	f := o.flow
	f.finishedAt = now
	o.transition(StateDone, nil)
	f.end(codes.Ok, "")
	f.cancel()
	o.logger.Printf("reveal: flow %s done, item %d", f.id, f.result.ItemID)
}

// fail captures err as state; a presenting flow redirects its timeline to Failed
func (o *Orchestrator) fail(fe *FlowError, now time.Time) {
	from := o.state
	o.lastErr = fe
	o.transition(StateError, fe)
	o.logger.Printf("reveal: %v", fe)

	f := o.flow
	if f == nil {
		return
	}
	f.finishedAt = now
	f.span.RecordError(fe)
	if from == StatePresenting && f.result.IsRejected() {
		o.enterStage(timeline.Failed, now, timeline.Gate{Claim: model.ClaimRejected})
	}
	// authorization errors keep the flow open for Retry
	if fe.Category() == CategoryClaim {
		f.cancel()
		f.end(codes.Error, string(fe.Kind))
	}
}

// discardFlow drops the current flow so its late results are ignored
func (o *Orchestrator) discardFlow(reason string) {
	f := o.flow
	if f == nil {
		return
	}
	f.cancel()
	if !f.ended {
		f.span.AddEvent("flow." + reason)
		f.end(codes.Unset, "")
	}
	o.flow = nil
	o.player.Reset()
}

func (o *Orchestrator) transition(to State, fe *FlowError) {
	from := o.state
	if err := ValidateTransition(from, to); err != nil {
		o.logger.Printf("reveal: %v", err)
		return
	}
	o.state = to

	flowID := ""
	if o.flow != nil {
		flowID = o.flow.id
		o.flow.span.AddEvent("transition", trace.WithAttributes(
			attribute.String("from", string(from)),
			attribute.String("to", string(to)),
		))
	}
	o.logger.Printf("reveal: %s -> %s", from, to)

	if o.opts.OnTransition != nil {
		o.opts.OnTransition(Transition{From: from, To: to, FlowID: flowID, Err: fe})
	}
}
