package orchestrator

import (
	"context"

	"github.com/ppiankov/tagreveal/internal/ledger"
	"github.com/ppiankov/tagreveal/internal/model"
)

type eventKind int

const (
	evScan eventKind = iota
	evListenFailed
	evListenClosed
	evAuthorized
	evAuthFailed
	evSubmitted
	evSubmitFailed
	evSettled
)

// event is posted by I/O goroutines and applied by Tick.
// gen ties it to the listener or flow that produced it.
type event struct {
	kind     eventKind
	gen      uint64
	token    model.ClaimToken
	scan     model.ScanEvent
	identity model.Identity
	receipt  *ledger.Receipt
	result   model.ClaimResult
	err      error
}

// post appends an event to the inbox and signals Wake
func (o *Orchestrator) post(ev event) {
	o.inboxMu.Lock()
	o.inbox = append(o.inbox, ev)
	o.inboxMu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) drain() []event {
	o.inboxMu.Lock()
	defer o.inboxMu.Unlock()
	events := o.inbox
	o.inbox = nil
	return events
}

// listener forwards reader events until its context is cancelled
type listener struct {
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

func (o *Orchestrator) startListener() {
	o.stopListener()

	o.listenGen++
	gen := o.listenGen
	ctx, cancel := context.WithCancel(context.Background())
	l := &listener{gen: gen, cancel: cancel, done: make(chan struct{})}
	o.listener = l

	go func() {
		defer close(l.done)

		stream, err := o.deps.Reader.StartScan(ctx)
		if err != nil {
			o.post(event{kind: evListenFailed, gen: gen, err: err})
			return
		}
		defer stream.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case sev, ok := <-stream.Events():
				if !ok {
					o.post(event{kind: evListenClosed, gen: gen})
					return
				}
				o.post(event{kind: evScan, gen: gen, scan: sev})
			}
		}
	}()
}

// stopListener unregisters the scan listener and waits for it to exit
func (o *Orchestrator) stopListener() {
	if o.listener == nil {
		return
	}
	o.listener.cancel()
	<-o.listener.done
	o.listener = nil
}

func (o *Orchestrator) launchConnect(f *flow) {
	gen, token, ctx := f.gen, f.token, f.ctx
	go func() {
		id, err := o.deps.Authorizer.Connect(ctx)
		if err != nil {
			o.post(event{kind: evAuthFailed, gen: gen, token: token, err: err})
			return
		}
		o.post(event{kind: evAuthorized, gen: gen, token: token, identity: id})
	}()
}

func (o *Orchestrator) launchSubmit(f *flow) {
	gen, token, ctx := f.gen, f.token, f.ctx
	go func() {
		receipt, err := o.deps.Ledger.Submit(ctx, token)
		if err != nil {
			o.post(event{kind: evSubmitFailed, gen: gen, token: token, err: err})
			return
		}
		o.post(event{kind: evSubmitted, gen: gen, token: token, receipt: receipt})

		select {
		case <-receipt.Done():
			o.post(event{kind: evSettled, gen: gen, token: token, result: receipt.Result()})
		case <-ctx.Done():
		}
	}()
}
