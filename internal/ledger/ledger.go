// Package ledger submits claims and tracks their settlement.
package ledger

import (
	"context"
	"errors"
	"sync"

	"github.com/ppiankov/tagreveal/internal/model"
)

var (
	// ErrAlreadyClaimed means the token's item was claimed before
	ErrAlreadyClaimed = errors.New("already claimed")

	// ErrUnauthorized means the claim carried no usable identity
	ErrUnauthorized = errors.New("claim not authorized")

	// ErrUnknownToken means no item is bound to the token
	ErrUnknownToken = errors.New("unknown claim token")

	// ErrNotFound means no item has the requested id
	ErrNotFound = errors.New("item not found")
)

// Client is the ledger capability used by the orchestrator
type Client interface {
	// Submit sends a claim. A returned receipt means the ledger accepted the submission.
	Submit(ctx context.Context, token model.ClaimToken) (*Receipt, error)

	// StatusOf reads the claim status of an item out of band
	StatusOf(ctx context.Context, itemID uint64) (model.ClaimResult, error)
}

// Signer supplies the identity claims are signed with
type Signer interface {
	CurrentIdentity() (model.Identity, bool)
}

// Classify maps a ledger error to a rejection reason
func Classify(err error) model.RejectReason {
	switch {
	case errors.Is(err, ErrAlreadyClaimed):
		return model.RejectAlreadyClaimed
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrUnknownToken):
		return model.RejectUnauthorized
	case errors.Is(err, context.DeadlineExceeded):
		return model.RejectTimeout
	default:
		return model.RejectNetworkFailure
	}
}

// Receipt tracks one accepted submission until it settles
type Receipt struct {
	Token model.ClaimToken
	TxID  string

	mu     sync.RWMutex
	result model.ClaimResult
	done   chan struct{}
}

// NewReceipt creates a pending receipt
func NewReceipt(token model.ClaimToken, txID string) *Receipt {
	r := &Receipt{
		Token:  token,
		TxID:   txID,
		result: model.Pending(),
		done:   make(chan struct{}),
	}
	r.result.TxID = txID
	return r
}

// Settled creates a receipt that is already resolved
func Settled(token model.ClaimToken, result model.ClaimResult) *Receipt {
	r := NewReceipt(token, result.TxID)
	r.Resolve(result)
	return r
}

// Resolve settles the receipt. Only the first call has an effect.
func (r *Receipt) Resolve(result model.ClaimResult) bool {
	if !result.IsSettled() {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.result.IsSettled() {
		return false
	}
	if result.TxID == "" {
		result.TxID = r.TxID
	}
	r.result = result
	close(r.done)
	return true
}

// Result returns the current result; Pending until resolved
func (r *Receipt) Result() model.ClaimResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.result
}

// Done is closed once the receipt is resolved
func (r *Receipt) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the receipt resolves or ctx ends
func (r *Receipt) Wait(ctx context.Context) (model.ClaimResult, error) {
	select {
	case <-r.done:
		return r.Result(), nil
	case <-ctx.Done():
		return r.Result(), ctx.Err()
	}
}
