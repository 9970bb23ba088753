package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/tagreveal/internal/model"
)

// Static grants a fixed identity (or a fixed denial) after an optional delay
type Static struct {
	identity model.Identity
	err      error
	delay    time.Duration

	mu      sync.Mutex
	granted bool
}

// NewStatic creates a provider that grants address
func NewStatic(address string, delay time.Duration) *Static {
	return &Static{identity: model.Identity{Address: strings.TrimSpace(address)}, delay: delay}
}

// NewDenying creates a provider that always fails with err
func NewDenying(err error) *Static {
	if err == nil {
		err = ErrUnauthorized
	}
	return &Static{err: err}
}

func (p *Static) RequestAccess(ctx context.Context) (model.Identity, error) {
	if p.delay > 0 {
		select {
		case <-ctx.Done():
			return model.Identity{}, ctx.Err()
		case <-time.After(p.delay):
		}
	}

	if p.err != nil {
		return model.Identity{}, p.err
	}
	if p.identity.IsZero() {
		return model.Identity{}, fmt.Errorf("%w: no address configured", ErrUnauthorized)
	}

	p.mu.Lock()
	p.granted = true
	p.mu.Unlock()
	return p.identity, nil
}

// CurrentIdentity reports the identity once it has been granted
func (p *Static) CurrentIdentity() (model.Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.identity, p.granted
}

// RequireOwner checks that identity is the configured owner (admin actions)
func RequireOwner(identity model.Identity, owner string) error {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return fmt.Errorf("%w: no owner configured", ErrUnauthorized)
	}
	if identity.IsZero() {
		return fmt.Errorf("%w: not connected", ErrUnauthorized)
	}
	if !strings.EqualFold(identity.Address, owner) {
		return fmt.Errorf("%w: only the owner can perform this action", ErrUnauthorized)
	}
	return nil
}
