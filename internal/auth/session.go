// Package auth manages the authorization session shared across reveal flows.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ppiankov/tagreveal/internal/model"
)

var (
	// ErrUnauthorized means the provider (or the user) denied access
	ErrUnauthorized = errors.New("unauthorized")

	// ErrProviderUnavailable means no decision could be obtained from the provider
	ErrProviderUnavailable = errors.New("authorization provider unavailable")
)

// Status is the session connection state
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusFailed       Status = "failed"
)

// Provider is the external authorization capability (wallet, identity service)
type Provider interface {
	// RequestAccess prompts for access and blocks until granted or denied
	RequestAccess(ctx context.Context) (model.Identity, error)

	// CurrentIdentity returns a pre-authorized identity without prompting
	CurrentIdentity() (model.Identity, bool)
}

// Session tracks the connection to a Provider.
// Concurrent Connect calls share one prompt.
type Session struct {
	provider      Provider
	promptTimeout time.Duration
	logger        *log.Logger
	group         singleflight.Group

	mu       sync.RWMutex
	status   Status
	identity model.Identity
	failure  error
	prompts  int
	resets   uint64
}

// NewSession creates a disconnected session. promptTimeout <= 0 waits indefinitely.
func NewSession(provider Provider, promptTimeout time.Duration, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Session{
		provider:      provider,
		promptTimeout: promptTimeout,
		logger:        logger,
		status:        StatusDisconnected,
	}
}

// Connect returns the session identity, prompting the provider if not connected.
// Cancelling ctx abandons the wait but not the shared attempt, whose outcome still updates the session.
func (s *Session) Connect(ctx context.Context) (model.Identity, error) {
	if id, ok := s.CurrentIdentity(); ok {
		return id, nil
	}

	ch := s.group.DoChan("connect", func() (any, error) {
		return s.attempt(ctx)
	})

	select {
	case <-ctx.Done():
		return model.Identity{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return model.Identity{}, res.Err
		}
		return res.Val.(model.Identity), nil
	}
}

func (s *Session) attempt(ctx context.Context) (model.Identity, error) {
	s.mu.Lock()
	if s.status == StatusConnected {
		id := s.identity
		s.mu.Unlock()
		return id, nil
	}
	s.status = StatusConnecting
	s.failure = nil
	s.prompts++
	resets := s.resets
	s.mu.Unlock()

	s.logger.Printf("auth: requesting access")

	attemptCtx := context.WithoutCancel(ctx)
	if s.promptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(attemptCtx, s.promptTimeout)
		defer cancel()
	}

	id, err := s.provider.RequestAccess(attemptCtx)
	if err == nil && id.IsZero() {
		err = fmt.Errorf("%w: provider returned no identity", ErrUnauthorized)
	}
	err = classify(err)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.resets != resets {
		// disconnected or revoked while the prompt was open
		s.logger.Printf("auth: discarding access decision after reset")
		return model.Identity{}, fmt.Errorf("%w: session reset while connecting", ErrUnauthorized)
	}
	if err != nil {
		s.status = StatusFailed
		s.identity = model.Identity{}
		s.failure = err
		s.logger.Printf("auth: access failed: %v", err)
		return model.Identity{}, err
	}

	s.status = StatusConnected
	s.identity = id
	s.logger.Printf("auth: connected as %s", id)
	return id, nil
}

// classify maps provider errors onto ErrUnauthorized or ErrProviderUnavailable
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrProviderUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: prompt timed out", ErrProviderUnavailable)
	default:
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
}

// CurrentIdentity returns the identity only while connected
func (s *Session) CurrentIdentity() (model.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.status != StatusConnected {
		return model.Identity{}, false
	}
	return s.identity, true
}

// Status returns the connection state and, when failed, the reason
func (s *Session) Status() (Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status, s.failure
}

// Prompts returns how many times the provider was asked for access
func (s *Session) Prompts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prompts
}

// Disconnect drops the identity on explicit user request
func (s *Session) Disconnect() {
	s.reset("disconnected")
}

// Revoke drops the identity after the provider withdrew access
func (s *Session) Revoke() {
	s.reset("access revoked")
}

func (s *Session) reset(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusConnected {
		s.logger.Printf("auth: %s", reason)
	}
	s.resets++
	s.status = StatusDisconnected
	s.identity = model.Identity{}
	s.failure = nil
}

// Restore adopts an identity the provider already authorized, without prompting
func (s *Session) Restore() bool {
	id, ok := s.provider.CurrentIdentity()
	if !ok || id.IsZero() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusConnecting {
		return false
	}
	s.status = StatusConnected
	s.identity = id
	s.failure = nil
	return true
}
