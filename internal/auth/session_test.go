package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/tagreveal/internal/model"
)

// promptProvider blocks every RequestAccess until the test answers it
type promptProvider struct {
	calls   atomic.Int32
	answers chan answer
	preAuth model.Identity
}

type answer struct {
	id  model.Identity
	err error
}

func newPromptProvider() *promptProvider {
	return &promptProvider{answers: make(chan answer, 4)}
}

func (p *promptProvider) RequestAccess(ctx context.Context) (model.Identity, error) {
	p.calls.Add(1)
	select {
	case a := <-p.answers:
		return a.id, a.err
	case <-ctx.Done():
		return model.Identity{}, ctx.Err()
	}
}

func (p *promptProvider) CurrentIdentity() (model.Identity, bool) {
	return p.preAuth, !p.preAuth.IsZero()
}

func waitStatus(t *testing.T, s *Session, want Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got, _ := s.Status(); got == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	got, _ := s.Status()
	t.Fatalf("Expected status %s, got %s", want, got)
}

func TestSession_ConcurrentConnectSharesPrompt(t *testing.T) {
	provider := newPromptProvider()
	s := NewSession(provider, 0, nil)

	const callers = 5
	var wg sync.WaitGroup
	results := make([]model.Identity, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := s.Connect(context.Background())
			if err != nil {
				t.Errorf("Connect %d failed: %v", i, err)
			}
			results[i] = id
		}(i)
	}

	waitStatus(t, s, StatusConnecting)
	// let the other callers join the in-flight attempt
	time.Sleep(20 * time.Millisecond)
	provider.answers <- answer{id: model.Identity{Address: "ash"}}
	wg.Wait()

	if n := provider.calls.Load(); n != 1 {
		t.Errorf("Expected 1 prompt, got %d", n)
	}
	if s.Prompts() != 1 {
		t.Errorf("Expected session to count 1 prompt, got %d", s.Prompts())
	}
	for i, id := range results {
		if id.Address != "ash" {
			t.Errorf("Caller %d: expected ash, got %q", i, id.Address)
		}
	}
}

func TestSession_ConnectedSkipsPrompt(t *testing.T) {
	provider := newPromptProvider()
	provider.answers <- answer{id: model.Identity{Address: "ash"}}
	s := NewSession(provider, 0, nil)

	if _, err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if _, err := s.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect failed: %v", err)
	}
	if n := provider.calls.Load(); n != 1 {
		t.Errorf("Expected 1 prompt, got %d", n)
	}
}

func TestSession_CancelledWaiterDoesNotCancelAttempt(t *testing.T) {
	provider := newPromptProvider()
	s := NewSession(provider, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.Connect(ctx)
		done <- err
	}()

	waitStatus(t, s, StatusConnecting)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}

	// the prompt is still open; a late grant lands in the session
	provider.answers <- answer{id: model.Identity{Address: "misty"}}
	waitStatus(t, s, StatusConnected)

	id, ok := s.CurrentIdentity()
	if !ok || id.Address != "misty" {
		t.Errorf("Expected misty connected, got %q (%v)", id.Address, ok)
	}
}

func TestSession_Denied(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"denied", ErrUnauthorized, ErrUnauthorized},
		{"unavailable", ErrProviderUnavailable, ErrProviderUnavailable},
		{"other errors are unavailable", errors.New("socket closed"), ErrProviderUnavailable},
		{"empty identity", nil, ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newPromptProvider()
			provider.answers <- answer{err: tt.err}
			s := NewSession(provider, 0, nil)

			_, err := s.Connect(context.Background())
			if !errors.Is(err, tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, err)
			}
			status, failure := s.Status()
			if status != StatusFailed || !errors.Is(failure, tt.want) {
				t.Errorf("Expected failed(%v), got %s(%v)", tt.want, status, failure)
			}
			if _, ok := s.CurrentIdentity(); ok {
				t.Error("Expected no identity after failure")
			}
		})
	}
}

func TestSession_PromptTimeout(t *testing.T) {
	provider := newPromptProvider()
	s := NewSession(provider, 20*time.Millisecond, nil)

	_, err := s.Connect(context.Background())
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("Expected ErrProviderUnavailable, got %v", err)
	}
}

func TestSession_DisconnectRevokeRestore(t *testing.T) {
	provider := newPromptProvider()
	provider.answers <- answer{id: model.Identity{Address: "brock"}}
	s := NewSession(provider, 0, nil)

	if _, err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	s.Disconnect()
	if status, _ := s.Status(); status != StatusDisconnected {
		t.Errorf("Expected disconnected, got %s", status)
	}

	if s.Restore() {
		t.Error("Expected Restore to fail without a pre-authorized identity")
	}
	provider.preAuth = model.Identity{Address: "brock"}
	if !s.Restore() {
		t.Fatal("Expected Restore to adopt the provider identity")
	}
	if id, ok := s.CurrentIdentity(); !ok || id.Address != "brock" {
		t.Errorf("Expected brock after restore, got %q", id.Address)
	}

	s.Revoke()
	if _, ok := s.CurrentIdentity(); ok {
		t.Error("Expected no identity after revoke")
	}
	if n := provider.calls.Load(); n != 1 {
		t.Errorf("Expected Restore not to prompt, got %d prompts", n)
	}
}

func TestSession_RevokeDuringPromptWins(t *testing.T) {
	provider := newPromptProvider()
	s := NewSession(provider, 0, nil)

	errs := make(chan error, 1)
	go func() {
		_, err := s.Connect(context.Background())
		errs <- err
	}()

	waitStatus(t, s, StatusConnecting)
	s.Revoke()
	provider.answers <- answer{id: model.Identity{Address: "ash"}}

	select {
	case err := <-errs:
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("Expected ErrUnauthorized, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for Connect")
	}

	if status, _ := s.Status(); status != StatusDisconnected {
		t.Errorf("Expected disconnected after revoke, got %s", status)
	}
	if _, ok := s.CurrentIdentity(); ok {
		t.Error("Expected no identity after revoke")
	}

	provider.answers <- answer{id: model.Identity{Address: "ash"}}
	if id, err := s.Connect(context.Background()); err != nil || id.Address != "ash" {
		t.Errorf("Expected a fresh connect to succeed, got %v %v", id, err)
	}
}
