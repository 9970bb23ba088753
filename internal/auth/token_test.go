package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ppiankov/tagreveal/internal/model"
)

const testAddress = "0x00000000000000000000000000000000000000aB"

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestSigned(t *testing.T, token string) *SignedToken {
	t.Helper()
	p, err := NewSignedToken(StaticToken(token), SignedTokenConfig{
		Secret: []byte("s3cret"),
		Issuer: "tagreveal",
		Now:    func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("NewSignedToken failed: %v", err)
	}
	return p
}

func TestSignedToken_Grants(t *testing.T) {
	token, err := IssueToken([]byte("s3cret"), "tagreveal", testAddress, time.Hour, testNow)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	p := newTestSigned(t, token)
	if _, ok := p.CurrentIdentity(); ok {
		t.Fatal("Expected no identity before access is requested")
	}

	id, err := p.RequestAccess(context.Background())
	if err != nil {
		t.Fatalf("Expected grant, got %v", err)
	}
	if id.Address != "0x00000000000000000000000000000000000000ab" {
		t.Errorf("Expected lower-cased address, got %s", id.Address)
	}
	if cur, ok := p.CurrentIdentity(); !ok || cur != id {
		t.Errorf("Expected CurrentIdentity %s, got %s", id, cur)
	}
}

func TestSignedToken_Rejects(t *testing.T) {
	good := func(secret, issuer, subject string, ttl time.Duration) string {
		tok, err := IssueToken([]byte(secret), issuer, subject, ttl, testNow)
		if err != nil {
			t.Fatalf("IssueToken failed: %v", err)
		}
		return tok
	}

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", good("other", "tagreveal", testAddress, time.Hour)},
		{"wrong issuer", good("s3cret", "someone", testAddress, time.Hour)},
		{"expired", good("s3cret", "tagreveal", testAddress, -time.Minute)},
		{"subject not an address", good("s3cret", "tagreveal", "ash", time.Hour)},
		{"garbage", "not.a.token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestSigned(t, tt.token).RequestAccess(context.Background())
			if !errors.Is(err, ErrUnauthorized) {
				t.Errorf("Expected ErrUnauthorized, got %v", err)
			}
		})
	}
}

func TestSignedToken_SourceFailure(t *testing.T) {
	_, err := newTestSigned(t, "").RequestAccess(context.Background())
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("Expected ErrProviderUnavailable, got %v", err)
	}

	if _, err := NewSignedToken(StaticToken("x"), SignedTokenConfig{}); err == nil {
		t.Error("Expected error for missing secret")
	}
}

func TestStatic(t *testing.T) {
	p := NewStatic("ash", 0)
	if _, ok := p.CurrentIdentity(); ok {
		t.Error("Expected no identity before grant")
	}
	id, err := p.RequestAccess(context.Background())
	if err != nil || id.Address != "ash" {
		t.Fatalf("Expected ash, got %q (%v)", id.Address, err)
	}
	if _, ok := p.CurrentIdentity(); !ok {
		t.Error("Expected identity after grant")
	}

	if _, err := NewDenying(nil).RequestAccess(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewStatic("ash", time.Hour).RequestAccess(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestRequireOwner(t *testing.T) {
	owner := model.Identity{Address: testAddress}

	if err := RequireOwner(owner, "0x00000000000000000000000000000000000000AB"); err != nil {
		t.Errorf("Expected owner to pass case-insensitively, got %v", err)
	}
	if err := RequireOwner(model.Identity{Address: "0x1"}, testAddress); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized for non-owner, got %v", err)
	}
	if err := RequireOwner(owner, ""); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized without owner, got %v", err)
	}
}
