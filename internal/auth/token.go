package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ppiankov/tagreveal/internal/model"
)

// TokenSource yields a signed access token, possibly after user interaction
type TokenSource func(ctx context.Context) (string, error)

// SignedTokenConfig defines how access tokens are verified
type SignedTokenConfig struct {
	Secret []byte
	Issuer string
	Now    func() time.Time
}

// SignedToken authorizes the subject of an HS256 token
type SignedToken struct {
	source TokenSource
	cfg    SignedTokenConfig

	mu       sync.Mutex
	identity model.Identity
}

// NewSignedToken creates a provider that verifies tokens from source
func NewSignedToken(source TokenSource, cfg SignedTokenConfig) (*SignedToken, error) {
	if source == nil {
		return nil, errors.New("token source is required")
	}
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token secret is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SignedToken{source: source, cfg: cfg}, nil
}

// StaticToken is a TokenSource for a token supplied up front
func StaticToken(token string) TokenSource {
	return func(ctx context.Context) (string, error) {
		if strings.TrimSpace(token) == "" {
			return "", errors.New("no access token supplied")
		}
		return token, nil
	}
}

func (p *SignedToken) RequestAccess(ctx context.Context) (model.Identity, error) {
	raw, err := p.source(ctx)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return model.Identity{}, err
		}
		return model.Identity{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	id, err := p.Verify(raw)
	if err != nil {
		return model.Identity{}, err
	}

	p.mu.Lock()
	p.identity = id
	p.mu.Unlock()
	return id, nil
}

// CurrentIdentity returns the last verified identity
func (p *SignedToken) CurrentIdentity() (model.Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.identity, !p.identity.IsZero()
}

// Verify checks signature, issuer and expiry and returns the token subject
func (p *SignedToken) Verify(raw string) (model.Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return model.Identity{}, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.cfg.Now),
	}
	if p.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.cfg.Issuer))
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		return p.cfg.Secret, nil
	}, opts...)
	if err != nil {
		return model.Identity{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	if !IsAddress(claims.Subject) {
		return model.Identity{}, fmt.Errorf("%w: subject %q is not an address", ErrUnauthorized, claims.Subject)
	}
	return model.Identity{Address: strings.ToLower(claims.Subject)}, nil
}

// IssueToken signs an access token for address (used by tests and local setups)
func IssueToken(secret []byte, issuer, address string, ttl time.Duration, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   address,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// IsAddress reports whether s is 0x followed by 40 hex digits
func IsAddress(s string) bool {
	if len(s) != 42 || !strings.EqualFold(s[:2], "0x") {
		return false
	}
	for _, c := range s[2:] {
		if !(('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')) {
			return false
		}
	}
	return true
}
