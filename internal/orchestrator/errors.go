package orchestrator

import (
	"errors"
	"fmt"

	"github.com/ppiankov/tagreveal/internal/auth"
	"github.com/ppiankov/tagreveal/internal/extract"
	"github.com/ppiankov/tagreveal/internal/model"
)

var (
	// ErrFlowActive is returned when a new flow is requested while one is in progress
	ErrFlowActive = errors.New("a reveal flow is already active")

	// ErrNotRetriable is returned by Retry outside an authorization error
	ErrNotRetriable = errors.New("current error is not retriable")
)

// ErrorKind identifies what went wrong in a flow
type ErrorKind string

const (
	KindNoTextRecord        ErrorKind = "no_text_record"
	KindBadFormat           ErrorKind = "bad_format"
	KindReaderFailure       ErrorKind = "reader_failure"
	KindUnauthorized        ErrorKind = "unauthorized"
	KindProviderUnavailable ErrorKind = "provider_unavailable"
	KindAlreadyClaimed      ErrorKind = "already_claimed"
	KindClaimUnauthorized   ErrorKind = "claim_unauthorized"
	KindNetworkFailure      ErrorKind = "network_failure"
	KindTimeout             ErrorKind = "timeout"
	KindPresentation        ErrorKind = "presentation"
)

// Category groups error kinds by how the caller should react
type Category string

const (
	CategoryExtraction    Category = "extraction"
	CategoryReader        Category = "reader"
	CategoryAuthorization Category = "authorization"
	CategoryClaim         Category = "claim"
	CategoryPresentation  Category = "presentation"
)

// FlowError is an error captured as orchestrator state
type FlowError struct {
	Kind  ErrorKind
	Token model.ClaimToken
	Err   error
}

func (e *FlowError) Error() string {
	msg := string(e.Kind)
	if e.Token != "" {
		msg += " (" + string(e.Token) + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// Category returns the taxonomy group of the error
func (e *FlowError) Category() Category {
	switch e.Kind {
	case KindNoTextRecord, KindBadFormat:
		return CategoryExtraction
	case KindReaderFailure:
		return CategoryReader
	case KindUnauthorized, KindProviderUnavailable:
		return CategoryAuthorization
	case KindPresentation:
		return CategoryPresentation
	default:
		return CategoryClaim
	}
}

// Retriable reports whether Retry can resume the flow.
// Claim errors need a fresh scan instead.
func (e *FlowError) Retriable() bool {
	return e.Category() == CategoryAuthorization
}

func extractionError(err error) *FlowError {
	kind := KindBadFormat
	if errors.Is(err, extract.ErrNoTextRecord) {
		kind = KindNoTextRecord
	}
	return &FlowError{Kind: kind, Err: err}
}

func authorizationError(token model.ClaimToken, err error) *FlowError {
	kind := KindProviderUnavailable
	if errors.Is(err, auth.ErrUnauthorized) {
		kind = KindUnauthorized
	}
	return &FlowError{Kind: kind, Token: token, Err: err}
}

func claimError(token model.ClaimToken, result model.ClaimResult, cause error) *FlowError {
	var kind ErrorKind
	switch result.Reason {
	case model.RejectAlreadyClaimed:
		kind = KindAlreadyClaimed
	case model.RejectUnauthorized:
		kind = KindClaimUnauthorized
	case model.RejectTimeout:
		kind = KindTimeout
	default:
		kind = KindNetworkFailure
	}
	if cause == nil {
		cause = fmt.Errorf("claim rejected: %s", result.Reason)
	}
	return &FlowError{Kind: kind, Token: token, Err: cause}
}
