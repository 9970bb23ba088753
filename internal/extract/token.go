package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/tagreveal/internal/model"
)

// MaxTokenDigits bounds the hex body of a claim hash (32 bytes)
const MaxTokenDigits = 64

const tokenPrefix = "0x"

var (
	// ErrNoTextRecord means the payload holds no decodable text record
	ErrNoTextRecord = errors.New("no text record")

	// ErrBadFormat means text was found but it is not a claim hash
	ErrBadFormat = errors.New("bad claim hash format")
)

// ExtractionError wraps ErrNoTextRecord or ErrBadFormat with detail
type ExtractionError struct {
	Err    error
	Detail string
}

func (e *ExtractionError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Detail
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Extract resolves a raw tag payload to a claim token.
// The first text record starting with "0x" is used; it must then be a well-formed hash.
func Extract(payload []byte) (model.ClaimToken, error) {
	records, err := Decode(payload)
	if err != nil {
		return "", &ExtractionError{Err: ErrNoTextRecord, Detail: err.Error()}
	}

	sawText := false
	for _, rec := range records {
		if !rec.IsText() {
			continue
		}
		text, _, err := rec.Text()
		if err != nil {
			continue
		}
		sawText = true

		text = strings.TrimSpace(text)
		if !hasTokenPrefix(text) {
			continue
		}

		token, err := ParseToken(text)
		if err != nil {
			return "", err
		}
		return token, nil
	}

	if !sawText {
		return "", &ExtractionError{Err: ErrNoTextRecord, Detail: fmt.Sprintf("%d record(s), none decodable as text", len(records))}
	}
	return "", &ExtractionError{Err: ErrBadFormat, Detail: "no text record starts with " + tokenPrefix}
}

// ParseToken validates a raw claim hash string and normalises it to lower case
func ParseToken(raw string) (model.ClaimToken, error) {
	s := strings.TrimSpace(raw)
	if !hasTokenPrefix(s) {
		return "", &ExtractionError{Err: ErrBadFormat, Detail: fmt.Sprintf("missing %s prefix", tokenPrefix)}
	}

	digits := s[len(tokenPrefix):]
	if len(digits) == 0 {
		return "", &ExtractionError{Err: ErrBadFormat, Detail: "empty hash"}
	}
	if len(digits) > MaxTokenDigits {
		return "", &ExtractionError{Err: ErrBadFormat, Detail: fmt.Sprintf("hash longer than %d digits", MaxTokenDigits)}
	}
	for i := 0; i < len(digits); i++ {
		if !isHex(digits[i]) {
			return "", &ExtractionError{Err: ErrBadFormat, Detail: fmt.Sprintf("invalid hex digit %q", digits[i])}
		}
	}

	return model.ClaimToken(tokenPrefix + strings.ToLower(digits)), nil
}

func hasTokenPrefix(s string) bool {
	return len(s) >= len(tokenPrefix) && strings.EqualFold(s[:len(tokenPrefix)], tokenPrefix)
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
