package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/ppiankov/tagreveal/internal/model"
)

func TestExtract_TextRecord(t *testing.T) {
	token, err := Extract(EncodeText("0xabc123", "en"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if token != model.ClaimToken("0xabc123") {
		t.Errorf("Expected token 0xabc123, got %s", token)
	}
}

func TestExtract_NormalisesCaseAndWhitespace(t *testing.T) {
	token, err := Extract(EncodeText("  0XDEADbeef \n", "en"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if token != "0xdeadbeef" {
		t.Errorf("Expected 0xdeadbeef, got %s", token)
	}
}

func TestExtract_SkipsNonHashRecords(t *testing.T) {
	msg := EncodeMessage(
		Record{TNF: TNFAbsoluteURI, Type: []byte("https://example.com")},
		TextRecord("Hello trainer", "en"),
		TextRecord("0x0badf00d", "en"),
	)

	token, err := Extract(msg)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if token != "0x0badf00d" {
		t.Errorf("Expected first hash-looking record, got %s", token)
	}
}

func TestExtract_NoTextRecord(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"nil payload", nil},
		{"empty record", []byte{0xD0, 0x00, 0x00}},
		{"uri only", EncodeMessage(Record{TNF: TNFWellKnown, Type: []byte("U"), Payload: []byte{0x04, 'x', '.', 'y'}})},
		{"garbage", []byte("0xabc123")},
		{"truncated", EncodeText("0xabc123", "en")[:5]},
		{"invalid utf-8 text", EncodeMessage(Record{TNF: TNFWellKnown, Type: []byte("T"), Payload: []byte{0x02, 'e', 'n', 0xff, 0xfe, 0xfd}})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := Extract(tt.payload)
			if token != "" {
				t.Fatalf("Expected no token, got %s", token)
			}
			if !errors.Is(err, ErrNoTextRecord) {
				t.Errorf("Expected ErrNoTextRecord, got %v", err)
			}
		})
	}
}

func TestExtract_BadFormat(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"no prefix", "hello"},
		{"prefix only", "0x"},
		{"non hex", "0xabcxyz"},
		{"too long", "0x" + strings.Repeat("a", MaxTokenDigits+1)},
		{"inner space", "0xab cd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := Extract(EncodeText(tt.text, "en"))
			if token != "" {
				t.Fatalf("Expected no token, got %s", token)
			}
			if !errors.Is(err, ErrBadFormat) {
				t.Errorf("Expected ErrBadFormat, got %v", err)
			}
			var extractionErr *ExtractionError
			if !errors.As(err, &extractionErr) {
				t.Errorf("Expected *ExtractionError, got %T", err)
			}
		})
	}
}

func TestExtract_MaxLengthHash(t *testing.T) {
	raw := "0x" + strings.Repeat("f", MaxTokenDigits)
	token, err := Extract(EncodeText(raw, "en"))
	if err != nil {
		t.Fatalf("Expected 32-byte hash to be accepted, got %v", err)
	}
	if string(token) != raw {
		t.Errorf("Expected %s, got %s", raw, token)
	}
}

func TestExtract_NoFalsePositives(t *testing.T) {
	// Every truncation of a valid message must fail rather than yield a different token
	full := EncodeText("0xabc123", "en")
	for i := 0; i < len(full); i++ {
		token, err := Extract(full[:i])
		if err == nil {
			t.Fatalf("Expected error for %d-byte prefix, got token %s", i, token)
		}
	}

	// Flipping header bits must never yield a token other than the original
	for bit := 0; bit < 8; bit++ {
		mutated := append([]byte(nil), full...)
		mutated[0] ^= 1 << bit
		token, err := Extract(mutated)
		if err == nil && token != "0xabc123" {
			t.Errorf("Header mutation %d produced unexpected token %s", bit, token)
		}
	}
}

func TestParseToken(t *testing.T) {
	token, err := ParseToken("0xDEAD")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if token != "0xdead" {
		t.Errorf("Expected 0xdead, got %s", token)
	}

	if _, err := ParseToken("dead"); !errors.Is(err, ErrBadFormat) {
		t.Errorf("Expected ErrBadFormat for missing prefix, got %v", err)
	}
}
