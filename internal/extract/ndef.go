package extract

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// TNF is the NDEF type name format (low three bits of the record header)
type TNF byte

const (
	TNFEmpty       TNF = 0x00
	TNFWellKnown   TNF = 0x01
	TNFMedia       TNF = 0x02
	TNFAbsoluteURI TNF = 0x03
	TNFExternal    TNF = 0x04
	TNFUnknown     TNF = 0x05
	TNFUnchanged   TNF = 0x06
)

const (
	flagMB  = 0x80 // message begin
	flagME  = 0x40 // message end
	flagCF  = 0x20 // chunked
	flagSR  = 0x10 // short record
	flagIL  = 0x08 // id length present
	maskTNF = 0x07

	textUTF16   = 0x80
	textLangLen = 0x3f
)

var (
	errTruncated = errors.New("ndef: truncated record")
	errChunked   = errors.New("ndef: chunked records are not supported")
	errNoBegin   = errors.New("ndef: first record missing message-begin flag")
	errTrailing  = errors.New("ndef: data after message-end record")
	errNoEnd     = errors.New("ndef: message-end record missing")
	errEmpty     = errors.New("ndef: empty message")
)

// Record is one decoded NDEF record
type Record struct {
	TNF     TNF
	Type    []byte
	ID      []byte
	Payload []byte
}

// IsText reports whether the record is an NFC Forum well-known text record
func (r Record) IsText() bool {
	return r.TNF == TNFWellKnown && string(r.Type) == "T"
}

// Text decodes a text record payload into its text and language code
func (r Record) Text() (string, string, error) {
	if !r.IsText() {
		return "", "", fmt.Errorf("ndef: not a text record")
	}
	if len(r.Payload) == 0 {
		return "", "", fmt.Errorf("ndef: empty text payload")
	}

	status := r.Payload[0]
	langLen := int(status & textLangLen)
	if 1+langLen > len(r.Payload) {
		return "", "", errTruncated
	}
	lang := string(r.Payload[1 : 1+langLen])
	body := r.Payload[1+langLen:]

	if status&textUTF16 != 0 {
		// Big-endian unless a BOM says otherwise
		decoded, err := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder().Bytes(body)
		if err != nil {
			return "", "", fmt.Errorf("ndef: decode utf-16 text: %w", err)
		}
		return string(decoded), lang, nil
	}

	if !utf8.Valid(body) {
		return "", "", fmt.Errorf("ndef: text is not valid utf-8")
	}
	return string(body), lang, nil
}

// Decode parses an NDEF message into records
func Decode(msg []byte) ([]Record, error) {
	if len(msg) == 0 {
		return nil, errEmpty
	}

	var records []Record
	pos := 0
	for pos < len(msg) {
		header := msg[pos]
		pos++

		if len(records) == 0 && header&flagMB == 0 {
			return nil, errNoBegin
		}
		if header&flagCF != 0 {
			return nil, errChunked
		}

		if pos >= len(msg) {
			return nil, errTruncated
		}
		typeLen := int(msg[pos])
		pos++

		var payloadLen int
		if header&flagSR != 0 {
			if pos >= len(msg) {
				return nil, errTruncated
			}
			payloadLen = int(msg[pos])
			pos++
		} else {
			if pos+4 > len(msg) {
				return nil, errTruncated
			}
			n := binary.BigEndian.Uint32(msg[pos : pos+4])
			if uint64(n) > uint64(len(msg)) {
				return nil, errTruncated
			}
			payloadLen = int(n)
			pos += 4
		}

		idLen := 0
		if header&flagIL != 0 {
			if pos >= len(msg) {
				return nil, errTruncated
			}
			idLen = int(msg[pos])
			pos++
		}

		if pos+typeLen+idLen+payloadLen > len(msg) {
			return nil, errTruncated
		}

		rec := Record{TNF: TNF(header & maskTNF)}
		rec.Type = msg[pos : pos+typeLen]
		pos += typeLen
		rec.ID = msg[pos : pos+idLen]
		pos += idLen
		rec.Payload = msg[pos : pos+payloadLen]
		pos += payloadLen

		records = append(records, rec)

		if header&flagME != 0 {
			if pos != len(msg) {
				return nil, errTrailing
			}
			return records, nil
		}
	}

	return nil, errNoEnd
}

// TextRecord builds a UTF-8 well-known text record
func TextRecord(text, lang string) Record {
	if lang == "" {
		lang = "en"
	}
	if len(lang) > textLangLen {
		lang = lang[:textLangLen]
	}
	payload := make([]byte, 0, 1+len(lang)+len(text))
	payload = append(payload, byte(len(lang)))
	payload = append(payload, lang...)
	payload = append(payload, text...)
	return Record{TNF: TNFWellKnown, Type: []byte("T"), Payload: payload}
}

// EncodeMessage serialises records into an NDEF message
func EncodeMessage(records ...Record) []byte {
	var out []byte
	for i, rec := range records {
		header := byte(rec.TNF) & maskTNF
		if i == 0 {
			header |= flagMB
		}
		if i == len(records)-1 {
			header |= flagME
		}
		short := len(rec.Payload) <= 0xff
		if short {
			header |= flagSR
		}
		if len(rec.ID) > 0 {
			header |= flagIL
		}

		out = append(out, header, byte(len(rec.Type)))
		if short {
			out = append(out, byte(len(rec.Payload)))
		} else {
			out = binary.BigEndian.AppendUint32(out, uint32(len(rec.Payload)))
		}
		if len(rec.ID) > 0 {
			out = append(out, byte(len(rec.ID)))
		}
		out = append(out, rec.Type...)
		out = append(out, rec.ID...)
		out = append(out, rec.Payload...)
	}
	return out
}

// EncodeText is shorthand for a single-record text message
func EncodeText(text, lang string) []byte {
	return EncodeMessage(TextRecord(text, lang))
}
