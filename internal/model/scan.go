package model

import "time"

// ScanEvent is one observation from a tag reader: either a payload or an error
type ScanEvent struct {
	Payload []byte    // Raw NDEF message bytes
	Err     error     // Reader-side failure (payload is empty when set)
	At      time.Time // When the reader observed the tag
}

// Identity is the authorization subject (wallet address or handle)
type Identity struct {
	Address string `json:"address" yaml:"address"`
}

// IsZero reports whether the identity is unset
func (i Identity) IsZero() bool {
	return i.Address == ""
}

func (i Identity) String() string {
	return i.Address
}
