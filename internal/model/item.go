package model

import (
	"fmt"
	"strings"
)

// Item is the collectible a claim token unlocks
type Item struct {
	ID       uint64 `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Rarity   Rarity `json:"rarity" yaml:"rarity"`
	Kind     Kind   `json:"kind" yaml:"kind"`
	Behavior string `json:"behavior,omitempty" yaml:"behavior,omitempty"` // Flavor text
	URI      string `json:"uri,omitempty" yaml:"uri,omitempty"`           // Model/metadata location
	Owner    string `json:"owner,omitempty" yaml:"owner,omitempty"`       // Claimant address once claimed
	Claimed  bool   `json:"claimed" yaml:"claimed"`
}

// Rarity tiers, stored as their ordinal on the ledger
type Rarity int

const (
	RarityCommon    Rarity = 0
	RarityUncommon  Rarity = 1
	RarityRare      Rarity = 2
	RarityEpic      Rarity = 3
	RarityLegendary Rarity = 4
)

func (r Rarity) String() string {
	switch r {
	case RarityCommon:
		return "common"
	case RarityUncommon:
		return "uncommon"
	case RarityRare:
		return "rare"
	case RarityEpic:
		return "epic"
	case RarityLegendary:
		return "legendary"
	default:
		return "unknown"
	}
}

// Color returns the display colour used when the item is revealed
func (r Rarity) Color() string {
	switch r {
	case RarityLegendary:
		return "#FFD700"
	case RarityEpic:
		return "#A335EE"
	case RarityRare:
		return "#0070DD"
	case RarityUncommon:
		return "#1EFF00"
	default:
		return "#FFFFFF"
	}
}

// MarshalText encodes the rarity by name
func (r Rarity) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a rarity name
func (r *Rarity) UnmarshalText(text []byte) error {
	parsed, err := ParseRarity(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseRarity parses a rarity name (case-insensitive)
func ParseRarity(s string) (Rarity, error) {
	for r := RarityCommon; r <= RarityLegendary; r++ {
		if strings.EqualFold(strings.TrimSpace(s), r.String()) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown rarity: %q", s)
}

// Kind is the elemental type of an item
type Kind int

const (
	KindFire     Kind = 0
	KindWater    Kind = 1
	KindGrass    Kind = 2
	KindElectric Kind = 3
	KindPsychic  Kind = 4
	KindNormal   Kind = 5
)

func (k Kind) String() string {
	switch k {
	case KindFire:
		return "fire"
	case KindWater:
		return "water"
	case KindGrass:
		return "grass"
	case KindElectric:
		return "electric"
	case KindPsychic:
		return "psychic"
	case KindNormal:
		return "normal"
	default:
		return "unknown"
	}
}

// Color returns the display colour for the kind
func (k Kind) Color() string {
	switch k {
	case KindFire:
		return "#FF4136"
	case KindWater:
		return "#0074D9"
	case KindGrass:
		return "#2ECC40"
	case KindElectric:
		return "#FFDC00"
	case KindPsychic:
		return "#F012BE"
	case KindNormal:
		return "#AAAAAA"
	default:
		return "#FFFFFF"
	}
}

// MarshalText encodes the kind by name
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind parses a kind name (case-insensitive)
func ParseKind(s string) (Kind, error) {
	for k := KindFire; k <= KindNormal; k++ {
		if strings.EqualFold(strings.TrimSpace(s), k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown kind: %q", s)
}
