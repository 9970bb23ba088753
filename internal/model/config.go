package model

import "time"

// Config is the complete tagreveal configuration.
// Precedence: flags, TAGREVEAL_* environment, config file, DefaultConfig.
type Config struct {
	Reader   ReaderConfig   `yaml:"reader" mapstructure:"reader"`
	Auth     AuthConfig     `yaml:"auth" mapstructure:"auth"`
	Ledger   LedgerConfig   `yaml:"ledger" mapstructure:"ledger"`
	Timeline TimelineConfig `yaml:"timeline" mapstructure:"timeline"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
}

// ReaderConfig controls the tag reader
type ReaderConfig struct {
	RepeatPerSecond float64       `yaml:"repeat_per_second" mapstructure:"repeat_per_second"` // Accepted re-reads of the same tag per second
	RepeatBurst     int           `yaml:"repeat_burst" mapstructure:"repeat_burst"`
	LineDelay       time.Duration `yaml:"line_delay" mapstructure:"line_delay"` // Pause between scripted reads
}

// AuthConfig selects and configures the authorization provider
type AuthConfig struct {
	Provider      string        `yaml:"provider" mapstructure:"provider"` // static, token
	Address       string        `yaml:"address" mapstructure:"address"`   // Identity for the static provider
	Token         string        `yaml:"token,omitempty" mapstructure:"token"`
	TokenSecret   string        `yaml:"token_secret,omitempty" mapstructure:"token_secret"`
	TokenIssuer   string        `yaml:"token_issuer" mapstructure:"token_issuer"`
	PromptTimeout time.Duration `yaml:"prompt_timeout" mapstructure:"prompt_timeout"`
}

// LedgerConfig selects and configures the ledger client
type LedgerConfig struct {
	Driver         string        `yaml:"driver" mapstructure:"driver"` // memory, sqlite
	Path           string        `yaml:"path" mapstructure:"path"`     // SQLite database file
	Owner          string        `yaml:"owner" mapstructure:"owner"`   // Address allowed to mint
	ConfirmLatency time.Duration `yaml:"confirm_latency" mapstructure:"confirm_latency"`
	ClaimTimeout   time.Duration `yaml:"claim_timeout" mapstructure:"claim_timeout"`
	StatusCacheTTL time.Duration `yaml:"status_cache_ttl" mapstructure:"status_cache_ttl"`
	Items          []SeedItem    `yaml:"items,omitempty" mapstructure:"items"` // Preloaded into the memory ledger
}

// SeedItem is an item registered under a fixed claim hash at startup
type SeedItem struct {
	Hash     string `yaml:"hash" mapstructure:"hash"`
	Name     string `yaml:"name" mapstructure:"name"`
	Rarity   string `yaml:"rarity" mapstructure:"rarity"`
	Kind     string `yaml:"kind" mapstructure:"kind"`
	Behavior string `yaml:"behavior,omitempty" mapstructure:"behavior"`
	URI      string `yaml:"uri,omitempty" mapstructure:"uri"`
}

// Item converts the seed to a ledger item
func (s SeedItem) Item() (Item, error) {
	rarity, err := ParseRarity(s.Rarity)
	if err != nil {
		return Item{}, err
	}
	kind, err := ParseKind(s.Kind)
	if err != nil {
		return Item{}, err
	}
	return Item{Name: s.Name, Rarity: rarity, Kind: kind, Behavior: s.Behavior, URI: s.URI}, nil
}

// TimelineConfig controls reveal animation timing
type TimelineConfig struct {
	Rise            time.Duration `yaml:"rise" mapstructure:"rise"`
	Pause           time.Duration `yaml:"pause" mapstructure:"pause"`
	Reveal          time.Duration `yaml:"reveal" mapstructure:"reveal"`
	Fail            time.Duration `yaml:"fail" mapstructure:"fail"`
	FramesPerSecond int           `yaml:"frames_per_second" mapstructure:"frames_per_second"`
}

// OutputConfig controls rendering
type OutputConfig struct {
	Verbose    bool   `yaml:"verbose" mapstructure:"verbose"`
	ReportPath string `yaml:"report_path" mapstructure:"report_path"` // .json or .yaml
	PoseEvery  int    `yaml:"pose_every" mapstructure:"pose_every"`   // Print pose every N frames (0 = never)
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Reader: ReaderConfig{
			RepeatPerSecond: 0.5,
			RepeatBurst:     1,
			LineDelay:       250 * time.Millisecond,
		},
		Auth: AuthConfig{
			Provider:      "static",
			TokenIssuer:   "tagreveal",
			PromptTimeout: 2 * time.Minute,
		},
		Ledger: LedgerConfig{
			Driver:         "memory",
			Path:           "tagreveal.db",
			ConfirmLatency: 1500 * time.Millisecond,
			ClaimTimeout:   30 * time.Second,
			StatusCacheTTL: 30 * time.Second,
		},
		Timeline: TimelineConfig{
			Rise:            2 * time.Second,
			Pause:           500 * time.Millisecond,
			Reveal:          2 * time.Second,
			Fail:            time.Second,
			FramesPerSecond: 60,
		},
		Output: OutputConfig{
			Verbose:   false,
			PoseEvery: 0,
		},
	}
}
