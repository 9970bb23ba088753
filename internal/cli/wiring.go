package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/ppiankov/tagreveal/internal/auth"
	"github.com/ppiankov/tagreveal/internal/extract"
	"github.com/ppiankov/tagreveal/internal/ledger"
	"github.com/ppiankov/tagreveal/internal/model"
	"github.com/ppiankov/tagreveal/internal/reader"
	"github.com/ppiankov/tagreveal/internal/timeline"
)

// buildProvider selects the authorization provider named in cfg
func buildProvider(cfg model.AuthConfig) (auth.Provider, error) {
	switch cfg.Provider {
	case "", "static":
		if !auth.IsAddress(cfg.Address) {
			return nil, fmt.Errorf("auth.address must be a 0x-prefixed 40-digit address, got %q", cfg.Address)
		}
		return auth.NewStatic(cfg.Address, 0), nil
	case "token":
		provider, err := auth.NewSignedToken(auth.StaticToken(cfg.Token), auth.SignedTokenConfig{
			Secret: []byte(cfg.TokenSecret),
			Issuer: cfg.TokenIssuer,
		})
		if err != nil {
			return nil, fmt.Errorf("token provider: %w", err)
		}
		return provider, nil
	default:
		return nil, fmt.Errorf("unknown auth provider: %s (use static or token)", cfg.Provider)
	}
}

// buildLedger opens the configured ledger; the returned closer releases it
func buildLedger(cfg model.LedgerConfig, signer ledger.Signer, logger *log.Logger) (ledger.Client, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Driver {
	case "", "memory":
		mem := ledger.NewMemory(signer, cfg.ConfirmLatency)
		if err := seedMemory(mem, cfg.Items); err != nil {
			return nil, noop, err
		}
		logger.Printf("ledger: memory with %d seeded item(s)", len(cfg.Items))
		return mem, noop, nil
	case "sqlite":
		db, err := openSQLite(cfg, signer, logger)
		if err != nil {
			return nil, noop, err
		}
		return db, db.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown ledger driver: %s (use memory or sqlite)", cfg.Driver)
	}
}

func openSQLite(cfg model.LedgerConfig, signer ledger.Signer, logger *log.Logger) (*ledger.SQLite, error) {
	db, err := ledger.OpenSQLite(ledger.SQLiteConfig{
		Path:           cfg.Path,
		ConfirmLatency: cfg.ConfirmLatency,
		Logger:         logger,
	}, signer)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", cfg.Path, err)
	}
	return db, nil
}

// seedMemory registers configured items under their claim hashes
func seedMemory(mem *ledger.Memory, items []model.SeedItem) error {
	for i, seed := range items {
		token, err := extract.ParseToken(seed.Hash)
		if err != nil {
			return fmt.Errorf("ledger.items[%d]: %w", i, err)
		}
		item, err := seed.Item()
		if err != nil {
			return fmt.Errorf("ledger.items[%d]: %w", i, err)
		}
		if _, err := mem.Register(token, item); err != nil {
			return fmt.Errorf("ledger.items[%d]: %w", i, err)
		}
	}
	return nil
}

// buildReader reads scripted tag lines from path ("-" for stdin) with repeat suppression
func buildReader(path string, cfg model.ReaderConfig) (reader.Reader, func() error, error) {
	var src io.ReadCloser
	if path == "" || path == "-" {
		src = io.NopCloser(os.Stdin)
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open input: %w", err)
		}
		src = f
	}

	lines := reader.NewLineReader(src, cfg.LineDelay)
	limiter := reader.NewLimiter(cfg.RepeatPerSecond, cfg.RepeatBurst)
	return reader.Debounce(lines, limiter), src.Close, nil
}

// durations converts timeline config
func durations(cfg model.TimelineConfig) timeline.Durations {
	return timeline.Durations{
		Rise:   cfg.Rise,
		Pause:  cfg.Pause,
		Reveal: cfg.Reveal,
		Fail:   cfg.Fail,
	}
}

// connectOwner authorizes through provider and checks the identity against owner
func connectOwner(ctx context.Context, cfg *model.Config, logger *log.Logger) (model.Identity, error) {
	provider, err := buildProvider(cfg.Auth)
	if err != nil {
		return model.Identity{}, err
	}
	session := auth.NewSession(provider, cfg.Auth.PromptTimeout, logger)
	identity, err := session.Connect(ctx)
	if err != nil {
		return model.Identity{}, fmt.Errorf("authorize: %w", err)
	}
	if err := auth.RequireOwner(identity, cfg.Ledger.Owner); err != nil {
		return model.Identity{}, err
	}
	return identity, nil
}
