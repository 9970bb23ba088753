package ledger

import (
	"context"
	"crypto/rand"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/ppiankov/tagreveal/internal/model"
	"github.com/ppiankov/tagreveal/internal/worker"
)

//go:embed schema.sql
var schemaSQL string

// hashBytes is the size of a minted claim hash
const hashBytes = 32

// SQLiteConfig configures a SQLite ledger
type SQLiteConfig struct {
	Path           string
	ConfirmLatency time.Duration
	QueueSize      int
	Logger         *log.Logger
}

// SQLite is a ledger persisted in a SQLite file.
// Confirmations run on a single worker so claims are written one at a time.
type SQLite struct {
	db      *sql.DB
	pool    *worker.Pool
	signer  Signer
	latency time.Duration
	logger  *log.Logger
	now     func() time.Time
}

// OpenSQLite opens (or creates) the ledger database at cfg.Path
func OpenSQLite(cfg SQLiteConfig, signer Signer) (*SQLite, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("ledger path is required")
	}
	dsn := filepath.Clean(cfg.Path) + "?_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	pool := worker.NewPool(1, cfg.QueueSize)
	pool.Start()

	return &SQLite{
		db:      db,
		pool:    pool,
		signer:  signer,
		latency: cfg.ConfirmLatency,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Close waits for queued confirmations and closes the database
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.pool.Drain()
	return s.db.Close()
}

// Mint creates an item and returns it with a fresh claim hash
func (s *SQLite) Mint(ctx context.Context, item model.Item, minter model.Identity) (model.Item, model.ClaimToken, error) {
	if err := ctx.Err(); err != nil {
		return model.Item{}, "", err
	}
	item.Name = strings.TrimSpace(item.Name)
	if item.Name == "" {
		return model.Item{}, "", fmt.Errorf("item name is required")
	}

	// a collision on 32 random bytes is not expected, but the constraint decides
	for attempt := 0; attempt < 3; attempt++ {
		token, err := newClaimHash()
		if err != nil {
			return model.Item{}, "", err
		}

		res, err := s.db.ExecContext(ctx,
			`INSERT INTO items (claim_hash, name, rarity, kind, behavior, uri, minted_by, minted_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			string(token), item.Name, int(item.Rarity), int(item.Kind),
			item.Behavior, item.URI, minter.Address, s.now().UTC().UnixMilli(),
		)
		if err != nil {
			if isUniqueViolation(err) {
				continue
			}
			return model.Item{}, "", fmt.Errorf("mint item: %w", err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return model.Item{}, "", fmt.Errorf("mint item id: %w", err)
		}
		item.ID = uint64(id)
		item.Claimed = false
		item.Owner = ""
		s.logger.Printf("ledger: minted item %d (%s)", item.ID, item.Name)
		return item, token, nil
	}
	return model.Item{}, "", fmt.Errorf("mint item: could not allocate a unique claim hash")
}

// Submit accepts a claim and queues its confirmation
func (s *SQLite) Submit(ctx context.Context, token model.ClaimToken) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	identity, ok := currentSigner(s.signer)
	if !ok {
		return Settled(token, model.Rejected(Classify(ErrUnauthorized))), nil
	}

	item, claimed, err := s.itemByHash(ctx, token)
	if err != nil {
		if errors.Is(err, ErrUnknownToken) {
			return Settled(token, model.Rejected(Classify(err))), nil
		}
		return nil, fmt.Errorf("submit claim: %w", err)
	}
	if claimed {
		return Settled(token, model.Rejected(Classify(ErrAlreadyClaimed))), nil
	}

	receipt := NewReceipt(token, uuid.NewString())
	job := worker.JobFunc(func(jobCtx context.Context) {
		s.confirm(jobCtx, item, identity, receipt)
	})
	if err := s.pool.Submit(ctx, job); err != nil {
		return nil, fmt.Errorf("submit claim: %w", err)
	}
	return receipt, nil
}

func (s *SQLite) confirm(ctx context.Context, item model.Item, identity model.Identity, receipt *Receipt) {
	if s.latency > 0 {
		select {
		case <-ctx.Done():
			receipt.Resolve(model.Rejected(Classify(ctx.Err())))
			return
		case <-time.After(s.latency):
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO claims (tx_id, item_id, claimant, claimed_at) VALUES (?, ?, ?, ?)`,
		receipt.TxID, item.ID, identity.Address, s.now().UTC().UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			err = ErrAlreadyClaimed
		}
		s.logger.Printf("ledger: claim %s for item %d failed: %v", receipt.TxID, item.ID, err)
		receipt.Resolve(model.Rejected(Classify(err)))
		return
	}

	item.Claimed = true
	item.Owner = identity.Address
	s.logger.Printf("ledger: item %d claimed by %s", item.ID, identity)
	receipt.Resolve(model.Confirmed(item.ID, &item))
}

const itemColumns = `i.id, i.name, i.rarity, i.kind, i.behavior, i.uri, COALESCE(c.claimant, '')`

func (s *SQLite) itemByHash(ctx context.Context, token model.ClaimToken) (model.Item, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+`
		   FROM items i LEFT JOIN claims c ON c.item_id = i.id
		  WHERE i.claim_hash = ?`,
		string(token),
	)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Item{}, false, ErrUnknownToken
		}
		return model.Item{}, false, fmt.Errorf("get item by hash: %w", err)
	}
	return item, item.Claimed, nil
}

// StatusOf reports the claim state of an item
func (s *SQLite) StatusOf(ctx context.Context, itemID uint64) (model.ClaimResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+`
		   FROM items i LEFT JOIN claims c ON c.item_id = i.id
		  WHERE i.id = ?`,
		itemID,
	)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ClaimResult{}, fmt.Errorf("status of %d: %w", itemID, ErrNotFound)
		}
		return model.ClaimResult{}, fmt.Errorf("status of %d: %w", itemID, err)
	}
	return itemStatus(item, false), nil
}

// Items lists every minted item in id order
func (s *SQLite) Items(ctx context.Context) ([]model.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+`
		   FROM items i LEFT JOIN claims c ON c.item_id = i.id
		  ORDER BY i.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("list items: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (model.Item, error) {
	var (
		item   model.Item
		id     int64
		rarity int
		kind   int
	)
	if err := row.Scan(&id, &item.Name, &rarity, &kind, &item.Behavior, &item.URI, &item.Owner); err != nil {
		return model.Item{}, err
	}
	item.ID = uint64(id)
	item.Rarity = model.Rarity(rarity)
	item.Kind = model.Kind(kind)
	item.Claimed = item.Owner != ""
	return item, nil
}

func newClaimHash() (model.ClaimToken, error) {
	buf := make([]byte, hashBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate claim hash: %w", err)
	}
	return model.ClaimToken("0x" + hex.EncodeToString(buf)), nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}
