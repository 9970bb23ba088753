package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/tagreveal/internal/model"
)

type memoryEntry struct {
	token   model.ClaimToken
	item    model.Item
	pending int
}

// Memory is an in-process ledger with simulated confirmation latency
type Memory struct {
	signer  Signer
	latency time.Duration

	mu          sync.Mutex
	byToken     map[model.ClaimToken]*memoryEntry
	byID        map[uint64]*memoryEntry
	nextID      uint64
	submissions map[model.ClaimToken]int
}

// NewMemory creates an empty in-memory ledger
func NewMemory(signer Signer, latency time.Duration) *Memory {
	return &Memory{
		signer:      signer,
		latency:     latency,
		byToken:     make(map[model.ClaimToken]*memoryEntry),
		byID:        make(map[uint64]*memoryEntry),
		nextID:      1,
		submissions: make(map[model.ClaimToken]int),
	}
}

// Register binds token to item. A zero item.ID is assigned the next free id.
func (m *Memory) Register(token model.ClaimToken, item model.Item) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byToken[token]; exists {
		return 0, fmt.Errorf("register %s: token already bound", token)
	}
	if item.ID == 0 {
		for m.byID[m.nextID] != nil {
			m.nextID++
		}
		item.ID = m.nextID
	}
	if _, exists := m.byID[item.ID]; exists {
		return 0, fmt.Errorf("register %s: item %d already exists", token, item.ID)
	}

	e := &memoryEntry{token: token, item: item}
	m.byToken[token] = e
	m.byID[item.ID] = e
	return item.ID, nil
}

// Submit accepts a claim and confirms it after the configured latency
func (m *Memory) Submit(ctx context.Context, token model.ClaimToken) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.submissions[token]++

	identity, ok := currentSigner(m.signer)
	if !ok {
		return Settled(token, model.Rejected(Classify(ErrUnauthorized))), nil
	}

	e, exists := m.byToken[token]
	if !exists {
		return Settled(token, model.Rejected(Classify(ErrUnknownToken))), nil
	}
	if e.item.Claimed {
		return Settled(token, model.Rejected(Classify(ErrAlreadyClaimed))), nil
	}

	receipt := NewReceipt(token, uuid.NewString())
	e.pending++
	go m.confirm(e, identity, receipt)
	return receipt, nil
}

func (m *Memory) confirm(e *memoryEntry, identity model.Identity, receipt *Receipt) {
	if m.latency > 0 {
		time.Sleep(m.latency)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e.pending--
	if e.item.Claimed {
		receipt.Resolve(model.Rejected(Classify(ErrAlreadyClaimed)))
		return
	}

	e.item.Claimed = true
	e.item.Owner = identity.Address
	item := e.item
	receipt.Resolve(model.Confirmed(item.ID, &item))
}

// StatusOf reports the claim state of an item
func (m *Memory) StatusOf(ctx context.Context, itemID uint64) (model.ClaimResult, error) {
	if err := ctx.Err(); err != nil {
		return model.ClaimResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.byID[itemID]
	if !ok {
		return model.ClaimResult{}, fmt.Errorf("status of %d: %w", itemID, ErrNotFound)
	}
	return itemStatus(e.item, e.pending > 0), nil
}

// Submissions returns how many times token was submitted
func (m *Memory) Submissions(token model.ClaimToken) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submissions[token]
}

func itemStatus(item model.Item, pending bool) model.ClaimResult {
	switch {
	case item.Claimed:
		return model.Confirmed(item.ID, &item)
	case pending:
		res := model.Pending()
		res.ItemID = item.ID
		res.Item = &item
		return res
	default:
		return model.ClaimResult{Status: model.ClaimNone, ItemID: item.ID, Item: &item}
	}
}

func currentSigner(s Signer) (model.Identity, bool) {
	if s == nil {
		return model.Identity{}, false
	}
	id, ok := s.CurrentIdentity()
	return id, ok && !id.IsZero()
}
