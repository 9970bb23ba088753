package ledger

import (
	"context"
	"strconv"
	"time"

	"github.com/ppiankov/tagreveal/internal/cache"
	"github.com/ppiankov/tagreveal/internal/model"
)

// Cached serves StatusOf from a TTL cache and invalidates entries as claims settle
type Cached struct {
	inner Client
	cache cache.Cache[model.ClaimResult]
	ttl   time.Duration
}

// NewCached wraps inner with an in-memory status cache. ttl <= 0 disables caching.
func NewCached(inner Client, ttl time.Duration) *Cached {
	return &Cached{
		inner: inner,
		cache: cache.NewMemory[model.ClaimResult](ttl, 2*ttl),
		ttl:   ttl,
	}
}

func statusKey(itemID uint64) string {
	return cache.Key("status", strconv.FormatUint(itemID, 10))
}

// Submit forwards to the wrapped client
func (c *Cached) Submit(ctx context.Context, token model.ClaimToken) (*Receipt, error) {
	receipt, err := c.inner.Submit(ctx, token)
	if err != nil {
		return nil, err
	}

	go func() {
		<-receipt.Done()
		if res := receipt.Result(); res.ItemID != 0 {
			_ = c.cache.Delete(statusKey(res.ItemID))
		}
	}()
	return receipt, nil
}

// StatusOf returns a cached status when fresh, otherwise asks the wrapped client
func (c *Cached) StatusOf(ctx context.Context, itemID uint64) (model.ClaimResult, error) {
	key := statusKey(itemID)
	if res, ok := c.cache.Get(key); ok {
		return res, nil
	}

	res, err := c.inner.StatusOf(ctx, itemID)
	if err != nil {
		return model.ClaimResult{}, err
	}
	if c.ttl > 0 && (res.IsConfirmed() || res.Status == model.ClaimNone) {
		_ = c.cache.Set(key, res, c.ttl)
	}
	return res, nil
}
