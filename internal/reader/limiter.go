package reader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ppiankov/tagreveal/internal/cache"
	"github.com/ppiankov/tagreveal/internal/model"
)

// Limiter implements per-payload rate limiting so a tag resting on the reader
// does not produce a burst of identical events. A payload's limiter is
// forgotten once it has been idle long enough to refill completely.
type Limiter struct {
	limiters     *cache.Memory[*rate.Limiter]
	idle         time.Duration
	mu           sync.Mutex
	defaultRate  rate.Limit
	defaultBurst int
}

// NewLimiter creates a new limiter. perSecond <= 0 disables limiting.
func NewLimiter(perSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}

	l := &Limiter{
		defaultRate:  rate.Limit(perSecond),
		defaultBurst: burst,
	}
	if perSecond > 0 {
		l.idle = refillTime(perSecond, burst)
		l.limiters = cache.NewMemory[*rate.Limiter](l.idle, l.idle)
	}
	return l
}

// refillTime is how long an untouched limiter takes to regain its full burst
func refillTime(perSecond float64, burst int) time.Duration {
	d := time.Duration(math.Ceil(float64(burst) / perSecond * float64(time.Second)))
	if d < time.Second {
		d = time.Second
	}
	return d
}

// Allow checks if the payload may pass now
func (l *Limiter) Allow(payload []byte) bool {
	return l.AllowAt(payload, time.Now())
}

// AllowAt checks if the payload may pass at t
func (l *Limiter) AllowAt(payload []byte, t time.Time) bool {
	if l.defaultRate <= 0 {
		return true
	}
	return l.getLimiter(payload).AllowN(t, 1)
}

// getLimiter returns the rate limiter for a payload and extends its idle window
func (l *Limiter) getLimiter(payload []byte) *rate.Limiter {
	sum := sha256.Sum256(payload)
	key := cache.Key("debounce", hex.EncodeToString(sum[:]))

	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters.Get(key)
	if !ok {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	}
	_ = l.limiters.Set(key, limiter, l.idle)
	return limiter
}

// Debounce wraps a reader so repeated identical payloads are dropped.
// Error events always pass.
func Debounce(r Reader, l *Limiter) Reader {
	return &debounced{inner: r, limiter: l}
}

type debounced struct {
	inner   Reader
	limiter *Limiter
}

func (d *debounced) StartScan(ctx context.Context) (Stream, error) {
	inner, err := d.inner.StartScan(ctx)
	if err != nil {
		return nil, err
	}

	out := newStream(1)
	go func() {
		defer close(out.events)
		defer inner.Stop()

		for {
			select {
			case <-out.done:
				return
			case <-ctx.Done():
				return
			case ev, ok := <-inner.Events():
				if !ok {
					return
				}
				if ev.Err == nil && !d.limiter.AllowAt(ev.Payload, eventTime(ev)) {
					continue
				}
				if !out.emit(ctx, ev) {
					return
				}
			}
		}
	}()
	return out, nil
}

func eventTime(ev model.ScanEvent) time.Time {
	if ev.At.IsZero() {
		return time.Now()
	}
	return ev.At
}
