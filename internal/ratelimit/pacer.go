package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces sends per key (a sending account) by a minimum interval.
// Limiters persist across dispatch cycles so spacing holds between them.
type Pacer struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewPacer creates an empty Pacer.
func NewPacer() *Pacer {
	return &Pacer{limiters: make(map[string]*rate.Limiter)}
}

// Wait blocks until key may send again or ctx is done. A non-positive
// interval never blocks.
func (p *Pacer) Wait(ctx context.Context, key string, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	return p.limiter(key, interval).Wait(ctx)
}

func (p *Pacer) limiter(key string, interval time.Duration) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	lim, ok := p.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(interval), 1)
		p.limiters[key] = lim
		return lim
	}
	if want := rate.Every(interval); lim.Limit() != want {
		lim.SetLimit(want)
	}
	return lim
}
