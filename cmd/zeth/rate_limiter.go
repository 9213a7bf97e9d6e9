// rate_limiter.go - Rate limiting of ledger RPC requests
package main

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"

	"zethclient/internal/ledger"
)

// RateLimiter implements a simple token bucket rate limiter
type RateLimiter struct {
	mu           sync.Mutex
	tokens       int
	maxTokens    int
	refillRate   int
	lastRefill   time.Time
	refillPeriod time.Duration
	now          func() time.Time
}

// NewRateLimiter creates a bucket of maxTokens that gains refillRate tokens
// every refillPeriod.
func NewRateLimiter(maxTokens int, refillRate int, refillPeriod time.Duration) *RateLimiter {
	return &RateLimiter{
		tokens:       maxTokens,
		maxTokens:    maxTokens,
		refillRate:   refillRate,
		lastRefill:   time.Now(),
		refillPeriod: refillPeriod,
		now:          time.Now,
	}
}

func (rl *RateLimiter) refill() {
	now := rl.now()
	refillCount := int(now.Sub(rl.lastRefill) / rl.refillPeriod)
	if refillCount > 0 {
		rl.tokens = min(rl.tokens+refillCount*rl.refillRate, rl.maxTokens)
		rl.lastRefill = rl.lastRefill.Add(time.Duration(refillCount) * rl.refillPeriod)
	}
}

// Allow consumes a token if one is available.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	if rl.tokens > 0 {
		rl.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for !rl.Allow() {
		rl.mu.Lock()
		delay := rl.lastRefill.Add(rl.refillPeriod).Sub(rl.now())
		rl.mu.Unlock()

		timer := time.NewTimer(max(delay, time.Millisecond))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

// GetTokens returns the current number of available tokens
func (rl *RateLimiter) GetTokens() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	return rl.tokens
}

// limitedBackend throttles a ledger backend and bounds each request by a
// timeout.
type limitedBackend struct {
	backend ledger.Backend
	limiter *RateLimiter
	timeout time.Duration
}

func newLimitedBackend(b ledger.Backend, perSecond int, timeout time.Duration) ledger.Backend {
	lb := &limitedBackend{backend: b, timeout: timeout}
	if perSecond > 0 {
		lb.limiter = NewRateLimiter(perSecond, perSecond, time.Second)
	}
	return lb
}

func (lb *limitedBackend) acquire(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if lb.limiter != nil {
		if err := lb.limiter.Wait(ctx); err != nil {
			return nil, nil, err
		}
	}
	if lb.timeout <= 0 {
		ctx, cancel := context.WithCancel(ctx)
		return ctx, cancel, nil
	}
	ctx, cancel := context.WithTimeout(ctx, lb.timeout)
	return ctx, cancel, nil
}

func (lb *limitedBackend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	ctx, cancel, err := lb.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return lb.backend.FilterLogs(ctx, q)
}

func (lb *limitedBackend) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel, err := lb.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()
	return lb.backend.BlockNumber(ctx)
}
