// Package throttle provides bandwidth and concurrency shaping primitives
// used by concrete UploadHandler implementations, adapted from kopia's
// repo/blob/throttling package.
package throttle

import (
	"context"
	"sync"
	"time"
)

// TokenBucket is a classic token-bucket rate limiter: tokens accumulate at
// fillRate per fillInterval up to maxTokens, and Take blocks (sleeps)
// until enough tokens are available.
type TokenBucket struct {
	name string

	mu        sync.Mutex
	numTokens float64

	maxTokens    float64
	fillRate     float64 // tokens per fillInterval
	fillInterval time.Duration
	lastFill     time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

// NewTokenBucket creates a token bucket that holds at most maxTokens,
// refilled at a rate of maxTokens per fillInterval (fillRate is set to
// maxTokens). numTokens is the initial balance.
func NewTokenBucket(name string, numTokens, maxTokens float64, fillInterval time.Duration) *TokenBucket {
	return &TokenBucket{
		name:         name,
		numTokens:    numTokens,
		maxTokens:    maxTokens,
		fillRate:     maxTokens,
		fillInterval: fillInterval,
		lastFill:     time.Now(),
		now:          time.Now,
		sleep: func(ctx context.Context, d time.Duration) {
			t := time.NewTimer(d)
			defer t.Stop()

			select {
			case <-t.C:
			case <-ctx.Done():
			}
		},
	}
}

// Take acquires 'amount' tokens, blocking (by sleeping, not by returning
// an error) until the bucket has refilled enough to satisfy the request.
// The deficit is not "paid back" by sleeping: it's simply left negative,
// and the next call's refill accounts for time actually elapsed. This
// matches a plain token bucket rather than a leaky-bucket scheduler.
func (b *TokenBucket) Take(ctx context.Context, amount float64) {
	b.mu.Lock()
	b.refillLocked()
	b.numTokens -= amount
	deficit := -b.numTokens
	b.mu.Unlock()

	if deficit <= 0 {
		return
	}

	wait := time.Duration(deficit / b.fillRate * float64(b.fillInterval))
	b.sleep(ctx, wait)
}

// Return credits back 'amount' tokens, used when a caller reserved more
// bandwidth than it ended up consuming.
func (b *TokenBucket) Return(ctx context.Context, amount float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	b.numTokens += amount

	if b.numTokens > b.maxTokens {
		b.numTokens = b.maxTokens
	}
}

func (b *TokenBucket) refillLocked() {
	now := b.now()

	elapsed := now.Sub(b.lastFill)
	if elapsed <= 0 {
		return
	}

	b.numTokens += elapsed.Seconds() / b.fillInterval.Seconds() * b.fillRate
	if b.numTokens > b.maxTokens {
		b.numTokens = b.maxTokens
	}

	b.lastFill = now
}
