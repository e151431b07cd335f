package api

import (
	"context"
	"sync"
	"time"
)

// attemptRecord counts failed attempts until resetAt.
type attemptRecord struct {
	count   int
	resetAt time.Time
}

func (a attemptRecord) expired(now time.Time) bool {
	return !now.Before(a.resetAt)
}

// RateLimiter blocks clients that keep presenting bad tokens. Each IP gets
// maxAttempts failures per window; reaching the limit blocks it for the
// block duration. A successful request clears the record.
type RateLimiter struct {
	mu          sync.RWMutex
	attempts    map[string]attemptRecord
	maxAttempts int
	window      time.Duration
	block       time.Duration
	now         func() time.Time
}

// NewRateLimiter creates a RateLimiter.
func NewRateLimiter(maxAttempts int, window, block time.Duration) *RateLimiter {
	return &RateLimiter{
		attempts:    make(map[string]attemptRecord),
		maxAttempts: maxAttempts,
		window:      window,
		block:       block,
		now:         time.Now,
	}
}

// Allow reports whether ip may try again and, if not, for how long it is
// blocked.
func (r *RateLimiter) Allow(ip string) (bool, time.Duration) {
	r.mu.RLock()
	record, exists := r.attempts[ip]
	r.mu.RUnlock()

	now := r.now()
	if !exists || record.expired(now) {
		return true, 0
	}
	if record.count >= r.maxAttempts {
		return false, record.resetAt.Sub(now)
	}
	return true, 0
}

// RecordAttempt records one failure for ip.
func (r *RateLimiter) RecordAttempt(ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	record, exists := r.attempts[ip]
	if !exists || record.expired(now) {
		r.attempts[ip] = attemptRecord{count: 1, resetAt: now.Add(r.window)}
		return
	}

	record.count++
	if record.count == r.maxAttempts {
		record.resetAt = now.Add(r.block)
	}
	r.attempts[ip] = record
}

// Reset clears the record for ip.
func (r *RateLimiter) Reset(ip string) {
	r.mu.Lock()
	delete(r.attempts, ip)
	r.mu.Unlock()
}

// Cleanup drops expired records and returns how many it removed.
func (r *RateLimiter) Cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for ip, record := range r.attempts {
		if record.expired(now) {
			delete(r.attempts, ip)
			removed++
		}
	}
	return removed
}

// StartCleanupTicker runs Cleanup every interval until ctx is done.
func (r *RateLimiter) StartCleanupTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Cleanup()
			}
		}
	}()
}

// Count returns the number of tracked IPs.
func (r *RateLimiter) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.attempts)
}
