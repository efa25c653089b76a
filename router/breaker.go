package router

import (
	"sync"
	"time"

	"github.com/BaSui01/agentflow-router/policy"
)

// GlobalBreaker implements the per-vendor global circuit: opens once
// consecutive caller failures reach the threshold, short-circuits while
// open, and resets on the first post-cooldown success. Failures are not aged
// out by time; only a success resets the count.
type GlobalBreaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	state     map[policy.Vendor]*globalState
}

type globalState struct {
	failures      int
	lastFailureTS time.Time
	open          bool
	openedAt      time.Time
}

// NewGlobalBreaker constructs a breaker for both modeled vendors.
func NewGlobalBreaker(threshold int, cooldown time.Duration) *GlobalBreaker {
	return &GlobalBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		state: map[policy.Vendor]*globalState{
			policy.VendorPrimary:   {},
			policy.VendorSecondary: {},
		},
	}
}

// IsOpen reports whether vendor is currently short-circuited. A breaker
// that has been open for longer than the cooldown is half-open: IsOpen
// still reports true (callers route to fallback) but a single probing call
// is expected to invoke RecordSuccess/RecordFailure to resolve it.
func (b *GlobalBreaker) IsOpen(vendor policy.Vendor) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.state[vendor]
	return s.open
}

// RecordFailure MUST NOT be called for 4xx provider errors (isClientError
// in the vendor adapter's terms) since 4xx never triggers fallback or
// breaker accounting; it is reserved for timeout/5xx/network failures.
func (b *GlobalBreaker) RecordFailure(vendor policy.Vendor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.state[vendor]
	s.failures++
	s.lastFailureTS = time.Now()
	if s.failures >= b.threshold {
		s.open = true
		s.openedAt = time.Now()
	}
}

// RecordSuccess resets the breaker. The first post-cooldown success closes
// an open breaker.
func (b *GlobalBreaker) RecordSuccess(vendor policy.Vendor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.state[vendor]
	s.failures = 0
	s.open = false
}

// CooledDown reports whether an open breaker has passed its cooldown
// window and is eligible for a half-open probe.
func (b *GlobalBreaker) CooledDown(vendor policy.Vendor) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.state[vendor]
	if !s.open {
		return true
	}
	return time.Since(s.openedAt) >= b.cooldown
}

// userEntry tracks one user's rolling failure count for the per-user
// breaker, sharded to bound lock contention under concurrent requests.
type userEntry struct {
	failures      int
	lastFailureTS time.Time
}

const userBreakerShards = 16

// UserBreaker implements the per-user circuit: a map of user_id ->
// (failures, last_failure_ts) behind a mutex, opening after threshold
// failures within the window, auto-resetting on success or after cooldown
// elapses since the last failure.
type UserBreaker struct {
	threshold int
	cooldown  time.Duration
	shards    [userBreakerShards]struct {
		mu      sync.Mutex
		entries map[string]*userEntry
	}
}

// NewUserBreaker constructs the sharded per-user breaker.
func NewUserBreaker(threshold int, cooldown time.Duration) *UserBreaker {
	b := &UserBreaker{threshold: threshold, cooldown: cooldown}
	for i := range b.shards {
		b.shards[i].entries = make(map[string]*userEntry)
	}
	return b
}

func (b *UserBreaker) shardFor(userID string) *struct {
	mu      sync.Mutex
	entries map[string]*userEntry
} {
	h := fnv32(userID)
	return &b.shards[h%userBreakerShards]
}

// IsOpen reads without mutating state. An entry past cooldown since its
// last failure is treated as reset (lazy expiry).
func (b *UserBreaker) IsOpen(userID string) bool {
	shard := b.shardFor(userID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	e, ok := shard.entries[userID]
	if !ok {
		return false
	}
	if time.Since(e.lastFailureTS) >= b.cooldown {
		return false
	}
	return e.failures >= b.threshold
}

// RecordFailure increments the user's failure count within the window.
func (b *UserBreaker) RecordFailure(userID string) {
	shard := b.shardFor(userID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	e, ok := shard.entries[userID]
	if !ok || time.Since(e.lastFailureTS) >= b.cooldown {
		e = &userEntry{}
		shard.entries[userID] = e
	}
	e.failures++
	e.lastFailureTS = time.Now()
}

// RecordSuccess clears the user's entry entirely.
func (b *UserBreaker) RecordSuccess(userID string) {
	shard := b.shardFor(userID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	delete(shard.entries, userID)
}

func fnv32(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}
