// Package cache holds the read-through cache used for daily seat statistics.
//
// Values are stored as JSON. A miss is reported as ErrCacheMiss so callers
// can fall back to the store. Cache failures never fail a request: callers
// log them and compute the value directly.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/warp/seat-engine/seating"
)

var ErrCacheMiss = errors.New("cache miss")

type Service interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Incr atomically adds one to the integer counter at key and returns
	// the new value. A missing key counts from zero.
	Incr(ctx context.Context, key string) (int64, error)
	Ping(ctx context.Context) error
}

// Key prefix for every entry this service writes.
const Prefix = "seats"

// Stats entries are versioned. A write bumps the version of every date it
// touches and a reseed bumps the generation, so an entry computed from older
// data is never read again and ages out with its TTL.

// GenerationKey holds the counter shared by every stats entry.
const GenerationKey = Prefix + ":stats:gen"

// VersionKey holds the counter of one date's stats.
func VersionKey(date seating.Date) string {
	return fmt.Sprintf("%s:stats:ver:%s", Prefix, date)
}

// StatsKey is the key of the daily statistics for date at the given
// generation and version.
func StatsKey(date seating.Date, gen, ver int64) string {
	return fmt.Sprintf("%s:stats:%s:%d.%d", Prefix, date, gen, ver)
}

// =============================================================================
// NOP - Caching disabled
// =============================================================================

type Nop struct{}

func (Nop) Get(context.Context, string, any) error                { return ErrCacheMiss }
func (Nop) Set(context.Context, string, any, time.Duration) error { return nil }
func (Nop) Incr(context.Context, string) (int64, error)           { return 0, nil }
func (Nop) Ping(context.Context) error                            { return nil }

// =============================================================================
// MEMORY - Process-local cache (tests, single instance dev)
// =============================================================================

type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	data    []byte
	expires time.Time // zero means no expiry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string, dest any) error {
	m.mu.Lock()
	e, ok := m.entries[key]
	if ok && !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.entries, key)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return ErrCacheMiss
	}
	if err := json.Unmarshal(e.data, dest); err != nil {
		return fmt.Errorf("cache unmarshal error: %w", err)
	}
	return nil
}

func (m *Memory) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}
	e := memoryEntry{data: data}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	if e, ok := m.entries[key]; ok {
		if err := json.Unmarshal(e.data, &n); err != nil {
			return 0, fmt.Errorf("cache incr error: %w", err)
		}
	}
	n++
	data, _ := json.Marshal(n)
	m.entries[key] = memoryEntry{data: data}
	return n, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

// Len returns the number of live entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
