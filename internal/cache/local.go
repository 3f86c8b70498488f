package cache

import (
	"strings"
	"sync"
	"time"
)

const sweepThreshold = 4096

type localEntry struct {
	value     []byte
	expiresAt time.Time
}

// Local is the in-process cache tier. Entries never outlive maxTTL.
type Local struct {
	mu      sync.RWMutex
	entries map[string]localEntry
	maxTTL  time.Duration
	now     func() time.Time
}

// NewLocal creates a local tier whose TTLs are capped at maxTTL
func NewLocal(maxTTL time.Duration) *Local {
	return &Local{
		entries: make(map[string]localEntry),
		maxTTL:  maxTTL,
		now:     time.Now,
	}
}

// Get returns a live entry
func (l *Local) Get(key string) ([]byte, bool) {
	l.mu.RLock()
	e, ok := l.entries[key]
	l.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !l.now().Before(e.expiresAt) {
		l.Delete(key)
		return nil, false
	}
	return e.value, true
}

// Set stores value for min(ttl, maxTTL)
func (l *Local) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 || ttl > l.maxTTL {
		ttl = l.maxTTL
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) >= sweepThreshold {
		l.evictExpiredLocked(now)
	}
	l.entries[key] = localEntry{value: value, expiresAt: now.Add(ttl)}
}

// Delete removes key
func (l *Local) Delete(key string) {
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
}

// PurgePrefix removes every entry whose key starts with prefix
func (l *Local) PurgePrefix(prefix string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for k := range l.entries {
		if strings.HasPrefix(k, prefix) {
			delete(l.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, expired ones included
func (l *Local) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func (l *Local) evictExpiredLocked(now time.Time) {
	for k, e := range l.entries {
		if !now.Before(e.expiresAt) {
			delete(l.entries, k)
		}
	}
}
