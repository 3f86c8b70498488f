package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/util"
)

// Counter stores namespace versions
type Counter interface {
	GetCounter(ctx context.Context, key string) (int64, error)
	Incr(ctx context.Context, key string) (int64, error)
}

// Versioner stamps cache keys with a per-namespace version
type Versioner struct {
	counter Counter
	local   *Local
	logger  *zap.Logger
}

// NewVersioner creates a versioner. Bumps also purge the namespace from local.
func NewVersioner(counter Counter, local *Local) *Versioner {
	return &Versioner{
		counter: counter,
		local:   local,
		logger:  util.GetLogger(),
	}
}

// Version returns the current version of ns. Callers must bypass the cache on error.
func (v *Versioner) Version(ctx context.Context, ns string) (int64, error) {
	n, err := v.counter.GetCounter(ctx, versionKey(ns))
	if err != nil {
		return 0, fmt.Errorf("read cache version of %s: %w", ns, err)
	}
	return n, nil
}

// Bump advances the version of ns, orphaning every key built from an older one
func (v *Versioner) Bump(ctx context.Context, ns string) (int64, error) {
	if v.local != nil {
		v.local.PurgePrefix(ns + ":")
	}
	n, err := v.counter.Incr(ctx, versionKey(ns))
	if err != nil {
		return 0, fmt.Errorf("bump cache version of %s: %w", ns, err)
	}
	return n, nil
}

// Key builds a version-stamped key inside ns
func Key(ns string, version int64, parts ...string) string {
	return fmt.Sprintf("%s:v%d:%s", ns, version, strings.Join(parts, ":"))
}

// OrdersNamespace holds every cached order view of a business
func OrdersNamespace(businessID string) string {
	return "orders:" + businessID
}

// CatalogNamespace holds the cached catalog snapshot of a business
func CatalogNamespace(businessID string) string {
	return "catalog:" + businessID
}

func versionKey(ns string) string {
	return "cache_version:" + ns
}

// MemoryCounter is a process-local Counter for single-instance deployments and tests
type MemoryCounter struct {
	mu     sync.Mutex
	values map[string]int64
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{values: make(map[string]int64)}
}

func (m *MemoryCounter) GetCounter(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *MemoryCounter) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key]++
	return m.values[key], nil
}
