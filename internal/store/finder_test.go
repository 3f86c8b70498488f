package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/models"
)

func seedTab(t *testing.T, m *MemoryStore) {
	t.Helper()
	ctx := context.Background()

	a := sampleOrder("o-a")
	a.TabID = "tab-1"
	b := sampleOrder("o-b")
	b.TabID = "tab-1"
	b.CreatedAt = t0.Add(time.Minute)
	c := sampleOrder("o-c")
	c.TabID = "tab-2"
	old := sampleOrder("o-old")
	old.TabID = "tab-1"
	old.CreatedAt = t0.Add(-48 * time.Hour)

	for _, o := range []*models.Order{a, b, c, old} {
		require.NoError(t, m.CreateOrder(ctx, o, nil))
	}
}

func TestIndexedTabFinder(t *testing.T) {
	m := NewMemoryStore()
	seedTab(t, m)

	orders, err := NewIndexedTabFinder(m).FindTabOrders(context.Background(), "biz-1", "tab-1")
	require.NoError(t, err)
	assert.Len(t, orders, 3)
	assert.Equal(t, "o-old", orders[0].ID)
}

func TestScanTabFinderHonoursWindow(t *testing.T) {
	m := NewMemoryStore()
	seedTab(t, m)

	f := NewScanTabFinder(m, 12*time.Hour)
	f.now = func() time.Time { return t0.Add(time.Hour) }

	orders, err := f.FindTabOrders(context.Background(), "biz-1", "tab-1")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "o-a", orders[0].ID)
	assert.Equal(t, "o-b", orders[1].ID)
}

func TestFallbackTabFinder(t *testing.T) {
	m := NewMemoryStore()
	seedTab(t, m)
	m.SetTabIndexAvailable(false)

	scan := NewScanTabFinder(m, 12*time.Hour)
	scan.now = func() time.Time { return t0.Add(time.Hour) }
	f := NewFallbackTabFinder(NewIndexedTabFinder(m), scan)

	orders, err := f.FindTabOrders(context.Background(), "biz-1", "tab-1")
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	_, err = NewIndexedTabFinder(m).FindTabOrders(context.Background(), "biz-1", "tab-1")
	assert.ErrorIs(t, err, ErrIndexUnavailable)
}

func TestNewTabFinder(t *testing.T) {
	m := NewMemoryStore()
	assert.IsType(t, &IndexedTabFinder{}, NewTabFinder("indexed", m, time.Hour))
	assert.IsType(t, &ScanTabFinder{}, NewTabFinder("scan", m, time.Hour))
	assert.IsType(t, &FallbackTabFinder{}, NewTabFinder("", m, time.Hour))
}
