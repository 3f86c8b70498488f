package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/models"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/util"
)

// TabQueries are the reads the tab finders are built on
type TabQueries interface {
	OrdersByTab(ctx context.Context, businessID, tabID string) ([]models.Order, error)
	RecentOrdersByBusiness(ctx context.Context, businessID string, since time.Time) ([]models.Order, error)
}

// TabFinder returns every order of a tab, oldest first
type TabFinder interface {
	FindTabOrders(ctx context.Context, businessID, tabID string) ([]models.Order, error)
}

// IndexedTabFinder uses the (business_id, tab_id) index
type IndexedTabFinder struct {
	q TabQueries
}

func NewIndexedTabFinder(q TabQueries) *IndexedTabFinder {
	return &IndexedTabFinder{q: q}
}

func (f *IndexedTabFinder) FindTabOrders(ctx context.Context, businessID, tabID string) ([]models.Order, error) {
	return f.q.OrdersByTab(ctx, businessID, tabID)
}

// ScanTabFinder fetches the business's recent orders and filters them in memory.
// Tabs older than window are not found.
type ScanTabFinder struct {
	q      TabQueries
	window time.Duration
	now    func() time.Time
}

func NewScanTabFinder(q TabQueries, window time.Duration) *ScanTabFinder {
	return &ScanTabFinder{q: q, window: window, now: time.Now}
}

func (f *ScanTabFinder) FindTabOrders(ctx context.Context, businessID, tabID string) ([]models.Order, error) {
	recent, err := f.q.RecentOrdersByBusiness(ctx, businessID, f.now().Add(-f.window))
	if err != nil {
		return nil, err
	}

	out := make([]models.Order, 0)
	for _, o := range recent {
		if o.TabID == tabID {
			out = append(out, o)
		}
	}
	return out, nil
}

// FallbackTabFinder tries primary and falls back to secondary when primary fails
type FallbackTabFinder struct {
	primary   TabFinder
	secondary TabFinder
	logger    *zap.Logger
}

func NewFallbackTabFinder(primary, secondary TabFinder) *FallbackTabFinder {
	return &FallbackTabFinder{primary: primary, secondary: secondary, logger: util.GetLogger()}
}

func (f *FallbackTabFinder) FindTabOrders(ctx context.Context, businessID, tabID string) ([]models.Order, error) {
	orders, err := f.primary.FindTabOrders(ctx, businessID, tabID)
	if err == nil {
		return orders, nil
	}

	f.logger.Warn("Indexed tab query failed, scanning recent orders",
		zap.String("business_id", businessID),
		zap.String("tab_id", tabID),
		zap.Error(err))
	return f.secondary.FindTabOrders(ctx, businessID, tabID)
}

// NewTabFinder builds the finder named by strategy: indexed, scan or fallback
func NewTabFinder(strategy string, q TabQueries, window time.Duration) TabFinder {
	switch strategy {
	case "indexed":
		return NewIndexedTabFinder(q)
	case "scan":
		return NewScanTabFinder(q, window)
	default:
		return NewFallbackTabFinder(NewIndexedTabFinder(q), NewScanTabFinder(q, window))
	}
}
