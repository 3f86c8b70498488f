package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/cache"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/errs"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/models"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/util"
)

// Status views
const (
	ViewSummary = "summary"
	ViewFull    = "full"
)

// StatusQuery selects one order or one tab. BusinessID scopes the cache;
// without it an order is read straight from the store.
type StatusQuery struct {
	OrderID       string
	TabID         string
	BusinessID    string
	TrackingToken string
	View          string
}

// OrderSummary is the lightweight projection polled by tracking pages
type OrderSummary struct {
	OrderID         string                 `json:"order_id"`
	BusinessID      string                 `json:"business_id"`
	Status          models.Status          `json:"status"`
	PaymentStatus   string                 `json:"payment_status"`
	FulfillmentMode models.FulfillmentMode `json:"fulfillment_mode"`
	DineInToken     string                 `json:"dine_in_token,omitempty"`
	TabID           string                 `json:"tab_id,omitempty"`
	RiderID         string                 `json:"rider_id,omitempty"`
	Total           decimal.Decimal        `json:"total"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// TabView aggregates every order of a seated party
type TabView struct {
	TabID       string         `json:"tab_id"`
	BusinessID  string         `json:"business_id"`
	DineInToken string         `json:"dine_in_token"`
	Active      bool           `json:"active"`
	Orders      []models.Order `json:"orders"`
	Totals      models.Money   `json:"totals"`
	ItemCount   int            `json:"item_count"`
}

// StatusView is the answer to GetOrderStatus
type StatusView struct {
	View    string        `json:"view"`
	Summary *OrderSummary `json:"summary,omitempty"`
	Order   *models.Order `json:"order,omitempty"`
	Tab     *TabView      `json:"tab,omitempty"`
}

// GetOrderStatus returns the summary of one order, or the full view: the
// order with its history plus its tab when it belongs to one. A tab query
// always yields the full tab view.
func (s *OrderService) GetOrderStatus(ctx context.Context, q StatusQuery, viewer models.Actor) (*StatusView, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrderStatus",
		attribute.String("order_id", q.OrderID),
		attribute.String("tab_id", q.TabID))
	defer span.End()

	q.OrderID = strings.TrimSpace(q.OrderID)
	q.TabID = strings.TrimSpace(q.TabID)
	if (q.OrderID == "") == (q.TabID == "") {
		return nil, errs.Validation(errs.CodeInvalidInput, "exactly one of order id and tab id is required")
	}
	switch q.View {
	case "":
		q.View = ViewSummary
	case ViewSummary, ViewFull:
	default:
		return nil, errs.Validation(errs.CodeInvalidInput, "unknown view %q", q.View)
	}
	if q.BusinessID == "" && viewer.IsStaff() {
		q.BusinessID = viewer.BusinessID
	}

	if q.TabID != "" {
		if q.BusinessID == "" {
			return nil, errs.Validation(errs.CodeInvalidInput, "business_id is required for tab lookups")
		}
		tab, err := s.loadTab(ctx, q.BusinessID, q.TabID)
		if err != nil {
			return nil, err
		}
		if err := canViewTab(viewer, tab.Orders, q.TrackingToken); err != nil {
			return nil, err
		}
		return &StatusView{View: ViewFull, Tab: tab}, nil
	}

	order, err := s.loadOrder(ctx, q.BusinessID, q.OrderID)
	if err != nil {
		return nil, err
	}
	if err := canView(viewer, order, q.TrackingToken); err != nil {
		return nil, err
	}

	if q.View == ViewSummary {
		return &StatusView{View: ViewSummary, Summary: summarize(order)}, nil
	}

	view := &StatusView{View: ViewFull, Order: order}
	if order.TabID != "" {
		tab, err := s.loadTab(ctx, order.BusinessID, order.TabID)
		if err != nil {
			return nil, err
		}
		view.Tab = tab
	}
	return view, nil
}

// Track returns the live tracking snapshot stored under token. The token is
// the credential, so no actor is needed.
func (s *OrderService) Track(ctx context.Context, token string) (*models.TrackingSnapshot, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errs.Validation(errs.CodeInvalidInput, "tracking token is required")
	}
	if s.tracking == nil {
		return nil, errs.NotFound(errs.CodeOrderNotFound, token)
	}

	snap, err := s.tracking.GetTrackingSnapshot(ctx, token)
	if err != nil {
		return nil, errs.Internal(fmt.Errorf("failed to read tracking snapshot: %w", err))
	}
	if snap == nil {
		return nil, errs.NotFound(errs.CodeOrderNotFound, token)
	}
	return snap, nil
}

func (s *OrderService) loadOrder(ctx context.Context, businessID, orderID string) (*models.Order, error) {
	if businessID == "" {
		o, err := s.store.GetOrder(ctx, orderID)
		if err != nil {
			return nil, classify(err)
		}
		return o, nil
	}

	o, err := cachedFetch(ctx, s, cache.OrdersNamespace(businessID), []string{"order", orderID},
		func(ctx context.Context) (*models.Order, error) {
			return s.store.GetOrder(ctx, orderID)
		})
	if err != nil {
		return nil, classify(err)
	}
	// never leak an order through another business's scope
	if o.BusinessID != businessID {
		return nil, errs.NotFound(errs.CodeOrderNotFound, orderID)
	}
	return o, nil
}

func (s *OrderService) loadTab(ctx context.Context, businessID, tabID string) (*TabView, error) {
	orders, err := cachedFetch(ctx, s, cache.OrdersNamespace(businessID), []string{"tab", tabID},
		func(ctx context.Context) ([]models.Order, error) {
			return s.tabs.FindTabOrders(ctx, businessID, tabID)
		})
	if err != nil {
		return nil, classify(err)
	}
	if len(orders) == 0 {
		return nil, errs.NotFound(errs.CodeTabNotFound, tabID)
	}
	return aggregateTab(businessID, tabID, orders), nil
}

func aggregateTab(businessID, tabID string, orders []models.Order) *TabView {
	tab := &TabView{
		TabID:      tabID,
		BusinessID: businessID,
		Orders:     orders,
		Active:     tabActive(orders),
	}
	for i := range orders {
		o := &orders[i]
		if tab.DineInToken == "" {
			tab.DineInToken = o.DineInToken
		}
		// rejected and cancelled orders are not billed
		if o.Status == models.StatusRejected || o.Status == models.StatusCancelled {
			continue
		}
		tab.Totals.Subtotal = tab.Totals.Subtotal.Add(o.Money.Subtotal)
		tab.Totals.Tax = tab.Totals.Tax.Add(o.Money.Tax)
		tab.Totals.DeliveryCharge = tab.Totals.DeliveryCharge.Add(o.Money.DeliveryCharge)
		tab.Totals.Fees = tab.Totals.Fees.Add(o.Money.Fees)
		tab.Totals.Discount = tab.Totals.Discount.Add(o.Money.Discount)
		tab.Totals.Total = tab.Totals.Total.Add(o.Money.Total)
		for _, it := range o.Items {
			tab.ItemCount += it.Quantity
		}
	}
	return tab
}

func summarize(o *models.Order) *OrderSummary {
	return &OrderSummary{
		OrderID:         o.ID,
		BusinessID:      o.BusinessID,
		Status:          o.Status,
		PaymentStatus:   o.PaymentStatus,
		FulfillmentMode: o.FulfillmentMode,
		DineInToken:     o.DineInToken,
		TabID:           o.TabID,
		RiderID:         o.RiderID,
		Total:           o.Money.Total,
		UpdatedAt:       o.UpdatedAt,
	}
}

// canView decides whether viewer may read order. Holding the order's
// tracking token is enough on its own.
func canView(viewer models.Actor, o *models.Order, token string) error {
	if token != "" && token == o.TrackingToken {
		return nil
	}

	switch {
	case viewer.Role == models.RoleAdmin || viewer.Role == models.RoleSystem:
		return nil
	case viewer.IsStaff():
		if viewer.BusinessID != o.BusinessID {
			return errs.Forbidden(errs.CodeWrongBusiness, "order %s belongs to another business", o.ID)
		}
		if !viewer.Can(models.PermViewOrders) {
			return errs.Forbidden(errs.CodeMissingCapability, "missing capability %s", models.PermViewOrders)
		}
		return nil
	case viewer.Role == models.RoleRider:
		if o.RiderID == viewer.ActorID {
			return nil
		}
	case viewer.Role == models.RoleCustomer:
		if o.CustomerID != "" && o.CustomerID == viewer.ActorID {
			return nil
		}
	case viewer.ActorID == "":
		return errs.New(errs.ErrUnauthorized, errs.CodeUnauthorized, "a tracking token or identity is required")
	}
	return errs.Forbidden(errs.CodeMissingCapability, "order %s is not visible to the caller", o.ID)
}

func canViewTab(viewer models.Actor, orders []models.Order, token string) error {
	var last error
	for i := range orders {
		err := canView(viewer, &orders[i], token)
		if err == nil {
			return nil
		}
		last = err
	}
	return last
}
