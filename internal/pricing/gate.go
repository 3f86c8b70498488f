// Package pricing recomputes order money from the catalog and decides
// delivery eligibility. Client-supplied amounts are only ever compared
// against the recomputed ones, never used.
package pricing

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/errs"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Line is one requested item as the client sent it
type Line struct {
	ItemID      string   `json:"id"`
	Quantity    int      `json:"quantity"`
	ModifierIDs []string `json:"modifiers,omitempty"`
}

// Input is everything the gate needs besides the catalog snapshot
type Input struct {
	Mode            models.FulfillmentMode
	Lines           []Line
	ClaimedSubtotal decimal.Decimal
	ClaimedTotal    *decimal.Decimal
	Discount        decimal.Decimal
	Address         *models.Address
}

// Quote is the canonical pricing of an accepted order
type Quote struct {
	Items      []models.OrderItem
	Money      models.Money
	DistanceKm float64
}

// Tolerances bound how far claimed amounts may drift from the recomputed ones
type Tolerances struct {
	Subtotal decimal.Decimal
	Total    decimal.Decimal
}

// Gate validates and prices incoming orders
type Gate struct {
	tol  Tolerances
	fare FareFunc
}

// NewGate creates a gate. A nil fare uses Fare.
func NewGate(tol Tolerances, fare FareFunc) *Gate {
	if fare == nil {
		fare = Fare
	}
	return &Gate{tol: tol, fare: fare}
}

// Quote prices in against biz
func (g *Gate) Quote(biz *models.Business, in Input) (*Quote, error) {
	if len(in.Lines) == 0 {
		return nil, errs.Validation(errs.CodeInvalidInput, "order has no items")
	}

	items := make([]models.OrderItem, 0, len(in.Lines))
	subtotal := decimal.Zero
	for _, line := range in.Lines {
		item, err := priceLine(biz, line)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		subtotal = subtotal.Add(item.LineTotal())
	}

	if in.ClaimedSubtotal.Sub(subtotal).Abs().GreaterThan(g.tol.Subtotal) {
		return nil, errs.PriceMismatch(errs.CodeSubtotalMismatch, in.ClaimedSubtotal, subtotal)
	}

	q := &Quote{Items: items}
	delivery := decimal.Zero
	if in.Mode == models.ModeDelivery {
		if in.Address == nil {
			return nil, errs.Validation(errs.CodeInvalidInput, "delivery orders need an address")
		}
		q.DistanceKm = DistanceKm(biz.Lat, biz.Lng, in.Address.Lat, in.Address.Lng)
		res := g.fare(q.DistanceKm, subtotal, biz.Delivery)
		if !res.Allowed {
			return nil, errs.Validation(errs.CodeDeliveryNotAllowed, "%s", res.Reason)
		}
		delivery = res.Charge
	}

	discount := clamp(in.Discount, decimal.Zero, subtotal)
	tax := subtotal.Mul(biz.TaxRatePercent).Div(hundred).Round(2)
	fees := biz.ServiceFee

	total := subtotal.Add(tax).Add(delivery).Add(fees).Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	if in.ClaimedTotal != nil && in.ClaimedTotal.Sub(total).Abs().GreaterThan(g.tol.Total) {
		return nil, errs.PriceMismatch(errs.CodeTotalMismatch, *in.ClaimedTotal, total)
	}

	q.Money = models.Money{
		Subtotal:       subtotal,
		Tax:            tax,
		DeliveryCharge: delivery,
		Fees:           fees,
		Discount:       discount,
		Total:          total,
	}
	return q, nil
}

func priceLine(biz *models.Business, line Line) (models.OrderItem, error) {
	if line.Quantity <= 0 {
		return models.OrderItem{}, errs.Validation(errs.CodeInvalidInput, "item %s has quantity %d", line.ItemID, line.Quantity)
	}
	entry, ok := biz.Menu[line.ItemID]
	if !ok || !entry.Available {
		return models.OrderItem{}, errs.Validation(errs.CodeItemUnavailable, "item %s is not available", line.ItemID)
	}

	item := models.OrderItem{
		ID:        entry.ID,
		Name:      entry.Name,
		UnitPrice: entry.Price,
		Quantity:  line.Quantity,
	}
	if item.ID == "" {
		item.ID = line.ItemID
	}

	mods := append([]string(nil), line.ModifierIDs...)
	sort.Strings(mods)
	for _, id := range mods {
		price, ok := entry.Modifiers[id]
		if !ok {
			return models.OrderItem{}, errs.Validation(errs.CodeItemUnavailable, "modifier %s is not offered for item %s", id, line.ItemID)
		}
		item.Modifiers = append(item.Modifiers, models.Modifier{ID: id, Name: id, Price: price})
	}
	return item, nil
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}
