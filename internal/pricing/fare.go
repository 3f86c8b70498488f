package pricing

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/models"
)

// FareResult is the delivery verdict for one address
type FareResult struct {
	Allowed bool
	Charge  decimal.Decimal
	Reason  string
}

// FareFunc computes delivery eligibility and charge. Implementations must be pure.
type FareFunc func(distanceKm float64, subtotal decimal.Decimal, cfg models.DeliveryConfig) FareResult

// Fare is the default fare calculator: a base fee inside the base radius plus a
// per-km fee for every started kilometre beyond it.
func Fare(distanceKm float64, subtotal decimal.Decimal, cfg models.DeliveryConfig) FareResult {
	if !cfg.Enabled {
		return FareResult{Reason: "delivery is not offered by this business"}
	}
	if distanceKm < 0 || math.IsNaN(distanceKm) {
		return FareResult{Reason: "invalid delivery distance"}
	}
	if cfg.MaxRadiusKm > 0 && distanceKm > cfg.MaxRadiusKm {
		return FareResult{Reason: fmt.Sprintf("address is %.1f km away, beyond the %.1f km delivery radius", distanceKm, cfg.MaxRadiusKm)}
	}
	if cfg.MinOrderValue.IsPositive() && subtotal.LessThan(cfg.MinOrderValue) {
		return FareResult{Reason: fmt.Sprintf("minimum order value for delivery is %s", cfg.MinOrderValue.StringFixed(2))}
	}
	if cfg.FreeAboveSubtotal.IsPositive() && subtotal.GreaterThanOrEqual(cfg.FreeAboveSubtotal) {
		return FareResult{Allowed: true, Charge: decimal.Zero}
	}

	extraKm := math.Ceil(math.Max(0, distanceKm-cfg.BaseRadiusKm))
	charge := cfg.BaseFee.Add(cfg.PerKmFee.Mul(decimal.NewFromFloat(extraKm)))
	return FareResult{Allowed: true, Charge: charge.Round(2)}
}
