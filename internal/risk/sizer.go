package risk

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/shopspring/decimal"
)

// QuantitySource answers how many shares one participant's book could
// take on at the given price. Implementations may call out to a
// portfolio backend, so they accept a context.
type QuantitySource interface {
	MaxQuantity(ctx context.Context, participant, symbol string, price decimal.Decimal) (int64, error)
}

// FixedBuyingPower sizes every participant off the same cash pool.
type FixedBuyingPower struct {
	Cash decimal.Decimal
	// MaxPositionPct caps a single position as a fraction of cash.
	// Zero means no cap beyond the cash itself.
	MaxPositionPct decimal.Decimal
}

func (f FixedBuyingPower) MaxQuantity(_ context.Context, _, _ string, price decimal.Decimal) (int64, error) {
	if price.LessThanOrEqual(decimal.Zero) {
		return 0, fmt.Errorf("risk: non-positive price %s", price)
	}
	budget := f.Cash
	if f.MaxPositionPct.GreaterThan(decimal.Zero) {
		budget = f.Cash.Mul(f.MaxPositionPct)
	}
	return budget.Div(price).IntPart(), nil
}

// Sizer converts a crew decision into an order quantity that no single
// optimistic book can inflate.
type Sizer struct {
	source QuantitySource
}

func NewSizer(source QuantitySource) *Sizer {
	return &Sizer{source: source}
}

// SafeQuantity asks every participant's source for its maximum and
// takes the median, so one outlier account cannot drag the size up or
// down. Participants whose lookup fails are skipped. The result is
// never below one share.
func (s *Sizer) SafeQuantity(ctx context.Context, participants []string, symbol string, price decimal.Decimal) int64 {
	if s == nil || s.source == nil || len(participants) == 0 {
		return 1
	}

	maxes := make([]int64, 0, len(participants))
	for _, name := range participants {
		qty, err := s.source.MaxQuantity(ctx, name, symbol, price)
		if err != nil {
			log.Printf("Quantity lookup failed for %s: %v", name, err)
			continue
		}
		if qty > 0 {
			maxes = append(maxes, qty)
		}
	}
	if len(maxes) == 0 {
		return 1
	}

	sort.Slice(maxes, func(i, j int) bool { return maxes[i] < maxes[j] })
	median := maxes[len(maxes)/2]
	if len(maxes)%2 == 0 {
		median = (maxes[len(maxes)/2-1] + maxes[len(maxes)/2]) / 2
	}
	if median < 1 {
		return 1
	}
	return median
}
