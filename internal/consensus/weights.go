package consensus

import (
	"context"
	"log"
	"math"

	"github.com/dyike/CrewGo/models"
)

// PerformanceSource resolves a participant's historical trading record.
type PerformanceSource interface {
	Performance(ctx context.Context, participant string) (models.PerformanceRecord, error)
}

// StaticPerformance is a PerformanceSource backed by a fixed map.
// Unknown participants get a zero record (neutral weight).
type StaticPerformance map[string]models.PerformanceRecord

func (s StaticPerformance) Performance(_ context.Context, participant string) (models.PerformanceRecord, error) {
	return s[participant], nil
}

const (
	minWeight     = 0.5
	maxWeight     = 2.0
	neutralWeight = 1.0

	// Minimum trade history before performance influences weight.
	minTradesForWeight = 5

	// Blend weights for the three factors.
	winRateBlend = 0.5
	sharpeBlend  = 0.3
	pnlBlend     = 0.2
)

// CalculateWeight converts a performance record into a voting weight in
// [0.5, 2.0]. Participants with fewer than five trades get exactly 1.0.
//
// Factors:
//   - win rate: 40% -> 0.5x, 50% -> 1.0x, 70% -> 1.5x, clamped [0.5, 2.0]
//   - Sharpe:   0 -> 1.0x, bonus capped at +0.5
//   - PnL %:    -10% -> 0.7x, 0% -> 1.0x, +20% -> 1.3x, clamped [0.5, 1.5]
func CalculateWeight(rec models.PerformanceRecord) float64 {
	if rec.TotalTrades < minTradesForWeight {
		return neutralWeight
	}

	winRateFactor := clamp(0.5+(rec.WinRate()-0.4)*2.5, minWeight, maxWeight)
	sharpeFactor := 1.0 + math.Min(rec.SharpeRatio*0.3, 0.5)
	pnlFactor := clamp(1.0+(rec.TotalPnLPercent/100.0)*1.5, minWeight, 1.5)

	weight := winRateFactor*winRateBlend + sharpeFactor*sharpeBlend + pnlFactor*pnlBlend
	return clamp(weight, minWeight, maxWeight)
}

// weightFor looks up and scores a participant; lookup failures fall
// back to the neutral weight so a flaky backend never silences a voter.
func weightFor(ctx context.Context, src PerformanceSource, participant string) float64 {
	if src == nil {
		return neutralWeight
	}
	rec, err := src.Performance(ctx, participant)
	if err != nil {
		log.Printf("performance lookup failed for %s, using neutral weight: %v", participant, err)
		return neutralWeight
	}
	return CalculateWeight(rec)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
