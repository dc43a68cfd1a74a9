package consensus

import (
	"context"
	"math"
	"testing"

	"github.com/dyike/CrewGo/models"
)

func vote(participant string, action models.VoteAction, symbol string, weight, confidence float64, reasoning string) models.Vote {
	return models.Vote{
		Participant:   participant,
		Action:        action,
		Symbol:        symbol,
		Weight:        weight,
		Confidence:    confidence,
		Reasoning:     reasoning,
		WeightedScore: weight * confidence / 100.0,
	}
}

func TestTallyEmptyReturnsHold(t *testing.T) {
	e := NewEngine("s1", nil)
	result := e.Tally()
	if result.WinningAction != models.ActionHold {
		t.Fatalf("expected hold, got %s", result.WinningAction)
	}
	if result.Strength != 0 {
		t.Fatalf("expected strength 0, got %v", result.Strength)
	}
}

func TestTallyFourWayScenario(t *testing.T) {
	// BUY = 1.0*0.8 + 1.2*0.7 = 1.64, SELL = 0.8*0.9 = 0.72,
	// HOLD = 1.0*0.5 = 0.5, total 2.86 => strength ~57.3%.
	e := NewEngine("s1", nil)
	e.votes = []models.Vote{
		vote("alpha", models.ActionBuy, "AAPL", 1.0, 80, ""),
		vote("beta", models.ActionBuy, "AAPL", 1.2, 70, ""),
		vote("gamma", models.ActionSell, "AAPL", 0.8, 90, ""),
		vote("delta", models.ActionHold, "", 1.0, 50, ""),
	}

	result := e.Tally()
	if result.WinningAction != models.ActionBuy {
		t.Fatalf("expected buy to win, got %s", result.WinningAction)
	}
	if math.Abs(result.Breakdown[models.ActionBuy].WeightedScore-1.64) > 1e-9 {
		t.Fatalf("buy weighted score = %v, want 1.64", result.Breakdown[models.ActionBuy].WeightedScore)
	}
	if math.Abs(result.Strength-57.342657) > 0.001 {
		t.Fatalf("strength = %v, want ~57.34", result.Strength)
	}

	var total float64
	for _, totals := range result.Breakdown {
		total += totals.WeightedScore
	}
	if math.Abs(total-2.86) > 1e-9 {
		t.Fatalf("per-action totals %v do not sum to all-vote total 2.86", total)
	}
}

func TestRegisterVotePreservesFullParticipation(t *testing.T) {
	e := NewEngine("s1", StaticPerformance{})
	ctx := context.Background()

	e.RegisterVote(ctx, "alpha", models.ActionBuy, "MSFT", 80, "strong trend analysis")
	e.RegisterVote(ctx, "beta", models.ActionHold, "", 25, "call timed out")
	e.RegisterVote(ctx, "gamma", models.ActionHold, "", 25, "call timed out")

	result := e.Tally()
	if result.TotalVotes != 3 {
		t.Fatalf("expected 3 votes, got %d", result.TotalVotes)
	}
	if result.Breakdown[models.ActionHold].Count != 2 {
		t.Fatalf("expected 2 hold votes, got %d", result.Breakdown[models.ActionHold].Count)
	}
	// Neutral weight 1.0 at confidence 25 contributes 0.25 each.
	if math.Abs(result.Breakdown[models.ActionHold].WeightedScore-0.5) > 1e-9 {
		t.Fatalf("hold weighted score = %v, want 0.5", result.Breakdown[models.ActionHold].WeightedScore)
	}
}

func TestStrengthAlwaysInRange(t *testing.T) {
	e := NewEngine("s1", nil)
	e.votes = []models.Vote{
		vote("a", models.ActionBuy, "X", 2.0, 100, ""),
		vote("b", models.ActionBuy, "X", 2.0, 100, ""),
		vote("c", models.ActionBuy, "X", 2.0, 100, ""),
	}
	result := e.Tally()
	if result.Strength < 0 || result.Strength > 100 {
		t.Fatalf("strength %v out of [0,100]", result.Strength)
	}
	if result.Strength != 100 {
		t.Fatalf("unanimous vote should have strength 100, got %v", result.Strength)
	}
}

func highQualityVotes() []models.Vote {
	reasoning := "Detailed analysis: the trend indicator shows sustained support, " +
		"risk is bounded and the opportunity outweighs the resistance overhead because " +
		"momentum has been confirmed across multiple timeframes."
	return []models.Vote{
		vote("alpha", models.ActionBuy, "AAPL", 1.5, 90, reasoning),
		vote("beta", models.ActionBuy, "AAPL", 1.3, 85, reasoning),
		vote("gamma", models.ActionBuy, "AAPL", 1.1, 88, reasoning),
		vote("delta", models.ActionSell, "AAPL", 0.8, 80, reasoning),
	}
}

func TestDeadlockEscapeValveBoundary(t *testing.T) {
	e := NewEngine("s1", nil)
	e.votes = highQualityVotes()

	quality := e.DecisionQuality()
	if quality.Overall < 75 {
		t.Fatalf("fixture quality %v should clear the override bar", quality.Overall)
	}

	policy := DefaultPolicy() // threshold 66, margin 10, bar 75

	// Exactly at threshold-10: the override rescues the result.
	if e.IsDeadlocked(56, policy) {
		t.Fatal("strength == threshold-10 with high quality must not deadlock")
	}
	// One point below the margin: deadlock stands.
	if !e.IsDeadlocked(55, policy) {
		t.Fatal("strength == threshold-11 must deadlock even with high quality")
	}
	// At or above threshold: never deadlocked regardless of quality.
	if e.IsDeadlocked(66, policy) {
		t.Fatal("strength at threshold must not deadlock")
	}
}

func TestDeadlockMonotonicity(t *testing.T) {
	e := NewEngine("s1", nil)
	e.votes = highQualityVotes()
	policy := DefaultPolicy()

	deadlocked := false
	for strength := 100.0; strength >= 0; strength -= 0.5 {
		d := e.IsDeadlocked(strength, policy)
		if deadlocked && !d {
			t.Fatalf("deadlock flipped back to false at strength %v", strength)
		}
		deadlocked = d
	}
}

func TestDeadlockLowQualityNoOverride(t *testing.T) {
	e := NewEngine("s1", nil)
	e.votes = []models.Vote{
		vote("alpha", models.ActionBuy, "A", 1.0, 40, "meh"),
		vote("beta", models.ActionSell, "B", 1.0, 35, ""),
		vote("gamma", models.ActionHold, "", 1.0, 30, ""),
	}
	if !e.IsDeadlocked(60, DefaultPolicy()) {
		t.Fatal("low quality below threshold must deadlock")
	}
}

func TestDecisionQualitySubMetrics(t *testing.T) {
	e := NewEngine("s1", nil)
	e.votes = highQualityVotes()

	q := e.DecisionQuality()
	if q.Overall <= 0 || q.Overall > 100 {
		t.Fatalf("overall quality %v out of range", q.Overall)
	}
	// Top three by weight (alpha, beta, gamma) all vote BUY.
	if q.TopPerformerAgreement != 100 {
		t.Fatalf("top performer agreement = %v, want 100", q.TopPerformerAgreement)
	}
	// Every vote names AAPL.
	if q.SymbolAgreement != 100 {
		t.Fatalf("symbol agreement = %v, want 100", q.SymbolAgreement)
	}
	if q.Interpretation == "" {
		t.Fatal("expected an interpretation string")
	}
}

func TestDecisionQualityNoSymbolsIsNotPenalized(t *testing.T) {
	e := NewEngine("s1", nil)
	e.votes = []models.Vote{
		vote("alpha", models.ActionHold, "", 1.0, 70, "wait for confirmation"),
		vote("beta", models.ActionHold, "", 1.0, 65, "no clear trend"),
	}
	if q := e.DecisionQuality(); q.SymbolAgreement != 100 {
		t.Fatalf("all-hold vote set should score symbol agreement 100, got %v", q.SymbolAgreement)
	}
}

func TestSymbolConsensusWeightedAndDirectionalOnly(t *testing.T) {
	e := NewEngine("s1", nil)
	e.votes = []models.Vote{
		vote("alpha", models.ActionBuy, "AAPL", 1.0, 60, ""),
		vote("beta", models.ActionBuy, "MSFT", 2.0, 90, ""),
		vote("gamma", models.ActionHold, "AAPL", 2.0, 100, ""), // hold never counts
	}
	if got := e.SymbolConsensus(); got != "MSFT" {
		t.Fatalf("symbol consensus = %q, want MSFT", got)
	}
}

func TestSymbolConsensusEmptyWithoutDirectionalVotes(t *testing.T) {
	e := NewEngine("s1", nil)
	e.votes = []models.Vote{
		vote("alpha", models.ActionHold, "", 1.0, 50, ""),
	}
	if got := e.SymbolConsensus(); got != "" {
		t.Fatalf("expected no symbol consensus, got %q", got)
	}
}
