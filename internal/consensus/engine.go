package consensus

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dyike/CrewGo/models"
)

// Policy carries the deadlock-detection knobs. The high-quality
// override is one-sided: it can rescue a borderline deadlock, never
// force one.
type Policy struct {
	MinConsensusPercent float64
	OverrideMargin      float64
	QualityOverrideBar  float64
}

// DefaultPolicy mirrors the tuned production values.
func DefaultPolicy() Policy {
	return Policy{
		MinConsensusPercent: 66,
		OverrideMargin:      10,
		QualityOverrideBar:  75,
	}
}

// Engine tallies weighted votes for one session. It is owned by the
// session's orchestrator and is not safe for concurrent use.
type Engine struct {
	sessionID string
	perf      PerformanceSource
	votes     []models.Vote
}

func NewEngine(sessionID string, perf PerformanceSource) *Engine {
	return &Engine{sessionID: sessionID, perf: perf}
}

// RegisterVote computes the participant's weight, derives the weighted
// score and stores the vote. Confidence is clamped to [0,100]; zero
// confidence is treated as a full-confidence vote, matching the
// convention that an unstated confidence means certainty.
func (e *Engine) RegisterVote(ctx context.Context, participant string, action models.VoteAction, symbol string, confidence float64, reasoning string) models.Vote {
	weight := weightFor(ctx, e.perf, participant)

	if confidence <= 0 {
		confidence = 100
	}
	if confidence > 100 {
		confidence = 100
	}

	vote := models.Vote{
		ID:            "vote_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		SessionID:     e.sessionID,
		Participant:   participant,
		Action:        action,
		Symbol:        symbol,
		Weight:        weight,
		Confidence:    confidence,
		Reasoning:     reasoning,
		WeightedScore: weight * confidence / 100.0,
		CreatedAt:     time.Now().UTC(),
	}
	e.votes = append(e.votes, vote)

	log.Printf("vote registered session=%s participant=%s action=%s weight=%.2f confidence=%.0f",
		e.sessionID, participant, action, weight, confidence)
	return vote
}

// Votes returns a copy of all registered votes.
func (e *Engine) Votes() []models.Vote {
	out := make([]models.Vote, len(e.votes))
	copy(out, e.votes)
	return out
}

// Tally sums weighted scores per action and derives the winner and the
// consensus strength. With no votes it returns HOLD at strength 0.
func (e *Engine) Tally() models.ConsensusResult {
	breakdown := map[models.VoteAction]models.ActionTotals{
		models.ActionBuy:  {},
		models.ActionSell: {},
		models.ActionHold: {},
	}

	var total float64
	for _, v := range e.votes {
		t := breakdown[v.Action]
		t.Count++
		t.WeightedScore += v.WeightedScore
		breakdown[v.Action] = t
		total += v.WeightedScore
	}

	result := models.ConsensusResult{
		WinningAction: models.ActionHold,
		Breakdown:     breakdown,
		TotalVotes:    len(e.votes),
		Quality:       e.DecisionQuality(),
	}
	if len(e.votes) == 0 || total <= 0 {
		return result
	}

	// Stable argmax: iterate actions in a fixed order so ties resolve
	// deterministically.
	for _, action := range []models.VoteAction{models.ActionBuy, models.ActionSell, models.ActionHold} {
		if breakdown[action].WeightedScore > result.WinningScore {
			result.WinningAction = action
			result.WinningScore = breakdown[action].WeightedScore
		}
	}
	result.Strength = result.WinningScore / total * 100

	log.Printf("consensus calculated session=%s winner=%s strength=%.1f votes=%d",
		e.sessionID, result.WinningAction, result.Strength, len(e.votes))
	return result
}

// IsDeadlocked applies the policy threshold with the high-quality
// escape valve: a below-threshold result survives when quality clears
// the bar and strength is within the override margin of the threshold.
func (e *Engine) IsDeadlocked(strength float64, policy Policy) bool {
	if strength >= policy.MinConsensusPercent {
		return false
	}

	quality := e.DecisionQuality()
	if quality.Overall >= policy.QualityOverrideBar && strength >= policy.MinConsensusPercent-policy.OverrideMargin {
		log.Printf("high quality override session=%s strength=%.1f quality=%.1f",
			e.sessionID, strength, quality.Overall)
		return false
	}

	log.Printf("deadlock detected session=%s strength=%.1f required=%.1f quality=%.1f",
		e.sessionID, strength, policy.MinConsensusPercent, quality.Overall)
	return true
}

// reasoning keywords that indicate substantive analysis.
var reasoningKeywords = []string{
	"because", "analysis", "indicator", "risk",
	"opportunity", "trend", "support", "resistance",
}

// DecisionQuality scores the vote set 0-100 from four sub-metrics:
// conviction 30%, top-performer agreement 30%, reasoning quality 20%,
// symbol agreement 20%.
func (e *Engine) DecisionQuality() models.QualityReport {
	if len(e.votes) == 0 {
		return models.QualityReport{Interpretation: "No votes"}
	}

	report := models.QualityReport{
		Conviction:            e.convictionScore(),
		TopPerformerAgreement: e.topPerformerAgreement(),
		ReasoningQuality:      e.reasoningQuality(),
		SymbolAgreement:       e.symbolAgreement(),
	}
	report.Overall = report.Conviction*0.30 +
		report.TopPerformerAgreement*0.30 +
		report.ReasoningQuality*0.20 +
		report.SymbolAgreement*0.20

	switch {
	case report.Overall >= 80:
		report.Interpretation = "Excellent decision quality - high conviction and alignment"
	case report.Overall >= 60:
		report.Interpretation = "Good decision quality - reasonable confidence"
	case report.Overall >= 40:
		report.Interpretation = "Moderate decision quality - proceed with caution"
	default:
		report.Interpretation = "Low decision quality - consider HOLD or more analysis"
	}
	return report
}

// convictionScore is the weight-weighted mean confidence.
func (e *Engine) convictionScore() float64 {
	var totalConfidence, totalWeight float64
	for _, v := range e.votes {
		totalConfidence += v.Confidence * v.Weight
		totalWeight += v.Weight
	}
	if totalWeight <= 0 {
		return 50
	}
	avg := totalConfidence / totalWeight
	if avg > 100 {
		avg = 100
	}
	return avg
}

// topPerformerAgreement measures whether the three highest-weight
// voters back the same action.
func (e *Engine) topPerformerAgreement() float64 {
	sorted := make([]models.Vote, len(e.votes))
	copy(sorted, e.votes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Weight > sorted[j].Weight
	})
	if len(sorted) > 3 {
		sorted = sorted[:3]
	}
	if len(sorted) == 0 {
		return 50
	}

	counts := map[models.VoteAction]int{}
	for _, v := range sorted {
		counts[v.Action]++
	}
	best := 0
	for _, c := range counts {
		if c > best {
			best = c
		}
	}
	return float64(best) / float64(len(sorted)) * 100
}

// reasoningQuality scores each vote's reasoning on length plus the
// presence of analysis keywords, averaged across votes.
func (e *Engine) reasoningQuality() float64 {
	var sum float64
	for _, v := range e.votes {
		lengthScore := float64(len(v.Reasoning)) / 2 // 200+ chars saturates
		if lengthScore > 100 {
			lengthScore = 100
		}
		var keywordScore float64
		lower := strings.ToLower(v.Reasoning)
		for _, kw := range reasoningKeywords {
			if strings.Contains(lower, kw) {
				keywordScore += 12.5
			}
		}
		score := (lengthScore + keywordScore) / 2
		if score > 100 {
			score = 100
		}
		sum += score
	}
	return sum / float64(len(e.votes))
}

// symbolAgreement is the fraction of symbol-bearing votes that share
// the most popular symbol; 100 when no vote names a symbol.
func (e *Engine) symbolAgreement() float64 {
	counts := map[string]int{}
	withSymbol := 0
	for _, v := range e.votes {
		if v.Symbol != "" {
			counts[v.Symbol]++
			withSymbol++
		}
	}
	if withSymbol == 0 {
		return 100
	}
	best := 0
	for _, c := range counts {
		if c > best {
			best = c
		}
	}
	return float64(best) / float64(withSymbol) * 100
}

// SymbolConsensus picks the symbol with the highest cumulative weighted
// score among directional (BUY/SELL) votes; "" if none exist.
func (e *Engine) SymbolConsensus() string {
	scores := map[string]float64{}
	for _, v := range e.votes {
		if v.Symbol == "" || !v.Action.Directional() {
			continue
		}
		scores[v.Symbol] += v.WeightedScore
	}
	if len(scores) == 0 {
		return ""
	}

	symbols := make([]string, 0, len(scores))
	for s := range scores {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	best := symbols[0]
	for _, s := range symbols[1:] {
		if scores[s] > scores[best] {
			best = s
		}
	}
	return best
}

// FormatVoteSummary renders all votes sorted by weighted score, for
// mediator prompts and logs.
func (e *Engine) FormatVoteSummary() string {
	if len(e.votes) == 0 {
		return "No votes cast yet."
	}

	sorted := make([]models.Vote, len(e.votes))
	copy(sorted, e.votes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].WeightedScore > sorted[j].WeightedScore
	})

	var b strings.Builder
	b.WriteString("=== VOTE SUMMARY ===\n")
	for _, v := range sorted {
		fmt.Fprintf(&b, "%s: %s %s (weight: %.2f, confidence: %.0f%%, weighted score: %.2f)\n",
			v.Participant, strings.ToUpper(string(v.Action)), v.Symbol, v.Weight, v.Confidence, v.WeightedScore)
	}
	return strings.TrimRight(b.String(), "\n")
}
