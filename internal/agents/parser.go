package agents

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dyike/CrewGo/models"
)

// Structured lines the prompts ask for.
var (
	votePattern       = regexp.MustCompile(`(?m)^\s*(?i:vote|decision|action)\s*:\s*((?i:buy|sell|hold))\b(?:[ \t]+([A-Z][A-Z0-9.\-]{0,9}))?`)
	confidencePattern = regexp.MustCompile(`(?i)confidence\s*:?\s*(\d{1,3})\s*%?`)
	reasoningPattern  = regexp.MustCompile(`(?is)reasoning\s*:\s*(.+)$`)
	kindTagPattern    = regexp.MustCompile(`(?im)^\s*(?:type|message[_ ]type)\s*:\s*(position|rebuttal|agreement|question|compromise|critique)\b`)
	symbolPattern     = regexp.MustCompile(`\b([A-Z]{1,5}(?:\.[A-Z]{1,2})?)\b`)
)

// Free-text fallbacks when the participant ignores the format.
var (
	buyWords  = regexp.MustCompile(`(?i)\b(buy|long|bullish|accumulate|undervalued|oversold)\b`)
	sellWords = regexp.MustCompile(`(?i)\b(sell|short|bearish|divest|overvalued|overbought)\b`)
	holdWords = regexp.MustCompile(`(?i)\b(hold|neutral|wait|sideways|stay put)\b`)
)

// Words that are valid ticker shapes but never tickers in our prompts.
var symbolStopwords = map[string]bool{
	"BUY": true, "SELL": true, "HOLD": true, "I": true, "A": true,
	"THE": true, "AND": true, "NOT": true, "FOR": true, "VOTE": true,
	"RSI": true, "MACD": true, "ETF": true, "USD": true, "AI": true,
}

// ParseProposal turns raw participant text into a structured Proposal.
// It prefers the explicit "Vote:/Confidence:/Reasoning:" format and
// falls back to keyword scoring; a reply with no recognizable stance
// still parses, with an empty Action.
func ParseProposal(text string) *Proposal {
	text = strings.TrimSpace(text)
	p := &Proposal{Content: text, Reasoning: text}

	if m := votePattern.FindStringSubmatch(text); m != nil {
		p.Action = models.ParseVoteAction(strings.ToLower(m[1]))
		if m[2] != "" && !symbolStopwords[m[2]] {
			p.Symbol = m[2]
		}
	} else if action, ok := scoreActionWords(text); ok {
		p.Action = action
	}

	if p.Symbol == "" && p.Action.Directional() {
		p.Symbol = firstSymbol(text)
	}

	if m := confidencePattern.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			if v > 100 {
				v = 100
			}
			p.Confidence = v
		}
	}

	if m := reasoningPattern.FindStringSubmatch(text); m != nil {
		p.Reasoning = strings.TrimSpace(m[1])
	}

	if m := kindTagPattern.FindStringSubmatch(text); m != nil {
		p.Kind = models.MessageKind(strings.ToLower(m[1]))
	}
	return p
}

// ClassifyKind is the keyword fallback applied when a participant
// supplies no explicit kind tag. It is best-effort, never a
// correctness requirement.
func ClassifyKind(content string) models.MessageKind {
	lower := strings.ToLower(content)
	switch {
	case strings.Contains(lower, "compromise"):
		return models.KindCompromise
	case strings.Contains(lower, "disagree") || strings.Contains(lower, "however"):
		return models.KindRebuttal
	case strings.Contains(lower, "agree"):
		return models.KindAgreement
	case strings.Contains(content, "?"):
		return models.KindQuestion
	default:
		return models.KindPosition
	}
}

// ParseMediatorDecision extracts the final call from mediator text.
// Unparseable output defaults to HOLD so a rambling mediator can never
// produce an unstructured result.
func ParseMediatorDecision(text string) *MediatorDecision {
	d := &MediatorDecision{Action: models.ActionHold, Reasoning: strings.TrimSpace(text)}
	if m := votePattern.FindStringSubmatch(text); m != nil {
		d.Action = models.ParseVoteAction(strings.ToLower(m[1]))
		if m[2] != "" && !symbolStopwords[m[2]] {
			d.Symbol = m[2]
		}
	} else if action, ok := scoreActionWords(text); ok {
		d.Action = action
	}
	if d.Symbol == "" && d.Action.Directional() {
		d.Symbol = firstSymbol(text)
	}
	return d
}

// scoreActionWords counts directional keywords; the majority wins.
func scoreActionWords(text string) (models.VoteAction, bool) {
	buy := len(buyWords.FindAllString(text, -1))
	sell := len(sellWords.FindAllString(text, -1))
	hold := len(holdWords.FindAllString(text, -1))

	switch {
	case buy > sell && buy > hold:
		return models.ActionBuy, true
	case sell > buy && sell > hold:
		return models.ActionSell, true
	case hold > 0:
		return models.ActionHold, true
	}
	return "", false
}

func firstSymbol(text string) string {
	for _, m := range symbolPattern.FindAllString(text, -1) {
		if !symbolStopwords[m] && len(m) >= 2 {
			return m
		}
	}
	return ""
}
