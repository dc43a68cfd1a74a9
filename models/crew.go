package models

import "time"

type SessionStatus string

const (
	StatusDeliberating     SessionStatus = "deliberating"
	StatusVoting           SessionStatus = "voting"
	StatusConsensusReached SessionStatus = "consensus_reached"
	StatusDeadlock         SessionStatus = "deadlock"
	StatusMediatorInvoked  SessionStatus = "mediator_invoked"
	StatusCompleted        SessionStatus = "completed"
	StatusFailed           SessionStatus = "failed"
)

// rank orders statuses so transitions can be checked as monotonic.
var statusRank = map[SessionStatus]int{
	StatusDeliberating:     0,
	StatusVoting:           1,
	StatusConsensusReached: 2,
	StatusDeadlock:         2,
	StatusMediatorInvoked:  3,
	StatusCompleted:        4,
	StatusFailed:           4,
}

// CanTransition reports whether moving from s to next goes forward.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	return statusRank[next] >= statusRank[s]
}

// Terminal reports whether the status is final.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type MessageKind string

const (
	KindPosition   MessageKind = "position"
	KindRebuttal   MessageKind = "rebuttal"
	KindAgreement  MessageKind = "agreement"
	KindQuestion   MessageKind = "question"
	KindCompromise MessageKind = "compromise"
	KindCritique   MessageKind = "critique"
)

type VoteAction string

const (
	ActionBuy  VoteAction = "buy"
	ActionSell VoteAction = "sell"
	ActionHold VoteAction = "hold"
)

// Directional reports whether the action trades (BUY/SELL rather than HOLD).
func (a VoteAction) Directional() bool {
	return a == ActionBuy || a == ActionSell
}

// ParseVoteAction normalizes free-form action text; anything
// unrecognized maps to HOLD.
func ParseVoteAction(s string) VoteAction {
	switch VoteAction(s) {
	case ActionBuy, ActionSell, ActionHold:
		return VoteAction(s)
	}
	return ActionHold
}

// Session is one deliberation run. Mutated only by the orchestrator,
// frozen once the status is terminal.
type Session struct {
	ID               string        `json:"session_id"`
	Context          *MarketContext `json:"market_context"`
	SymbolsDiscussed []string      `json:"symbols_discussed"`
	Status           SessionStatus `json:"status"`
	CurrentRound     int           `json:"current_round"`
	TotalRounds      int           `json:"total_rounds"`

	FinalAction       VoteAction `json:"final_action,omitempty"`
	FinalSymbol       string     `json:"final_symbol,omitempty"`
	FinalQuantity     int64      `json:"final_quantity,omitempty"`
	ConsensusStrength float64    `json:"consensus_strength"`

	TotalMessages     int    `json:"total_messages"`
	MediatorUsed      bool   `json:"mediator_used"`
	MediatorReasoning string `json:"mediator_reasoning,omitempty"`

	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at,omitempty"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// Message is one contribution from one participant in one round.
// Append-only; never mutated after creation.
type Message struct {
	ID          string      `json:"message_id"`
	SessionID   string      `json:"session_id"`
	Participant string      `json:"participant"`
	Round       int         `json:"round"`
	Seq         int         `json:"seq"`
	Kind        MessageKind `json:"kind"`
	Content     string      `json:"content"`

	ProposedAction VoteAction `json:"proposed_action,omitempty"`
	ProposedSymbol string     `json:"proposed_symbol,omitempty"`
	Confidence     float64    `json:"confidence,omitempty"`
	// Degraded marks a placeholder recorded for a failed or
	// unparseable participant call, never a real stance.
	Degraded bool `json:"degraded,omitempty"`

	Mentions  []string  `json:"mentions,omitempty"`
	InReplyTo string    `json:"in_reply_to,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Vote is one participant's final-round decision. Weight is computed,
// never participant-supplied.
type Vote struct {
	ID            string     `json:"vote_id"`
	SessionID     string     `json:"session_id"`
	Participant   string     `json:"participant"`
	Action        VoteAction `json:"action"`
	Symbol        string     `json:"symbol,omitempty"`
	Weight        float64    `json:"weight"`
	Confidence    float64    `json:"confidence"`
	Reasoning     string     `json:"reasoning,omitempty"`
	WeightedScore float64    `json:"weighted_score"`
	CreatedAt     time.Time  `json:"created_at"`
}

// PerformanceRecord is a participant's historical trading record,
// read-only input to vote weighting.
type PerformanceRecord struct {
	Participant     string  `json:"participant"`
	TotalTrades     int     `json:"total_trades"`
	WinningTrades   int     `json:"winning_trades"`
	SharpeRatio     float64 `json:"sharpe_ratio"`
	TotalPnLPercent float64 `json:"total_pnl_percent"`
}

// WinRate returns the fraction of winning trades in [0,1].
func (p PerformanceRecord) WinRate() float64 {
	if p.TotalTrades <= 0 {
		return 0
	}
	return float64(p.WinningTrades) / float64(p.TotalTrades)
}
