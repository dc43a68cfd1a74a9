package models

import "time"

// SessionResult is the outbound shape returned to callers and mirrored
// into the durable store. It is always well-formed: failures surface as
// a HOLD action plus ErrorContext, never as an absent result.
type SessionResult struct {
	SessionID         string                      `json:"session_id"`
	FinalAction       VoteAction                  `json:"final_action"`
	FinalSymbol       string                      `json:"final_symbol,omitempty"`
	FinalQuantity     int64                       `json:"final_quantity,omitempty"`
	ConsensusStrength float64                     `json:"consensus_strength"`
	IsDeadlock        bool                        `json:"is_deadlock"`
	MediatorUsed      bool                        `json:"mediator_used"`
	MediatorReasoning string                      `json:"mediator_reasoning,omitempty"`
	VoteBreakdown     map[VoteAction]ActionTotals `json:"vote_breakdown"`
	DecisionQuality   float64                     `json:"decision_quality"`
	Discussion        DiscussionStats             `json:"discussion_analysis"`
	Transcript        []Message                   `json:"transcript"`
	DurationSeconds   float64                     `json:"duration_seconds"`
	ErrorContext      string                      `json:"error,omitempty"`
}

// ProgressEvent is a fire-and-forget notification for live observers.
type ProgressEvent struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id"`
	Payload   map[string]any `json:"payload,omitempty"`
	At        time.Time      `json:"at"`
}
