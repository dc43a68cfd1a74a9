package models

// ActionTotals aggregates one action's share of the vote.
type ActionTotals struct {
	Count         int     `json:"count"`
	WeightedScore float64 `json:"weighted_score"`
}

// ConsensusResult is a computed view over the session's votes. It is
// derived at tally time and never persisted on its own.
type ConsensusResult struct {
	WinningAction VoteAction                  `json:"winning_action"`
	WinningScore  float64                     `json:"winning_score"`
	Strength      float64                     `json:"consensus_percent"`
	Breakdown     map[VoteAction]ActionTotals `json:"breakdown"`
	TotalVotes    int                         `json:"total_votes"`
	Quality       QualityReport               `json:"quality"`
	Deadlock      bool                        `json:"is_deadlock"`
}

// QualityReport is the multi-factor decision-quality score and its
// sub-metrics, all on a 0-100 scale.
type QualityReport struct {
	Overall               float64 `json:"overall_quality"`
	Conviction            float64 `json:"conviction_score"`
	TopPerformerAgreement float64 `json:"top_performer_agreement"`
	ReasoningQuality      float64 `json:"reasoning_quality"`
	SymbolAgreement       float64 `json:"symbol_agreement"`
	Interpretation        string  `json:"interpretation"`
}

// DiscussionStats summarizes the dynamics of a session's transcript.
type DiscussionStats struct {
	TotalMessages      int                 `json:"total_messages"`
	KindCounts         map[MessageKind]int `json:"message_kinds"`
	Agreements         int                 `json:"agreements"`
	Rebuttals          int                 `json:"rebuttals"`
	CollaborationScore float64             `json:"collaboration_score"`
	ProposedActions    map[VoteAction]int  `json:"proposed_actions"`
	MostActive         string              `json:"most_active_participant,omitempty"`
}
