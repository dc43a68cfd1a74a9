// Package agents defines the call contracts for deliberation
// participants and the mediator, plus the LLM-backed implementations.
package agents

import (
	"context"
	"errors"

	"github.com/dyike/CrewGo/models"
)

// ErrMalformedResponse marks a participant reply that could not be
// turned into a structured proposal.
var ErrMalformedResponse = errors.New("malformed participant response")

// ProposeRequest is everything a participant sees for one call: the
// session context, the transcript so far and the phase instructions.
// The deadline travels on the context.
type ProposeRequest struct {
	Phase        string
	Context      *models.MarketContext
	Transcript   string
	Instructions string
}

// Proposal is a participant's structured reply. Action and Kind may be
// empty when the phase does not require a stance (discovery) or the
// participant supplied no explicit tag.
type Proposal struct {
	Action     models.VoteAction
	Symbol     string
	Confidence float64
	Reasoning  string
	Content    string
	Kind       models.MessageKind
}

// Participant is the single capability every roster member exposes.
// Implementations may be LLM-backed, rule engines or humans; the
// engine distinguishes them only by Name.
type Participant interface {
	Name() string
	Propose(ctx context.Context, req *ProposeRequest) (*Proposal, error)
}

// MediationRequest carries what the mediator needs to break a deadlock.
type MediationRequest struct {
	Context     *models.MarketContext
	Transcript  string
	VoteSummary string
}

// MediatorDecision becomes the session's final decision verbatim.
type MediatorDecision struct {
	Action    models.VoteAction
	Symbol    string
	Reasoning string
}

// Mediator is a single arbitration call, invoked only on deadlock. It
// carries no vote weight of its own.
type Mediator interface {
	Decide(ctx context.Context, req *MediationRequest) (*MediatorDecision, error)
}
