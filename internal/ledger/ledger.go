// Package ledger keeps the append-only in-memory record of one
// session's deliberation: every message, queryable by round,
// participant and kind, flushed to durable storage once at session end.
package ledger

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dyike/CrewGo/models"
)

// Store is the durable sink the ledger flushes into at session end.
type Store interface {
	SaveMessages(ctx context.Context, sessionID string, msgs []models.Message) error
}

// Ledger is owned by a single session's orchestrator for that session's
// lifetime; all writes happen after the round's fan-in, never from
// concurrent branches.
type Ledger struct {
	sessionID string
	messages  []models.Message
}

func New(sessionID string) *Ledger {
	return &Ledger{sessionID: sessionID}
}

// Append records a message, assigning its id and timestamp. Round, Seq,
// Kind and Content come from the caller; messages are never mutated
// afterwards.
func (l *Ledger) Append(msg models.Message) models.Message {
	msg.ID = "msg_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	msg.SessionID = l.sessionID
	msg.CreatedAt = time.Now().UTC()

	l.messages = append(l.messages, msg)

	log.Printf("message recorded session=%s participant=%s round=%d kind=%s seq=%d",
		l.sessionID, msg.Participant, msg.Round, msg.Kind, msg.Seq)
	return msg
}

// Len returns the number of recorded messages.
func (l *Ledger) Len() int { return len(l.messages) }

// Filter narrows a History query.
type Filter struct {
	Round       *int
	Participant string
	Kinds       []models.MessageKind
}

// History returns messages matching the filter, ordered by round then
// sequence number.
func (l *Ledger) History(f Filter) []models.Message {
	var out []models.Message
	for _, m := range l.messages {
		if f.Round != nil && m.Round != *f.Round {
			continue
		}
		if f.Participant != "" && m.Participant != f.Participant {
			continue
		}
		if len(f.Kinds) > 0 && !containsKind(f.Kinds, m.Kind) {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Round != out[j].Round {
			return out[i].Round < out[j].Round
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// All returns every message in transcript order.
func (l *Ledger) All() []models.Message {
	return l.History(Filter{})
}

// Position is an initial stance extracted from a positions round.
type Position struct {
	Action     models.VoteAction
	Symbol     string
	Confidence float64
	Reasoning  string
	Degraded   bool
}

// Positions extracts each participant's POSITION message from the given
// round, keyed by participant.
func (l *Ledger) Positions(round int) map[string]Position {
	positions := make(map[string]Position)
	for _, m := range l.messages {
		if m.Round != round || m.Kind != models.KindPosition {
			continue
		}
		positions[m.Participant] = Position{
			Action:     m.ProposedAction,
			Symbol:     m.ProposedSymbol,
			Confidence: m.Confidence,
			Reasoning:  m.Content,
			Degraded:   m.Degraded,
		}
	}
	return positions
}

// Flush persists the full message record in one shot. Persistence
// failures stay cleanly separated from protocol logic: the caller
// decides whether they fail the session.
func (l *Ledger) Flush(ctx context.Context, store Store) error {
	if store == nil || len(l.messages) == 0 {
		return nil
	}
	if err := store.SaveMessages(ctx, l.sessionID, l.All()); err != nil {
		return err
	}
	log.Printf("messages flushed session=%s total=%d", l.sessionID, len(l.messages))
	return nil
}

// AnalyzeDiscussion summarizes the transcript's dynamics.
func (l *Ledger) AnalyzeDiscussion() models.DiscussionStats {
	stats := models.DiscussionStats{
		TotalMessages:   len(l.messages),
		KindCounts:      map[models.MessageKind]int{},
		ProposedActions: map[models.VoteAction]int{},
	}
	if len(l.messages) == 0 {
		stats.CollaborationScore = 50
		return stats
	}

	byParticipant := map[string]int{}
	for _, m := range l.messages {
		stats.KindCounts[m.Kind]++
		if m.ProposedAction != "" {
			stats.ProposedActions[m.ProposedAction]++
		}
		byParticipant[m.Participant]++
	}

	stats.Agreements = stats.KindCounts[models.KindAgreement]
	stats.Rebuttals = stats.KindCounts[models.KindRebuttal]
	if interactive := stats.Agreements + stats.Rebuttals; interactive > 0 {
		stats.CollaborationScore = float64(stats.Agreements) / float64(interactive) * 100
	} else {
		stats.CollaborationScore = 50
	}

	names := make([]string, 0, len(byParticipant))
	for name := range byParticipant {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if stats.MostActive == "" || byParticipant[name] > byParticipant[stats.MostActive] {
			stats.MostActive = name
		}
	}
	return stats
}

func containsKind(kinds []models.MessageKind, k models.MessageKind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}
