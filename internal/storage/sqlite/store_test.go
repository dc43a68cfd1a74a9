package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dyike/CrewGo/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "crew.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSessionRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	started := time.Now().UTC().Truncate(time.Second)

	session := &models.Session{
		ID:          "crew_abc123def456",
		Status:      models.StatusDeliberating,
		TotalRounds: 3,
		StartedAt:   started,
	}
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	completed := started.Add(42 * time.Second)
	session.Status = models.StatusCompleted
	session.SymbolsDiscussed = []string{"AAPL", "NVDA"}
	session.FinalAction = models.ActionBuy
	session.FinalSymbol = "AAPL"
	session.FinalQuantity = 25
	session.ConsensusStrength = 81.5
	session.TotalMessages = 14
	session.CompletedAt = completed
	session.DurationSeconds = 42
	if err := store.FinalizeSession(ctx, session); err != nil {
		t.Fatalf("FinalizeSession: %v", err)
	}

	got, err := store.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got == nil {
		t.Fatal("session not found after finalize")
	}
	if got.Status != models.StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.FinalAction != models.ActionBuy || got.FinalSymbol != "AAPL" || got.FinalQuantity != 25 {
		t.Fatalf("final decision = %s %s x%d", got.FinalAction, got.FinalSymbol, got.FinalQuantity)
	}
	if len(got.SymbolsDiscussed) != 2 || got.SymbolsDiscussed[0] != "AAPL" {
		t.Fatalf("symbols = %v", got.SymbolsDiscussed)
	}
	if got.CompletedAt.IsZero() {
		t.Fatal("completed_at not persisted")
	}
}

func TestGetSessionUnknownID(t *testing.T) {
	store := openTestStore(t)
	got, err := store.GetSession(context.Background(), "crew_nope")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got != nil {
		t.Fatal("unknown id must return nil session")
	}
}

func TestMessagesAndVotesRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	session := &models.Session{ID: "crew_111122223333", Status: models.StatusDeliberating, StartedAt: now}
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	msgs := []models.Message{
		{ID: "msg_000000000001", SessionID: session.ID, Participant: "warren", Round: 1, Seq: 0,
			Kind: models.KindPosition, Content: "I like AAPL here",
			ProposedAction: models.ActionBuy, ProposedSymbol: "AAPL", Confidence: 80,
			Mentions: []string{"cathie"}, CreatedAt: now},
		{ID: "msg_000000000002", SessionID: session.ID, Participant: "cathie", Round: 2, Seq: 1,
			Kind: models.KindRebuttal, Content: "Valuation is stretched", CreatedAt: now},
		{ID: "msg_000000000003", SessionID: session.ID, Participant: "ray", Round: 1, Seq: 2,
			Kind: models.KindPosition, Content: "Unable to form a position. Defaulting to HOLD.",
			ProposedAction: models.ActionHold, Confidence: 25, Degraded: true, CreatedAt: now},
	}
	if err := store.SaveMessages(ctx, msgs); err != nil {
		t.Fatalf("SaveMessages: %v", err)
	}
	// Replays must be idempotent.
	if err := store.SaveMessages(ctx, msgs); err != nil {
		t.Fatalf("SaveMessages replay: %v", err)
	}

	gotMsgs, err := store.ListMessages(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(gotMsgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(gotMsgs))
	}
	if gotMsgs[0].ID != "msg_000000000001" || gotMsgs[1].ID != "msg_000000000003" {
		t.Fatalf("wrong order: %s then %s", gotMsgs[0].ID, gotMsgs[1].ID)
	}
	if len(gotMsgs[0].Mentions) != 1 || gotMsgs[0].Mentions[0] != "cathie" {
		t.Fatalf("mentions = %v", gotMsgs[0].Mentions)
	}
	if gotMsgs[0].Degraded || !gotMsgs[1].Degraded {
		t.Fatalf("degraded flags lost: %v %v", gotMsgs[0].Degraded, gotMsgs[1].Degraded)
	}

	votes := []models.Vote{
		{ID: "vote_00000000000a", SessionID: session.ID, Participant: "warren",
			Action: models.ActionBuy, Symbol: "AAPL", Weight: 1.5, Confidence: 80,
			Reasoning: "strong fundamentals", WeightedScore: 1.2, CreatedAt: now},
		{ID: "vote_00000000000b", SessionID: session.ID, Participant: "cathie",
			Action: models.ActionHold, Weight: 1.0, Confidence: 60,
			WeightedScore: 0.6, CreatedAt: now},
	}
	if err := store.SaveVotes(ctx, votes); err != nil {
		t.Fatalf("SaveVotes: %v", err)
	}

	gotVotes, err := store.ListVotes(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListVotes: %v", err)
	}
	if len(gotVotes) != 2 {
		t.Fatalf("got %d votes, want 2", len(gotVotes))
	}
	if gotVotes[0].Participant != "warren" {
		t.Fatalf("votes not ordered by weighted score, first is %s", gotVotes[0].Participant)
	}
	if gotVotes[1].Action != models.ActionHold || gotVotes[1].Symbol != "" {
		t.Fatalf("hold vote round trip: %s %q", gotVotes[1].Action, gotVotes[1].Symbol)
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, id := range []string{"crew_aaaaaaaaaaaa", "crew_bbbbbbbbbbbb", "crew_cccccccccccc"} {
		s := &models.Session{ID: id, Status: models.StatusDeliberating, StartedAt: now}
		if err := store.CreateSession(ctx, s); err != nil {
			t.Fatalf("CreateSession %s: %v", id, err)
		}
	}

	sessions, err := store.ListSessions(ctx, 2)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	if sessions[0].ID != "crew_cccccccccccc" {
		t.Fatalf("newest first violated, got %s", sessions[0].ID)
	}
}

func TestUpdateSessionStatus(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	s := &models.Session{ID: "crew_statusflow00", Status: models.StatusDeliberating, StartedAt: time.Now().UTC()}
	if err := store.CreateSession(ctx, s); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := store.UpdateSessionStatus(ctx, s.ID, models.StatusVoting); err != nil {
		t.Fatalf("UpdateSessionStatus: %v", err)
	}

	got, err := store.GetSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != models.StatusVoting {
		t.Fatalf("status = %s, want voting", got.Status)
	}
}
