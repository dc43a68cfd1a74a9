package ledger

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dyike/CrewGo/models"
)

func TestAppendAssignsIDsAndKeepsOrder(t *testing.T) {
	l := New("crew_test")

	first := l.Append(models.Message{Participant: "alpha", Round: 1, Seq: 0, Kind: models.KindPosition, Content: "buy it"})
	second := l.Append(models.Message{Participant: "beta", Round: 1, Seq: 1, Kind: models.KindPosition, Content: "sell it"})

	if first.ID == "" || second.ID == "" || first.ID == second.ID {
		t.Fatalf("expected distinct message ids, got %q and %q", first.ID, second.ID)
	}
	if !strings.HasPrefix(first.ID, "msg_") {
		t.Fatalf("unexpected id format %q", first.ID)
	}
	if first.SessionID != "crew_test" {
		t.Fatalf("session id not stamped: %q", first.SessionID)
	}

	all := l.All()
	if len(all) != 2 || all[0].Participant != "alpha" || all[1].Participant != "beta" {
		t.Fatalf("unexpected transcript order: %+v", all)
	}
}

func TestHistoryFilters(t *testing.T) {
	l := New("crew_test")
	l.Append(models.Message{Participant: "alpha", Round: 1, Seq: 0, Kind: models.KindPosition})
	l.Append(models.Message{Participant: "beta", Round: 1, Seq: 1, Kind: models.KindPosition})
	l.Append(models.Message{Participant: "alpha", Round: 2, Seq: 0, Kind: models.KindRebuttal})
	l.Append(models.Message{Participant: "beta", Round: 2, Seq: 1, Kind: models.KindAgreement})

	round2 := 2
	if got := l.History(Filter{Round: &round2}); len(got) != 2 {
		t.Fatalf("round filter returned %d messages, want 2", len(got))
	}
	if got := l.History(Filter{Participant: "alpha"}); len(got) != 2 {
		t.Fatalf("participant filter returned %d messages, want 2", len(got))
	}
	got := l.History(Filter{Kinds: []models.MessageKind{models.KindRebuttal}})
	if len(got) != 1 || got[0].Participant != "alpha" {
		t.Fatalf("kind filter returned %+v", got)
	}
}

func TestHistorySortsByRoundThenSeq(t *testing.T) {
	l := New("crew_test")
	// Appended out of order on purpose; seq is assigned at dispatch
	// time so arrival order must not matter.
	l.Append(models.Message{Participant: "c", Round: 2, Seq: 99, Kind: models.KindRebuttal})
	l.Append(models.Message{Participant: "b", Round: 2, Seq: 1, Kind: models.KindRebuttal})
	l.Append(models.Message{Participant: "a", Round: 1, Seq: 0, Kind: models.KindPosition})

	all := l.All()
	if all[0].Participant != "a" || all[1].Participant != "b" || all[2].Participant != "c" {
		t.Fatalf("unexpected order: %+v", all)
	}
}

func TestPositionsExtraction(t *testing.T) {
	l := New("crew_test")
	l.Append(models.Message{
		Participant: "alpha", Round: 1, Seq: 0, Kind: models.KindPosition,
		Content: "momentum is strong", ProposedAction: models.ActionBuy, ProposedSymbol: "AAPL", Confidence: 80,
	})
	l.Append(models.Message{Participant: "alpha", Round: 2, Seq: 0, Kind: models.KindRebuttal, Content: "still buy"})

	positions := l.Positions(1)
	if len(positions) != 1 {
		t.Fatalf("expected one position, got %d", len(positions))
	}
	pos := positions["alpha"]
	if pos.Action != models.ActionBuy || pos.Symbol != "AAPL" || pos.Confidence != 80 {
		t.Fatalf("unexpected position %+v", pos)
	}
	if pos.Reasoning != "momentum is strong" {
		t.Fatalf("reasoning not carried: %q", pos.Reasoning)
	}
}

func TestFormatTranscript(t *testing.T) {
	l := New("crew_test")
	l.Append(models.Message{
		Participant: "alpha", Round: 1, Seq: 0, Kind: models.KindPosition,
		Content: "I like the setup", ProposedAction: models.ActionBuy, ProposedSymbol: "MSFT", Confidence: 75,
	})
	l.Append(models.Message{
		Participant: "beta", Round: 2, Seq: 0, Kind: models.KindRebuttal,
		Content: "disagree, overbought", Mentions: []string{"alpha"},
	})
	l.Append(models.Message{
		Participant: "gamma", Round: 3, Seq: 0, Kind: models.KindPosition, Content: "late entry",
	})

	text := l.FormatTranscript("alpha", 2)
	if !strings.Contains(text, "=== ROUND 1 ===") || !strings.Contains(text, "=== ROUND 2 ===") {
		t.Fatalf("missing round headers:\n%s", text)
	}
	if strings.Contains(text, "late entry") {
		t.Fatal("round 3 message leaked into a through-round-2 transcript")
	}
	if !strings.Contains(text, "[Proposes: BUY MSFT - 75% confidence]") {
		t.Fatalf("missing proposal line:\n%s", text)
	}
	if !strings.Contains(text, "beta [@YOU]") {
		t.Fatalf("missing mention flag for reader:\n%s", text)
	}
	if !strings.Contains(text, "[POSITION] alpha") || !strings.Contains(text, "[REBUTTAL]") {
		t.Fatalf("missing kind tags:\n%s", text)
	}
}

func TestFormatTranscriptEmpty(t *testing.T) {
	l := New("crew_test")
	if got := l.FormatTranscript("anyone", 5); got != "No discussion yet." {
		t.Fatalf("unexpected empty transcript: %q", got)
	}
}

func TestAnalyzeDiscussion(t *testing.T) {
	l := New("crew_test")
	l.Append(models.Message{Participant: "alpha", Round: 2, Seq: 0, Kind: models.KindAgreement})
	l.Append(models.Message{Participant: "alpha", Round: 2, Seq: 1, Kind: models.KindAgreement})
	l.Append(models.Message{Participant: "beta", Round: 2, Seq: 2, Kind: models.KindRebuttal, ProposedAction: models.ActionSell})

	stats := l.AnalyzeDiscussion()
	if stats.TotalMessages != 3 {
		t.Fatalf("total = %d, want 3", stats.TotalMessages)
	}
	if stats.Agreements != 2 || stats.Rebuttals != 1 {
		t.Fatalf("agreements=%d rebuttals=%d", stats.Agreements, stats.Rebuttals)
	}
	want := 2.0 / 3.0 * 100
	if stats.CollaborationScore < want-0.01 || stats.CollaborationScore > want+0.01 {
		t.Fatalf("collaboration = %v, want %v", stats.CollaborationScore, want)
	}
	if stats.MostActive != "alpha" {
		t.Fatalf("most active = %q, want alpha", stats.MostActive)
	}
	if stats.ProposedActions[models.ActionSell] != 1 {
		t.Fatalf("proposed actions = %+v", stats.ProposedActions)
	}
}

type captureStore struct {
	saved []models.Message
	err   error
}

func (c *captureStore) SaveMessages(_ context.Context, _ string, msgs []models.Message) error {
	if c.err != nil {
		return c.err
	}
	c.saved = msgs
	return nil
}

func TestFlush(t *testing.T) {
	l := New("crew_test")
	l.Append(models.Message{Participant: "alpha", Round: 1, Seq: 0, Kind: models.KindPosition})

	store := &captureStore{}
	if err := l.Flush(context.Background(), store); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(store.saved) != 1 {
		t.Fatalf("flushed %d messages, want 1", len(store.saved))
	}

	failing := &captureStore{err: errors.New("db down")}
	if err := l.Flush(context.Background(), failing); err == nil {
		t.Fatal("expected flush error to propagate")
	}
}
