// Package deliberation runs the full crew session protocol: symbol
// discovery, initial positions, open discussion, cross critique, a
// devil's advocate pass, weighted voting and, on deadlock, mediation.
package deliberation

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dyike/CrewGo/consts"
	"github.com/dyike/CrewGo/internal/agents"
	"github.com/dyike/CrewGo/internal/broadcast"
	"github.com/dyike/CrewGo/internal/consensus"
	"github.com/dyike/CrewGo/internal/ledger"
	"github.com/dyike/CrewGo/internal/risk"
	"github.com/dyike/CrewGo/models"
)

// Config tunes one orchestrator. Zero values fall back to defaults.
type Config struct {
	// DeliberationRounds is the number of open discussion rounds
	// between the initial positions and the critique pass.
	DeliberationRounds int
	Policy             consensus.Policy
	// CallTimeout bounds each individual participant call.
	CallTimeout     time.Duration
	MediatorEnabled bool
	DevilsAdvocate  bool
}

func DefaultConfig() Config {
	return Config{
		DeliberationRounds: 2,
		Policy:             consensus.DefaultPolicy(),
		CallTimeout:        120 * time.Second,
		MediatorEnabled:    true,
		DevilsAdvocate:     true,
	}
}

// Store is the durable sink for sessions, transcripts and ballots.
type Store interface {
	CreateSession(ctx context.Context, session *models.Session) error
	SaveMessages(ctx context.Context, msgs []models.Message) error
	SaveVotes(ctx context.Context, votes []models.Vote) error
	FinalizeSession(ctx context.Context, session *models.Session) error
	UpdateSessionStatus(ctx context.Context, sessionID string, status models.SessionStatus) error
}

// Deps wires the orchestrator's collaborators. Participants is the
// only required field besides the mediator when mediation is enabled;
// every nil dependency degrades to a safe no-op.
type Deps struct {
	Participants []agents.Participant
	Mediator     agents.Mediator
	Performance  consensus.PerformanceSource
	Sizer        *risk.Sizer
	Store        Store
	Publisher    broadcast.Publisher
}

// Orchestrator drives one session at a time. It is not safe for
// concurrent RunSession calls on the same value.
type Orchestrator struct {
	cfg          Config
	participants []agents.Participant
	mediator     agents.Mediator
	perf         consensus.PerformanceSource
	sizer        *risk.Sizer
	store        Store
	publisher    broadcast.Publisher
}

func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if len(deps.Participants) < 2 {
		return nil, fmt.Errorf("deliberation needs at least 2 participants, got %d", len(deps.Participants))
	}
	if cfg.DeliberationRounds <= 0 {
		cfg.DeliberationRounds = DefaultConfig().DeliberationRounds
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultConfig().CallTimeout
	}
	if cfg.Policy.MinConsensusPercent == 0 {
		cfg.Policy = consensus.DefaultPolicy()
	}
	if cfg.MediatorEnabled && deps.Mediator == nil {
		return nil, fmt.Errorf("mediation enabled but no mediator provided")
	}

	publisher := deps.Publisher
	if publisher == nil {
		publisher = broadcast.LogPublisher{}
	}

	return &Orchestrator{
		cfg:          cfg,
		participants: deps.Participants,
		mediator:     deps.Mediator,
		perf:         deps.Performance,
		sizer:        deps.Sizer,
		store:        deps.Store,
		publisher:    publisher,
	}, nil
}

// RunSession deliberates over the given market context and returns the
// crew's decision. The result is always well-formed: when the session
// itself fails, the returned result is a HOLD carrying ErrorContext,
// alongside the error.
func (o *Orchestrator) RunSession(ctx context.Context, mctx *models.MarketContext) (*models.SessionResult, error) {
	started := time.Now().UTC()
	sessionID := fmt.Sprintf("crew_%s_%s",
		started.Format("20060102_150405"),
		strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	session := &models.Session{
		ID:          sessionID,
		Context:     mctx,
		Status:      models.StatusDeliberating,
		TotalRounds: o.cfg.DeliberationRounds,
		StartedAt:   started,
	}
	led := ledger.New(sessionID)

	log.Printf("session starting id=%s participants=%d rounds=%d",
		sessionID, len(o.participants), o.cfg.DeliberationRounds)
	if o.store != nil {
		if err := o.store.CreateSession(ctx, session); err != nil {
			log.Printf("session row not created, continuing without persistence: %v", err)
		}
	}
	o.publish(consts.EventSessionStart, sessionID, map[string]any{
		"participants": o.roster(),
		"symbols":      mctx.Symbols(),
	})

	result, err := o.deliberate(ctx, session, led)
	if err != nil {
		return o.failSession(ctx, session, led, err), err
	}
	return result, nil
}

func (o *Orchestrator) deliberate(ctx context.Context, session *models.Session, led *ledger.Ledger) (*models.SessionResult, error) {
	mctx := session.Context

	if err := o.runDiscovery(ctx, session, led); err != nil {
		return nil, err
	}
	if err := o.runPositions(ctx, session, led); err != nil {
		return nil, err
	}
	lastRound := consts.RoundPositions + o.cfg.DeliberationRounds
	for round := consts.RoundPositions + 1; round <= lastRound; round++ {
		if err := o.runDiscussionRound(ctx, session, led, round); err != nil {
			return nil, err
		}
	}
	if err := o.runCrossCritique(ctx, session, led, lastRound); err != nil {
		return nil, err
	}
	if o.cfg.DevilsAdvocate {
		if err := o.runDevilsAdvocate(ctx, session, led, lastRound); err != nil {
			return nil, err
		}
	}

	engine, err := o.runVoting(ctx, session, led, lastRound+1)
	if err != nil {
		return nil, err
	}

	tally := engine.Tally()
	session.ConsensusStrength = tally.Strength

	deadlock := engine.IsDeadlocked(tally.Strength, o.cfg.Policy)
	if deadlock {
		o.setStatus(ctx, session, models.StatusDeadlock)
		o.resolveDeadlock(ctx, session, led, engine)
	} else {
		o.setStatus(ctx, session, models.StatusConsensusReached)
		session.FinalAction = tally.WinningAction
		if tally.WinningAction.Directional() {
			session.FinalSymbol = engine.SymbolConsensus()
		}
	}

	if session.FinalAction.Directional() && session.FinalSymbol != "" && o.sizer != nil {
		price := decimal.NewFromFloat(mctx.PriceOf(session.FinalSymbol))
		session.FinalQuantity = o.sizer.SafeQuantity(ctx, o.roster(), session.FinalSymbol, price)
	}

	if err := o.finishSession(ctx, session, led, engine); err != nil {
		return nil, fmt.Errorf("persistence unavailable: %w", err)
	}

	result := &models.SessionResult{
		SessionID:         session.ID,
		FinalAction:       session.FinalAction,
		FinalSymbol:       session.FinalSymbol,
		FinalQuantity:     session.FinalQuantity,
		ConsensusStrength: session.ConsensusStrength,
		IsDeadlock:        deadlock,
		MediatorUsed:      session.MediatorUsed,
		MediatorReasoning: session.MediatorReasoning,
		VoteBreakdown:     tally.Breakdown,
		DecisionQuality:   tally.Quality.Overall,
		Discussion:        led.AnalyzeDiscussion(),
		Transcript:        led.All(),
		DurationSeconds:   session.DurationSeconds,
	}
	log.Printf("session complete id=%s action=%s symbol=%s strength=%.1f mediator=%v",
		session.ID, result.FinalAction, result.FinalSymbol, result.ConsensusStrength, result.MediatorUsed)
	return result, nil
}

// runDiscovery asks every participant which symbols deserve the crew's
// attention. A failed discovery call never degrades the session; the
// participant simply contributes no symbols.
func (o *Orchestrator) runDiscovery(ctx context.Context, session *models.Session, led *ledger.Ledger) error {
	o.publish(consts.EventRoundStart, session.ID, map[string]any{"round": consts.RoundDiscovery, "phase": consts.PhaseDiscovery})
	session.CurrentRound = consts.RoundDiscovery

	instructions := "Scan the market context and name 1-3 ticker symbols worth the crew's attention. " +
		"For the strongest candidate reply with a line \"Vote: BUY <SYMBOL>\" or \"Vote: SELL <SYMBOL>\" and explain briefly."
	results := o.fanOut(ctx, func(p agents.Participant) *agents.ProposeRequest {
		return &agents.ProposeRequest{
			Phase:        consts.PhaseDiscovery,
			Context:      session.Context,
			Instructions: instructions,
		}
	})
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("discovery aborted: %w", err)
	}

	seen := map[string]bool{}
	for _, s := range session.Context.Symbols() {
		seen[s] = true
	}
	for i, r := range results {
		name := o.participants[i].Name()
		if r.err != nil {
			log.Printf("discovery skipped participant=%s: %v", name, r.err)
			continue
		}
		msg := led.Append(models.Message{
			Participant:    name,
			Round:          consts.RoundDiscovery,
			Seq:            i,
			Kind:           models.KindPosition,
			Content:        r.proposal.Content,
			ProposedAction: r.proposal.Action,
			ProposedSymbol: r.proposal.Symbol,
			Confidence:     r.proposal.Confidence,
			Mentions:       o.mentionsIn(name, r.proposal.Content),
		})
		if r.proposal.Symbol != "" {
			seen[r.proposal.Symbol] = true
		}
		o.publish(consts.EventAgentDiscovery, session.ID, map[string]any{
			"participant": name,
			"symbol":      r.proposal.Symbol,
			"message_id":  msg.ID,
		})
	}

	symbols := make([]string, 0, len(seen))
	for s := range seen {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	session.SymbolsDiscussed = symbols
	return nil
}

// runPositions collects an opening stance from everyone. Failures
// degrade to HOLD instead of aborting: a reply the parser could not
// read keeps only token confidence, a transport error a bit more.
func (o *Orchestrator) runPositions(ctx context.Context, session *models.Session, led *ledger.Ledger) error {
	o.publish(consts.EventRoundStart, session.ID, map[string]any{"round": consts.RoundPositions, "phase": consts.PhasePositions})
	session.CurrentRound = consts.RoundPositions

	instructions := fmt.Sprintf(
		"The crew is discussing: %s. State your opening position with lines "+
			"\"Vote: BUY/SELL/HOLD <SYMBOL>\", \"Confidence: <0-100>\" and \"Reasoning: ...\".",
		strings.Join(session.SymbolsDiscussed, ", "))
	results := o.fanOut(ctx, func(p agents.Participant) *agents.ProposeRequest {
		return &agents.ProposeRequest{
			Phase:        consts.PhasePositions,
			Context:      session.Context,
			Transcript:   led.FormatTranscript(p.Name(), consts.RoundDiscovery),
			Instructions: instructions,
		}
	})
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("positions aborted: %w", err)
	}

	for i, r := range results {
		name := o.participants[i].Name()
		msg := models.Message{
			Participant: name,
			Round:       consts.RoundPositions,
			Seq:         i,
			Kind:        models.KindPosition,
		}
		switch {
		case r.err != nil:
			log.Printf("position failed participant=%s: %v", name, r.err)
			msg.ProposedAction = models.ActionHold
			msg.Confidence = 25
			msg.Degraded = true
			msg.Content = fmt.Sprintf("Unable to form a position (%v). Defaulting to HOLD.", r.err)
		case r.proposal.Action == "":
			msg.ProposedAction = models.ActionHold
			msg.Confidence = 10
			msg.Degraded = true
			msg.Content = r.proposal.Content
		default:
			msg.ProposedAction = r.proposal.Action
			msg.ProposedSymbol = r.proposal.Symbol
			msg.Confidence = r.proposal.Confidence
			msg.Content = r.proposal.Content
			msg.Mentions = o.mentionsIn(name, r.proposal.Content)
		}
		stored := led.Append(msg)
		o.publish(consts.EventAgentPosition, session.ID, map[string]any{
			"participant": name,
			"action":      string(stored.ProposedAction),
			"symbol":      stored.ProposedSymbol,
			"confidence":  stored.Confidence,
		})
	}
	return nil
}

func (o *Orchestrator) runDiscussionRound(ctx context.Context, session *models.Session, led *ledger.Ledger, round int) error {
	o.publish(consts.EventRoundStart, session.ID, map[string]any{"round": round, "phase": consts.PhaseDeliberation})
	session.CurrentRound = round

	instructions := "Respond to the other crew members. Challenge weak arguments, concede strong ones. " +
		"You may tag your reply with \"Type: REBUTTAL/AGREEMENT/QUESTION/COMPROMISE\" and update your stance with a Vote: line."
	results := o.fanOut(ctx, func(p agents.Participant) *agents.ProposeRequest {
		return &agents.ProposeRequest{
			Phase:        consts.PhaseDeliberation,
			Context:      session.Context,
			Transcript:   led.FormatTranscript(p.Name(), round-1),
			Instructions: instructions,
		}
	})
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("round %d aborted: %w", round, err)
	}

	for i, r := range results {
		name := o.participants[i].Name()
		if r.err != nil {
			log.Printf("discussion turn skipped participant=%s round=%d: %v", name, round, r.err)
			continue
		}
		kind := r.proposal.Kind
		if kind == "" {
			kind = agents.ClassifyKind(r.proposal.Content)
		}
		msg := led.Append(models.Message{
			Participant:    name,
			Round:          round,
			Seq:            i,
			Kind:           kind,
			Content:        r.proposal.Content,
			ProposedAction: r.proposal.Action,
			ProposedSymbol: r.proposal.Symbol,
			Confidence:     r.proposal.Confidence,
			Mentions:       o.mentionsIn(name, r.proposal.Content),
		})
		o.publish(consts.EventAgentMessage, session.ID, map[string]any{
			"participant": name,
			"round":       round,
			"kind":        string(msg.Kind),
		})
	}
	return nil
}

// runCrossCritique has each participant evaluate every other
// participant's opening position in one pass. Positions that errored
// or carry no reasoning are excluded. Critiques share the final
// discussion round but sit in a reserved sequence range so they sort
// after it.
func (o *Orchestrator) runCrossCritique(ctx context.Context, session *models.Session, led *ledger.Ledger, round int) error {
	positions := led.Positions(consts.RoundPositions)
	valid := make(map[string]ledger.Position, len(positions))
	for name, pos := range positions {
		if !pos.Degraded && pos.Action != "" && pos.Reasoning != "" {
			valid[name] = pos
		}
	}
	if len(valid) == 0 {
		log.Printf("cross critique skipped session=%s: no usable positions", session.ID)
		return nil
	}

	type assignment struct {
		critic  int
		targets []string
		summary string
	}
	var assignments []assignment
	for i, p := range o.participants {
		var lines []string
		var targets []string
		// Roster order keeps the prompt deterministic.
		for _, other := range o.participants {
			if other.Name() == p.Name() {
				continue
			}
			pos, ok := valid[other.Name()]
			if !ok {
				continue
			}
			reasoning := pos.Reasoning
			if len(reasoning) > 200 {
				reasoning = reasoning[:200] + "..."
			}
			lines = append(lines, fmt.Sprintf("%s: %s %s at %.0f%% confidence. Reasoning: %s",
				other.Name(), strings.ToUpper(string(pos.Action)), pos.Symbol, pos.Confidence, reasoning))
			targets = append(targets, other.Name())
		}
		if len(targets) == 0 {
			continue
		}
		assignments = append(assignments, assignment{critic: i, targets: targets,
			summary: strings.Join(lines, "\n")})
	}
	if len(assignments) == 0 {
		return nil
	}

	results := make([]callResult, len(assignments))
	var wg sync.WaitGroup
	for idx, a := range assignments {
		wg.Add(1)
		go func(idx int, a assignment) {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
			defer cancel()
			instructions := fmt.Sprintf(
				"Critique your fellow participants' opening positions:\n%s\nFor each one, name its weakest assumption and the main risk it ignores.",
				a.summary)
			prop, err := o.participants[a.critic].Propose(callCtx, &agents.ProposeRequest{
				Phase:        consts.PhaseCrossCritique,
				Context:      session.Context,
				Transcript:   led.FormatTranscript(o.participants[a.critic].Name(), round),
				Instructions: instructions,
			})
			results[idx] = callResult{proposal: prop, err: err}
		}(idx, a)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cross critique aborted: %w", err)
	}

	for idx, a := range assignments {
		name := o.participants[a.critic].Name()
		if results[idx].err != nil {
			log.Printf("critique skipped participant=%s: %v", name, results[idx].err)
			continue
		}
		msg := led.Append(models.Message{
			Participant: name + " (Critique)",
			Round:       round,
			Seq:         consts.SeqCritiqueBase + a.critic,
			Kind:        models.KindRebuttal,
			Content:     results[idx].proposal.Content,
			Mentions:    a.targets,
		})
		o.publish(consts.EventCrossCritique, session.ID, map[string]any{
			"critic":     name,
			"targets":    a.targets,
			"message_id": msg.ID,
		})
	}
	return nil
}

// runDevilsAdvocate has one participant argue against the majority
// opening stance. A participant who already disagreed gets the role;
// otherwise the first roster member plays it.
func (o *Orchestrator) runDevilsAdvocate(ctx context.Context, session *models.Session, led *ledger.Ledger, round int) error {
	positions := led.Positions(consts.RoundPositions)
	majority := majorityAction(positions)
	if majority == "" {
		return nil
	}

	advocate := 0
	for i, p := range o.participants {
		if pos, ok := positions[p.Name()]; ok && pos.Action != "" && pos.Action != majority {
			advocate = i
			break
		}
	}
	name := o.participants[advocate].Name()

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()
	prop, err := o.participants[advocate].Propose(callCtx, &agents.ProposeRequest{
		Phase:      consts.PhaseDevilsAdvocate,
		Context:    session.Context,
		Transcript: led.FormatTranscript(name, round),
		Instructions: fmt.Sprintf(
			"Play devil's advocate. The crew is leaning %s. Build the strongest case that the crew is wrong, even if you personally agree.",
			strings.ToUpper(string(majority))),
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("devil's advocate aborted: %w", ctxErr)
	}
	if err != nil {
		log.Printf("devil's advocate skipped participant=%s: %v", name, err)
		return nil
	}

	msg := led.Append(models.Message{
		Participant: name + " (Devil's Advocate)",
		Round:       round,
		Seq:         consts.SeqDevilsAdvocate,
		Kind:        models.KindRebuttal,
		Content:     prop.Content,
	})
	o.publish(consts.EventDevilAdvocate, session.ID, map[string]any{
		"participant": name,
		"against":     string(majority),
		"message_id":  msg.ID,
	})
	return nil
}

// runVoting collects the final ballot. A failed vote call becomes a
// low-confidence HOLD so the tally always covers the whole roster.
func (o *Orchestrator) runVoting(ctx context.Context, session *models.Session, led *ledger.Ledger, round int) (*consensus.Engine, error) {
	o.setStatus(ctx, session, models.StatusVoting)
	o.publish(consts.EventRoundStart, session.ID, map[string]any{"round": round, "phase": consts.PhaseVoting})
	session.CurrentRound = round

	instructions := "Deliberation is over. Cast your final vote with lines " +
		"\"Vote: BUY/SELL/HOLD <SYMBOL>\", \"Confidence: <0-100>\" and \"Reasoning: ...\". No further discussion."
	results := o.fanOut(ctx, func(p agents.Participant) *agents.ProposeRequest {
		return &agents.ProposeRequest{
			Phase:        consts.PhaseVoting,
			Context:      session.Context,
			Transcript:   led.FormatTranscript(p.Name(), round-1),
			Instructions: instructions,
		}
	})
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("voting aborted: %w", err)
	}

	engine := consensus.NewEngine(session.ID, o.perf)
	for i, r := range results {
		name := o.participants[i].Name()
		action := models.ActionHold
		symbol := ""
		confidence := 25.0
		reasoning := ""
		switch {
		case r.err != nil:
			log.Printf("vote failed participant=%s: %v", name, r.err)
			reasoning = fmt.Sprintf("Vote unavailable (%v). Defaulting to HOLD.", r.err)
		case r.proposal.Action == "":
			confidence = 10
			reasoning = r.proposal.Content
		default:
			action = r.proposal.Action
			symbol = r.proposal.Symbol
			confidence = r.proposal.Confidence
			reasoning = r.proposal.Reasoning
		}
		vote := engine.RegisterVote(ctx, name, action, symbol, confidence, reasoning)
		o.publish(consts.EventAgentVote, session.ID, map[string]any{
			"participant": name,
			"action":      string(vote.Action),
			"symbol":      vote.Symbol,
			"weight":      vote.Weight,
			"confidence":  vote.Confidence,
		})
	}
	return engine, nil
}

// resolveDeadlock hands the session to the mediator. When mediation is
// disabled or fails, the crew stands down with a HOLD.
func (o *Orchestrator) resolveDeadlock(ctx context.Context, session *models.Session, led *ledger.Ledger, engine *consensus.Engine) {
	if !o.cfg.MediatorEnabled || o.mediator == nil {
		session.FinalAction = models.ActionHold
		session.MediatorReasoning = "Deadlock with mediation disabled. Standing down with HOLD."
		return
	}

	o.setStatus(ctx, session, models.StatusMediatorInvoked)
	session.MediatorUsed = true

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()
	decision, err := o.mediator.Decide(callCtx, &agents.MediationRequest{
		Context:     session.Context,
		Transcript:  led.FormatTranscript("", session.CurrentRound),
		VoteSummary: engine.FormatVoteSummary(),
	})
	if err != nil || decision == nil {
		log.Printf("mediation failed session=%s: %v", session.ID, err)
		session.FinalAction = models.ActionHold
		session.MediatorReasoning = "Mediator unavailable. Standing down with HOLD."
	} else {
		session.FinalAction = decision.Action
		session.FinalSymbol = decision.Symbol
		session.MediatorReasoning = decision.Reasoning
	}

	o.publish(consts.EventMediatorDecision, session.ID, map[string]any{
		"action": string(session.FinalAction),
		"symbol": session.FinalSymbol,
	})
}

// finishSession stamps the outcome and flushes everything durable in
// one pass. A configured store that cannot take the flush fails the
// session: a decision that cannot be recorded must never be actioned.
func (o *Orchestrator) finishSession(ctx context.Context, session *models.Session, led *ledger.Ledger, engine *consensus.Engine) error {
	o.setStatus(ctx, session, models.StatusCompleted)
	session.CompletedAt = time.Now().UTC()
	session.DurationSeconds = session.CompletedAt.Sub(session.StartedAt).Seconds()
	session.TotalMessages = led.Len()

	if o.store != nil {
		if err := led.Flush(ctx, messageSink{o.store}); err != nil {
			return fmt.Errorf("transcript flush: %w", err)
		}
		if engine != nil {
			if err := o.store.SaveVotes(ctx, engine.Votes()); err != nil {
				return fmt.Errorf("vote flush: %w", err)
			}
		}
		if err := o.store.FinalizeSession(ctx, session); err != nil {
			return fmt.Errorf("session finalize: %w", err)
		}
	}

	o.publish(consts.EventSessionComplete, session.ID, map[string]any{
		"action":   string(session.FinalAction),
		"symbol":   session.FinalSymbol,
		"quantity": session.FinalQuantity,
		"strength": session.ConsensusStrength,
	})
	return nil
}

// failSession converts a fatal error into the degraded HOLD result.
func (o *Orchestrator) failSession(ctx context.Context, session *models.Session, led *ledger.Ledger, cause error) *models.SessionResult {
	log.Printf("session failed id=%s: %v", session.ID, cause)
	session.Status = models.StatusFailed
	session.FinalAction = models.ActionHold
	session.CompletedAt = time.Now().UTC()
	session.DurationSeconds = session.CompletedAt.Sub(session.StartedAt).Seconds()
	session.TotalMessages = led.Len()

	// Best effort with a fresh context: the session context is often
	// the thing that failed.
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if o.store != nil {
		if err := led.Flush(flushCtx, messageSink{o.store}); err != nil {
			log.Printf("transcript flush failed session=%s: %v", session.ID, err)
		}
		if err := o.store.FinalizeSession(flushCtx, session); err != nil {
			log.Printf("session finalize failed session=%s: %v", session.ID, err)
		}
	}

	o.publish(consts.EventSessionComplete, session.ID, map[string]any{
		"action": string(models.ActionHold),
		"error":  cause.Error(),
	})
	return &models.SessionResult{
		SessionID:       session.ID,
		FinalAction:     models.ActionHold,
		IsDeadlock:      false,
		Transcript:      led.All(),
		Discussion:      led.AnalyzeDiscussion(),
		DurationSeconds: session.DurationSeconds,
		ErrorContext:    cause.Error(),
	}
}

type callResult struct {
	proposal *agents.Proposal
	err      error
}

// fanOut calls every participant concurrently and returns results in
// roster order. Each call gets its own timeout; the per-participant
// request builder lets transcripts carry the reader's own mention tags.
func (o *Orchestrator) fanOut(ctx context.Context, build func(p agents.Participant) *agents.ProposeRequest) []callResult {
	results := make([]callResult, len(o.participants))
	var wg sync.WaitGroup
	for i, p := range o.participants {
		wg.Add(1)
		go func(i int, p agents.Participant) {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
			defer cancel()
			prop, err := p.Propose(callCtx, build(p))
			if err == nil && prop == nil {
				err = agents.ErrMalformedResponse
			}
			results[i] = callResult{proposal: prop, err: err}
		}(i, p)
	}
	wg.Wait()
	return results
}

func (o *Orchestrator) setStatus(ctx context.Context, session *models.Session, next models.SessionStatus) {
	if !session.Status.CanTransition(next) {
		log.Printf("illegal status transition session=%s %s->%s", session.ID, session.Status, next)
		return
	}
	session.Status = next
	if o.store != nil {
		if err := o.store.UpdateSessionStatus(ctx, session.ID, next); err != nil {
			log.Printf("status update failed session=%s: %v", session.ID, err)
		}
	}
}

func (o *Orchestrator) publish(eventType, sessionID string, payload map[string]any) {
	o.publisher.Publish(models.ProgressEvent{
		Type:      eventType,
		SessionID: sessionID,
		Payload:   payload,
		At:        time.Now().UTC(),
	})
}

func (o *Orchestrator) roster() []string {
	names := make([]string, len(o.participants))
	for i, p := range o.participants {
		names[i] = p.Name()
	}
	return names
}

// mentionsIn lists the other roster members referenced in content.
func (o *Orchestrator) mentionsIn(author, content string) []string {
	lower := strings.ToLower(content)
	var mentions []string
	for _, p := range o.participants {
		name := p.Name()
		if name == author {
			continue
		}
		if strings.Contains(lower, strings.ToLower(name)) {
			mentions = append(mentions, name)
		}
	}
	return mentions
}

func majorityAction(positions map[string]ledger.Position) models.VoteAction {
	counts := map[models.VoteAction]int{}
	for _, pos := range positions {
		if pos.Action != "" {
			counts[pos.Action]++
		}
	}
	best := models.VoteAction("")
	for _, action := range []models.VoteAction{models.ActionBuy, models.ActionSell, models.ActionHold} {
		if counts[action] > counts[best] {
			best = action
		}
	}
	return best
}

// messageSink adapts the durable store to the ledger's flush interface.
type messageSink struct {
	store Store
}

func (s messageSink) SaveMessages(ctx context.Context, _ string, msgs []models.Message) error {
	return s.store.SaveMessages(ctx, msgs)
}
