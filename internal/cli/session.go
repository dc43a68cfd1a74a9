package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dyike/CrewGo/config"
	"github.com/dyike/CrewGo/internal/agents"
	"github.com/dyike/CrewGo/internal/broadcast"
	"github.com/dyike/CrewGo/internal/consensus"
	"github.com/dyike/CrewGo/internal/deliberation"
	"github.com/dyike/CrewGo/internal/display"
	"github.com/dyike/CrewGo/internal/marketdata"
	"github.com/dyike/CrewGo/internal/perf"
	"github.com/dyike/CrewGo/internal/risk"
	"github.com/dyike/CrewGo/internal/storage/sqlite"
)

// runDeliberation assembles the crew from config and runs one session.
func runDeliberation(ctx context.Context, cfg *config.Config, symbols []string, showTranscript bool) error {
	mctx, err := marketdata.NewBuilder().Build(ctx, symbols)
	if err != nil {
		return fmt.Errorf("failed to build market context: %w", err)
	}

	model, err := agents.NewChatModel(ctx, agents.ModelSettings{
		Provider:  cfg.LLMProvider,
		Model:     cfg.LLMModel,
		APIKey:    apiKeyFor(cfg),
		BaseURL:   cfg.LLMBaseURL,
		MaxTokens: cfg.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("failed to create chat model: %w", err)
	}

	participants := make([]agents.Participant, 0, len(cfg.Participants))
	for _, p := range cfg.Participants {
		participants = append(participants, agents.NewLLMParticipant(p.Name, p.Persona, model))
	}

	deps := deliberation.Deps{
		Participants: participants,
		Mediator:     agents.NewLLMMediator(model),
		Sizer:        risk.NewSizer(risk.FixedBuyingPower{Cash: decimal.NewFromFloat(cfg.BuyingPower)}),
	}

	if cfg.BackendURL != "" {
		deps.Performance = perf.NewClient(cfg.BackendURL)
	} else {
		deps.Performance = consensus.StaticPerformance{}
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()
	deps.Store = store

	if cfg.WSListenAddr != "" {
		hub := broadcast.NewHub()
		defer hub.Close()
		deps.Publisher = hub
		go func() {
			log.Printf("progress WebSocket listening on %s", cfg.WSListenAddr)
			if err := http.ListenAndServe(cfg.WSListenAddr, hub); err != nil {
				log.Printf("progress WebSocket stopped: %v", err)
			}
		}()
	}

	orch, err := deliberation.New(deliberation.Config{
		DeliberationRounds: cfg.DeliberationRounds,
		Policy: consensus.Policy{
			MinConsensusPercent: cfg.ConsensusThreshold,
			OverrideMargin:      cfg.OverrideMargin,
			QualityOverrideBar:  cfg.QualityOverrideBar,
		},
		CallTimeout:     time.Duration(cfg.CallTimeoutSeconds) * time.Second,
		MediatorEnabled: cfg.MediatorEnabled,
		DevilsAdvocate:  cfg.DevilsAdvocate,
	}, deps)
	if err != nil {
		return err
	}

	result, runErr := orch.RunSession(ctx, mctx)

	renderer := display.NewRenderer()
	renderer.ShowTranscript = showTranscript
	renderer.Render(result)

	return runErr
}

func runHistory(ctx context.Context, cfg *config.Config, limit int) error {
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	sessions, err := store.ListSessions(ctx, limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions recorded yet.")
		return nil
	}

	for _, s := range sessions {
		line := fmt.Sprintf("%s  %-18s  %s", s.ID, s.Status, strings.ToUpper(string(s.FinalAction)))
		if s.FinalSymbol != "" {
			line += " " + s.FinalSymbol
		}
		if s.FinalQuantity > 0 {
			line += fmt.Sprintf(" x%d", s.FinalQuantity)
		}
		line += fmt.Sprintf("  strength=%.1f%%  %s", s.ConsensusStrength, s.StartedAt.Format("2006-01-02 15:04"))
		fmt.Println(line)
	}
	return nil
}

func runShow(ctx context.Context, cfg *config.Config, sessionID string) error {
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	session, err := store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return fmt.Errorf("session %s not found", sessionID)
	}

	fmt.Printf("Session:  %s\n", session.ID)
	fmt.Printf("Status:   %s\n", session.Status)
	fmt.Printf("Decision: %s %s", strings.ToUpper(string(session.FinalAction)), session.FinalSymbol)
	if session.FinalQuantity > 0 {
		fmt.Printf(" x%d", session.FinalQuantity)
	}
	fmt.Printf("\nStrength: %.1f%%\n", session.ConsensusStrength)
	if session.MediatorUsed {
		fmt.Printf("Mediator: %s\n", session.MediatorReasoning)
	}

	msgs, err := store.ListMessages(ctx, sessionID)
	if err != nil {
		return err
	}
	round := -1
	for _, m := range msgs {
		if m.Round != round {
			round = m.Round
			fmt.Printf("\n--- round %d ---\n", round)
		}
		fmt.Printf("[%s] %s: %s\n", strings.ToUpper(string(m.Kind)), m.Participant, m.Content)
	}

	votes, err := store.ListVotes(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(votes) > 0 {
		fmt.Println("\n--- votes ---")
		for _, v := range votes {
			fmt.Printf("%s: %s %s (weight %.2f, confidence %.0f%%, score %.2f)\n",
				v.Participant, strings.ToUpper(string(v.Action)), v.Symbol, v.Weight, v.Confidence, v.WeightedScore)
		}
	}
	return nil
}

func printConfig(cfg *config.Config) error {
	// API keys stay out of the printed view.
	sanitized := *cfg
	sanitized.DeepSeekAPIKey = ""
	sanitized.OpenAIAPIKey = ""

	data, err := json.MarshalIndent(&sanitized, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func apiKeyFor(cfg *config.Config) string {
	if cfg.LLMProvider == "openai" {
		return cfg.OpenAIAPIKey
	}
	return cfg.DeepSeekAPIKey
}
