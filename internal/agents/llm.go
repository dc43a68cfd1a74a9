package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ModelSettings selects and authenticates the chat model backing a
// participant or the mediator.
type ModelSettings struct {
	Provider  string // "openai" or "deepseek"
	Model     string
	APIKey    string
	BaseURL   string
	MaxTokens int
}

// NewChatModel builds the provider-specific eino chat model.
func NewChatModel(ctx context.Context, s ModelSettings) (model.BaseChatModel, error) {
	if s.MaxTokens <= 0 {
		s.MaxTokens = 2000
	}
	switch s.Provider {
	case "deepseek":
		return deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:    s.APIKey,
			Model:     s.Model,
			MaxTokens: s.MaxTokens,
		})
	case "openai", "":
		maxTokens := s.MaxTokens
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL:   s.BaseURL,
			APIKey:    s.APIKey,
			Model:     s.Model,
			MaxTokens: &maxTokens,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", s.Provider)
	}
}

// LLMParticipant is the model-backed AgentGateway implementation: one
// stateless request/response per Propose call, bounded by the caller's
// context deadline.
type LLMParticipant struct {
	name    string
	persona string
	model   model.BaseChatModel
}

func NewLLMParticipant(name, persona string, m model.BaseChatModel) *LLMParticipant {
	return &LLMParticipant{name: name, persona: persona, model: m}
}

func (p *LLMParticipant) Name() string { return p.name }

func (p *LLMParticipant) Propose(ctx context.Context, req *ProposeRequest) (*Proposal, error) {
	prompt := buildParticipantPrompt(p.name, req)

	msg, err := p.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(p.persona),
		schema.UserMessage(prompt),
	})
	if err != nil {
		return nil, fmt.Errorf("%s propose: %w", p.name, err)
	}

	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return nil, fmt.Errorf("%s: %w", p.name, ErrMalformedResponse)
	}
	return ParseProposal(content), nil
}

// LLMMediator is the arbitration gateway. Same transport shape as the
// participant but its output becomes the final decision verbatim.
type LLMMediator struct {
	model model.BaseChatModel
}

func NewLLMMediator(m model.BaseChatModel) *LLMMediator {
	return &LLMMediator{model: m}
}

func (m *LLMMediator) Decide(ctx context.Context, req *MediationRequest) (*MediatorDecision, error) {
	prompt := buildMediatorPrompt(req)

	msg, err := m.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(mediatorPersona),
		schema.UserMessage(prompt),
	})
	if err != nil {
		return nil, fmt.Errorf("mediator decide: %w", err)
	}

	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return nil, fmt.Errorf("mediator: %w", ErrMalformedResponse)
	}
	return ParseMediatorDecision(content), nil
}

func buildParticipantPrompt(name string, req *ProposeRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, participating in a crew deliberation with other trading agents.\n\n", name)
	b.WriteString("MARKET CONTEXT:\n")
	b.WriteString(req.Context.FormatForPrompt())
	b.WriteString("\n\n")
	if req.Transcript != "" {
		b.WriteString("DISCUSSION SO FAR:\n")
		b.WriteString(req.Transcript)
		b.WriteString("\n\n")
	}
	b.WriteString(req.Instructions)
	return b.String()
}

const mediatorPersona = "You are an impartial mediator for a trading agent deliberation that has reached deadlock."

func buildMediatorPrompt(req *MediationRequest) string {
	var b strings.Builder
	b.WriteString("MARKET CONTEXT:\n")
	b.WriteString(req.Context.FormatForPrompt())
	b.WriteString("\n\nFULL DISCUSSION:\n")
	b.WriteString(req.Transcript)
	b.WriteString("\n\nVOTING RESULTS:\n")
	b.WriteString(req.VoteSummary)
	b.WriteString("\n\nThe agents could not reach consensus. Analyze all arguments and make the final decision.\n")
	b.WriteString("Format:\nDecision: [BUY/SELL/HOLD] [SYMBOL if applicable]\nReasoning: [detailed explanation]\n")
	return b.String()
}

var _ Participant = (*LLMParticipant)(nil)
var _ Mediator = (*LLMMediator)(nil)
