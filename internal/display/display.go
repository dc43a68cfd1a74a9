// Package display renders session results for the terminal.
package display

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dyike/CrewGo/models"
)

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#7C3AED")).
		Background(lipgloss.Color("#1F2937")).
		Padding(0, 1).
		MarginBottom(1)

	panelStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#3B82F6")).
		Padding(1, 2).
		Width(80)

	buyStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#10B981")).
		Bold(true)

	sellStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#EF4444")).
		Bold(true)

	holdStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#F59E0B")).
		Bold(true)

	dimStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#6B7280"))

	warnStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#EF4444"))
)

// Renderer writes a SessionResult to stdout.
type Renderer struct {
	ShowTranscript bool
}

func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render prints the outcome panel, the vote breakdown and, when
// enabled, the full transcript.
func (r *Renderer) Render(result *models.SessionResult) {
	fmt.Println(titleStyle.Render("CREW DECISION"))
	fmt.Println(panelStyle.Render(r.summary(result)))

	if len(result.VoteBreakdown) > 0 {
		fmt.Println(titleStyle.Render("VOTE BREAKDOWN"))
		fmt.Println(panelStyle.Render(r.breakdown(result)))
	}

	if r.ShowTranscript && len(result.Transcript) > 0 {
		fmt.Println(titleStyle.Render("TRANSCRIPT"))
		fmt.Println(r.transcript(result))
	}
}

func (r *Renderer) summary(result *models.SessionResult) string {
	var b strings.Builder

	action := actionStyle(result.FinalAction).Render(strings.ToUpper(string(result.FinalAction)))
	line := fmt.Sprintf("Decision: %s", action)
	if result.FinalSymbol != "" {
		line += " " + result.FinalSymbol
	}
	if result.FinalQuantity > 0 {
		line += fmt.Sprintf(" x%d", result.FinalQuantity)
	}
	b.WriteString(line + "\n")

	fmt.Fprintf(&b, "Consensus strength: %.1f%%\n", result.ConsensusStrength)
	fmt.Fprintf(&b, "Decision quality:   %.1f\n", result.DecisionQuality)
	fmt.Fprintf(&b, "Duration:           %.1fs\n", result.DurationSeconds)

	if result.IsDeadlock {
		b.WriteString(warnStyle.Render("Deadlock reached") + "\n")
	}
	if result.MediatorUsed {
		b.WriteString("Mediator: " + result.MediatorReasoning + "\n")
	}
	if result.ErrorContext != "" {
		b.WriteString(warnStyle.Render("Error: "+result.ErrorContext) + "\n")
	}
	fmt.Fprintf(&b, "Session: %s", dimStyle.Render(result.SessionID))
	return b.String()
}

func (r *Renderer) breakdown(result *models.SessionResult) string {
	actions := make([]models.VoteAction, 0, len(result.VoteBreakdown))
	for action := range result.VoteBreakdown {
		actions = append(actions, action)
	}
	sort.Slice(actions, func(i, j int) bool {
		return result.VoteBreakdown[actions[i]].WeightedScore > result.VoteBreakdown[actions[j]].WeightedScore
	})

	var b strings.Builder
	for i, action := range actions {
		totals := result.VoteBreakdown[action]
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s  votes: %d  weighted score: %.2f",
			actionStyle(action).Render(fmt.Sprintf("%-4s", strings.ToUpper(string(action)))),
			totals.Count, totals.WeightedScore)
	}
	return b.String()
}

func (r *Renderer) transcript(result *models.SessionResult) string {
	var b strings.Builder
	round := -1
	for _, m := range result.Transcript {
		if m.Round != round {
			round = m.Round
			fmt.Fprintf(&b, "\n%s\n", dimStyle.Render(fmt.Sprintf("--- round %d ---", round)))
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", strings.ToUpper(string(m.Kind)), m.Participant, m.Content)
	}
	return b.String()
}

func actionStyle(action models.VoteAction) lipgloss.Style {
	switch action {
	case models.ActionBuy:
		return buyStyle
	case models.ActionSell:
		return sellStyle
	default:
		return holdStyle
	}
}
