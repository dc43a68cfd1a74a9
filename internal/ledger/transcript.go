package ledger

import (
	"fmt"
	"sort"
	"strings"
)

// FormatTranscript renders the discussion through the given round as a
// prompt-ready transcript: grouped by round, ordered by sequence
// number, with mention highlighting for the reading participant and a
// proposal line where a message carries one.
func (l *Ledger) FormatTranscript(forParticipant string, throughRound int) string {
	byRound := map[int][]int{}
	for i, m := range l.messages {
		if m.Round > throughRound {
			continue
		}
		byRound[m.Round] = append(byRound[m.Round], i)
	}
	if len(byRound) == 0 {
		return "No discussion yet."
	}

	rounds := make([]int, 0, len(byRound))
	for r := range byRound {
		rounds = append(rounds, r)
	}
	sort.Ints(rounds)

	var b strings.Builder
	for _, r := range rounds {
		fmt.Fprintf(&b, "\n=== ROUND %d ===\n\n", r)

		idxs := byRound[r]
		sort.SliceStable(idxs, func(i, j int) bool {
			return l.messages[idxs[i]].Seq < l.messages[idxs[j]].Seq
		})

		for _, i := range idxs {
			m := l.messages[i]

			mentionFlag := ""
			for _, mentioned := range m.Mentions {
				if mentioned == forParticipant {
					mentionFlag = " [@YOU]"
					break
				}
			}

			actionInfo := ""
			if m.ProposedAction != "" {
				actionInfo = fmt.Sprintf(" [Proposes: %s %s - %.0f%% confidence]",
					strings.ToUpper(string(m.ProposedAction)), m.ProposedSymbol, m.Confidence)
			}

			fmt.Fprintf(&b, "[%s] %s%s%s:\n%s\n\n",
				strings.ToUpper(string(m.Kind)), m.Participant, mentionFlag, actionInfo, m.Content)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
