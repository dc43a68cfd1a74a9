package consts

// Deliberation phases, in protocol order.
const (
	PhaseDiscovery      = "discovery"
	PhasePositions      = "positions"
	PhaseDeliberation   = "deliberation"
	PhaseCrossCritique  = "cross_critique"
	PhaseDevilsAdvocate = "devils_advocate"
	PhaseVoting         = "voting"
	PhaseMediation      = "mediation"
)

// Round numbers for the fixed phases. Deliberation rounds occupy
// 2..(1+configured count); the voting round always comes last.
const (
	RoundDiscovery = 0
	RoundPositions = 1
)

// Reserved sequence numbers inside the final deliberation round.
// Critiques start at SeqCritiqueBase + roster index; the devil's
// advocate message uses SeqDevilsAdvocate so it sorts after everything.
const (
	SeqCritiqueBase   = 50
	SeqDevilsAdvocate = 99
)
