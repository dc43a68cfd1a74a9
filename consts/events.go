package consts

// Progress event types pushed to live observers. Fire-and-forget;
// correctness never depends on delivery.
const (
	EventSessionStart     = "crew_session_start"
	EventRoundStart       = "crew_round_start"
	EventAgentDiscovery   = "agent_discovery"
	EventAgentPosition    = "agent_position"
	EventAgentMessage     = "agent_message"
	EventCrossCritique    = "cross_critique"
	EventDevilAdvocate    = "devil_advocate"
	EventAgentVote        = "agent_vote"
	EventMediatorDecision = "mediator_decision"
	EventSessionComplete  = "crew_session_complete"
)
