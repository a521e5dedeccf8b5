package session

import (
	"math/rand"

	"github.com/stagelab/stagechat/pkg/types"
)

// SelectionContext distinguishes why a speaker is being chosen.
type SelectionContext string

const (
	// ContextForeground selects a responder to the human's latest message.
	ContextForeground SelectionContext = "foreground"
	// ContextBackground selects a speaker for ambient chatter.
	ContextBackground SelectionContext = "background"
)

// Selector picks speakers and targets. It owns no state beyond the
// shared rng, which belongs to the clock goroutine.
type Selector struct {
	dynamics *Dynamics
	rng      *rand.Rand
}

// NewSelector creates a selector over the given dynamics and rng.
func NewSelector(dynamics *Dynamics, rng *rand.Rand) *Selector {
	return &Selector{dynamics: dynamics, rng: rng}
}

// SelectSpeaker chooses the next agent to act. In foreground context an
// explicit address by the human (a mention, or a reply to an agent's
// message) overrides the weighted draw and boosts the addressed agent.
// Returns nil only for an empty roster.
func (s *Selector) SelectSpeaker(st *State, sctx SelectionContext) *types.Agent {
	if len(st.Agents) == 0 {
		return nil
	}
	if sctx == ContextForeground {
		if a := s.explicitTarget(st); a != nil {
			s.dynamics.BoostAddress(a)
			return a
		}
	}
	return s.weightedChoice(st.Agents, nil)
}

// SelectTarget chooses a co-agent for a background post to engage with,
// excluding the speaker. Returns nil when the speaker is alone.
func (s *Selector) SelectTarget(st *State, speaker *types.Agent) *types.Agent {
	return s.weightedChoice(st.Agents, speaker)
}

// explicitTarget inspects the human's latest message for an addressed
// agent: the first resolvable mention wins, then the sender of a
// replied-to agent message.
func (s *Selector) explicitTarget(st *State) *types.Agent {
	var last *types.Message
	for i := len(st.Messages) - 1; i >= 0; i-- {
		if st.Messages[i].Sender == st.UserName() {
			last = st.Messages[i]
			break
		}
	}
	if last == nil {
		return nil
	}
	for _, mention := range last.Mentions {
		if a := st.AgentByName(mention); a != nil {
			return a
		}
	}
	if last.ReplyTo != "" {
		if target := st.FindMessage(last.ReplyTo); target != nil && target.Sender != st.UserName() {
			if a := st.AgentByName(target.Sender); a != nil {
				return a
			}
		}
	}
	return nil
}

// weightedChoice draws an agent proportionally to its dynamics weight.
func (s *Selector) weightedChoice(agents []*types.Agent, exclude *types.Agent) *types.Agent {
	candidates := agents
	if exclude != nil {
		candidates = make([]*types.Agent, 0, len(agents))
		for _, a := range agents {
			if a != exclude {
				candidates = append(candidates, a)
			}
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	total := 0.0
	for _, a := range candidates {
		total += s.dynamics.Weight(a)
	}
	r := s.rng.Float64() * total
	cum := 0.0
	for _, a := range candidates {
		cum += s.dynamics.Weight(a)
		if r < cum {
			return a
		}
	}
	return candidates[len(candidates)-1]
}
