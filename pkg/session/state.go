// Package session runs chatroom sessions: each session owns its state,
// selection dynamics, and a clock goroutine that drives turns through
// the stage pipeline.
package session

import (
	"strings"
	"time"

	"github.com/stagelab/stagechat/pkg/types"
)

// State is the authoritative record of one session. It is owned by the
// session's clock goroutine; all mutation happens there, so no locking
// is needed.
type State struct {
	SessionID string
	Agents    []*types.Agent
	Messages  []*types.Message
	StartTime time.Time
	Duration  time.Duration

	// PendingUserResponse marks that the next tick should run a
	// foreground turn instead of rolling the background dice.
	PendingUserResponse bool

	// BlockedAgents maps agent name to the time the human blocked it.
	// Messages from a blocked agent stay in the log for analysis but
	// are suppressed from delivery.
	BlockedAgents map[string]time.Time

	userName string
}

// NewState initializes session state with the given roster.
func NewState(sessionID, userName string, agents []*types.Agent, duration time.Duration) *State {
	return &State{
		SessionID:     sessionID,
		Agents:        agents,
		StartTime:     time.Now(),
		Duration:      duration,
		BlockedAgents: make(map[string]time.Time),
		userName:      userName,
	}
}

// UserName returns the human participant's display name.
func (s *State) UserName() string { return s.userName }

// AddMessage appends a message to the transcript.
func (s *State) AddMessage(m *types.Message) {
	s.Messages = append(s.Messages, m)
}

// RecentMessages returns the last n messages, oldest first.
func (s *State) RecentMessages(n int) []*types.Message {
	if n <= 0 || n >= len(s.Messages) {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-n:]
}

// FindMessage looks up a message by id, or nil.
func (s *State) FindMessage(id string) *types.Message {
	for _, m := range s.Messages {
		if m.MessageID == id {
			return m
		}
	}
	return nil
}

// AgentNames returns the roster names in configuration order.
func (s *State) AgentNames() []string {
	names := make([]string, len(s.Agents))
	for i, a := range s.Agents {
		names[i] = a.Name
	}
	return names
}

// AgentByName resolves a roster agent case-insensitively, or nil.
func (s *State) AgentByName(name string) *types.Agent {
	for _, a := range s.Agents {
		if strings.EqualFold(a.Name, name) {
			return a
		}
	}
	return nil
}

// Expired reports whether the session has outlived its duration.
func (s *State) Expired(now time.Time) bool {
	return now.Sub(s.StartTime) >= s.Duration
}

// BlockAgent records the human blocking an agent. Blocking is
// idempotent; the first block time wins.
func (s *State) BlockAgent(name string, at time.Time) {
	if _, ok := s.BlockedAgents[name]; !ok {
		s.BlockedAgents[name] = at
	}
}

// Suppressed reports whether a message must be withheld from outbound
// delivery: its sender is blocked and the message is from the block
// time onward.
func (s *State) Suppressed(m *types.Message) bool {
	blockedAt, ok := s.BlockedAgents[m.Sender]
	if !ok {
		return false
	}
	return !m.Timestamp.Before(blockedAt)
}
