// Package types defines the shared domain types for the chatroom simulation.
package types

import (
	"time"

	"github.com/google/uuid"
)

// ActionType defines the kinds of actions the Director can request.
type ActionType string

const (
	ActionMessage ActionType = "message"
	ActionReply   ActionType = "reply"
	ActionMention ActionType = "@mention"
	ActionLike    ActionType = "like"
)

// Valid reports whether the action type is one the pipeline understands.
func (a ActionType) Valid() bool {
	switch a {
	case ActionMessage, ActionReply, ActionMention, ActionLike:
		return true
	}
	return false
}

// Agent is one simulated participant in a session roster.
//
// Chattiness is the stable propensity to speak, drawn once at session
// init. Attention is the transient relevance score; it decays every tick
// and is boosted when the agent is addressed or speaks. Both live in [0,1].
type Agent struct {
	Name       string  `json:"name"`
	Chattiness float64 `json:"chattiness"`
	Attention  float64 `json:"attention"`
	// Style selects which prompt template variant this agent uses.
	Style string `json:"style,omitempty"`
}

// Message is a single chatroom message. The message log is append-only;
// only LikedBy and Reported mutate after creation.
type Message struct {
	MessageID  string         `json:"message_id"`
	Sender     string         `json:"sender"`
	Content    string         `json:"content"`
	Timestamp  time.Time      `json:"timestamp"`
	ReplyTo    string         `json:"reply_to,omitempty"`
	QuotedText string         `json:"quoted_text,omitempty"`
	Mentions   []string       `json:"mentions,omitempty"`
	LikedBy    []string       `json:"liked_by,omitempty"`
	Reported   bool           `json:"reported"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewMessage creates a message with a fresh id and timestamp.
func NewMessage(sender, content string) *Message {
	return &Message{
		MessageID: uuid.NewString(),
		Sender:    sender,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// LikedByUser reports whether user already likes the message.
func (m *Message) LikedByUser(user string) bool {
	for _, u := range m.LikedBy {
		if u == user {
			return true
		}
	}
	return false
}

// ToggleLike adds or removes user from the like set and returns
// "liked" or "unliked" accordingly.
func (m *Message) ToggleLike(user string) string {
	for i, u := range m.LikedBy {
		if u == user {
			m.LikedBy = append(m.LikedBy[:i], m.LikedBy[i+1:]...)
			return "unliked"
		}
	}
	m.LikedBy = append(m.LikedBy, user)
	return "liked"
}

// LikesCount returns the number of distinct likers.
func (m *Message) LikesCount() int {
	return len(m.LikedBy)
}

// ToggleReport flips the reported flag and returns "reported" or "unreported".
func (m *Message) ToggleReport() string {
	m.Reported = !m.Reported
	if m.Reported {
		return "reported"
	}
	return "unreported"
}

// PerformerInstruction is the Director's brief for the Performer.
type PerformerInstruction struct {
	Objective  string `json:"objective"`
	Motivation string `json:"motivation"`
	Strategy   string `json:"strategy"`
}

// Empty reports whether the instruction carries no content at all.
func (p PerformerInstruction) Empty() bool {
	return p.Objective == "" && p.Motivation == "" && p.Strategy == ""
}

// TurnResult is the outcome of one pipeline turn.
//
// For like actions Message is nil and TargetMessageID identifies the
// message to like; for all other action types Message holds the generated
// message ready to be appended to state.
type TurnResult struct {
	Action            ActionType
	AgentName         string
	Message           *Message
	TargetMessageID   string
	TargetUser        string
	DirectorReasoning string
}
