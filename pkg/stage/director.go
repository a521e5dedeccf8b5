package stage

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/stagelab/stagechat/pkg/types"
)

// Decision is the Director's validated output for one turn.
type Decision struct {
	NextAgent       string
	Action          types.ActionType
	TargetMessageID string
	TargetUser      string
	Instruction     types.PerformerInstruction
	Reasoning       string
}

// Hint carries the selection policy's suggestion into the Director prompt.
// Speaker is the weighted-random (or explicitly addressed) pick; Target is
// the optional co-agent a background post should engage with.
type Hint struct {
	Speaker string
	Target  string
}

var codeFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?\\s*```")

// ParseDecision extracts and validates the JSON object from the Director's
// raw response, tolerating markdown code-fence wrapping.
func ParseDecision(raw string) (*Decision, error) {
	jsonStr := strings.TrimSpace(raw)
	if m := codeFenceRe.FindStringSubmatch(raw); m != nil {
		jsonStr = strings.TrimSpace(m[1])
	}

	var payload struct {
		NextAgent            string                      `json:"next_agent"`
		ActionType           string                      `json:"action_type"`
		TargetMessageID      string                      `json:"target_message_id"`
		TargetUser           string                      `json:"target_user"`
		PerformerInstruction *types.PerformerInstruction `json:"performer_instruction"`
		Reasoning            string                      `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
		return nil, fmt.Errorf("director response is not valid JSON: %w", err)
	}

	if payload.NextAgent == "" {
		return nil, fmt.Errorf("director response missing 'next_agent'")
	}
	if payload.ActionType == "" {
		return nil, fmt.Errorf("director response missing 'action_type'")
	}

	action := types.ActionType(payload.ActionType)
	if !action.Valid() {
		return nil, fmt.Errorf("director returned invalid action_type %q", payload.ActionType)
	}

	switch action {
	case types.ActionReply, types.ActionLike:
		if payload.TargetMessageID == "" {
			return nil, fmt.Errorf("director chose %q but did not provide 'target_message_id'", action)
		}
	case types.ActionMention:
		if payload.TargetUser == "" {
			return nil, fmt.Errorf("director chose '@mention' but did not provide 'target_user'")
		}
	}

	d := &Decision{
		NextAgent:       payload.NextAgent,
		Action:          action,
		TargetMessageID: payload.TargetMessageID,
		TargetUser:      payload.TargetUser,
		Reasoning:       payload.Reasoning,
	}
	if action != types.ActionLike {
		if payload.PerformerInstruction == nil || payload.PerformerInstruction.Empty() {
			return nil, fmt.Errorf("director chose %q but did not provide 'performer_instruction'", action)
		}
		d.Instruction = *payload.PerformerInstruction
	}
	return d, nil
}

// FormatChatLog renders messages for the Director, one line per message
// with its id and metadata so reply/like targets can be referenced.
func FormatChatLog(messages []*types.Message) string {
	if len(messages) == 0 {
		return "(No messages yet)"
	}

	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		var meta []string
		if m.ReplyTo != "" {
			meta = append(meta, "replying to "+m.ReplyTo)
		}
		if len(m.Mentions) > 0 {
			meta = append(meta, "@mentions "+strings.Join(m.Mentions, ", "))
		}
		if len(m.LikedBy) > 0 {
			meta = append(meta, "liked by "+strings.Join(m.LikedBy, ", "))
		}
		metaStr := ""
		if len(meta) > 0 {
			metaStr = " (" + strings.Join(meta, "; ") + ")"
		}
		lines = append(lines, fmt.Sprintf("[%s] %s%s: %s", m.MessageID, m.Sender, metaStr, m.Content))
	}
	return strings.Join(lines, "\n")
}

// BuildDirectorSystemPrompt builds the session-static Director prompt.
func BuildDirectorSystemPrompt(treatment, humanUser, chatroomContext string) string {
	return renderTemplate(directorSystemTemplate,
		"{CHATROOM_CONTEXT}", chatroomContext,
		"{TREATMENT}", treatment,
		"{HUMAN_USER}", humanUser,
	)
}

// BuildDirectorUserPrompt builds the per-turn Director prompt from the
// recent chat log and roster, plus the selection hint when present.
func BuildDirectorUserPrompt(messages []*types.Message, agentNames []string, humanUser string, hint *Hint) string {
	prompt := renderTemplate(directorUserTemplate,
		"{CHAT_LOG}", FormatChatLog(messages),
		"{AGENTS}", strings.Join(agentNames, ", "),
		"{HUMAN_USER}", humanUser,
	)
	if hint != nil && hint.Speaker != "" {
		prompt += "\n\n## Pacing suggestion\n\nThe room dynamics favor " + hint.Speaker + " acting next"
		if hint.Target != "" {
			prompt += ", possibly engaging with " + hint.Target
		}
		prompt += ". Treat this as a suggestion, not a requirement."
	}
	return prompt
}
