package stage

import (
	"fmt"
	"strings"

	"github.com/stagelab/stagechat/pkg/types"
)

const missingTargetPlaceholder = "(message not found)"

// BuildPerformerSystemPrompt builds the session-static Performer prompt.
func BuildPerformerSystemPrompt(chatroomContext string) string {
	return renderTemplate(performerSystemTemplate,
		"{CHATROOM_CONTEXT}", chatroomContext,
	)
}

// BuildPerformerUserPrompt builds the per-turn Performer prompt, selecting
// the action-type-specific block and injecting the Director's instruction.
func BuildPerformerUserPrompt(
	instruction types.PerformerInstruction,
	action types.ActionType,
	messages []*types.Message,
	target *types.Message,
	targetUser string,
) string {
	blockKey := string(action)
	if action == types.ActionMessage && targetUser != "" {
		blockKey = "message_targeted"
	}
	block, ok := performerActionBlocks[blockKey]
	if !ok {
		block = performerActionBlocks["message"]
	}

	targetContent := missingTargetPlaceholder
	if target != nil {
		targetContent = fmt.Sprintf("%s: %s", target.Sender, target.Content)
	} else if blockKey == "message_targeted" && len(messages) > 0 {
		// No explicit target resolved; engage with the latest message.
		last := messages[len(messages)-1]
		targetContent = fmt.Sprintf("%s: %s", last.Sender, last.Content)
	}

	block = renderTemplate(block,
		"{TARGET_USER}", targetUser,
		"{TARGET_MESSAGE}", targetContent,
	)

	return renderTemplate(performerUserTemplate,
		"{INSTRUCTION}", formatInstruction(instruction),
		"{ACTION_BLOCK}", block,
		"{CHAT_LOG}", formatPerformerChatLog(messages),
	)
}

// formatPerformerChatLog renders messages without ids; the Performer only
// needs the conversational surface.
func formatPerformerChatLog(messages []*types.Message) string {
	if len(messages) == 0 {
		return "(No messages yet)"
	}
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		line := fmt.Sprintf("%s: %s", m.Sender, m.Content)
		if len(m.LikedBy) > 0 {
			line += " [liked by " + strings.Join(m.LikedBy, ", ") + "]"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func formatInstruction(instruction types.PerformerInstruction) string {
	var parts []string
	if instruction.Objective != "" {
		parts = append(parts, "Objective: "+instruction.Objective)
	}
	if instruction.Motivation != "" {
		parts = append(parts, "Motivation: "+instruction.Motivation)
	}
	if instruction.Strategy != "" {
		parts = append(parts, "Strategy: "+instruction.Strategy)
	}
	return strings.Join(parts, "\n")
}
