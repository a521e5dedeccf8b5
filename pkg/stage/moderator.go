package stage

import (
	"strings"

	"github.com/stagelab/stagechat/pkg/types"
)

// NoContent is the sentinel the Moderator returns when the Performer
// output holds no usable message.
const NoContent = "NO_CONTENT"

// BuildModeratorSystemPrompt builds the session-static Moderator prompt.
func BuildModeratorSystemPrompt(chatroomContext string) string {
	return renderTemplate(moderatorSystemTemplate,
		"{CHATROOM_CONTEXT}", chatroomContext,
	)
}

// BuildModeratorUserPrompt builds the per-attempt Moderator prompt with
// the Performer's raw output.
func BuildModeratorUserPrompt(performerOutput string, action types.ActionType) string {
	return renderTemplate(moderatorUserTemplate,
		"{PERFORMER_OUTPUT}", performerOutput,
		"{ACTION_TYPE}", string(action),
	)
}

// ParseModeratorResponse returns the sanitized content and true, or
// ("", false) when the Moderator signalled NO_CONTENT or returned nothing.
func ParseModeratorResponse(raw string) (string, bool) {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" || cleaned == NoContent {
		return "", false
	}
	return cleaned, true
}
