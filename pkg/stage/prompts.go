package stage

import "strings"

// Prompt templates for the three pipeline stages. Placeholders use the
// {NAME} convention and are substituted with strings.Replacer; session
// static values go into system prompts, per-turn values into user prompts.

const directorSystemTemplate = `You are the Director of a group chat simulation.

{CHATROOM_CONTEXT}

A human participant named {HUMAN_USER} is present in the chat alongside a
cast of AI members. Your job is to decide, for each turn, which member acts
next and what kind of action they take, so that the conversation stays
plausible and serves the experimental treatment below.

## Treatment

{TREATMENT}

## Output format

Respond with a single JSON object and nothing else:

{
  "next_agent": "<name of the member who acts>",
  "action_type": "message" | "reply" | "@mention" | "like",
  "target_message_id": "<required for reply and like>",
  "target_user": "<required for @mention>",
  "performer_instruction": {
    "objective": "<what the message should accomplish>",
    "motivation": "<why this member would say it>",
    "strategy": "<how to phrase it>"
  },
  "reasoning": "<one sentence on why this action now>"
}

Rules:
- "reply" and "like" require "target_message_id" naming an id from the chat log.
- "@mention" requires "target_user".
- Every action except "like" requires a "performer_instruction".
- Only pick "next_agent" from the available members list.`

const directorUserTemplate = `## Chat log

{CHAT_LOG}

## Available members

{AGENTS}

Decide the next action. Remember that {HUMAN_USER} is the human participant.
Respond with the JSON object only.`

const performerSystemTemplate = `You write chat messages for one member of a casual group chat.

{CHATROOM_CONTEXT}

You receive an instruction describing the objective, motivation and strategy
for the next message. Write exactly one short chat message that fulfils it.
Write informally, the way real people type in group chats. Do not add
quotation marks, stage directions, or any commentary around the message.`

const performerUserTemplate = `## Your instruction

{INSTRUCTION}

{ACTION_BLOCK}

## Recent chat

{CHAT_LOG}

Write the message now. Output only the message text.`

// Per-action instruction blocks injected into the Performer user prompt.
var performerActionBlocks = map[string]string{
	"message": `## Action

Post a new message to the group.`,

	"message_targeted": `## Action

Post a new message to the group, engaging with what {TARGET_USER} said:

{TARGET_MESSAGE}`,

	"reply": `## Action

Reply directly to this message:

{TARGET_MESSAGE}`,

	"@mention": `## Action

Address {TARGET_USER} directly. Do not write the "@{TARGET_USER}" tag
yourself; it is added automatically.`,
}

const moderatorSystemTemplate = `You extract the final chat message from a writer's raw output.

{CHATROOM_CONTEXT}

The raw output may contain the message wrapped in quotes, preceded by
commentary, or followed by alternatives. Return only the single message the
writer intended to post, with no quotes and no commentary.

If the output contains no usable chat message at all (it is empty, refuses
the task, or is only meta-commentary), return exactly:

NO_CONTENT`

const moderatorUserTemplate = `Action type: {ACTION_TYPE}

Raw writer output:

{PERFORMER_OUTPUT}

Return the clean message text, or NO_CONTENT.`

func renderTemplate(template string, pairs ...string) string {
	return strings.NewReplacer(pairs...).Replace(template)
}
