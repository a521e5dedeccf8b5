// Package stage implements the Director -> Performer -> Moderator turn
// pipeline: the Director decides who acts and how, the Performer writes
// the raw text, and the Moderator sanitizes it into a postable message.
package stage

import (
	"context"
	"fmt"

	"github.com/stagelab/stagechat/pkg/eventlog"
	"github.com/stagelab/stagechat/pkg/types"
)

// MaxPerformerRetries bounds the Performer -> Moderator loop per turn.
const MaxPerformerRetries = 3

// Generator is the gateway contract the pipeline calls through. A failed
// call returns an error; implementations never panic across the boundary.
type Generator interface {
	Generate(ctx context.Context, prompt, systemPrompt string) (string, error)
}

// StateView is the read-only slice of session state the pipeline needs.
type StateView interface {
	RecentMessages(n int) []*types.Message
	AgentNames() []string
	FindMessage(id string) *types.Message
	UserName() string
}

// Orchestrator coordinates the pipeline for each simulation turn. It is
// stateless with respect to conversation history; it reads the current
// state every time ExecuteTurn is called.
type Orchestrator struct {
	director  Generator
	performer Generator
	moderator Generator
	state     StateView
	logger    eventlog.Logger

	contextWindow   int
	chatroomContext string

	// System prompts are session-static; the Director's depends on the
	// treatment, which arrives with the first ExecuteTurn call.
	performerSystem  string
	moderatorSystem  string
	directorSystem   string
	builtForTreatment string
}

// Config wires an Orchestrator.
type Config struct {
	Director        Generator
	Performer       Generator
	Moderator       Generator
	State           StateView
	Logger          eventlog.Logger
	ContextWindow   int
	ChatroomContext string
}

// NewOrchestrator creates the pipeline coordinator.
func NewOrchestrator(cfg Config) *Orchestrator {
	contextWindow := cfg.ContextWindow
	if contextWindow <= 0 {
		contextWindow = 10
	}
	moderator := cfg.Moderator
	if moderator == nil {
		moderator = cfg.Performer
	}
	return &Orchestrator{
		director:        cfg.Director,
		performer:       cfg.Performer,
		moderator:       moderator,
		state:           cfg.State,
		logger:          cfg.Logger,
		contextWindow:   contextWindow,
		chatroomContext: cfg.ChatroomContext,
		performerSystem: BuildPerformerSystemPrompt(cfg.ChatroomContext),
		moderatorSystem: BuildModeratorSystemPrompt(cfg.ChatroomContext),
	}
}

// ExecuteTurn runs one full Director -> Performer -> Moderator cycle.
//
// On failure it returns a *TurnError; every failure mode is recoverable
// at the turn boundary and the caller simply produces no message.
func (o *Orchestrator) ExecuteTurn(ctx context.Context, treatment string, hint *Hint) (*types.TurnResult, error) {
	recent := o.state.RecentMessages(o.contextWindow)
	agentNames := o.state.AgentNames()

	if o.directorSystem == "" || o.builtForTreatment != treatment {
		o.directorSystem = BuildDirectorSystemPrompt(treatment, o.state.UserName(), o.chatroomContext)
		o.builtForTreatment = treatment
	}
	directorPrompt := BuildDirectorUserPrompt(recent, agentNames, o.state.UserName(), hint)

	// Director stage: one call, fail closed, no retry at this level.
	directorRaw, err := o.director.Generate(ctx, directorPrompt, o.directorSystem)
	o.logLLMCall("__director__", o.directorSystem, directorPrompt, directorRaw, err)
	if err != nil {
		o.logger.LogError("director_llm_call", err.Error())
		return nil, &TurnError{Kind: ErrDirectorCall, Detail: "director call failed", Err: err}
	}
	if directorRaw == "" {
		o.logger.LogError("director_llm_call", "director returned empty response")
		return nil, turnErrorf(ErrDirectorCall, "director returned empty response")
	}

	decision, err := ParseDecision(directorRaw)
	if err != nil {
		o.logger.LogError("director_parse", err.Error())
		return nil, &TurnError{Kind: ErrDirectorParse, Detail: "director parse failed", Err: err}
	}

	if !containsName(agentNames, decision.NextAgent) {
		detail := fmt.Sprintf("director chose unknown agent %q", decision.NextAgent)
		o.logger.LogError("director_agent", detail)
		return nil, turnErrorf(ErrDirectorParse, "%s", detail)
	}

	// Like actions complete immediately; no Performer call needed.
	if decision.Action == types.ActionLike {
		return &types.TurnResult{
			Action:            types.ActionLike,
			AgentName:         decision.NextAgent,
			TargetMessageID:   decision.TargetMessageID,
			DirectorReasoning: decision.Reasoning,
		}, nil
	}

	var target *types.Message
	if decision.TargetMessageID != "" {
		target = o.state.FindMessage(decision.TargetMessageID)
	}

	performerPrompt := BuildPerformerUserPrompt(
		decision.Instruction, decision.Action, recent, target, decision.TargetUser)

	content, ok := o.runPerformerLoop(ctx, decision, performerPrompt)
	if !ok {
		detail := fmt.Sprintf("no valid performer content after %d attempts", MaxPerformerRetries)
		o.logger.LogError("performer_retries_exhausted", detail)
		return nil, turnErrorf(ErrRetriesExhausted, "%s", detail)
	}

	message := o.assembleMessage(decision, target, content)
	return &types.TurnResult{
		Action:            decision.Action,
		AgentName:         decision.NextAgent,
		Message:           message,
		TargetMessageID:   decision.TargetMessageID,
		TargetUser:        decision.TargetUser,
		DirectorReasoning: decision.Reasoning,
	}, nil
}

// runPerformerLoop drives the bounded Performer -> Moderator retry loop.
// It returns the first sanitized content, or ok=false after exhausting
// all attempts.
func (o *Orchestrator) runPerformerLoop(ctx context.Context, decision *Decision, performerPrompt string) (string, bool) {
	for attempt := 1; attempt <= MaxPerformerRetries; attempt++ {
		performerRaw, err := o.performer.Generate(ctx, performerPrompt, o.performerSystem)
		o.logLLMCall(decision.NextAgent, o.performerSystem, performerPrompt, performerRaw, err)
		if err != nil {
			o.logger.LogError(string(ErrPerformerCall),
				fmt.Sprintf("attempt %d/%d: %v", attempt, MaxPerformerRetries, err))
			continue
		}
		if performerRaw == "" {
			o.logger.LogError(string(ErrPerformerCall),
				fmt.Sprintf("attempt %d/%d: performer returned empty response", attempt, MaxPerformerRetries))
			continue
		}

		moderatorPrompt := BuildModeratorUserPrompt(performerRaw, decision.Action)
		moderatorRaw, err := o.moderator.Generate(ctx, moderatorPrompt, o.moderatorSystem)
		o.logLLMCall("__moderator__", o.moderatorSystem, moderatorPrompt, moderatorRaw, err)
		if err != nil {
			o.logger.LogError("moderator_llm_call",
				fmt.Sprintf("attempt %d/%d: %v", attempt, MaxPerformerRetries, err))
			continue
		}

		if content, ok := ParseModeratorResponse(moderatorRaw); ok {
			return content, true
		}
		o.logger.LogError(string(ErrModeratorNoContent),
			fmt.Sprintf("attempt %d/%d: moderator could not extract content", attempt, MaxPerformerRetries))
	}
	return "", false
}

// assembleMessage turns sanitized content into a Message, applying the
// action-specific formatting rules.
func (o *Orchestrator) assembleMessage(decision *Decision, target *types.Message, content string) *types.Message {
	message := types.NewMessage(decision.NextAgent, content)

	switch decision.Action {
	case types.ActionMention:
		message.Content = "@" + decision.TargetUser + " " + content
		message.Mentions = []string{decision.TargetUser}
	case types.ActionReply:
		message.ReplyTo = decision.TargetMessageID
		if target != nil {
			message.QuotedText = target.Content
		} else {
			message.QuotedText = missingTargetPlaceholder
		}
	}
	return message
}

func (o *Orchestrator) logLLMCall(agentName, systemPrompt, userPrompt, response string, err error) {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	} else if response == "" {
		errMsg = "empty response"
	}
	o.logger.LogLLMCall(agentName,
		"[SYSTEM]\n"+systemPrompt+"\n\n[USER]\n"+userPrompt,
		response, errMsg)
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
