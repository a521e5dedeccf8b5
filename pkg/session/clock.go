package session

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/stagelab/stagechat/pkg/stage"
	"github.com/stagelab/stagechat/pkg/types"
)

// run is the clock loop. It owns all session state.
func (s *Session) run(ctx context.Context) {
	defer func() {
		reason := s.stopReason
		if reason == "" {
			reason = "cancelled"
		}
		s.logger.LogEvent("session_end", map[string]any{
			"session_id": s.id,
			"reason":     reason,
			"messages":   len(s.state.Messages),
		})
		s.log.Info("session ended", "reason", reason, "messages", len(s.state.Messages))
		s.logger.Close()
		close(s.done)
	}()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-s.inbox:
			if stop, ok := cmd.(cmdStop); ok {
				s.stopReason = stop.reason
				s.cancel()
				return
			}
			s.handleCommand(ctx, cmd)
		case <-ticker.C:
			if s.onTick(ctx) {
				return
			}
		}
	}
}

// onTick runs one clock tick. Returns true when the session is over.
//
// Tick order: expiry check, attention decay, scenario gate, then either
// the priority foreground turn or a Bernoulli background trial.
func (s *Session) onTick(ctx context.Context) bool {
	if s.state.Expired(time.Now()) {
		s.stopReason = "duration_expired"
		s.cancel()
		return true
	}

	s.dynamics.DecayTick(s.state.Agents)

	if !s.scenario.AgentsActive(s.state) {
		return false
	}

	if s.state.PendingUserResponse {
		s.state.PendingUserResponse = false
		s.runTurn(ctx, ContextForeground)
		return false
	}
	if s.rng.Float64() < s.postProbability {
		s.runTurn(ctx, ContextBackground)
	}
	return false
}

// runTurn executes one pipeline turn and applies its result. A panic
// inside a turn is logged and dropped; one bad turn must not take the
// session down.
func (s *Session) runTurn(ctx context.Context, sctx SelectionContext) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.LogError("turn_panic", fmt.Sprintf("%v", r))
			s.log.Error("turn panicked", "context", string(sctx), "panic", r)
		}
	}()

	speaker := s.selector.SelectSpeaker(s.state, sctx)
	if speaker == nil {
		return
	}
	hint := &stage.Hint{Speaker: speaker.Name}

	var target *types.Agent
	if sctx == ContextBackground {
		target = s.selector.SelectTarget(s.state, speaker)
		if target != nil {
			hint.Target = target.Name
		}
	}

	result, err := s.orch.ExecuteTurn(ctx, s.treatment, hint)
	if err != nil {
		// Already event-logged inside the pipeline; the turn just
		// produces nothing.
		s.log.Warn("turn failed", "context", string(sctx), "error", err)
		return
	}

	if result.Action == types.ActionLike {
		s.handleAgentLike(result)
		return
	}
	s.handleAgentMessage(ctx, result, sctx, target)
}

func (s *Session) handleAgentLike(result *types.TurnResult) {
	target := s.state.FindMessage(result.TargetMessageID)
	if target == nil {
		s.logger.LogError("agent_like", fmt.Sprintf(
			"agent %s liked unknown message %s", result.AgentName, result.TargetMessageID))
		return
	}
	verb := target.ToggleLike(result.AgentName)
	s.logger.LogEvent("agent_like", map[string]any{
		"agent":             result.AgentName,
		"target_message_id": target.MessageID,
		"verb":              verb,
		"likes":             target.LikesCount(),
	})
	if sender := s.state.AgentByName(target.Sender); sender != nil {
		s.dynamics.BoostAddress(sender)
	}
	s.deliverEvent(OutboundEvent{
		Type: "like_update",
		Data: map[string]any{
			"message_id": target.MessageID,
			"user":       result.AgentName,
			"verb":       verb,
			"likes":      target.LikesCount(),
			"liked_by":   target.LikedBy,
		},
	})
}

var (
	mentionRe = regexp.MustCompile(`@([A-Za-z0-9_]+)`)
	// Trailing marker some performer outputs carry instead of inline tags,
	// e.g. "great point [[MENTIONS: Alice, Bob]]".
	mentionsMarkerRe = regexp.MustCompile(`\s*\[\[MENTIONS:([^\]]*)\]\]\s*$`)
)

func (s *Session) handleAgentMessage(ctx context.Context, result *types.TurnResult, sctx SelectionContext, target *types.Agent) {
	msg := result.Message
	if msg == nil {
		return
	}

	content, markerNames := extractMentionsMarker(msg.Content)
	msg.Content = content
	for _, name := range markerNames {
		if agent := s.state.AgentByName(name); agent != nil && !containsFold(msg.Mentions, agent.Name) {
			msg.Mentions = append(msg.Mentions, agent.Name)
		}
	}

	// Background posts aimed at a co-agent may be forced to carry the
	// tag when the text does not already address anyone.
	if sctx == ContextBackground && target != nil && s.sim.ForceTargetMention &&
		len(msg.Mentions) == 0 && !mentionRe.MatchString(msg.Content) {
		msg.Content = "@" + target.Name + " " + msg.Content
	}

	for _, m := range mentionRe.FindAllStringSubmatch(msg.Content, -1) {
		agent := s.state.AgentByName(m[1])
		if agent == nil {
			continue
		}
		if !containsFold(msg.Mentions, agent.Name) {
			msg.Mentions = append(msg.Mentions, agent.Name)
		}
	}
	for _, name := range msg.Mentions {
		if agent := s.state.AgentByName(name); agent != nil {
			s.dynamics.BoostAddress(agent)
		}
	}

	s.typingDelay(ctx, msg.Content)
	msg.Timestamp = time.Now()

	s.state.AddMessage(msg)
	s.logger.LogMessage(msg)
	if agent := s.state.AgentByName(result.AgentName); agent != nil {
		s.dynamics.BoostSpeak(agent)
	}
	s.deliverMessage(msg)
}

// extractMentionsMarker strips a trailing [[MENTIONS: ...]] marker and
// returns the cleaned content plus the names the marker listed.
func extractMentionsMarker(content string) (string, []string) {
	m := mentionsMarkerRe.FindStringSubmatch(content)
	if m == nil {
		return content, nil
	}
	cleaned := strings.TrimSpace(mentionsMarkerRe.ReplaceAllString(content, ""))
	var names []string
	for _, part := range strings.Split(m[1], ",") {
		name := strings.TrimPrefix(strings.TrimSpace(part), "@")
		if name != "" {
			names = append(names, name)
		}
	}
	return cleaned, names
}

const typingCharsPerSecond = 12.0

// typingDelay pauses before posting so agent messages land at a human
// pace. The delay scales with content length between half a second and
// the configured cap, and aborts on context cancellation.
func (s *Session) typingDelay(ctx context.Context, content string) {
	seconds := float64(len(content)) / typingCharsPerSecond
	if seconds < 0.5 {
		seconds = 0.5
	}
	if cap := s.sim.TypingDelayMaxSeconds; cap > 0 && seconds > cap {
		seconds = cap
	}
	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
