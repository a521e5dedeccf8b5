package session

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/stagelab/stagechat/pkg/config"
	"github.com/stagelab/stagechat/pkg/eventlog"
	"github.com/stagelab/stagechat/pkg/stage"
	"github.com/stagelab/stagechat/pkg/types"
)

// OutboundEvent is what a session pushes to its attached client.
type OutboundEvent struct {
	Type    string         `json:"type"`
	Message *types.Message `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// DeliverFunc receives outbound events. Implementations must not block
// for long; a slow client stalls the session clock.
type DeliverFunc func(ev OutboundEvent)

// Config wires one session.
type Config struct {
	ID              string
	UserName        string
	Treatment       string
	ChatroomContext string
	Sim             *config.Simulation
	Scenario        Scenario

	Director  stage.Generator
	Performer stage.Generator
	Moderator stage.Generator

	Logger  eventlog.Logger
	Log     *log.Logger
	Deliver DeliverFunc

	// TickInterval overrides the one-second clock, mainly for tests.
	TickInterval time.Duration
}

// Session drives one chatroom. A single goroutine owns all state and
// processes ticks and inbound commands; public methods enqueue commands
// and are safe to call from any goroutine.
type Session struct {
	id        string
	treatment string

	state    *State
	dynamics *Dynamics
	selector *Selector
	orch     *stage.Orchestrator
	scenario Scenario

	logger  eventlog.Logger
	log     *log.Logger
	deliver DeliverFunc

	rng             *rand.Rand
	sim             *config.Simulation
	tickInterval    time.Duration
	postProbability float64

	inbox      chan command
	cancel     context.CancelFunc
	done       chan struct{}
	stopReason string
}

type command interface{}

type cmdUserMessage struct {
	content    string
	replyTo    string
	quotedText string
	mentions   []string
}

type toggleResult struct {
	verb  string
	count int
	err   error
}

type cmdToggleLike struct {
	messageID string
	userID    string
	reply     chan toggleResult
}

type cmdToggleReport struct {
	messageID string
	reply     chan toggleResult
}

type cmdBlockAgent struct{ name string }

type cmdAttach struct {
	deliver DeliverFunc
	replay  bool
}

type cmdDetach struct{}

type cmdStop struct{ reason string }

// New validates the config and builds a session. The clock does not run
// until Start.
func New(cfg Config) (*Session, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("session id must not be empty")
	}
	if cfg.UserName == "" {
		return nil, fmt.Errorf("user name must not be empty")
	}
	if cfg.Sim == nil {
		return nil, fmt.Errorf("simulation config must not be nil")
	}
	if err := cfg.Sim.Validate(); err != nil {
		return nil, fmt.Errorf("simulation config invalid: %w", err)
	}
	if cfg.Director == nil || cfg.Performer == nil {
		return nil, fmt.Errorf("director and performer generators are required")
	}

	seed := cfg.Sim.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	agents := make([]*types.Agent, 0, len(cfg.Sim.AgentNames))
	for _, name := range cfg.Sim.AgentNames {
		chattiness, ok := cfg.Sim.AgentChattiness[name]
		if !ok {
			// No configured value; draw once from the mid-range so the
			// roster has stable but varied talkativeness.
			chattiness = 0.25 + 0.5*rng.Float64()
		}
		agents = append(agents, &types.Agent{
			Name:       name,
			Chattiness: chattiness,
			Style:      cfg.Sim.AgentStyles[name],
		})
	}

	duration := time.Duration(cfg.Sim.SessionDurationMinutes) * time.Minute
	state := NewState(cfg.ID, cfg.UserName, agents, duration)

	dynamics := NewDynamics(
		cfg.Sim.AttentionDecay,
		cfg.Sim.AddressBoost,
		cfg.Sim.SpeakBoost,
		cfg.Sim.WeightFloor,
	)

	logger := cfg.Logger
	if logger == nil {
		logger = eventlog.NewMemoryLogger()
	}
	runLog := cfg.Log
	if runLog == nil {
		runLog = log.Default()
	}
	scenario := cfg.Scenario
	if scenario == nil {
		scenario = BaseScenario{}
	}
	tick := cfg.TickInterval
	if tick <= 0 {
		tick = time.Second
	}

	s := &Session{
		id:              cfg.ID,
		treatment:       cfg.Treatment,
		state:           state,
		dynamics:        dynamics,
		selector:        NewSelector(dynamics, rng),
		scenario:        scenario,
		logger:          logger,
		log:             runLog.With("session", cfg.ID),
		deliver:         cfg.Deliver,
		rng:             rng,
		sim:             cfg.Sim,
		tickInterval:    tick,
		postProbability: cfg.Sim.MessagesPerMinute / 60.0 * tick.Seconds(),
		inbox:           make(chan command, 16),
		done:            make(chan struct{}),
	}
	s.orch = stage.NewOrchestrator(stage.Config{
		Director:        cfg.Director,
		Performer:       cfg.Performer,
		Moderator:       cfg.Moderator,
		State:           state,
		Logger:          logger,
		ContextWindow:   cfg.Sim.ContextWindowSize,
		ChatroomContext: cfg.ChatroomContext,
	})
	return s, nil
}

// Start seeds the scenario and launches the clock goroutine.
func (s *Session) Start(ctx context.Context) error {
	if err := s.scenario.Seed(ctx, s.state, func(m *types.Message) {
		s.state.AddMessage(m)
		s.logger.LogMessage(m)
		s.deliverMessage(m)
	}); err != nil {
		return fmt.Errorf("seed scenario: %w", err)
	}

	s.logger.LogEvent("session_start", map[string]any{
		"session_id": s.id,
		"user":       s.state.UserName(),
		"agents":     s.state.AgentNames(),
		"treatment":  s.treatment,
		"duration_m": s.sim.SessionDurationMinutes,
	})
	s.log.Info("session started",
		"agents", len(s.state.Agents),
		"duration_minutes", s.sim.SessionDurationMinutes)

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.run(runCtx)
	return nil
}

// Done is closed once the clock goroutine has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Stop asks the session to shut down and waits for the clock to exit.
// Stopping a session that never started is a no-op.
func (s *Session) Stop(reason string) {
	if s.cancel == nil {
		return
	}
	s.enqueue(cmdStop{reason: reason})
	<-s.done
}

// HandleUserMessage enqueues a message from the human participant.
func (s *Session) HandleUserMessage(content, replyTo, quotedText string, mentions []string) error {
	return s.enqueue(cmdUserMessage{
		content:    content,
		replyTo:    replyTo,
		quotedText: quotedText,
		mentions:   mentions,
	})
}

// ToggleLike toggles the human's like on a message and returns the
// resulting verb ("liked" or "unliked") and like count.
func (s *Session) ToggleLike(messageID, userID string) (string, int, error) {
	reply := make(chan toggleResult, 1)
	if err := s.enqueue(cmdToggleLike{messageID: messageID, userID: userID, reply: reply}); err != nil {
		return "", 0, err
	}
	select {
	case res := <-reply:
		return res.verb, res.count, res.err
	case <-s.done:
		return "", 0, fmt.Errorf("session %s stopped", s.id)
	}
}

// ToggleReport toggles the reported flag on a message.
func (s *Session) ToggleReport(messageID string) (string, error) {
	reply := make(chan toggleResult, 1)
	if err := s.enqueue(cmdToggleReport{messageID: messageID, reply: reply}); err != nil {
		return "", err
	}
	select {
	case res := <-reply:
		return res.verb, res.err
	case <-s.done:
		return "", fmt.Errorf("session %s stopped", s.id)
	}
}

// BlockAgent records the human blocking an agent.
func (s *Session) BlockAgent(name string) error {
	return s.enqueue(cmdBlockAgent{name: name})
}

// Attach swaps in a delivery function and replays the visible
// transcript so a reconnecting client catches up.
func (s *Session) Attach(deliver DeliverFunc) error {
	return s.enqueue(cmdAttach{deliver: deliver, replay: true})
}

// Detach drops the current delivery function. The session keeps
// running; messages accumulate for the next Attach replay.
func (s *Session) Detach() error {
	return s.enqueue(cmdDetach{})
}

func (s *Session) enqueue(cmd command) error {
	select {
	case s.inbox <- cmd:
		return nil
	case <-s.done:
		return fmt.Errorf("session %s stopped", s.id)
	}
}

func (s *Session) handleCommand(ctx context.Context, cmd command) {
	switch c := cmd.(type) {
	case cmdUserMessage:
		s.handleUserMessage(c)
	case cmdToggleLike:
		s.handleToggleLike(c)
	case cmdToggleReport:
		s.handleToggleReport(c)
	case cmdBlockAgent:
		s.handleBlockAgent(c)
	case cmdAttach:
		s.deliver = c.deliver
		s.logger.LogEvent("client_attach", map[string]any{"session_id": s.id})
		if c.replay {
			s.replayTranscript()
		}
	case cmdDetach:
		s.deliver = nil
		s.logger.LogEvent("client_detach", map[string]any{"session_id": s.id})
	}
}

func (s *Session) handleUserMessage(c cmdUserMessage) {
	msg := types.NewMessage(s.state.UserName(), c.content)
	msg.ReplyTo = c.replyTo
	msg.QuotedText = c.quotedText
	msg.Mentions = c.mentions
	for _, m := range mentionRe.FindAllStringSubmatch(c.content, -1) {
		if agent := s.state.AgentByName(m[1]); agent != nil && !containsFold(msg.Mentions, agent.Name) {
			msg.Mentions = append(msg.Mentions, agent.Name)
		}
	}

	s.state.AddMessage(msg)
	s.logger.LogMessage(msg)
	s.deliverMessage(msg)

	if s.rng.Float64() < s.sim.UserResponseProbability {
		s.state.PendingUserResponse = true
	}
}

func (s *Session) handleToggleLike(c cmdToggleLike) {
	target := s.state.FindMessage(c.messageID)
	if target == nil {
		c.reply <- toggleResult{err: fmt.Errorf("message %s not found", c.messageID)}
		return
	}
	userID := c.userID
	if userID == "" {
		userID = s.state.UserName()
	}
	verb := target.ToggleLike(userID)
	s.logger.LogEvent("message_like", map[string]any{
		"message_id": target.MessageID,
		"user":       userID,
		"verb":       verb,
		"likes":      target.LikesCount(),
	})
	s.deliverEvent(OutboundEvent{
		Type: "like_update",
		Data: map[string]any{
			"message_id": target.MessageID,
			"user":       userID,
			"verb":       verb,
			"likes":      target.LikesCount(),
			"liked_by":   target.LikedBy,
		},
	})
	c.reply <- toggleResult{verb: verb, count: target.LikesCount()}
}

func (s *Session) handleToggleReport(c cmdToggleReport) {
	target := s.state.FindMessage(c.messageID)
	if target == nil {
		c.reply <- toggleResult{err: fmt.Errorf("message %s not found", c.messageID)}
		return
	}
	verb := target.ToggleReport()
	s.logger.LogEvent("message_report", map[string]any{
		"message_id": target.MessageID,
		"verb":       verb,
	})
	c.reply <- toggleResult{verb: verb}
}

func (s *Session) handleBlockAgent(c cmdBlockAgent) {
	if s.state.AgentByName(c.name) == nil {
		s.logger.LogError("block_agent", fmt.Sprintf("unknown agent %q", c.name))
		return
	}
	s.state.BlockAgent(c.name, time.Now())
	s.logger.LogEvent("agent_block", map[string]any{
		"session_id": s.id,
		"agent":      c.name,
	})
	s.log.Info("agent blocked", "agent", c.name)
}

// replayTranscript resends the visible transcript to a freshly attached
// client, honoring block suppression.
func (s *Session) replayTranscript() {
	if s.deliver == nil {
		return
	}
	for _, m := range s.state.Messages {
		if s.state.Suppressed(m) {
			continue
		}
		s.deliver(OutboundEvent{Type: "message", Message: m})
	}
}

func (s *Session) deliverMessage(m *types.Message) {
	if s.deliver == nil || s.state.Suppressed(m) {
		return
	}
	s.deliver(OutboundEvent{Type: "message", Message: m})
}

func (s *Session) deliverEvent(ev OutboundEvent) {
	if s.deliver == nil {
		return
	}
	s.deliver(ev)
}

func containsFold(names []string, name string) bool {
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}
