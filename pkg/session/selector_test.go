package session

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagelab/stagechat/pkg/types"
)

func newSelectorState() *State {
	agents := []*types.Agent{
		{Name: "Alice", Chattiness: 0.5},
		{Name: "Bob", Chattiness: 0.5},
		{Name: "Carol", Chattiness: 0.5},
	}
	return NewState("test", "participant", agents, time.Hour)
}

func newTestSelector(seed int64) *Selector {
	return NewSelector(NewDynamics(0.9, 0.3, 0.6, 0.05), rand.New(rand.NewSource(seed)))
}

func TestSelectSpeakerMentionOverride(t *testing.T) {
	st := newSelectorState()
	msg := types.NewMessage("participant", "hello @Bob")
	msg.Mentions = []string{"Bob"}
	st.AddMessage(msg)

	s := newTestSelector(1)
	speaker := s.SelectSpeaker(st, ContextForeground)
	require.NotNil(t, speaker)
	assert.Equal(t, "Bob", speaker.Name)
	// Being addressed raises attention.
	assert.InDelta(t, 0.3, speaker.Attention, 1e-9)
}

func TestSelectSpeakerMentionIsCaseInsensitive(t *testing.T) {
	st := newSelectorState()
	msg := types.NewMessage("participant", "hey @bob")
	msg.Mentions = []string{"bob"}
	st.AddMessage(msg)

	speaker := newTestSelector(1).SelectSpeaker(st, ContextForeground)
	require.NotNil(t, speaker)
	assert.Equal(t, "Bob", speaker.Name)
}

func TestSelectSpeakerReplyOverride(t *testing.T) {
	st := newSelectorState()
	agentMsg := types.NewMessage("Carol", "I disagree")
	st.AddMessage(agentMsg)
	userMsg := types.NewMessage("participant", "why?")
	userMsg.ReplyTo = agentMsg.MessageID
	st.AddMessage(userMsg)

	speaker := newTestSelector(1).SelectSpeaker(st, ContextForeground)
	require.NotNil(t, speaker)
	assert.Equal(t, "Carol", speaker.Name)
}

func TestSelectSpeakerBackgroundIgnoresAddress(t *testing.T) {
	st := newSelectorState()
	msg := types.NewMessage("participant", "hello @Bob")
	msg.Mentions = []string{"Bob"}
	st.AddMessage(msg)

	// Background selection is purely weighted; over many seeded draws all
	// three agents must show up.
	seen := map[string]bool{}
	s := newTestSelector(42)
	for i := 0; i < 200; i++ {
		speaker := s.SelectSpeaker(st, ContextBackground)
		require.NotNil(t, speaker)
		seen[speaker.Name] = true
	}
	assert.Len(t, seen, 3)
}

func TestSelectSpeakerDeterministicForSeed(t *testing.T) {
	run := func() []string {
		st := newSelectorState()
		s := newTestSelector(7)
		var picks []string
		for i := 0; i < 20; i++ {
			picks = append(picks, s.SelectSpeaker(st, ContextBackground).Name)
		}
		return picks
	}
	assert.Equal(t, run(), run())
}

func TestSelectTargetExcludesSpeaker(t *testing.T) {
	st := newSelectorState()
	s := newTestSelector(3)
	speaker := st.Agents[0]

	for i := 0; i < 50; i++ {
		target := s.SelectTarget(st, speaker)
		require.NotNil(t, target)
		assert.NotEqual(t, speaker.Name, target.Name)
	}
}

func TestSelectTargetNilWhenAlone(t *testing.T) {
	st := NewState("test", "participant",
		[]*types.Agent{{Name: "Alice", Chattiness: 0.5}}, time.Hour)
	s := newTestSelector(3)
	assert.Nil(t, s.SelectTarget(st, st.Agents[0]))
}

func TestSelectSpeakerEmptyRoster(t *testing.T) {
	st := NewState("test", "participant", nil, time.Hour)
	assert.Nil(t, newTestSelector(1).SelectSpeaker(st, ContextForeground))
}

func TestWeightedChoiceFavorsHigherWeight(t *testing.T) {
	st := newSelectorState()
	st.Agents[1].Attention = 1.0 // Bob weight 1.0 vs 0.5 for the rest

	counts := map[string]int{}
	s := newTestSelector(99)
	for i := 0; i < 2000; i++ {
		counts[s.SelectSpeaker(st, ContextBackground).Name]++
	}
	assert.Greater(t, counts["Bob"], counts["Alice"])
	assert.Greater(t, counts["Bob"], counts["Carol"])
}
