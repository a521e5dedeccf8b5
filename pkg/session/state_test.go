package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/stagelab/stagechat/pkg/types"
)

func TestStateRecentMessagesWindow(t *testing.T) {
	st := NewState("s", "participant", nil, time.Hour)
	for i := 0; i < 5; i++ {
		st.AddMessage(types.NewMessage("Alice", "msg"))
	}

	assert.Len(t, st.RecentMessages(3), 3)
	assert.Len(t, st.RecentMessages(10), 5)
	assert.Equal(t, st.Messages[2:], st.RecentMessages(3))
}

func TestStateAgentByNameCaseInsensitive(t *testing.T) {
	st := NewState("s", "participant",
		[]*types.Agent{{Name: "Alice"}, {Name: "Bob"}}, time.Hour)

	assert.NotNil(t, st.AgentByName("alice"))
	assert.NotNil(t, st.AgentByName("BOB"))
	assert.Nil(t, st.AgentByName("Carol"))
}

func TestStateExpired(t *testing.T) {
	st := NewState("s", "participant", nil, 10*time.Minute)
	assert.False(t, st.Expired(st.StartTime.Add(5*time.Minute)))
	assert.True(t, st.Expired(st.StartTime.Add(10*time.Minute)))
}

func TestStateBlockSuppression(t *testing.T) {
	st := NewState("s", "participant", []*types.Agent{{Name: "Alice"}}, time.Hour)

	before := types.NewMessage("Alice", "earlier")
	before.Timestamp = time.Now().Add(-time.Minute)
	st.AddMessage(before)

	st.BlockAgent("Alice", time.Now())

	after := types.NewMessage("Alice", "later")
	after.Timestamp = time.Now().Add(time.Minute)
	st.AddMessage(after)

	other := types.NewMessage("Bob", "unaffected")
	st.AddMessage(other)

	assert.False(t, st.Suppressed(before))
	assert.True(t, st.Suppressed(after))
	assert.False(t, st.Suppressed(other))
}

func TestStateBlockAgentFirstTimeWins(t *testing.T) {
	st := NewState("s", "participant", []*types.Agent{{Name: "Alice"}}, time.Hour)
	first := time.Now()
	st.BlockAgent("Alice", first)
	st.BlockAgent("Alice", first.Add(time.Hour))
	assert.Equal(t, first, st.BlockedAgents["Alice"])
}
