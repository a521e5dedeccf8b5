package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagelab/stagechat/pkg/config"
	"github.com/stagelab/stagechat/pkg/types"
)

func TestNewsArticleScenarioSeedsAndGates(t *testing.T) {
	st := NewState("s", "participant",
		[]*types.Agent{{Name: "Alice", Chattiness: 0.5}}, time.Hour)
	scenario := &NewsArticleScenario{
		Headline: "Local council approves new bike lanes",
		Source:   "City Herald",
		Body:     "The council voted 7-2 on Tuesday.",
	}

	var posted []*types.Message
	err := scenario.Seed(context.Background(), st, func(m *types.Message) {
		st.AddMessage(m)
		posted = append(posted, m)
	})
	require.NoError(t, err)
	require.Len(t, posted, 1)
	assert.Equal(t, "[news]", posted[0].Sender)
	assert.Contains(t, posted[0].Content, "bike lanes")
	assert.Contains(t, posted[0].Content, "City Herald")

	// Agents stay silent until the participant speaks.
	assert.False(t, scenario.AgentsActive(st))
	st.AddMessage(types.NewMessage("Alice", "agent chatter does not count"))
	assert.False(t, scenario.AgentsActive(st))
	st.AddMessage(types.NewMessage("participant", "interesting article"))
	assert.True(t, scenario.AgentsActive(st))
}

func TestNewsArticleScenarioRequiresHeadline(t *testing.T) {
	st := NewState("s", "participant", nil, time.Hour)
	err := (&NewsArticleScenario{}).Seed(context.Background(), st, func(*types.Message) {})
	assert.Error(t, err)
}

func TestLoadScenario(t *testing.T) {
	base, err := LoadScenario(&config.TreatmentGroup{Scenario: "base"})
	require.NoError(t, err)
	assert.IsType(t, BaseScenario{}, base)

	empty, err := LoadScenario(&config.TreatmentGroup{})
	require.NoError(t, err)
	assert.IsType(t, BaseScenario{}, empty)

	news, err := LoadScenario(&config.TreatmentGroup{
		Scenario: "news_article",
		Seed:     config.SeedContent{Headline: "h", Source: "s", Body: "b"},
	})
	require.NoError(t, err)
	assert.IsType(t, &NewsArticleScenario{}, news)

	_, err = LoadScenario(&config.TreatmentGroup{Scenario: "surprise"})
	assert.Error(t, err)
}
