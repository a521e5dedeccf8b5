package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempTOML(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadSimulationDefaults(t *testing.T) {
	path := writeTempTOML(t, "sim.toml", `
agent_names = ["Alice", "Bob", "Carol"]
`)
	cfg, err := LoadSimulation(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"Alice", "Bob", "Carol"}, cfg.AgentNames)
	assert.Equal(t, 15, cfg.SessionDurationMinutes)
	assert.InDelta(t, 4.0, cfg.MessagesPerMinute, 1e-9)
	assert.InDelta(t, 0.8, cfg.UserResponseProbability, 1e-9)
	assert.Equal(t, 10, cfg.ContextWindowSize)
	assert.InDelta(t, 0.9, cfg.AttentionDecay, 1e-9)
	assert.InDelta(t, 0.05, cfg.WeightFloor, 1e-9)
	assert.Equal(t, "gemini", cfg.Director.Provider)
	assert.Equal(t, int64(4), cfg.Director.ConcurrencyLimit)
	assert.Equal(t, int64(8), cfg.Performer.ConcurrencyLimit)
}

func TestLoadSimulationOverrides(t *testing.T) {
	path := writeTempTOML(t, "sim.toml", `
agent_names = ["Alice", "Bob"]
session_duration_minutes = 30
messages_per_minute = 2.5
force_target_mention = true

[agent_chattiness]
Alice = 0.9

[director]
provider = "anthropic"
model = "claude-sonnet-4-0"
temperature = 0.2
concurrency_limit = 2
`)
	cfg, err := LoadSimulation(path)
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.SessionDurationMinutes)
	assert.InDelta(t, 2.5, cfg.MessagesPerMinute, 1e-9)
	assert.True(t, cfg.ForceTargetMention)
	assert.InDelta(t, 0.9, cfg.AgentChattiness["Alice"], 1e-9)
	assert.Equal(t, "anthropic", cfg.Director.Provider)
	assert.Equal(t, int64(2), cfg.Director.ConcurrencyLimit)
	// Untouched sections keep defaults.
	assert.Equal(t, "gemini", cfg.Performer.Provider)
}

func TestLoadSimulationRejectsBadValues(t *testing.T) {
	for name, body := range map[string]string{
		"no agents":       ``,
		"empty name":      `agent_names = [""]`,
		"duplicate name":  `agent_names = ["A", "A"]`,
		"bad rate":        "agent_names = [\"A\"]\nmessages_per_minute = -1.0",
		"bad probability": "agent_names = [\"A\"]\nuser_response_probability = 1.5",
		"bad decay":       "agent_names = [\"A\"]\nattention_decay = 1.0",
		"bad chattiness":  "agent_names = [\"A\"]\n[agent_chattiness]\nA = 2.0",
	} {
		t.Run(name, func(t *testing.T) {
			path := writeTempTOML(t, "sim.toml", body)
			_, err := LoadSimulation(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadExperiment(t *testing.T) {
	path := writeTempTOML(t, "exp.toml", `
chatroom_context = "A casual chat about local news."

[groups.control]
treatment = "Agents behave neutrally."
scenario = "base"

[groups.news]
treatment = "Agents discuss the seeded article."
scenario = "news_article"

[groups.news.seed]
type = "news_article"
headline = "Council approves bike lanes"
source = "City Herald"
body = "The vote passed on Tuesday."
`)
	cfg, err := LoadExperiment(path)
	require.NoError(t, err)

	assert.Equal(t, "A casual chat about local news.", cfg.ChatroomContext)

	control, err := cfg.Group("control")
	require.NoError(t, err)
	assert.Equal(t, "base", control.Scenario)

	news, err := cfg.Group("news")
	require.NoError(t, err)
	assert.Equal(t, "Council approves bike lanes", news.Seed.Headline)

	_, err = cfg.Group("missing")
	assert.Error(t, err)
}

func TestLoadExperimentRejectsEmptyGroups(t *testing.T) {
	path := writeTempTOML(t, "exp.toml", `chatroom_context = "x"`)
	_, err := LoadExperiment(path)
	assert.Error(t, err)
}
