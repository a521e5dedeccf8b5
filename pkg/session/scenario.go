package session

import (
	"context"
	"fmt"

	"github.com/stagelab/stagechat/pkg/config"
	"github.com/stagelab/stagechat/pkg/types"
)

// Scenario shapes a session's opening and gates agent activity.
type Scenario interface {
	// Seed runs once at session start, before the clock, and may post
	// seed material into the transcript.
	Seed(ctx context.Context, st *State, post func(*types.Message)) error
	// AgentsActive reports whether agents may speak this tick.
	AgentsActive(st *State) bool
}

// BaseScenario seeds nothing and lets agents chat from the first tick.
type BaseScenario struct{}

func (BaseScenario) Seed(ctx context.Context, st *State, post func(*types.Message)) error {
	return nil
}

func (BaseScenario) AgentsActive(st *State) bool { return true }

// NewsArticleScenario posts a news article as the opening message and
// holds all agents silent until the human has spoken. This keeps the
// first word with the participant, which several experiment designs
// require.
type NewsArticleScenario struct {
	Headline string
	Source   string
	Body     string
}

func (n *NewsArticleScenario) Seed(ctx context.Context, st *State, post func(*types.Message)) error {
	if n.Headline == "" {
		return fmt.Errorf("news article scenario requires a headline")
	}
	content := n.Headline
	if n.Source != "" {
		content += " (" + n.Source + ")"
	}
	if n.Body != "" {
		content += "\n\n" + n.Body
	}
	msg := types.NewMessage("[news]", content)
	msg.Metadata = map[string]any{"kind": "news_article", "source": n.Source}
	post(msg)
	return nil
}

func (n *NewsArticleScenario) AgentsActive(st *State) bool {
	for _, m := range st.Messages {
		if m.Sender == st.UserName() {
			return true
		}
	}
	return false
}

// LoadScenario builds the scenario named by a treatment group.
func LoadScenario(group *config.TreatmentGroup) (Scenario, error) {
	switch group.Scenario {
	case "", "base":
		return BaseScenario{}, nil
	case "news_article":
		return &NewsArticleScenario{
			Headline: group.Seed.Headline,
			Source:   group.Seed.Source,
			Body:     group.Seed.Body,
		}, nil
	default:
		return nil, fmt.Errorf("unknown scenario %q", group.Scenario)
	}
}
