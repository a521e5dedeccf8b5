package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/stagelab/stagechat/pkg/config"
	"github.com/stagelab/stagechat/pkg/eventlog"
	"github.com/stagelab/stagechat/pkg/llm"
	"github.com/stagelab/stagechat/pkg/session"
	"github.com/stagelab/stagechat/pkg/stage"
)

// simulate runs a single headless session and prints the transcript.
// With -mock it exercises the whole engine without provider credentials,
// which is handy for piloting configs before a study.
func main() {
	_ = godotenv.Load()

	simPath := flag.String("sim", "./config/simulation.toml", "Simulation settings file")
	expPath := flag.String("experiment", "./config/experiment.toml", "Experiment settings file")
	group := flag.String("group", "control", "Treatment group to run")
	minutes := flag.Int("minutes", 0, "Override session duration in minutes")
	opening := flag.String("opening", "hi everyone", "Opening message from the simulated participant")
	logDir := flag.String("logs", "./data/simulate", "Session log directory")
	mock := flag.Bool("mock", false, "Use scripted mock providers instead of real ones")
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})

	sim, err := config.LoadSimulation(*simPath)
	if err != nil {
		logger.Fatal("load simulation config", "error", err)
	}
	if *minutes > 0 {
		sim.SessionDurationMinutes = *minutes
	}
	experiment, err := config.LoadExperiment(*expPath)
	if err != nil {
		logger.Fatal("load experiment config", "error", err)
	}
	treatmentGroup, err := experiment.Group(*group)
	if err != nil {
		logger.Fatal("resolve treatment group", "error", err)
	}
	scenario, err := session.LoadScenario(treatmentGroup)
	if err != nil {
		logger.Fatal("load scenario", "error", err)
	}

	ctx := context.Background()
	var director, performer stage.Generator
	if *mock {
		director, performer = mockGateways(sim)
	} else {
		if director, err = buildGateway(ctx, sim.Director); err != nil {
			logger.Fatal("build director gateway", "error", err)
		}
		if performer, err = buildGateway(ctx, sim.Performer); err != nil {
			logger.Fatal("build performer gateway", "error", err)
		}
	}

	id := uuid.NewString()
	jsonl, err := eventlog.NewJSONLLogger(*logDir, id)
	if err != nil {
		logger.Fatal("open session log", "error", err)
	}

	sess, err := session.New(session.Config{
		ID:              id,
		UserName:        "participant",
		Treatment:       treatmentGroup.Treatment,
		ChatroomContext: experiment.ChatroomContext,
		Sim:             sim,
		Scenario:        scenario,
		Director:        director,
		Performer:       performer,
		Logger:          jsonl,
		Log:             logger,
		Deliver: func(ev session.OutboundEvent) {
			switch ev.Type {
			case "message":
				fmt.Printf("[%s] %s: %s\n",
					ev.Message.Timestamp.Format("15:04:05"), ev.Message.Sender, ev.Message.Content)
			case "like_update":
				fmt.Printf("    * %v %v a message (%v likes)\n",
					ev.Data["user"], ev.Data["verb"], ev.Data["likes"])
			}
		},
	})
	if err != nil {
		logger.Fatal("create session", "error", err)
	}

	fmt.Printf("=== Session %s (group %q, %d minutes) ===\n\n",
		id, *group, sim.SessionDurationMinutes)

	if err := sess.Start(ctx); err != nil {
		logger.Fatal("start session", "error", err)
	}
	if *opening != "" {
		if err := sess.HandleUserMessage(*opening, "", "", nil); err != nil {
			logger.Fatal("send opening message", "error", err)
		}
	}

	select {
	case <-sess.Done():
	case <-time.After(time.Duration(sim.SessionDurationMinutes+1) * time.Minute):
		sess.Stop("simulate_timeout")
	}

	fmt.Printf("\n=== Done. Event log: %s/%s.jsonl ===\n", *logDir, id)
}

func buildGateway(ctx context.Context, role config.RoleLLM) (stage.Generator, error) {
	client, err := llm.New(ctx, llm.Config{
		Provider:    role.Provider,
		Model:       role.Model,
		Temperature: role.Temperature,
	})
	if err != nil {
		return nil, err
	}
	return llm.NewPool(client, role.ConcurrencyLimit)
}

// mockGateways builds scripted providers that keep the room chatting
// without network calls.
func mockGateways(sim *config.Simulation) (stage.Generator, stage.Generator) {
	decision := fmt.Sprintf(`{
		"next_agent": %q,
		"action_type": "message",
		"performer_instruction": {
			"objective": "keep the conversation going",
			"motivation": "the room went quiet",
			"strategy": "short and casual"
		},
		"reasoning": "dry run"
	}`, sim.AgentNames[0])
	director := llm.NewMockClient(decision)
	performer := llm.NewMockClient(
		"honestly I keep going back and forth on this",
		"has anyone actually read the whole thing?",
		"fair point, I had not thought of it that way",
	)
	return director, performer
}
