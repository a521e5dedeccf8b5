package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/stagelab/stagechat/pkg/config"
	"github.com/stagelab/stagechat/pkg/llm"
	"github.com/stagelab/stagechat/pkg/server"
	"github.com/stagelab/stagechat/pkg/stage"
)

func main() {
	_ = godotenv.Load()

	addr := flag.String("addr", ":8080", "Listen address")
	simPath := flag.String("sim", "./config/simulation.toml", "Simulation settings file")
	expPath := flag.String("experiment", "./config/experiment.toml", "Experiment settings file")
	logDir := flag.String("logs", "./data/sessions", "Session log directory")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	sim, err := config.LoadSimulation(*simPath)
	if err != nil {
		logger.Fatal("load simulation config", "error", err)
	}
	experiment, err := config.LoadExperiment(*expPath)
	if err != nil {
		logger.Fatal("load experiment config", "error", err)
	}

	ctx := context.Background()
	director, err := buildGateway(ctx, sim.Director)
	if err != nil {
		logger.Fatal("build director gateway", "error", err)
	}
	performer, err := buildGateway(ctx, sim.Performer)
	if err != nil {
		logger.Fatal("build performer gateway", "error", err)
	}

	srv, err := server.New(server.Options{
		Sim:        sim,
		Experiment: experiment,
		Director:   director,
		Performer:  performer,
		LogDir:     *logDir,
		Log:        logger,
	})
	if err != nil {
		logger.Fatal("build server", "error", err)
	}

	httpServer := &http.Server{Addr: *addr, Handler: srv.Handler()}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")
		srv.Shutdown()
		httpServer.Shutdown(context.Background())
	}()

	logger.Info("listening", "addr", *addr,
		"director", sim.Director.Provider, "performer", sim.Performer.Provider)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server failed", "error", err)
	}
}

// buildGateway creates a provider client wrapped in its concurrency pool.
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
