// Package config loads and validates the TOML configuration files.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// RoleLLM configures the provider behind one pipeline role.
type RoleLLM struct {
	Provider         string  `mapstructure:"provider"`
	Model            string  `mapstructure:"model"`
	Temperature      float64 `mapstructure:"temperature"`
	ConcurrencyLimit int64   `mapstructure:"concurrency_limit"`
}

// Simulation holds the session mechanics settings.
type Simulation struct {
	AgentNames      []string           `mapstructure:"agent_names"`
	AgentChattiness map[string]float64 `mapstructure:"agent_chattiness"`
	AgentStyles     map[string]string  `mapstructure:"agent_styles"`

	SessionDurationMinutes  int     `mapstructure:"session_duration_minutes"`
	MessagesPerMinute       float64 `mapstructure:"messages_per_minute"`
	UserResponseProbability float64 `mapstructure:"user_response_probability"`
	ContextWindowSize       int     `mapstructure:"context_window_size"`
	TypingDelayMaxSeconds   float64 `mapstructure:"typing_delay_max_seconds"`
	RandomSeed              int64   `mapstructure:"random_seed"`

	AttentionDecay     float64 `mapstructure:"attention_decay"`
	AddressBoost       float64 `mapstructure:"address_boost"`
	SpeakBoost         float64 `mapstructure:"speak_boost"`
	WeightFloor        float64 `mapstructure:"weight_floor"`
	ForceTargetMention bool    `mapstructure:"force_target_mention"`

	Director  RoleLLM `mapstructure:"director"`
	Performer RoleLLM `mapstructure:"performer"`
}

// SeedContent configures scenario seed material.
type SeedContent struct {
	Type     string `mapstructure:"type"`
	Headline string `mapstructure:"headline"`
	Source   string `mapstructure:"source"`
	Body     string `mapstructure:"body"`
}

// TreatmentGroup is one experimental condition.
type TreatmentGroup struct {
	Treatment string      `mapstructure:"treatment"`
	Scenario  string      `mapstructure:"scenario"`
	Seed      SeedContent `mapstructure:"seed"`
}

// Experiment holds the experimental settings shared across sessions.
type Experiment struct {
	ChatroomContext string                    `mapstructure:"chatroom_context"`
	Groups          map[string]TreatmentGroup `mapstructure:"groups"`
}

// LoadSimulation reads and validates a simulation settings TOML file.
func LoadSimulation(path string) (*Simulation, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	v.SetDefault("session_duration_minutes", 15)
	v.SetDefault("messages_per_minute", 4.0)
	v.SetDefault("user_response_probability", 0.8)
	v.SetDefault("context_window_size", 10)
	v.SetDefault("typing_delay_max_seconds", 15.0)
	v.SetDefault("attention_decay", 0.9)
	v.SetDefault("address_boost", 0.3)
	v.SetDefault("speak_boost", 0.6)
	v.SetDefault("weight_floor", 0.05)
	v.SetDefault("director.provider", "gemini")
	v.SetDefault("director.temperature", -1.0)
	v.SetDefault("director.concurrency_limit", 4)
	v.SetDefault("performer.provider", "gemini")
	v.SetDefault("performer.temperature", -1.0)
	v.SetDefault("performer.concurrency_limit", 8)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read simulation config: %w", err)
	}
	cfg := &Simulation{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse simulation config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges. A failure here is the only error class
// allowed to abort session construction.
func (c *Simulation) Validate() error {
	if len(c.AgentNames) == 0 {
		return fmt.Errorf("agent_names must not be empty")
	}
	seen := make(map[string]bool, len(c.AgentNames))
	for _, name := range c.AgentNames {
		if name == "" {
			return fmt.Errorf("agent_names must not contain empty names")
		}
		if seen[name] {
			return fmt.Errorf("duplicate agent name %q", name)
		}
		seen[name] = true
	}
	if c.SessionDurationMinutes <= 0 {
		return fmt.Errorf("session_duration_minutes must be positive")
	}
	if c.MessagesPerMinute <= 0 {
		return fmt.Errorf("messages_per_minute must be positive")
	}
	if c.UserResponseProbability < 0 || c.UserResponseProbability > 1 {
		return fmt.Errorf("user_response_probability must be in [0,1]")
	}
	if c.AttentionDecay <= 0 || c.AttentionDecay >= 1 {
		return fmt.Errorf("attention_decay must be in (0,1)")
	}
	if c.AddressBoost < 0 || c.AddressBoost > 1 {
		return fmt.Errorf("address_boost must be in [0,1]")
	}
	if c.SpeakBoost < 0 || c.SpeakBoost > 1 {
		return fmt.Errorf("speak_boost must be in [0,1]")
	}
	if c.WeightFloor <= 0 {
		return fmt.Errorf("weight_floor must be positive")
	}
	for name, chattiness := range c.AgentChattiness {
		if chattiness < 0 || chattiness > 1 {
			return fmt.Errorf("agent_chattiness[%s] must be in [0,1]", name)
		}
	}
	if c.Director.ConcurrencyLimit <= 0 {
		return fmt.Errorf("director.concurrency_limit must be positive")
	}
	if c.Performer.ConcurrencyLimit <= 0 {
		return fmt.Errorf("performer.concurrency_limit must be positive")
	}
	return nil
}

// LoadExperiment reads and validates an experimental settings TOML file.
func LoadExperiment(path string) (*Experiment, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read experiment config: %w", err)
	}
	cfg := &Experiment{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse experiment config: %w", err)
	}
	if len(cfg.Groups) == 0 {
		return nil, fmt.Errorf("experiment config must define at least one treatment group")
	}
	for name, group := range cfg.Groups {
		if group.Treatment == "" {
			return nil, fmt.Errorf("treatment group %q has no treatment description", name)
		}
	}
	return cfg, nil
}

// Group resolves a treatment group by name.
func (e *Experiment) Group(name string) (*TreatmentGroup, error) {
	group, ok := e.Groups[name]
	if !ok {
		return nil, fmt.Errorf("treatment group %q not found", name)
	}
	return &group, nil
}
