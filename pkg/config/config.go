// Package config provides YAML-backed configuration for the orchestration
// engine with sensible defaults for every knob.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Model provider identifiers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Config is the root configuration document.
//
//nolint:govet // fieldalignment: YAML shape preferred
type Config struct {
	Model    ModelCfg    `yaml:"model"`
	Budget   BudgetCfg   `yaml:"budget"`
	Diagnose DiagnoseCfg `yaml:"diagnose"`
	Safety   SafetyCfg   `yaml:"safety"`
	Sandbox  SandboxCfg  `yaml:"sandbox"`
	Storage  StorageCfg  `yaml:"storage"`
	EventLog EventLogCfg `yaml:"eventlog"`
	Metrics  MetricsCfg  `yaml:"metrics"`
}

// ModelCfg selects the action proposer backend.
type ModelCfg struct {
	Provider       string `yaml:"provider"`
	Name           string `yaml:"name"`
	MaxReplyTokens int    `yaml:"max_reply_tokens"`
}

// BudgetCfg holds context-budget accounting knobs. The estimation constants
// are deliberately configuration, not hard-coded: the heuristic is
// approximate and should be tuned against the provider's real tokenizer.
type BudgetCfg struct {
	// MaxContextTokens is the estimated-token ceiling that triggers
	// summarization.
	MaxContextTokens int `yaml:"max_context_tokens"`
	// KeepRecentTurns is how many trailing turns summarization never
	// extracts.
	KeepRecentTurns int `yaml:"keep_recent_turns"`
	// CharsPerToken is the characters-per-token divisor of the fallback
	// estimate.
	CharsPerToken int `yaml:"chars_per_token"`
	// ActionSurcharge is the fixed token surcharge per structured action
	// name on a turn.
	ActionSurcharge int `yaml:"action_surcharge"`
}

// DiagnoseCfg holds the repeated-failure heuristic knobs.
type DiagnoseCfg struct {
	// Window is how many recent assistant-turn groups are inspected.
	Window int `yaml:"window"`
	// ErrorRateThreshold is the minimum per-group error rate.
	ErrorRateThreshold float64 `yaml:"error_rate_threshold"`
}

// SafetyCfg controls the pre-execution command safety filter.
type SafetyCfg struct {
	// Enabled turns the filter on. It should be on whenever no separate
	// sandboxed review step exists downstream.
	Enabled bool `yaml:"enabled"`
	// ClassifierTimeout bounds one safety classification round trip; a
	// timed-out check is treated as a classifier failure (fail closed).
	ClassifierTimeout time.Duration `yaml:"classifier_timeout"`
}

// SandboxCfg configures the remote execution environment.
//
//nolint:govet // fieldalignment: YAML shape preferred
type SandboxCfg struct {
	Image          string        `yaml:"image"`
	WorkDir        string        `yaml:"workdir"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
	GitUserName    string        `yaml:"git_user_name"`
	GitUserEmail   string        `yaml:"git_user_email"`
	Resources      ResourceCfg   `yaml:"resources"`
}

// ResourceCfg bounds sandbox resource usage.
type ResourceCfg struct {
	CPUs   string `yaml:"cpus"`
	Memory string `yaml:"memory"`
	PIDs   int64  `yaml:"pids"`
}

// StorageCfg locates the durable SQLite store.
type StorageCfg struct {
	DBPath string `yaml:"db_path"`
}

// EventLogCfg locates the JSONL event log.
type EventLogCfg struct {
	Dir string `yaml:"dir"`
}

// MetricsCfg configures the Prometheus endpoint.
type MetricsCfg struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	root := ProjectRoot()
	return Config{
		Model: ModelCfg{
			Provider:       ProviderAnthropic,
			Name:           "claude-sonnet-4-5",
			MaxReplyTokens: 8192,
		},
		Budget: BudgetCfg{
			MaxContextTokens: 60000,
			KeepRecentTurns:  4,
			CharsPerToken:    4,
			ActionSurcharge:  8,
		},
		Diagnose: DiagnoseCfg{
			Window:             3,
			ErrorRateThreshold: 0.75,
		},
		Safety: SafetyCfg{
			Enabled:           true,
			ClassifierTimeout: 30 * time.Second,
		},
		Sandbox: SandboxCfg{
			Image:          "ubuntu:24.04",
			WorkDir:        "/workspace",
			CommandTimeout: 2 * time.Minute,
			GitUserName:    "codepilot",
			GitUserEmail:   "codepilot@localhost",
			Resources: ResourceCfg{
				CPUs:   "2",
				Memory: "2g",
				PIDs:   1024,
			},
		},
		Storage: StorageCfg{
			DBPath: filepath.Join(root, ".codepilot", "codepilot.db"),
		},
		EventLog: EventLogCfg{
			Dir: filepath.Join(root, "logs"),
		},
		Metrics: MetricsCfg{
			Enabled: false,
			Addr:    ":9090",
		},
	}
}

// Load reads a YAML config file and overlays it on the defaults. A missing
// path returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Budget.MaxContextTokens <= 0 {
		return fmt.Errorf("budget.max_context_tokens must be positive")
	}
	if c.Budget.CharsPerToken <= 0 {
		return fmt.Errorf("budget.chars_per_token must be positive")
	}
	if c.Diagnose.Window < 1 {
		return fmt.Errorf("diagnose.window must be at least 1")
	}
	if c.Diagnose.ErrorRateThreshold <= 0 || c.Diagnose.ErrorRateThreshold > 1 {
		return fmt.Errorf("diagnose.error_rate_threshold must be in (0, 1]")
	}
	switch c.Model.Provider {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown model provider %q", c.Model.Provider)
	}
	return nil
}

// ProjectRoot walks up from the working directory looking for go.mod and
// returns the directory containing it, falling back to the working
// directory itself.
func ProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}
