// Package config loads and validates application configuration from a
// YAML file plus environment variables.
//
// String fields may reference environment variables as ${VAR}; a
// reference to an unset variable is a load error, never a silent empty
// string.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// AdapterType discriminates the two adapter variants.
type AdapterType string

const (
	AdapterCLI  AdapterType = "cli"
	AdapterHTTP AdapterType = "http"
)

// AdapterConfig configures one backend adapter, keyed by backend id.
type AdapterConfig struct {
	Type AdapterType `yaml:"type"`

	// CLI variant.
	Command string   `yaml:"command,omitempty"`
	Args    []string `yaml:"args,omitempty"`

	// HTTP variant.
	BaseURL string            `yaml:"base_url,omitempty"`
	APIKey  string            `yaml:"api_key,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`

	// Shared.
	TimeoutSec         int `yaml:"timeout"`
	ActivityTimeoutSec int `yaml:"activity_timeout,omitempty"`
	MaxRetries         int `yaml:"max_retries,omitempty"`
	MaxPromptChars     int `yaml:"max_prompt_chars,omitempty"`
}

// Timeout returns the hard timeout for one invocation.
func (a AdapterConfig) Timeout() time.Duration {
	if a.TimeoutSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(a.TimeoutSec) * time.Second
}

// ActivityTimeout returns the no-output kill threshold for CLI
// adapters. Defaults to the hard timeout when unset.
func (a AdapterConfig) ActivityTimeout() time.Duration {
	if a.ActivityTimeoutSec <= 0 {
		return a.Timeout()
	}
	return time.Duration(a.ActivityTimeoutSec) * time.Second
}

// LegacyCLIConfig is the deprecated cli_tools entry shape: a CLI
// adapter without the explicit type discriminator.
type LegacyCLIConfig struct {
	Command    string   `yaml:"command"`
	Args       []string `yaml:"args"`
	TimeoutSec int      `yaml:"timeout"`
}

// DefaultsConfig holds request defaults.
type DefaultsConfig struct {
	Mode               string `yaml:"mode"`
	Rounds             int    `yaml:"rounds"`
	MaxRounds          int    `yaml:"max_rounds"`
	TimeoutPerRoundSec int    `yaml:"timeout_per_round"`
}

// StorageConfig holds transcript output settings.
type StorageConfig struct {
	TranscriptsDir string `yaml:"transcripts_dir"`
	Format         string `yaml:"format"`
	AutoExport     bool   `yaml:"auto_export"`
}

// ConvergenceConfig controls semantic convergence detection.
type ConvergenceConfig struct {
	Enabled                     bool    `yaml:"enabled"`
	SemanticSimilarityThreshold float64 `yaml:"semantic_similarity_threshold"`
	DivergenceThreshold         float64 `yaml:"divergence_threshold"`
	MinRoundsBeforeCheck        int     `yaml:"min_rounds_before_check"`
	ConsecutiveStableRounds     int     `yaml:"consecutive_stable_rounds"`
	StanceStabilityThreshold    float64 `yaml:"stance_stability_threshold"`
	ResponseLengthDropThreshold float64 `yaml:"response_length_drop_threshold"`
}

// EarlyStoppingConfig controls model-controlled early stopping.
type EarlyStoppingConfig struct {
	Enabled bool `yaml:"enabled"`
	// Threshold is the fraction of a round's votes that must set
	// continue_debate=false (0.66 = two thirds).
	Threshold float64 `yaml:"threshold"`
	// RespectMinRounds delays stopping until
	// convergence_detection.min_rounds_before_check rounds have run.
	RespectMinRounds bool `yaml:"respect_min_rounds"`
}

// DeliberationConfig groups engine tuning.
type DeliberationConfig struct {
	ConvergenceDetection ConvergenceConfig   `yaml:"convergence_detection"`
	EarlyStopping        EarlyStoppingConfig `yaml:"early_stopping"`
}

// TierBoundaries sets the similarity cut lines for context formatting.
type TierBoundaries struct {
	Strong   float64 `yaml:"strong"`
	Moderate float64 `yaml:"moderate"`
}

// DecisionGraphConfig controls the persistent decision memory.
type DecisionGraphConfig struct {
	Enabled             bool           `yaml:"enabled"`
	DBPath              string         `yaml:"db_path"`
	ContextTokenBudget  int            `yaml:"context_token_budget"`
	TierBoundaries      TierBoundaries `yaml:"tier_boundaries"`
	QueryWindow         int            `yaml:"query_window"`
	MaxContextDecisions int            `yaml:"max_context_decisions"`
	ComputeSimilarities bool           `yaml:"compute_similarities"`
}

// MCPConfig controls the response shape on the MCP surface.
type MCPConfig struct {
	// MaxRoundsInResponse caps how many trailing rounds of full_debate
	// are inlined in the RPC response; the transcript keeps the rest.
	MaxRoundsInResponse int `yaml:"max_rounds_in_response"`
}

// Config is the root configuration.
type Config struct {
	Version string `yaml:"version"`

	// Adapters is the current backend table. CLITools is the legacy
	// section, still accepted with a deprecation warning; entries under
	// Adapters win on key collision.
	Adapters map[string]AdapterConfig   `yaml:"adapters"`
	CLITools map[string]LegacyCLIConfig `yaml:"cli_tools"`

	// ModelRegistry lists recommended model ids per backend. Unknown
	// models warn, never fail.
	ModelRegistry map[string][]string `yaml:"model_registry"`

	Defaults      DefaultsConfig      `yaml:"defaults"`
	Storage       StorageConfig       `yaml:"storage"`
	Deliberation  DeliberationConfig  `yaml:"deliberation"`
	DecisionGraph DecisionGraphConfig `yaml:"decision_graph"`
	MCP           MCPConfig           `yaml:"mcp"`
}

var envRefPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv resolves ${VAR} references in s. An unset variable is an
// error so a missing API key fails at startup, not mid-deliberation.
func expandEnv(s string) (string, error) {
	var missing string
	out := envRefPattern.ReplaceAllStringFunc(s, func(ref string) string {
		name := envRefPattern.FindStringSubmatch(ref)[1]
		v, ok := os.LookupEnv(name)
		if !ok {
			missing = name
			return ref
		}
		return v
	})
	if missing != "" {
		return "", fmt.Errorf("config: environment variable %q is not set", missing)
	}
	return out, nil
}

// Load reads, expands, defaults, and validates the configuration file.
func Load(path string, logger *slog.Logger) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data, logger)
}

// Parse is Load without the file read; tests feed YAML directly.
func Parse(data []byte, logger *slog.Logger) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}

	if len(cfg.Adapters) == 0 && len(cfg.CLITools) == 0 {
		return Config{}, fmt.Errorf("config: must include an 'adapters' or 'cli_tools' section")
	}

	// Fold the legacy section in. Adapters entries take precedence.
	if len(cfg.CLITools) > 0 {
		if logger != nil {
			logger.Warn("config: 'cli_tools' section is deprecated, migrate entries to 'adapters' with type: cli")
		}
		if cfg.Adapters == nil {
			cfg.Adapters = make(map[string]AdapterConfig, len(cfg.CLITools))
		}
		for name, legacy := range cfg.CLITools {
			if _, exists := cfg.Adapters[name]; exists {
				continue
			}
			cfg.Adapters[name] = AdapterConfig{
				Type:       AdapterCLI,
				Command:    legacy.Command,
				Args:       legacy.Args,
				TimeoutSec: legacy.TimeoutSec,
			}
		}
	}

	for name, a := range cfg.Adapters {
		expanded, err := a.expand()
		if err != nil {
			return Config{}, fmt.Errorf("config: adapter %q: %w", name, err)
		}
		cfg.Adapters[name] = expanded
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// expand resolves ${VAR} references in the adapter's string fields.
// APIKey is the one field allowed to stay empty: an adapter without a
// key sends unauthenticated requests.
func (a AdapterConfig) expand() (AdapterConfig, error) {
	var err error
	if a.BaseURL, err = expandEnv(a.BaseURL); err != nil {
		return a, err
	}
	if a.APIKey != "" {
		key, err := expandEnv(a.APIKey)
		if err != nil {
			return a, err
		}
		a.APIKey = key
	}
	for k, v := range a.Headers {
		if a.Headers[k], err = expandEnv(v); err != nil {
			return a, err
		}
	}
	return a, nil
}

func (c *Config) applyDefaults() {
	if c.Defaults.Mode == "" {
		c.Defaults.Mode = "quick"
	}
	if c.Defaults.Rounds == 0 {
		c.Defaults.Rounds = 2
	}
	if c.Defaults.MaxRounds == 0 {
		c.Defaults.MaxRounds = 5
	}
	if c.Storage.TranscriptsDir == "" {
		c.Storage.TranscriptsDir = "transcripts"
	}
	if c.Storage.Format == "" {
		c.Storage.Format = "markdown"
	}

	cd := &c.Deliberation.ConvergenceDetection
	if cd.SemanticSimilarityThreshold == 0 {
		cd.SemanticSimilarityThreshold = 0.85
	}
	if cd.DivergenceThreshold == 0 {
		cd.DivergenceThreshold = 0.40
	}
	if cd.MinRoundsBeforeCheck == 0 {
		cd.MinRoundsBeforeCheck = 2
	}
	es := &c.Deliberation.EarlyStopping
	if es.Threshold == 0 {
		es.Threshold = 0.66
	}

	dg := &c.DecisionGraph
	if dg.DBPath == "" {
		dg.DBPath = "decision_graph.db"
	}
	if dg.ContextTokenBudget == 0 {
		dg.ContextTokenBudget = 1500
	}
	if dg.TierBoundaries.Strong == 0 {
		dg.TierBoundaries.Strong = 0.75
	}
	if dg.TierBoundaries.Moderate == 0 {
		dg.TierBoundaries.Moderate = 0.60
	}
	if dg.QueryWindow == 0 {
		dg.QueryWindow = 1000
	}
	if dg.MaxContextDecisions == 0 {
		dg.MaxContextDecisions = 3
	}

	if c.MCP.MaxRoundsInResponse == 0 {
		c.MCP.MaxRoundsInResponse = 3
	}
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	for name, a := range c.Adapters {
		switch a.Type {
		case AdapterCLI:
			if a.Command == "" {
				return fmt.Errorf("config: adapter %q: command is required for type cli", name)
			}
		case AdapterHTTP:
			if a.BaseURL == "" {
				return fmt.Errorf("config: adapter %q: base_url is required for type http", name)
			}
		default:
			return fmt.Errorf("config: adapter %q: unknown type %q", name, a.Type)
		}
	}

	es := c.Deliberation.EarlyStopping
	if es.Threshold < 0 || es.Threshold > 1 {
		return fmt.Errorf("config: early_stopping.threshold must be in [0,1], got %v", es.Threshold)
	}
	cd := c.Deliberation.ConvergenceDetection
	if cd.SemanticSimilarityThreshold < 0 || cd.SemanticSimilarityThreshold > 1 {
		return fmt.Errorf("config: convergence semantic_similarity_threshold must be in [0,1], got %v", cd.SemanticSimilarityThreshold)
	}
	if cd.DivergenceThreshold < 0 || cd.DivergenceThreshold > 1 {
		return fmt.Errorf("config: convergence divergence_threshold must be in [0,1], got %v", cd.DivergenceThreshold)
	}

	tb := c.DecisionGraph.TierBoundaries
	if !(0 < tb.Moderate && tb.Moderate < tb.Strong && tb.Strong <= 1) {
		return fmt.Errorf("config: tier_boundaries must satisfy 0 < moderate < strong <= 1, got moderate=%v strong=%v", tb.Moderate, tb.Strong)
	}
	return nil
}
