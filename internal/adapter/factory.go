package adapter

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/ashita-ai/hyogi/internal/config"
)

// Gateway fallback: when a configured CLI is missing from PATH, known
// backends can be served through the multi-provider gateway instead,
// provided its API key is set.
const (
	gatewayBaseURL = "https://openrouter.ai/api/v1"
	gatewayKeyEnv  = "OPENROUTER_API_KEY"
)

var gatewayFallbacks = map[string]string{
	"claude": "anthropic/claude-sonnet-4.5",
	"codex":  "openai/gpt-5-codex",
	"gemini": "google/gemini-2.5-pro",
	"droid":  "anthropic/claude-sonnet-4.5",
}

// New resolves one configured backend to a concrete adapter. The
// decision is deterministic from (type, CLI on PATH?, gateway key
// set?), with no runtime preference chains.
func New(name string, cfg config.AdapterConfig, logger *slog.Logger) (Invoker, error) {
	switch cfg.Type {
	case config.AdapterHTTP:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("adapter %q: base_url is required for type http", name)
		}
		logger.Info("adapter resolved",
			"backend", name, "variant", "http", "base_url", cfg.BaseURL)
		return NewHTTP(name, cfg, logger), nil

	case config.AdapterCLI:
		if commandAvailable(cfg.Command) {
			logger.Info("adapter resolved",
				"backend", name, "variant", "cli", "command", cfg.Command)
			return NewCLI(name, cfg, logger), nil
		}

		fallbackModel, known := gatewayFallbacks[name]
		gatewayKey := os.Getenv(gatewayKeyEnv)
		if known && gatewayKey != "" {
			logger.Info("adapter resolved",
				"backend", name,
				"variant", "http",
				"reason", fmt.Sprintf("command %q not on PATH, using gateway fallback", cfg.Command),
				"fallback_model", fallbackModel)
			gatewayCfg := config.AdapterConfig{
				Type:           config.AdapterHTTP,
				BaseURL:        gatewayBaseURL,
				APIKey:         gatewayKey,
				TimeoutSec:     cfg.TimeoutSec,
				MaxRetries:     cfg.MaxRetries,
				MaxPromptChars: cfg.MaxPromptChars,
			}
			h := NewHTTP(name, gatewayCfg, logger)
			h.modelOverride = fallbackModel
			return h, nil
		}

		if known {
			return nil, fmt.Errorf("adapter %q: command %q not found on PATH; set %s to fall back to the gateway",
				name, cfg.Command, gatewayKeyEnv)
		}
		return nil, fmt.Errorf("adapter %q: command %q not found on PATH and no gateway fallback is known for it",
			name, cfg.Command)

	default:
		return nil, fmt.Errorf("adapter %q: unknown type %q", name, cfg.Type)
	}
}

// BuildAll resolves every configured backend, logging the decision per
// backend. Individual failures are logged and skipped; at least one
// adapter must resolve.
func BuildAll(cfgs map[string]config.AdapterConfig, logger *slog.Logger) (map[string]Invoker, error) {
	names := make([]string, 0, len(cfgs))
	for name := range cfgs {
		names = append(names, name)
	}
	sort.Strings(names)

	adapters := make(map[string]Invoker, len(cfgs))
	for _, name := range names {
		inv, err := New(name, cfgs[name], logger)
		if err != nil {
			logger.Error("failed to resolve adapter", "backend", name, "error", err)
			continue
		}
		adapters[name] = inv
	}
	if len(adapters) == 0 {
		return nil, fmt.Errorf("adapter: no configured backend could be resolved")
	}
	return adapters, nil
}
