package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/hyogi/internal/config"
	"github.com/ashita-ai/hyogi/internal/model"
)

func cliConfig(command string, args ...string) config.AdapterConfig {
	return config.AdapterConfig{
		Type:       config.AdapterCLI,
		Command:    command,
		Args:       args,
		TimeoutSec: 30,
	}
}

func TestCLIInvokeEchoesPrompt(t *testing.T) {
	a := NewCLI("echo", cliConfig("echo", "{prompt}"), testLogger())

	out, err := a.Invoke(context.Background(), InvokeRequest{Prompt: "hello deliberation", Model: "m1"})
	require.NoError(t, err)
	assert.Equal(t, "hello deliberation", out)
}

func TestCLISubstitutesPlaceholders(t *testing.T) {
	a := NewCLI("echo", cliConfig("echo", "{model}|{reasoning_effort}|{prompt}"), testLogger())

	out, err := a.Invoke(context.Background(), InvokeRequest{
		Prompt:          "q",
		Model:           "m1",
		ReasoningEffort: "high",
	})
	require.NoError(t, err)
	assert.Equal(t, "m1|high|q", out)
}

func TestCLIPrependsContext(t *testing.T) {
	a := NewCLI("echo", cliConfig("echo", "{prompt}"), testLogger())

	out, err := a.Invoke(context.Background(), InvokeRequest{Prompt: "question", Context: "prior rounds", Model: "m1"})
	require.NoError(t, err)
	assert.Equal(t, "prior rounds\n\nquestion", out)
}

func TestCLIPromptLengthLimit(t *testing.T) {
	cfg := cliConfig("echo", "{prompt}")
	cfg.MaxPromptChars = 5
	a := NewCLI("echo", cfg, testLogger())

	_, err := a.Invoke(context.Background(), InvokeRequest{Prompt: "far too long for the limit", Model: "m1"})
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestCLINonZeroExitSurfacesStderr(t *testing.T) {
	a := NewCLI("sh", cliConfig("sh", "-c", "echo 'invalid API key' >&2; exit 1"), testLogger())

	_, err := a.Invoke(context.Background(), InvokeRequest{Prompt: "q", Model: "m1"})
	var berr *model.BackendError
	require.ErrorAs(t, err, &berr)
	assert.Contains(t, berr.Msg, "invalid API key")
}

func TestCLITransientExhaustsIntoBackendError(t *testing.T) {
	cfg := cliConfig("sh", "-c", "echo 'rate limit exceeded' >&2; exit 1")
	cfg.MaxRetries = 1
	a := NewCLI("sh", cfg, testLogger())

	start := time.Now()
	_, err := a.Invoke(context.Background(), InvokeRequest{Prompt: "q", Model: "m1"})
	var berr *model.BackendError
	require.ErrorAs(t, err, &berr)
	assert.Contains(t, berr.Msg, "rate limit")
	assert.GreaterOrEqual(t, time.Since(start), time.Second, "one retry implies one backoff sleep")
}

func TestCLIActivityTimeout(t *testing.T) {
	cfg := cliConfig("sleep", "10")
	cfg.TimeoutSec = 30
	cfg.ActivityTimeoutSec = 1
	a := NewCLI("sleep", cfg, testLogger())

	start := time.Now()
	_, err := a.Invoke(context.Background(), InvokeRequest{Prompt: "q", Model: "m1"})
	var terr *model.TimeoutError
	require.ErrorAs(t, err, &terr)
	assert.True(t, terr.Activity)
	assert.Less(t, time.Since(start), 5*time.Second, "killed well before the sleep finishes")
}

func TestCLIHardTimeout(t *testing.T) {
	// Keeps producing output so the activity timeout never fires.
	cfg := cliConfig("sh", "-c", "while true; do echo tick; sleep 0.2; done")
	cfg.TimeoutSec = 1
	cfg.ActivityTimeoutSec = 60
	a := NewCLI("sh", cfg, testLogger())

	start := time.Now()
	_, err := a.Invoke(context.Background(), InvokeRequest{Prompt: "q", Model: "m1"})
	var terr *model.TimeoutError
	require.ErrorAs(t, err, &terr)
	assert.False(t, terr.Activity)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCLIContextCancellation(t *testing.T) {
	a := NewCLI("sleep", cliConfig("sleep", "10"), testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := a.Invoke(ctx, InvokeRequest{Prompt: "q", Model: "m1"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCLIParsesClaudeBanner(t *testing.T) {
	a := NewCLI("claude", cliConfig("sh", "-c", "printf 'Claude Code v2.1\\nThe answer.\\n'"), testLogger())

	out, err := a.Invoke(context.Background(), InvokeRequest{Prompt: "q", Model: "m1"})
	require.NoError(t, err)
	assert.Equal(t, "The answer.", out)
}
