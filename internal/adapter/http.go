package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashita-ai/hyogi/internal/config"
	"github.com/ashita-ai/hyogi/internal/model"
)

// reasoningModelPrefixes select the input/output endpoint shape instead
// of chat completions.
var reasoningModelPrefixes = []string{"o1", "o3", "o4"}

func isReasoningModel(modelID string) bool {
	for _, prefix := range reasoningModelPrefixes {
		if strings.HasPrefix(modelID, prefix) {
			return true
		}
	}
	return false
}

// HTTP speaks an OpenAI-compatible API: chat completions for most
// models, the responses (input -> output) shape for reasoning models.
type HTTP struct {
	name   string
	cfg    config.AdapterConfig
	client *http.Client
	logger *slog.Logger

	// modelOverride replaces the requested model id when this adapter
	// was substituted as a gateway fallback for a missing CLI.
	modelOverride string
}

// NewHTTP builds an HTTP adapter for the named backend.
func NewHTTP(name string, cfg config.AdapterConfig, logger *slog.Logger) *HTTP {
	return &HTTP{
		name:   name,
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout()},
		logger: logger.With("backend", name, "adapter", "http"),
	}
}

func (a *HTTP) Name() string { return a.name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	// MaxTokens is omitted when zero; providers then use model defaults.
	MaxTokens int `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type responsesRequest struct {
	Model  string `json:"model"`
	Input  string `json:"input"`
	Stream bool   `json:"stream"`
	// Effort maps the participant's reasoning_effort hint, when set.
	Reasoning *struct {
		Effort string `json:"effort"`
	} `json:"reasoning,omitempty"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

// Invoke POSTs the prompt and extracts the assistant text, retrying
// 5xx and 429 responses with exponential backoff.
func (a *HTTP) Invoke(ctx context.Context, req InvokeRequest) (string, error) {
	prompt := fullPrompt(req)
	if err := checkPromptLength(prompt, a.cfg.MaxPromptChars); err != nil {
		return "", err
	}

	modelID := req.Model
	if a.modelOverride != "" {
		modelID = a.modelOverride
	}

	for attempt := 0; ; attempt++ {
		text, err := a.post(ctx, modelID, prompt, req.ReasoningEffort)
		if err == nil {
			return text, nil
		}

		var transient *model.TransientError
		if !errors.As(err, &transient) {
			return "", err
		}
		if attempt >= a.cfg.MaxRetries {
			return "", &model.BackendError{Backend: a.name, Msg: transient.Msg}
		}
		a.logger.Warn("transient backend failure, retrying",
			"model", modelID,
			"attempt", attempt+1,
			"max_retries", a.cfg.MaxRetries,
			"error", transient.Msg)
		if err := backoff(ctx, attempt); err != nil {
			return "", err
		}
	}
}

func (a *HTTP) post(ctx context.Context, modelID, prompt, reasoningEffort string) (string, error) {
	endpoint, body, err := a.buildRequest(modelID, prompt, reasoningEffort)
	if err != nil {
		return "", &model.BackendError{Backend: a.name, Msg: "marshal request: " + err.Error()}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &model.BackendError{Backend: a.name, Msg: "create request: " + err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// No key configured means unauthenticated requests, valid for local
	// servers like Ollama or llama-server.
	if a.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}
	for k, v := range a.cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	a.logger.Debug("invocation started", "model", modelID, "endpoint", endpoint)
	resp, err := a.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if isTransient(err.Error()) {
			return "", &model.TransientError{Backend: a.name, Msg: err.Error()}
		}
		return "", &model.BackendError{Backend: a.name, Msg: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", &model.BackendError{Backend: a.name, Msg: "read response: " + err.Error()}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", &model.TransientError{
			Backend: a.name,
			Msg:     fmt.Sprintf("status %d: %s", resp.StatusCode, firstLine(string(payload))),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &model.BackendError{
			Backend: a.name,
			Msg:     fmt.Sprintf("status %d: %s", resp.StatusCode, firstLine(string(payload))),
		}
	}

	text, err := a.parseResponse(modelID, payload)
	if err != nil {
		return "", &model.BackendError{Backend: a.name, Msg: err.Error()}
	}
	a.logger.Debug("invocation done", "model", modelID, "bytes_received", len(payload))
	return text, nil
}

func (a *HTTP) buildRequest(modelID, prompt, reasoningEffort string) (endpoint string, body []byte, err error) {
	if isReasoningModel(modelID) {
		req := responsesRequest{Model: modelID, Input: prompt}
		if reasoningEffort != "" {
			req.Reasoning = &struct {
				Effort string `json:"effort"`
			}{Effort: reasoningEffort}
		}
		body, err = json.Marshal(req)
		return "/responses", body, err
	}

	body, err = json.Marshal(chatRequest{
		Model:    modelID,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Stream:   false,
	})
	return "/chat/completions", body, err
}

func (a *HTTP) parseResponse(modelID string, payload []byte) (string, error) {
	if isReasoningModel(modelID) {
		var parsed responsesResponse
		if err := json.Unmarshal(payload, &parsed); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		for _, item := range parsed.Output {
			if item.Type != "message" {
				continue
			}
			for _, content := range item.Content {
				if content.Type == "output_text" {
					return content.Text, nil
				}
			}
		}
		return "", fmt.Errorf("response contains no output text")
	}

	var parsed chatResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("response has empty 'choices' array")
	}
	choice := parsed.Choices[0]
	if choice.FinishReason == "length" {
		a.logger.Warn("response truncated by token limit", "model", parsed.Model)
	}
	return choice.Message.Content, nil
}
