package deliberation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ashita-ai/hyogi/internal/adapter"
	"github.com/ashita-ai/hyogi/internal/model"
)

// summarizerPreference orders backends for summary generation; the
// first one that resolved at startup wins. Anything outside the list
// is considered afterwards in name order.
var summarizerPreference = []string{"claude", "codex", "gemini", "droid"}

// Summarizer asks one backend to synthesize a finished debate into a
// structured Summary. Failures never fail the deliberation: the
// fallback is a placeholder built from the final round.
type Summarizer struct {
	invoker adapter.Invoker
	modelID string
	logger  *slog.Logger
}

// NewSummarizer picks the summarizing backend from the resolved
// adapter set. The model id comes from the registry's first entry for
// that backend, when present.
func NewSummarizer(adapters map[string]adapter.Invoker, registry map[string][]string, logger *slog.Logger) *Summarizer {
	s := &Summarizer{logger: logger}

	candidates := make([]string, 0, len(adapters))
	for _, name := range summarizerPreference {
		if _, ok := adapters[name]; ok {
			candidates = append(candidates, name)
		}
	}
	var rest []string
	for name := range adapters {
		if !contains(summarizerPreference, name) {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	candidates = append(candidates, rest...)

	if len(candidates) == 0 {
		logger.Warn("no adapter available for summaries, placeholders will be used")
		return s
	}

	name := candidates[0]
	s.invoker = adapters[name]
	if models := registry[name]; len(models) > 0 {
		s.modelID = models[0]
	}
	logger.Info("summarizer selected", "backend", name, "model", s.modelID)
	return s
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

const summaryPromptHeader = `Summarize the following multi-model deliberation. Respond with ONLY a JSON object of this exact shape:
{"consensus": "...", "key_agreements": ["..."], "key_disagreements": ["..."], "final_recommendation": "..."}

Question: %s

Debate:
%s`

// Summarize produces the Summary for a finished debate. Any failure
// (no adapter, invocation error, unparseable output) degrades to a
// placeholder; it never returns an error.
func (s *Summarizer) Summarize(ctx context.Context, question string, responses []model.RoundResponse) model.Summary {
	if s.invoker == nil {
		return placeholderSummary(responses)
	}

	prompt := fmt.Sprintf(summaryPromptHeader, question, buildContext(responses))
	out, err := s.invoker.Invoke(ctx, adapter.InvokeRequest{Prompt: prompt, Model: s.modelID})
	if err != nil {
		s.logger.Warn("summary generation failed, using placeholder", "error", err)
		return placeholderSummary(responses)
	}

	summary, ok := parseSummary(out)
	if !ok {
		s.logger.Warn("summary output not parseable, using placeholder",
			"backend", s.invoker.Name())
		return placeholderSummary(responses)
	}
	return summary
}

// parseSummary decodes the first JSON object in the output, tolerating
// prose or code fences around it.
func parseSummary(out string) (model.Summary, bool) {
	start := strings.IndexByte(out, '{')
	if start < 0 {
		return model.Summary{}, false
	}
	var summary model.Summary
	dec := json.NewDecoder(strings.NewReader(out[start:]))
	if err := dec.Decode(&summary); err != nil {
		return model.Summary{}, false
	}
	if summary.Consensus == "" && summary.FinalRecommendation == "" {
		return model.Summary{}, false
	}
	if summary.KeyAgreements == nil {
		summary.KeyAgreements = []string{}
	}
	if summary.KeyDisagreements == nil {
		summary.KeyDisagreements = []string{}
	}
	return summary, true
}

// placeholderSummary stands in when no summarizing backend is usable.
// The final usable response doubles as the recommendation so the
// transcript still points somewhere.
func placeholderSummary(responses []model.RoundResponse) model.Summary {
	recommendation := "See the full debate transcript."
	for i := len(responses) - 1; i >= 0; i-- {
		if !isErrorSlot(responses[i].Response) {
			recommendation = truncateText(responses[i].Response, 300)
			break
		}
	}
	return model.Summary{
		Consensus:           "Summary unavailable",
		KeyAgreements:       []string{},
		KeyDisagreements:    []string{},
		FinalRecommendation: recommendation,
	}
}

func truncateText(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
