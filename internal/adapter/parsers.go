package adapter

import "strings"

// outputParser cleans one command's idiosyncratic stdout into response
// text. Parsers strip banners and metadata but never touch code blocks
// or interior structure.
type outputParser func(raw string) string

// parserFor returns the cleaner for a backend id. Backends without a
// registered cleaner get a plain whitespace trim, which is correct for
// codex, gemini, and droid.
func parserFor(backend string) outputParser {
	switch backend {
	case "claude":
		return parseClaudeOutput
	case "llamacpp":
		return parseLlamaCppOutput
	default:
		return parsePlainOutput
	}
}

func parsePlainOutput(raw string) string {
	return strings.TrimSpace(raw)
}

// parseClaudeOutput skips the CLI's startup banner: everything up to
// the first substantial line that is not version/loading chatter.
func parseClaudeOutput(raw string) string {
	lines := strings.Split(strings.TrimSpace(raw), "\n")

	start := 0
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)
		if strings.Contains(lower, "claude code") ||
			strings.Contains(lower, "loading") ||
			strings.Contains(lower, "version") ||
			strings.Contains(lower, "initializing") {
			continue
		}
		start = i
		break
	}
	return strings.TrimSpace(strings.Join(lines[start:], "\n"))
}

// llamaCppMetadataPrefixes mark the loader/timing lines llama-cli
// prints around the actual generation.
var llamaCppMetadataPrefixes = []string{
	"llama_model_loader:",
	"llm_load_print_meta:",
	"llm_load_tensors:",
	"llama_new_context_with_model:",
	"llama_kv_cache_init:",
	"llama_print_timings:",
	"sampling:",
	"generate:",
	"system_info:",
}

func parseLlamaCppOutput(raw string) string {
	var kept []string
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		trimmed := strings.TrimSpace(line)
		metadata := false
		for _, prefix := range llamaCppMetadataPrefixes {
			if strings.HasPrefix(trimmed, prefix) {
				metadata = true
				break
			}
		}
		if !metadata {
			kept = append(kept, line)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
