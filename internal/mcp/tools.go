package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/hyogi/internal/graph"
	"github.com/ashita-ai/hyogi/internal/model"
)

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcplib.NewTool("deliberate",
			mcplib.WithDescription(`Run a structured multi-round deliberation between AI models.

WHEN TO USE: For decisions that benefit from more than one model's
judgement, such as architecture choices, trade-offs, and risk
assessments.

Participants debate the question over one or more rounds, see each
other's prior positions, and may cast structured votes. The result
includes the vote tally, convergence analysis, a summary, and the path
to the full markdown transcript.`),
			mcplib.WithString("question",
				mcplib.Description("The question to deliberate. At least 10 characters."),
				mcplib.Required(),
			),
			mcplib.WithArray("participants",
				mcplib.Description(`Participants as objects: {"backend": "claude", "model": "sonnet", "stance": "neutral|for|against"}. At least 2.`),
				mcplib.Required(),
			),
			mcplib.WithNumber("rounds",
				mcplib.Description("Number of rounds (conference mode only)"),
				mcplib.Min(1),
				mcplib.Max(5),
			),
			mcplib.WithString("mode",
				mcplib.Description("quick = one independent round, conference = multi-round debate"),
			),
			mcplib.WithString("context",
				mcplib.Description("Optional background the participants should see on round 1"),
			),
			mcplib.WithString("working_directory",
				mcplib.Description("Directory participants' tool requests run in"),
			),
		),
		s.handleDeliberate,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("query_decisions",
			mcplib.WithDescription(`Query past deliberations in the decision graph.

Exactly one mode per call:
- query_text: find past decisions similar to a question
- find_contradictions=true: find similar decisions that settled on different options
- decision_id: trace how thinking around one decision evolved over time`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("query_text",
				mcplib.Description("Natural language question to match against past decisions"),
			),
			mcplib.WithBoolean("find_contradictions",
				mcplib.Description("Report pairs of similar decisions with conflicting outcomes"),
			),
			mcplib.WithString("decision_id",
				mcplib.Description("Decision UUID to trace the evolution of"),
			),
			mcplib.WithString("scope",
				mcplib.Description("Optional topic filter for contradiction search"),
			),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum results to return"),
				mcplib.Min(1),
				mcplib.Max(100),
				mcplib.DefaultNumber(5),
			),
			mcplib.WithString("format",
				mcplib.Description("summary (condensed) or full (complete records)"),
			),
		),
		s.handleQueryDecisions,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("analyze_decisions",
			mcplib.WithDescription(`Aggregate analysis over the decision graph: totals, per-participant
voting patterns (vote counts, average confidence, preferred options),
convergence statistics, and participation metrics.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("participant",
				mcplib.Description("Optional: restrict voting patterns to one participant (model@backend)"),
			),
		),
		s.handleAnalyzeDecisions,
	)
}

// deliberateResponse is the RPC shape: the result plus truncation and
// storage-warning markers that exist only on the wire.
type deliberateResponse struct {
	model.DeliberationResult
	FullDebateTruncated bool   `json:"full_debate_truncated,omitempty"`
	TotalRounds         int    `json:"total_rounds,omitempty"`
	StorageWarning      string `json:"storage_warning,omitempty"`
}

func (s *Server) handleDeliberate(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	question := request.GetString("question", "")
	if question == "" {
		return errorResult("question is required"), nil
	}

	participants, err := parseParticipants(request.GetArguments()["participants"])
	if err != nil {
		return errorResult(err.Error()), nil
	}
	for _, p := range participants {
		if _, ok := s.cfg.Adapters[p.Backend]; !ok {
			return errorResult(fmt.Sprintf("unknown backend %q; configured backends are listed in the adapters section", p.Backend)), nil
		}
		if known := s.cfg.ModelRegistry[p.Backend]; len(known) > 0 && !containsString(known, p.Model) {
			s.logger.Warn("model not in registry for backend",
				"backend", p.Backend, "model", p.Model, "known", known)
		}
	}

	req := model.DeliberateRequest{
		Question:     question,
		Participants: participants,
		Rounds:       request.GetInt("rounds", s.cfg.Defaults.Rounds),
		Mode:         model.Mode(request.GetString("mode", s.cfg.Defaults.Mode)),
		Context:      request.GetString("context", ""),
		WorkingDir:   request.GetString("working_directory", ""),
	}

	result, err := s.engine.Run(ctx, req)
	if err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			return errorResult(err.Error()), nil
		}
		var serr *model.StorageError
		if !errors.As(err, &serr) {
			return errorResult(fmt.Sprintf("deliberation failed: %v", err)), nil
		}
		// The deliberation finished; only the graph write failed.
		return jsonResult(truncateDebate(result, s.cfg.MCP.MaxRoundsInResponse, err.Error())), nil
	}
	return jsonResult(truncateDebate(result, s.cfg.MCP.MaxRoundsInResponse, "")), nil
}

// truncateDebate caps full_debate to the last maxRounds rounds; the
// transcript file keeps everything.
func truncateDebate(result model.DeliberationResult, maxRounds int, storageWarning string) deliberateResponse {
	resp := deliberateResponse{DeliberationResult: result, StorageWarning: storageWarning}
	if maxRounds <= 0 || result.RoundsCompleted <= maxRounds {
		return resp
	}

	cutoff := result.RoundsCompleted - maxRounds
	kept := make([]model.RoundResponse, 0, len(result.FullDebate))
	for _, r := range result.FullDebate {
		if r.Round > cutoff {
			kept = append(kept, r)
		}
	}
	resp.FullDebate = kept
	resp.FullDebateTruncated = true
	resp.TotalRounds = result.RoundsCompleted
	return resp
}

func parseParticipants(raw any) ([]model.Participant, error) {
	if raw == nil {
		return nil, fmt.Errorf("participants is required")
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("participants: %v", err)
	}
	var participants []model.Participant
	if err := json.Unmarshal(data, &participants); err != nil {
		return nil, fmt.Errorf("participants must be an array of {backend, model, stance} objects: %v", err)
	}
	return participants, nil
}

func (s *Server) handleQueryDecisions(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if s.query == nil {
		return errorResult("decision graph is disabled in configuration"), nil
	}

	queryText := request.GetString("query_text", "")
	findContradictions := request.GetBool("find_contradictions", false)
	decisionID := request.GetString("decision_id", "")
	limit := request.GetInt("limit", 5)

	modes := 0
	if queryText != "" {
		modes++
	}
	if findContradictions {
		modes++
	}
	if decisionID != "" {
		modes++
	}
	if modes != 1 {
		return errorResult("exactly one of query_text, find_contradictions, decision_id must be set"), nil
	}

	switch {
	case queryText != "":
		return s.querySimilar(ctx, queryText, limit, request.GetString("format", "summary"))
	case findContradictions:
		contradictions, err := s.query.FindContradictions(ctx, request.GetString("scope", ""), 0, limit)
		if err != nil {
			return errorResult(fmt.Sprintf("contradiction search failed: %v", err)), nil
		}
		return jsonResult(map[string]any{
			"contradictions": contradictions,
			"total":          len(contradictions),
		}), nil
	default:
		id, err := uuid.Parse(decisionID)
		if err != nil {
			return errorResult(fmt.Sprintf("decision_id is not a valid UUID: %v", err)), nil
		}
		timeline, err := s.query.TraceEvolution(ctx, id)
		if errors.Is(err, graph.ErrNotFound) {
			return errorResult(fmt.Sprintf("decision %s not found", decisionID)), nil
		}
		if err != nil {
			return errorResult(fmt.Sprintf("evolution trace failed: %v", err)), nil
		}
		return jsonResult(timeline), nil
	}
}

func (s *Server) querySimilar(ctx context.Context, queryText string, limit int, format string) (*mcplib.CallToolResult, error) {
	matches, err := s.query.FindSimilar(ctx, queryText, graph.NoiseFloor, limit)
	if err != nil {
		return errorResult(fmt.Sprintf("similarity search failed: %v", err)), nil
	}

	if format == "full" {
		return jsonResult(map[string]any{"results": matches, "total": len(matches)}), nil
	}

	type entry struct {
		ID            uuid.UUID `json:"id"`
		Question      string    `json:"question"`
		Consensus     string    `json:"consensus"`
		WinningOption *string   `json:"winning_option,omitempty"`
		Score         float64   `json:"score"`
	}
	entries := make([]entry, len(matches))
	for i, m := range matches {
		entries[i] = entry{
			ID:            m.Node.ID,
			Question:      m.Node.Question,
			Consensus:     m.Node.Consensus,
			WinningOption: m.Node.WinningOption,
			Score:         m.Score,
		}
	}
	return jsonResult(map[string]any{"results": entries, "total": len(entries)}), nil
}

func (s *Server) handleAnalyzeDecisions(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if s.query == nil {
		return errorResult("decision graph is disabled in configuration"), nil
	}

	analysis, err := s.query.Analyze(ctx, request.GetString("participant", ""))
	if err != nil {
		return errorResult(fmt.Sprintf("analysis failed: %v", err)), nil
	}
	return jsonResult(analysis), nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func jsonResult(v any) *mcplib.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("marshal result: %v", err))
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
