package deliberation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashita-ai/hyogi/internal/adapter"
	"github.com/ashita-ai/hyogi/internal/config"
	"github.com/ashita-ai/hyogi/internal/graph"
	"github.com/ashita-ai/hyogi/internal/model"
	"github.com/ashita-ai/hyogi/internal/similarity"
	"github.com/ashita-ai/hyogi/internal/telemetry"
	"github.com/ashita-ai/hyogi/internal/tools"
)

// Engine orchestrates one deliberation at a time: sequential rounds,
// sequential participants within a round, contained per-participant
// failures.
type Engine struct {
	adapters    map[string]adapter.Invoker
	executor    *tools.Executor
	scorer      similarity.Scorer
	retriever   *graph.Retriever
	store       *graph.Store
	summarizer  *Summarizer
	transcripts *TranscriptWriter
	metrics     *telemetry.Metrics
	cfg         config.Config
	logger      *slog.Logger
	now         func() time.Time
}

// EngineOptions wires the engine's collaborators. Retriever, Store,
// Executor, Transcripts, and Summarizer are optional; a nil value
// disables the corresponding step.
type EngineOptions struct {
	Adapters    map[string]adapter.Invoker
	Executor    *tools.Executor
	Scorer      similarity.Scorer
	Retriever   *graph.Retriever
	Store       *graph.Store
	Summarizer  *Summarizer
	Transcripts *TranscriptWriter
	Metrics     *telemetry.Metrics
	Config      config.Config
	Logger      *slog.Logger
}

func NewEngine(opts EngineOptions) *Engine {
	return &Engine{
		adapters:    opts.Adapters,
		executor:    opts.Executor,
		scorer:      opts.Scorer,
		retriever:   opts.Retriever,
		store:       opts.Store,
		summarizer:  opts.Summarizer,
		transcripts: opts.Transcripts,
		metrics:     opts.Metrics,
		cfg:         opts.Config,
		logger:      opts.Logger,
		now:         time.Now,
	}
}

// Run executes a full deliberation. The returned result is valid even
// when the error is non-nil: a decision-graph write failure surfaces
// as a *model.StorageError alongside the finished result.
func (e *Engine) Run(ctx context.Context, req model.DeliberateRequest) (model.DeliberationResult, error) {
	if err := req.Validate(); err != nil {
		return model.DeliberationResult{}, err
	}

	totalRounds := req.EffectiveRounds()
	prompt := req.Question + VotingInstructions

	e.logger.Info("deliberation started",
		"mode", req.Mode,
		"rounds", totalRounds,
		"participants", len(req.Participants))

	var (
		responses      []model.RoundResponse
		votes          []model.RoundVote
		lastSimilarity *RoundSimilarity
		converged      bool
		modelStop      bool
	)
	detector := NewConvergenceDetector(e.scorer, e.cfg.Deliberation.ConvergenceDetection, e.logger)

	roundsCompleted := 0
	for round := 1; round <= totalRounds; round++ {
		contextText := e.roundContext(ctx, req, round, responses)
		roundStart := len(responses)

		roundVotes, noContinue := 0, 0
		for _, p := range req.Participants {
			text := e.invokeParticipant(ctx, p, prompt, contextText, req.WorkingDir, round)
			text = e.runTools(ctx, text, req.WorkingDir, p.ID())

			stance := p.Stance
			if stance == "" {
				stance = model.StanceNeutral
			}
			responses = append(responses, model.RoundResponse{
				Round:       round,
				Participant: p.ID(),
				Stance:      stance,
				Response:    text,
				Timestamp:   model.Timestamp(e.now()),
			})

			if vote, ok := ParseVote(text); ok {
				votes = append(votes, model.RoundVote{Round: round, Participant: p.ID(), Vote: vote})
				roundVotes++
				if !vote.ContinueDebate {
					noContinue++
				}
			}
		}
		roundsCompleted = round
		currRound := responses[roundStart:]

		if e.shouldStopEarly(round, roundVotes, noContinue) {
			e.logger.Info("model-controlled early stop",
				"round", round, "votes", roundVotes, "stop_votes", noContinue)
			modelStop = true
			break
		}

		cd := e.cfg.Deliberation.ConvergenceDetection
		if cd.Enabled && round >= cd.MinRoundsBeforeCheck && round >= 2 {
			prevRound := responses[roundStart-len(req.Participants) : roundStart]
			sim := detector.Check(ctx, round, prevRound, currRound)
			lastSimilarity = &sim
			if sim.Status == model.StatusConverged {
				e.logger.Info("convergence detected", "round", round, "avg_similarity", sim.Avg)
				converged = true
				break
			}
			if sim.Status == model.StatusImpasse {
				e.logger.Info("impasse detected, stopping", "round", round, "avg_similarity", sim.Avg)
				break
			}
		}
	}

	voting := VoteAggregator{Scorer: nil, Logger: e.logger}.Aggregate(ctx, votes)

	summary := placeholderSummary(responses)
	if e.summarizer != nil {
		summary = e.summarizer.Summarize(ctx, req.Question, responses)
	}

	result := model.DeliberationResult{
		Status:          deliberationStatus(req.Participants, responses),
		Mode:            req.Mode,
		RoundsCompleted: roundsCompleted,
		Participants:    participantIDs(req.Participants),
		Summary:         summary,
		VotingResult:    voting,
		ConvergenceInfo: buildConvergenceInfo(lastSimilarity, converged, voting),
		FullDebate:      responses,
	}

	if e.transcripts != nil {
		path, err := e.transcripts.Save(req.Question, result, e.now())
		if err != nil {
			e.logger.Error("transcript write failed", "error", err)
		} else {
			result.TranscriptPath = path
		}
	}

	var storageErr error
	if e.store != nil && e.cfg.DecisionGraph.Enabled {
		_, err := graph.PersistDeliberation(ctx, e.store, e.scorer, req.Question, result, e.logger)
		e.metrics.RecordGraphWrite(ctx, err == nil)
		if err != nil {
			e.logger.Error("decision graph write failed", "error", err)
			storageErr = err
		}
		if e.retriever != nil {
			e.retriever.InvalidateCache()
		}
	}
	e.metrics.RecordDeliberation(ctx, string(req.Mode), string(result.Status), roundsCompleted)

	e.logger.Info("deliberation finished",
		"status", result.Status,
		"rounds_completed", roundsCompleted,
		"converged", converged,
		"model_stop", modelStop,
		"votes", len(votes))
	return result, storageErr
}

// roundContext assembles what each participant sees before answering.
// Round 1 gets the decision-graph context plus any caller-supplied
// context; later rounds see the accumulated debate.
func (e *Engine) roundContext(ctx context.Context, req model.DeliberateRequest, round int, responses []model.RoundResponse) string {
	if round > 1 {
		return buildContext(responses)
	}
	var parts []string
	if e.retriever != nil && e.cfg.DecisionGraph.Enabled {
		if block := e.retriever.ContextFor(ctx, req.Question); block.Markdown != "" {
			parts = append(parts, block.Markdown)
		}
	}
	if req.Context != "" {
		parts = append(parts, req.Context)
	}
	return strings.Join(parts, "\n\n")
}

func (e *Engine) invokeParticipant(ctx context.Context, p model.Participant, prompt, contextText, workingDir string, round int) string {
	inv, ok := e.adapters[p.Backend]
	if !ok {
		e.logger.Warn("no adapter for backend", "backend", p.Backend, "participant", p.ID())
		return fmt.Sprintf("[ERROR: backend: no adapter configured for %q]", p.Backend)
	}

	e.logger.Debug("invoking participant", "participant", p.ID(), "round", round)
	out, err := inv.Invoke(ctx, adapter.InvokeRequest{
		Prompt:          prompt,
		Model:           p.Model,
		Context:         contextText,
		WorkingDir:      workingDir,
		ReasoningEffort: p.ReasoningEffort,
	})
	e.metrics.RecordInvocation(ctx, p.Backend, err == nil)
	if err != nil {
		e.logger.Warn("participant invocation failed",
			"participant", p.ID(), "round", round, "error", err)
		return errorSlot(err)
	}
	return out
}

// runTools executes any TOOL_REQUEST markers in the response and
// appends their results to the response text, so later rounds (and the
// transcript) carry the evidence.
func (e *Engine) runTools(ctx context.Context, text, workingDir, participant string) string {
	if e.executor == nil {
		return text
	}
	requests := e.executor.ParseRequests(text)
	if len(requests) == 0 {
		return text
	}

	var b strings.Builder
	b.WriteString(text)
	for _, tr := range requests {
		res := e.executor.Execute(ctx, tr, workingDir)
		e.logger.Info("tool executed",
			"participant", participant, "tool", tr.Name, "success", res.Success)
		if res.Success {
			fmt.Fprintf(&b, "\n\n[Tool %s]\n%s", res.ToolName, res.Output)
		} else {
			fmt.Fprintf(&b, "\n\n[Tool %s failed: %s]", res.ToolName, res.Error)
		}
	}
	return b.String()
}

// shouldStopEarly applies the model-controlled stop rule: enough of
// this round's voters asked to stop.
func (e *Engine) shouldStopEarly(round, roundVotes, noContinue int) bool {
	es := e.cfg.Deliberation.EarlyStopping
	if !es.Enabled || roundVotes == 0 {
		return false
	}
	if es.RespectMinRounds && round < e.cfg.Deliberation.ConvergenceDetection.MinRoundsBeforeCheck {
		return false
	}
	return float64(noContinue)/float64(roundVotes) >= es.Threshold
}

// buildConvergenceInfo merges the detector's last verdict with the
// vote outcome; a vote outcome overrides the reported status. With
// neither (single round, no votes) there is nothing to report and the
// field stays null.
func buildConvergenceInfo(last *RoundSimilarity, converged bool, voting *model.VotingResult) *model.ConvergenceInfo {
	if last == nil && voting == nil {
		return nil
	}
	info := &model.ConvergenceInfo{Status: model.StatusUnknown}
	if last != nil {
		round := last.Round
		info.Detected = converged
		info.FinalSimilarity = last.Avg
		info.Status = last.Status
		info.PerParticipant = last.PerParticipant
		if converged {
			info.DetectionRound = &round
		}
	}
	if voting != nil {
		switch {
		case voting.ConsensusReached && len(voting.FinalTally) == 1:
			info.Status = model.StatusUnanimousConsensus
		case voting.ConsensusReached:
			info.Status = model.StatusMajorityDecision
		default:
			info.Status = model.StatusTie
		}
	}
	return info
}

// deliberationStatus is complete when every participant produced at
// least one usable response, partial when some did, failed when none
// did.
func deliberationStatus(participants []model.Participant, responses []model.RoundResponse) model.ResultStatus {
	usable := make(map[string]bool, len(participants))
	for _, r := range responses {
		if !isErrorSlot(r.Response) {
			usable[r.Participant] = true
		}
	}
	switch {
	case len(usable) == 0:
		return model.ResultFailed
	case len(usable) < len(participants):
		return model.ResultPartial
	default:
		return model.ResultComplete
	}
}

func participantIDs(participants []model.Participant) []string {
	ids := make([]string, len(participants))
	for i, p := range participants {
		ids[i] = p.ID()
	}
	return ids
}

// buildContext renders the accumulated debate the way participants see
// it in rounds after the first.
func buildContext(responses []model.RoundResponse) string {
	if len(responses) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Previous discussion:\n")
	for _, r := range responses {
		fmt.Fprintf(&b, "Round %d - %s (%s): %s\n", r.Round, r.Participant, r.Stance, r.Response)
	}
	return b.String()
}

func isErrorSlot(text string) bool {
	return strings.HasPrefix(text, "[ERROR: ")
}

// errorSlot formats a contained participant failure. The slot keeps
// the round shape intact so invariants over full_debate length hold.
func errorSlot(err error) string {
	kind := "backend"
	var terr *model.TimeoutError
	var verr *model.ValidationError
	switch {
	case errors.As(err, &terr):
		kind = "timeout"
	case errors.As(err, &verr):
		kind = "validation"
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		kind = "timeout"
	}
	return fmt.Sprintf("[ERROR: %s: %s]", kind, err.Error())
}
