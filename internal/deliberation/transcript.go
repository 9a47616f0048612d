package deliberation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/ashita-ai/hyogi/internal/model"
)

// TranscriptWriter saves finished deliberations as markdown files.
type TranscriptWriter struct {
	dir string
}

func NewTranscriptWriter(dir string) *TranscriptWriter {
	return &TranscriptWriter{dir: dir}
}

// Save renders the transcript and writes it under the configured
// directory, creating it if needed. Returns the file path.
func (w *TranscriptWriter) Save(question string, result model.DeliberationResult, now time.Time) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("transcript: create dir: %w", err)
	}
	path := filepath.Join(w.dir, transcriptFilename(question, now))
	if err := os.WriteFile(path, []byte(renderTranscript(question, result)), 0o644); err != nil {
		return "", fmt.Errorf("transcript: write %s: %w", path, err)
	}
	return path, nil
}

// transcriptFilename builds "YYYYMMDD_HHMMSS_<slug>.md" where the slug
// is the first 50 characters of the question with everything but
// letters, digits, spaces, dashes, and underscores removed and spaces
// folded to underscores.
func transcriptFilename(question string, now time.Time) string {
	runes := []rune(question)
	if len(runes) > 50 {
		runes = runes[:50]
	}
	var b strings.Builder
	for _, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune(' ')
		}
	}
	slug := strings.ReplaceAll(strings.TrimSpace(b.String()), " ", "_")
	if slug == "" {
		slug = "deliberation"
	}
	return now.Format("20060102_150405") + "_" + slug + ".md"
}

func renderTranscript(question string, result model.DeliberationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", question)
	b.WriteString("# Deliberation Transcript\n\n")
	fmt.Fprintf(&b, "**Status:** %s\n", result.Status)
	fmt.Fprintf(&b, "**Mode:** %s\n", result.Mode)
	fmt.Fprintf(&b, "**Rounds Completed:** %d\n", result.RoundsCompleted)
	fmt.Fprintf(&b, "**Participants:** %s\n", strings.Join(result.Participants, ", "))
	b.WriteString("\n---\n\n## Summary\n\n")
	fmt.Fprintf(&b, "**Consensus:** %s\n\n", result.Summary.Consensus)

	b.WriteString("### Key Agreements\n\n")
	for _, item := range result.Summary.KeyAgreements {
		fmt.Fprintf(&b, "- %s\n", item)
	}
	b.WriteString("\n### Key Disagreements\n\n")
	for _, item := range result.Summary.KeyDisagreements {
		fmt.Fprintf(&b, "- %s\n", item)
	}
	fmt.Fprintf(&b, "\n**Final Recommendation:** %s\n", result.Summary.FinalRecommendation)

	if result.VotingResult != nil {
		b.WriteString("\n---\n\n## Voting\n\n")
		if result.VotingResult.WinningOption != nil {
			fmt.Fprintf(&b, "**Winning Option:** %s\n\n", *result.VotingResult.WinningOption)
		} else {
			b.WriteString("**Winning Option:** none (tie)\n\n")
		}
		for _, rv := range result.VotingResult.VotesByRound {
			fmt.Fprintf(&b, "- Round %d, %s: %q (confidence %.2f): %s\n",
				rv.Round, rv.Participant, rv.Vote.Option, rv.Vote.Confidence, rv.Vote.Rationale)
		}
	}

	b.WriteString("\n---\n\n## Full Debate\n\n")
	currentRound := 0
	for _, resp := range result.FullDebate {
		if resp.Round != currentRound {
			currentRound = resp.Round
			fmt.Fprintf(&b, "### Round %d\n\n", currentRound)
		}
		fmt.Fprintf(&b, "**%s** (%s)\n\n%s\n\n*%s*\n\n---\n\n",
			resp.Participant, resp.Stance, resp.Response, resp.Timestamp)
	}
	return b.String()
}
