package graph

import (
	"context"
	"os"
	"time"

	"github.com/ashita-ai/hyogi/internal/model"
)

// HealthReport is the maintenance view of the decision graph.
type HealthReport struct {
	Decisions    int64 `json:"decisions"`
	Stances      int64 `json:"stances"`
	Similarities int64 `json:"similarities"`
	DBSizeBytes  int64 `json:"db_size_bytes"`

	// OrphanStances counts stance rows whose decision no longer exists.
	// Foreign keys should make this impossible; nonzero means the file
	// was modified outside this process.
	OrphanStances int64 `json:"orphan_stances"`

	// InvalidScores counts similarity edges outside [0,1].
	InvalidScores int64 `json:"invalid_scores"`

	// RecentDecisions counts nodes stored within the window.
	RecentDecisions int64         `json:"recent_decisions"`
	Window          time.Duration `json:"-"`
}

// Healthy reports whether no integrity problems were found.
func (h HealthReport) Healthy() bool {
	return h.OrphanStances == 0 && h.InvalidScores == 0
}

// Health inspects the store: row counts, file size, integrity checks,
// and growth over the given window.
func (s *Store) Health(ctx context.Context, window time.Duration) (HealthReport, error) {
	report := HealthReport{Window: window}

	counts := []struct {
		query string
		dest  *int64
	}{
		{`SELECT COUNT(*) FROM decision_nodes`, &report.Decisions},
		{`SELECT COUNT(*) FROM participant_stances`, &report.Stances},
		{`SELECT COUNT(*) FROM decision_similarities`, &report.Similarities},
		{`SELECT COUNT(*) FROM participant_stances ps
		  LEFT JOIN decision_nodes n ON n.id = ps.decision_id
		  WHERE n.id IS NULL`, &report.OrphanStances},
		{`SELECT COUNT(*) FROM decision_similarities WHERE score < 0 OR score > 1`, &report.InvalidScores},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return HealthReport{}, &model.StorageError{Op: "health", Err: err}
		}
	}

	if window > 0 {
		cutoff := model.Timestamp(time.Now().Add(-window))
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM decision_nodes WHERE timestamp >= ?`, cutoff,
		).Scan(&report.RecentDecisions)
		if err != nil {
			return HealthReport{}, &model.StorageError{Op: "health", Err: err}
		}
	}

	if info, err := os.Stat(s.path); err == nil {
		report.DBSizeBytes = info.Size()
	}
	return report, nil
}
