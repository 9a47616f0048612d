// Package graph persists completed deliberations as a decision graph:
// one node per deliberation, participant stances hanging off each node,
// and similarity edges between related nodes. Backed by SQLite so the
// whole memory is a single local file.
package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ashita-ai/hyogi/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS decision_nodes (
	id TEXT PRIMARY KEY,
	question TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	consensus TEXT NOT NULL,
	winning_option TEXT,
	convergence_status TEXT NOT NULL,
	participants TEXT NOT NULL,
	transcript_path TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_nodes_timestamp ON decision_nodes(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_nodes_question ON decision_nodes(question);

CREATE TABLE IF NOT EXISTS participant_stances (
	decision_id TEXT NOT NULL REFERENCES decision_nodes(id) ON DELETE CASCADE,
	participant TEXT NOT NULL,
	vote_option TEXT,
	confidence REAL,
	rationale TEXT,
	final_position TEXT NOT NULL,
	PRIMARY KEY (decision_id, participant)
);

CREATE INDEX IF NOT EXISTS idx_stances_decision ON participant_stances(decision_id);

CREATE TABLE IF NOT EXISTS decision_similarities (
	source_id TEXT NOT NULL REFERENCES decision_nodes(id) ON DELETE CASCADE,
	target_id TEXT NOT NULL REFERENCES decision_nodes(id) ON DELETE CASCADE,
	score REAL NOT NULL CHECK (score >= 0 AND score <= 1),
	computed_at TEXT NOT NULL,
	PRIMARY KEY (source_id, target_id),
	CHECK (source_id <> target_id)
);

CREATE INDEX IF NOT EXISTS idx_similarities_source ON decision_similarities(source_id);
CREATE INDEX IF NOT EXISTS idx_similarities_score ON decision_similarities(score DESC);
`

// Store is the SQLite-backed decision graph. Reads run concurrently
// under WAL; writes are serialized through mu because SQLite allows a
// single writer at a time and queueing in-process beats busy-retrying.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger

	mu sync.Mutex
}

// Open opens (creating if needed) the decision graph at path and
// ensures the schema. Foreign keys are enforced and journaling is WAL.
func Open(path string, logger *slog.Logger) (*Store, error) {
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &model.StorageError{Op: "open", Err: err}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, &model.StorageError{Op: "init schema", Err: err}
	}

	return &Store{db: db, path: path, logger: logger}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the resolved database file location.
func (s *Store) Path() string { return s.path }

// InsertDecision stores a new decision node. The caller owns id
// generation; an existing id is an error, nodes are immutable.
func (s *Store) InsertDecision(ctx context.Context, node model.DecisionNode) error {
	participants, err := json.Marshal(node.Participants)
	if err != nil {
		return &model.StorageError{Op: "insert decision", Err: err}
	}
	metadata := node.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return &model.StorageError{Op: "insert decision", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO decision_nodes (id, question, timestamp, consensus, winning_option,
		 convergence_status, participants, transcript_path, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		node.ID.String(), node.Question, model.Timestamp(node.Timestamp), node.Consensus,
		node.WinningOption, string(node.ConvergenceStatus), string(participants),
		node.TranscriptPath, string(meta),
	)
	if err != nil {
		return &model.StorageError{Op: "insert decision", Err: err}
	}
	return nil
}

// InsertStances stores the participant stances for a decision in one
// transaction: either every stance lands or none do.
func (s *Store) InsertStances(ctx context.Context, stances []model.ParticipantStance) error {
	if len(stances) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &model.StorageError{Op: "insert stances", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	for _, st := range stances {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO participant_stances (decision_id, participant, vote_option, confidence, rationale, final_position)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			st.DecisionID.String(), st.Participant, st.VoteOption, st.Confidence, st.Rationale, st.FinalPosition,
		)
		if err != nil {
			return &model.StorageError{Op: "insert stances", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &model.StorageError{Op: "insert stances", Err: err}
	}
	return nil
}

// UpsertSimilarity stores or refreshes a similarity edge.
func (s *Store) UpsertSimilarity(ctx context.Context, edge model.DecisionSimilarity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO decision_similarities (source_id, target_id, score, computed_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (source_id, target_id) DO UPDATE SET score = excluded.score, computed_at = excluded.computed_at`,
		edge.SourceID.String(), edge.TargetID.String(), edge.Score, model.Timestamp(edge.ComputedAt),
	)
	if err != nil {
		return &model.StorageError{Op: "upsert similarity", Err: err}
	}
	return nil
}

// ErrNotFound reports a missing decision id.
var ErrNotFound = fmt.Errorf("graph: decision not found")

// GetDecision retrieves one node by id.
func (s *Store) GetDecision(ctx context.Context, id uuid.UUID) (model.DecisionNode, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, question, timestamp, consensus, winning_option, convergence_status,
		 participants, transcript_path, metadata
		 FROM decision_nodes WHERE id = ?`, id.String())
	node, err := scanNode(row)
	if err == sql.ErrNoRows {
		return model.DecisionNode{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return model.DecisionNode{}, &model.StorageError{Op: "get decision", Err: err}
	}
	return node, nil
}

// ListRecent returns decisions newest-first.
func (s *Store) ListRecent(ctx context.Context, limit, offset int) ([]model.DecisionNode, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question, timestamp, consensus, winning_option, convergence_status,
		 participants, transcript_path, metadata
		 FROM decision_nodes ORDER BY timestamp DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, &model.StorageError{Op: "list recent", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var nodes []model.DecisionNode
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, &model.StorageError{Op: "list recent", Err: err}
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, &model.StorageError{Op: "list recent", Err: err}
	}
	return nodes, nil
}

// StancesFor returns the stances recorded for a decision.
func (s *Store) StancesFor(ctx context.Context, id uuid.UUID) ([]model.ParticipantStance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT decision_id, participant, vote_option, confidence, rationale, final_position
		 FROM participant_stances WHERE decision_id = ? ORDER BY participant`, id.String())
	if err != nil {
		return nil, &model.StorageError{Op: "stances for", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var stances []model.ParticipantStance
	for rows.Next() {
		var st model.ParticipantStance
		var rawID string
		if err := rows.Scan(&rawID, &st.Participant, &st.VoteOption, &st.Confidence, &st.Rationale, &st.FinalPosition); err != nil {
			return nil, &model.StorageError{Op: "stances for", Err: err}
		}
		if st.DecisionID, err = uuid.Parse(rawID); err != nil {
			return nil, &model.StorageError{Op: "stances for", Err: err}
		}
		stances = append(stances, st)
	}
	if err := rows.Err(); err != nil {
		return nil, &model.StorageError{Op: "stances for", Err: err}
	}
	return stances, nil
}

// SimilarTo returns decisions linked to sourceID with score >=
// threshold, best match first.
func (s *Store) SimilarTo(ctx context.Context, sourceID uuid.UUID, threshold float64, limit int) ([]model.ScoredDecision, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT n.id, n.question, n.timestamp, n.consensus, n.winning_option, n.convergence_status,
		 n.participants, n.transcript_path, n.metadata, e.score
		 FROM decision_similarities e
		 JOIN decision_nodes n ON n.id = e.target_id
		 WHERE e.source_id = ? AND e.score >= ?
		 ORDER BY e.score DESC LIMIT ?`, sourceID.String(), threshold, limit)
	if err != nil {
		return nil, &model.StorageError{Op: "similar to", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var out []model.ScoredDecision
	for rows.Next() {
		var (
			node                                              model.DecisionNode
			rawID, rawTS, rawStatus, rawParticipants, rawMeta string
			score                                             float64
		)
		err := rows.Scan(&rawID, &node.Question, &rawTS, &node.Consensus, &node.WinningOption,
			&rawStatus, &rawParticipants, &node.TranscriptPath, &rawMeta, &score)
		if err != nil {
			return nil, &model.StorageError{Op: "similar to", Err: err}
		}
		if err := hydrateNode(&node, rawID, rawTS, rawStatus, rawParticipants, rawMeta); err != nil {
			return nil, &model.StorageError{Op: "similar to", Err: err}
		}
		out = append(out, model.ScoredDecision{Node: node, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, &model.StorageError{Op: "similar to", Err: err}
	}
	return out, nil
}

// Count returns the number of decision nodes.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM decision_nodes`).Scan(&n); err != nil {
		return 0, &model.StorageError{Op: "count", Err: err}
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (model.DecisionNode, error) {
	var (
		node                                              model.DecisionNode
		rawID, rawTS, rawStatus, rawParticipants, rawMeta string
	)
	err := row.Scan(&rawID, &node.Question, &rawTS, &node.Consensus, &node.WinningOption,
		&rawStatus, &rawParticipants, &node.TranscriptPath, &rawMeta)
	if err != nil {
		return model.DecisionNode{}, err
	}
	if err := hydrateNode(&node, rawID, rawTS, rawStatus, rawParticipants, rawMeta); err != nil {
		return model.DecisionNode{}, err
	}
	return node, nil
}

func hydrateNode(node *model.DecisionNode, rawID, rawTS, rawStatus, rawParticipants, rawMeta string) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("parse id: %w", err)
	}
	node.ID = id

	ts, err := time.Parse(time.RFC3339, rawTS)
	if err != nil {
		return fmt.Errorf("parse timestamp: %w", err)
	}
	node.Timestamp = ts
	node.ConvergenceStatus = model.ConvergenceStatus(rawStatus)

	if err := json.Unmarshal([]byte(rawParticipants), &node.Participants); err != nil {
		return fmt.Errorf("parse participants: %w", err)
	}
	if err := json.Unmarshal([]byte(rawMeta), &node.Metadata); err != nil {
		return fmt.Errorf("parse metadata: %w", err)
	}
	return nil
}
