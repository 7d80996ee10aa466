// Package store archives finished debates in Postgres.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chandler767/live-debate-arena/pkg/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a debate does not exist.
var ErrNotFound = errors.New("store: debate not found")

const schema = `
CREATE TABLE IF NOT EXISTS debates (
	id          TEXT PRIMARY KEY,
	topic       TEXT NOT NULL,
	left_agent  TEXT NOT NULL DEFAULT '',
	right_agent TEXT NOT NULL DEFAULT '',
	outcome     TEXT NOT NULL DEFAULT 'running',
	error       TEXT NOT NULL DEFAULT '',
	turns       INTEGER NOT NULL DEFAULT 0,
	started_at  TIMESTAMPTZ NOT NULL,
	ended_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS debate_turns (
	debate_id  TEXT NOT NULL REFERENCES debates(id) ON DELETE CASCADE,
	turn       INTEGER NOT NULL,
	side       TEXT NOT NULL,
	agent_id   TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (debate_id, turn)
);
`

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Connect opens and pings a pool for url.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	db, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Migrate creates the archive tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Debate is an archived debate.
type Debate struct {
	ID         string     `json:"id"`
	Topic      string     `json:"topic"`
	LeftAgent  string     `json:"left_agent"`
	RightAgent string     `json:"right_agent"`
	Outcome    string     `json:"outcome"`
	Error      string     `json:"error,omitempty"`
	Turns      int        `json:"turns"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

// Turn is one archived turn.
type Turn struct {
	Turn      int       `json:"turn"`
	Side      string    `json:"side"`
	AgentID   string    `json:"agent_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateDebate inserts a running debate.
func (s *Store) CreateDebate(ctx context.Context, id, topic string, startedAt time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO debates (id, topic, started_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, id, topic, startedAt)
	if err != nil {
		return fmt.Errorf("create debate: %w", err)
	}
	return nil
}

// AddTurn archives one committed turn.
func (s *Store) AddTurn(ctx context.Context, msg types.DebateMessage) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO debate_turns (debate_id, turn, side, agent_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (debate_id, turn) DO NOTHING
	`, msg.DebateID, msg.Turn, msg.Side, msg.AgentID, msg.Content, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("add turn: %w", err)
	}
	return nil
}

// FinishDebate records the outcome of a debate, creating the row if the
// debate never got as far as connecting.
func (s *Store) FinishDebate(ctx context.Context, sum types.DebateSummary) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO debates (id, topic, left_agent, right_agent, outcome, error, turns, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			left_agent = EXCLUDED.left_agent,
			right_agent = EXCLUDED.right_agent,
			outcome = EXCLUDED.outcome,
			error = EXCLUDED.error,
			turns = EXCLUDED.turns,
			ended_at = EXCLUDED.ended_at
	`, sum.DebateID, sum.Topic, sum.Left, sum.Right, sum.Outcome, sum.Error, sum.Turns, sum.StartedAt, sum.EndedAt)
	if err != nil {
		return fmt.Errorf("finish debate: %w", err)
	}
	return nil
}

// ListDebates returns the most recent debates, newest first.
func (s *Store) ListDebates(ctx context.Context, limit int) ([]Debate, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, topic, left_agent, right_agent, outcome, error, turns, started_at, ended_at
		FROM debates
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list debates: %w", err)
	}
	defer rows.Close()

	var debates []Debate
	for rows.Next() {
		var d Debate
		if err := rows.Scan(&d.ID, &d.Topic, &d.LeftAgent, &d.RightAgent, &d.Outcome, &d.Error, &d.Turns, &d.StartedAt, &d.EndedAt); err != nil {
			return nil, fmt.Errorf("scan debate: %w", err)
		}
		debates = append(debates, d)
	}
	return debates, rows.Err()
}

// GetDebate returns a debate and its turns in order.
func (s *Store) GetDebate(ctx context.Context, id string) (*Debate, []Turn, error) {
	var d Debate
	err := s.db.QueryRow(ctx, `
		SELECT id, topic, left_agent, right_agent, outcome, error, turns, started_at, ended_at
		FROM debates WHERE id = $1
	`, id).Scan(&d.ID, &d.Topic, &d.LeftAgent, &d.RightAgent, &d.Outcome, &d.Error, &d.Turns, &d.StartedAt, &d.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get debate: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT turn, side, agent_id, content, created_at
		FROM debate_turns WHERE debate_id = $1
		ORDER BY turn
	`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("get turns: %w", err)
	}
	turns, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Turn])
	if err != nil {
		return nil, nil, fmt.Errorf("scan turns: %w", err)
	}
	return &d, turns, nil
}
