package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dyike/CrewGo/models"
)

// Store persists crew sessions, their transcripts and their votes.
type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=3000;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", p, err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    symbols_discussed TEXT NOT NULL DEFAULT '[]',
    total_rounds INTEGER NOT NULL DEFAULT 0,
    final_action TEXT,
    final_symbol TEXT,
    final_quantity INTEGER NOT NULL DEFAULT 0,
    consensus_strength REAL NOT NULL DEFAULT 0,
    total_messages INTEGER NOT NULL DEFAULT 0,
    mediator_used INTEGER NOT NULL DEFAULT 0,
    mediator_reasoning TEXT,
    started_at DATETIME NOT NULL,
    completed_at DATETIME,
    duration_seconds REAL NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    participant TEXT NOT NULL,
    round INTEGER NOT NULL,
    seq INTEGER NOT NULL,
    kind TEXT NOT NULL,
    content TEXT NOT NULL DEFAULT '',
    proposed_action TEXT,
    proposed_symbol TEXT,
    confidence REAL NOT NULL DEFAULT 0,
    degraded INTEGER NOT NULL DEFAULT 0,
    mentions TEXT NOT NULL DEFAULT '[]',
    in_reply_to TEXT,
    created_at DATETIME NOT NULL,
    UNIQUE(session_id, round, seq)
);

CREATE TABLE IF NOT EXISTS votes (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    participant TEXT NOT NULL,
    action TEXT NOT NULL,
    symbol TEXT,
    weight REAL NOT NULL,
    confidence REAL NOT NULL,
    reasoning TEXT,
    weighted_score REAL NOT NULL,
    created_at DATETIME NOT NULL,
    UNIQUE(session_id, participant)
);

CREATE INDEX IF NOT EXISTS idx_messages_session_round ON messages(session_id, round, seq);
CREATE INDEX IF NOT EXISTS idx_votes_session ON votes(session_id);
`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// CreateSession writes the initial session row. Re-running with the
// same id refreshes the status, so a restarted session never fails on
// the primary key.
func (s *Store) CreateSession(ctx context.Context, session *models.Session) error {
	if session == nil || strings.TrimSpace(session.ID) == "" {
		return fmt.Errorf("session id is required")
	}
	symbols, err := json.Marshal(session.SymbolsDiscussed)
	if err != nil {
		return fmt.Errorf("marshal symbols: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO sessions (id, status, symbols_discussed, total_rounds, started_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    status=excluded.status,
    symbols_discussed=excluded.symbols_discussed,
    total_rounds=excluded.total_rounds,
    updated_at=CURRENT_TIMESTAMP
`, session.ID, string(session.Status), string(symbols), session.TotalRounds, session.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// SaveMessages writes a transcript batch in one transaction. Replayed
// messages are skipped on their primary key.
func (s *Store) SaveMessages(ctx context.Context, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin messages tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO messages (id, session_id, participant, round, seq, kind, content,
    proposed_action, proposed_symbol, confidence, degraded, mentions, in_reply_to, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING
`)
	if err != nil {
		return fmt.Errorf("prepare message insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		mentions, err := json.Marshal(m.Mentions)
		if err != nil {
			return fmt.Errorf("marshal mentions: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			m.ID, m.SessionID, m.Participant, m.Round, m.Seq, string(m.Kind), m.Content,
			string(m.ProposedAction), m.ProposedSymbol, m.Confidence, m.Degraded, string(mentions),
			m.InReplyTo, m.CreatedAt.UTC(),
		); err != nil {
			return fmt.Errorf("insert message %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// SaveVotes writes the ballot in one transaction. A participant's
// re-vote replaces the earlier row.
func (s *Store) SaveVotes(ctx context.Context, votes []models.Vote) error {
	if len(votes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin votes tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO votes (id, session_id, participant, action, symbol, weight, confidence,
    reasoning, weighted_score, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id, participant) DO UPDATE SET
    action=excluded.action,
    symbol=excluded.symbol,
    weight=excluded.weight,
    confidence=excluded.confidence,
    reasoning=excluded.reasoning,
    weighted_score=excluded.weighted_score
`)
	if err != nil {
		return fmt.Errorf("prepare vote insert: %w", err)
	}
	defer stmt.Close()

	for _, v := range votes {
		if _, err := stmt.ExecContext(ctx,
			v.ID, v.SessionID, v.Participant, string(v.Action), v.Symbol,
			v.Weight, v.Confidence, v.Reasoning, v.WeightedScore, v.CreatedAt.UTC(),
		); err != nil {
			return fmt.Errorf("insert vote %s: %w", v.ID, err)
		}
	}
	return tx.Commit()
}

// FinalizeSession writes the outcome fields once the session ends.
func (s *Store) FinalizeSession(ctx context.Context, session *models.Session) error {
	if session == nil || strings.TrimSpace(session.ID) == "" {
		return fmt.Errorf("session id is required")
	}
	symbols, err := json.Marshal(session.SymbolsDiscussed)
	if err != nil {
		return fmt.Errorf("marshal symbols: %w", err)
	}

	var completedAt any
	if !session.CompletedAt.IsZero() {
		completedAt = session.CompletedAt.UTC()
	}

	res, err := s.db.ExecContext(ctx, `
UPDATE sessions
SET status = ?,
    symbols_discussed = ?,
    final_action = ?,
    final_symbol = ?,
    final_quantity = ?,
    consensus_strength = ?,
    total_messages = ?,
    mediator_used = ?,
    mediator_reasoning = ?,
    completed_at = ?,
    duration_seconds = ?,
    updated_at = CURRENT_TIMESTAMP
WHERE id = ?
`, string(session.Status), string(symbols), string(session.FinalAction), session.FinalSymbol,
		session.FinalQuantity, session.ConsensusStrength, session.TotalMessages,
		session.MediatorUsed, session.MediatorReasoning, completedAt,
		session.DurationSeconds, session.ID)
	if err != nil {
		return fmt.Errorf("finalize session: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("finalize session: session %s not found", session.ID)
	}
	return nil
}

func (s *Store) UpdateSessionStatus(ctx context.Context, sessionID string, status models.SessionStatus) error {
	if strings.TrimSpace(sessionID) == "" || status == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
UPDATE sessions
SET status = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?
`, string(status), sessionID)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	return nil
}

// GetSession returns nil with no error when the id is unknown.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session id is required")
	}
	row := s.db.QueryRowContext(ctx, `
SELECT id, status, symbols_discussed, total_rounds, final_action, final_symbol,
    final_quantity, consensus_strength, total_messages, mediator_used,
    mediator_reasoning, started_at, completed_at, duration_seconds
FROM sessions
WHERE id = ?
LIMIT 1
`, sessionID)

	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// ListSessions returns past sessions newest first. limit is clamped
// to [1, 200].
func (s *Store) ListSessions(ctx context.Context, limit int) ([]*models.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, status, symbols_discussed, total_rounds, final_action, final_symbol,
    final_quantity, consensus_strength, total_messages, mediator_used,
    mediator_reasoning, started_at, completed_at, duration_seconds
FROM sessions
ORDER BY rowid DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions rows: %w", err)
	}
	return sessions, nil
}

func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session id is required")
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, participant, round, seq, kind, content,
    proposed_action, proposed_symbol, confidence, degraded, mentions, in_reply_to, created_at
FROM messages
WHERE session_id = ?
ORDER BY round ASC, seq ASC
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var (
			m        models.Message
			kind     string
			action   sql.NullString
			symbol   sql.NullString
			mentions string
			replyTo  sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Participant, &m.Round, &m.Seq,
			&kind, &m.Content, &action, &symbol, &m.Confidence, &m.Degraded, &mentions, &replyTo,
			&m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Kind = models.MessageKind(kind)
		m.ProposedAction = models.VoteAction(action.String)
		m.ProposedSymbol = symbol.String
		m.InReplyTo = replyTo.String
		if err := json.Unmarshal([]byte(mentions), &m.Mentions); err != nil {
			return nil, fmt.Errorf("parse mentions for %s: %w", m.ID, err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages rows: %w", err)
	}
	return msgs, nil
}

func (s *Store) ListVotes(ctx context.Context, sessionID string) ([]models.Vote, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session id is required")
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, participant, action, symbol, weight, confidence,
    reasoning, weighted_score, created_at
FROM votes
WHERE session_id = ?
ORDER BY weighted_score DESC, participant ASC
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	var votes []models.Vote
	for rows.Next() {
		var (
			v      models.Vote
			action string
			symbol sql.NullString
		)
		if err := rows.Scan(&v.ID, &v.SessionID, &v.Participant, &action, &symbol,
			&v.Weight, &v.Confidence, &v.Reasoning, &v.WeightedScore, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		v.Action = models.VoteAction(action)
		v.Symbol = symbol.String
		votes = append(votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list votes rows: %w", err)
	}
	return votes, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		session     models.Session
		status      string
		symbols     string
		action      sql.NullString
		finalSymbol sql.NullString
		reasoning   sql.NullString
		completedAt sql.NullTime
	)
	if err := row.Scan(&session.ID, &status, &symbols, &session.TotalRounds,
		&action, &finalSymbol, &session.FinalQuantity, &session.ConsensusStrength,
		&session.TotalMessages, &session.MediatorUsed, &reasoning,
		&session.StartedAt, &completedAt, &session.DurationSeconds); err != nil {
		return nil, err
	}
	session.Status = models.SessionStatus(status)
	session.FinalAction = models.VoteAction(action.String)
	session.FinalSymbol = finalSymbol.String
	session.MediatorReasoning = reasoning.String
	if err := json.Unmarshal([]byte(symbols), &session.SymbolsDiscussed); err != nil {
		return nil, fmt.Errorf("parse symbols: %w", err)
	}
	if completedAt.Valid {
		session.CompletedAt = completedAt.Time
	}
	return &session, nil
}
