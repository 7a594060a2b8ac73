package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the durable Store implementation.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the ledger database.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL for concurrent readers during the REPL's live badge polling.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		text TEXT NOT NULL,
		draft_id TEXT,
		risk_warning INTEGER DEFAULT 0,
		key TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);
	CREATE INDEX IF NOT EXISTS idx_messages_key ON messages(session_id, key) WHERE key IS NOT NULL;
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) EnsureSession(ctx context.Context, id, title string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		id, title, at.Unix(), at.Unix())
	if err != nil {
		return false, fmt.Errorf("ensure session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) Session(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, updated_at FROM sessions WHERE id = ?`, id)
	var sess Session
	var createdAt, updatedAt int64
	err := row.Scan(&sess.ID, &sess.Title, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.CreatedAt = time.Unix(createdAt, 0).UTC()
	sess.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &sess, nil
}

func (s *SQLiteStore) Sessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at, updated_at FROM sessions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		var sess Session
		var createdAt, updatedAt int64
		if err := rows.Scan(&sess.ID, &sess.Title, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.CreatedAt = time.Unix(createdAt, 0).UTC()
		sess.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		out = append(out, &sess)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SetTitle(ctx context.Context, id, title string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET title = ?, updated_at = ? WHERE id = ?`,
		title, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("set title: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, msg *Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var seq int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = ?`,
		msg.SessionID).Scan(&seq); err != nil {
		return fmt.Errorf("next seq: %w", err)
	}
	msg.Seq = seq

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, seq, role, text, draft_id, risk_warning, key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.Seq, string(msg.Role), msg.Text,
		nullable(msg.DraftID), boolToInt(msg.RiskWarning), nullable(msg.Key),
		msg.CreatedAt.Unix()); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`,
		msg.CreatedAt.Unix(), msg.SessionID); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Messages(ctx context.Context, sessionID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, seq, role, text, draft_id, risk_warning, key, created_at
		FROM messages WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		var m Message
		var role string
		var draftID, key sql.NullString
		var warn int
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Seq, &role, &m.Text, &draftID, &warn, &key, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = Role(role)
		m.DraftID = draftID.String
		m.Key = key.String
		m.RiskWarning = warn != 0
		m.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateMessage(ctx context.Context, msg *Message) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET text = ?, risk_warning = ? WHERE id = ?`,
		msg.Text, boolToInt(msg.RiskWarning), msg.ID)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("message %s not found", msg.ID)
	}
	return nil
}

func (s *SQLiteStore) HasRecentKey(ctx context.Context, sessionID, key string, cutoff time.Time) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM messages
		WHERE session_id = ? AND key = ? AND created_at > ?`,
		sessionID, key, cutoff.Unix()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("dedupe query: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
