// Package memory keeps short notes the user asked the assistant to
// remember, per user, in SQLite, and exposes them as the built-in
// "memory" capability.
package memory

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// timeLayout sorts lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Note is one remembered fact.
type Note struct {
	ID        string
	User      string
	Text      string
	CreatedAt time.Time
}

// Store is a SQLite-backed note store. All public methods are safe for
// concurrent use (SQLite serializes writes).
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the store at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS notes (
		id         TEXT PRIMARY KEY,
		user       TEXT NOT NULL,
		text       TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_notes_user ON notes(user, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Add stores text for user.
func (s *Store) Add(user, text string) (Note, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Note{}, errors.New("add note: empty text")
	}
	n := Note{
		ID:        uuid.NewString(),
		User:      user,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO notes (id, user, text, created_at) VALUES (?, ?, ?, ?)`,
		n.ID, n.User, n.Text, n.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return Note{}, fmt.Errorf("add note for %s: %w", user, err)
	}
	return n, nil
}

// Recent returns up to limit of user's notes, newest first.
func (s *Store) Recent(user string, limit int) ([]Note, error) {
	return s.query(
		`SELECT id, user, text, created_at FROM notes
		 WHERE user = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		user, limit,
	)
}

// Search returns user's notes containing any of terms, newest first.
func (s *Store) Search(user string, terms []string, limit int) ([]Note, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	var b strings.Builder
	args := []any{user}
	b.WriteString(`SELECT id, user, text, created_at FROM notes WHERE user = ? AND (`)
	for i, t := range terms {
		if i > 0 {
			b.WriteString(" OR ")
		}
		b.WriteString(`lower(text) LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(t))
	}
	b.WriteString(`) ORDER BY created_at DESC, rowid DESC LIMIT ?`)
	args = append(args, limit)
	return s.query(b.String(), args...)
}

// Forget deletes user's notes containing every one of terms and
// returns how many were removed.
func (s *Store) Forget(user string, terms []string) (int, error) {
	if len(terms) == 0 {
		return 0, nil
	}
	var b strings.Builder
	args := []any{user}
	b.WriteString(`DELETE FROM notes WHERE user = ?`)
	for _, t := range terms {
		b.WriteString(` AND lower(text) LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(t))
	}
	res, err := s.db.Exec(b.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("forget notes for %s: %w", user, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("forget notes for %s: %w", user, err)
	}
	return int(n), nil
}

// Count returns how many notes user has.
func (s *Store) Count(user string) (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT count(*) FROM notes WHERE user = ?`, user).Scan(&n); err != nil {
		return 0, fmt.Errorf("count notes for %s: %w", user, err)
	}
	return n, nil
}

func (s *Store) query(q string, args ...any) ([]Note, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		var n Note
		var created string
		if err := rows.Scan(&n.ID, &n.User, &n.Text, &created); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		t, err := time.Parse(timeLayout, created)
		if err != nil {
			return nil, fmt.Errorf("note %s: bad created_at: %w", n.ID, err)
		}
		n.CreatedAt = t
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// likePattern matches t anywhere, with LIKE wildcards in t escaped.
// SQLite's lower() folds ASCII only, so non-ASCII terms match as typed.
func likePattern(t string) string {
	esc := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.ToLower(t))
	return "%" + esc + "%"
}
