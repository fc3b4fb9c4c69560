// SQL workflow session store.
//
// Information Hiding:
// - Dialect differences (placeholders, upsert syntax, column types) hidden
// - State serialisation to a single state_json column hidden
// - Table name validated once at construction

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/richinex/inkwell/session"
)

// DefaultSessionTable is the table workflow sessions are written to.
const DefaultSessionTable = "workflow_session"

// Supported SQL dialects.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// SQLSessionStore implements session.Store on database/sql.
type SQLSessionStore struct {
	db      *sql.DB
	dialect string
	table   string
}

// NewSQLSessionStore wraps an open database. The schema is created if missing.
func NewSQLSessionStore(db *sql.DB, dialect, table string) (*SQLSessionStore, error) {
	dialect, err := normalizeDialect(dialect)
	if err != nil {
		return nil, err
	}
	if table == "" {
		table = DefaultSessionTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid session table name: %q", table)
	}

	s := &SQLSessionStore{db: db, dialect: dialect, table: table}
	if err := s.createSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to initialize session schema: %w", err)
	}
	return s, nil
}

// OpenSQLSessionStore opens a database for the dialect and wraps it.
// For sqlite the DSN is a file path (parent directories are created).
func OpenSQLSessionStore(dialect, dsn, table string) (*SQLSessionStore, error) {
	dialect, err := normalizeDialect(dialect)
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	switch dialect {
	case DialectSQLite:
		db, err = openSqliteDB(dsn)
	case DialectPostgres:
		db, err = sql.Open("postgres", dsn)
	case DialectMySQL:
		db, err = sql.Open("mysql", dsn)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}

	s, err := NewSQLSessionStore(db, dialect, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func normalizeDialect(dialect string) (string, error) {
	switch strings.ToLower(dialect) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	default:
		return "", fmt.Errorf("unsupported dialect: %s (supported: sqlite, postgres, mysql)", dialect)
	}
}

func (s *SQLSessionStore) createSchema(ctx context.Context) error {
	var stmts []string
	switch s.dialect {
	case DialectMySQL:
		stmts = []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			session_id VARCHAR(255) PRIMARY KEY,
			workflow_name VARCHAR(255) NOT NULL,
			state_json LONGTEXT NOT NULL,
			created_at VARCHAR(40) NOT NULL,
			updated_at VARCHAR(40) NOT NULL,
			INDEX idx_%s_workflow (workflow_name)
		)`, s.table, s.table)}
	default:
		stmts = []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				session_id TEXT PRIMARY KEY,
				workflow_name TEXT NOT NULL,
				state_json TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`, s.table),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_workflow ON %s(workflow_name)`, s.table, s.table),
		}
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites '?' placeholders for dialects that use numbered parameters.
func (s *SQLSessionStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Load returns the session or session.ErrNotFound.
func (s *SQLSessionStore) Load(ctx context.Context, id string) (*session.Session, error) {
	query := s.rebind(fmt.Sprintf(
		"SELECT workflow_name, state_json, created_at, updated_at FROM %s WHERE session_id = ?", s.table))

	var workflowName, stateJSON, createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&workflowName, &stateJSON, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	state := session.NewState()
	if err := state.UnmarshalJSON([]byte(stateJSON)); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}

	return &session.Session{
		ID:           id,
		WorkflowName: workflowName,
		State:        state,
		CreatedAt:    parseTimestamp(createdAt),
		UpdatedAt:    parseTimestamp(updatedAt),
	}, nil
}

// Save upserts the session row.
func (s *SQLSessionStore) Save(ctx context.Context, sess *session.Session) error {
	stateJSON, err := sess.State.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", sess.ID, err)
	}

	created := sess.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	now := time.Now().UTC()

	var query string
	switch s.dialect {
	case DialectMySQL:
		query = fmt.Sprintf(`INSERT INTO %s (session_id, workflow_name, state_json, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE workflow_name = VALUES(workflow_name),
				state_json = VALUES(state_json), updated_at = VALUES(updated_at)`, s.table)
	default:
		query = fmt.Sprintf(`INSERT INTO %s (session_id, workflow_name, state_json, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(session_id) DO UPDATE SET workflow_name = excluded.workflow_name,
				state_json = excluded.state_json, updated_at = excluded.updated_at`, s.table)
	}

	_, err = s.db.ExecContext(ctx, s.rebind(query),
		sess.ID, sess.WorkflowName, string(stateJSON), formatTimestamp(created), formatTimestamp(now))
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	return nil
}

// Delete removes the session row.
func (s *SQLSessionStore) Delete(ctx context.Context, id string) error {
	query := s.rebind(fmt.Sprintf("DELETE FROM %s WHERE session_id = ?", s.table))
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// List returns session ids for the workflow, most recently updated first.
// An empty workflow name lists every session.
func (s *SQLSessionStore) List(ctx context.Context, workflowName string) ([]string, error) {
	var rows *sql.Rows
	var err error
	if workflowName == "" {
		rows, err = s.db.QueryContext(ctx, fmt.Sprintf(
			"SELECT session_id FROM %s ORDER BY updated_at DESC, session_id ASC", s.table))
	} else {
		rows, err = s.db.QueryContext(ctx, s.rebind(fmt.Sprintf(
			"SELECT session_id FROM %s WHERE workflow_name = ? ORDER BY updated_at DESC, session_id ASC", s.table)),
			workflowName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the database.
func (s *SQLSessionStore) Close() error {
	return s.db.Close()
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

var _ session.Store = (*SQLSessionStore)(nil)
