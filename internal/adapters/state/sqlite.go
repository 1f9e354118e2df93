package state

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/switchyard-dev/switchyard/internal/core"
	"github.com/switchyard-dev/switchyard/internal/logging"
	_ "modernc.org/sqlite"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

// SQLiteStore keeps all sessions in one SQLite database. Procedure state is
// flattened into columns; labels and step history ride along as JSON.
type SQLiteStore struct {
	dbPath string
	db     *sql.DB
	mu     sync.RWMutex
	log    *logging.Logger
}

var _ core.SessionStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the session database at dbPath and runs
// pending migrations.
func NewSQLiteStore(dbPath string, log *logging.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = logging.NewNop()
	}
	s := &SQLiteStore{dbPath: dbPath, log: log.WithComponent("state")}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s.db = db

	if err := s.migrate(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("running migrations: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

func (s *SQLiteStore) migrate() error {
	var version int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		// Table doesn't exist yet.
		version = 0
	}

	if version < 1 {
		if _, err := s.db.Exec(migrationV1); err != nil {
			return fmt.Errorf("applying migration v1: %w", err)
		}
	}
	return nil
}

// Save upserts a session.
func (s *SQLiteStore) Save(ctx context.Context, sess *core.Session) error {
	if err := checkID(sess.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess.UpdatedAt = time.Now()

	labelsJSON, err := json.Marshal(sess.Labels)
	if err != nil {
		return fmt.Errorf("marshaling labels: %w", err)
	}

	var procName sql.NullString
	var stepIndex int
	var historyJSON sql.NullString
	if sess.Procedure != nil {
		procName = sql.NullString{String: sess.Procedure.ProcedureName, Valid: true}
		stepIndex = sess.Procedure.CurrentStepIndex
		raw, err := json.Marshal(sess.Procedure.StepHistory)
		if err != nil {
			return fmt.Errorf("marshaling step history: %w", err)
		}
		historyJSON = sql.NullString{String: string(raw), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (
			id, issue_number, title, body, labels, platform,
			procedure_name, current_step_index, step_history,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			issue_number = excluded.issue_number,
			title = excluded.title,
			body = excluded.body,
			labels = excluded.labels,
			platform = excluded.platform,
			procedure_name = excluded.procedure_name,
			current_step_index = excluded.current_step_index,
			step_history = excluded.step_history,
			updated_at = excluded.updated_at
	`,
		sess.ID, sess.IssueNumber, sess.Title, sess.Body,
		string(labelsJSON), string(sess.Platform),
		procName, stepIndex, historyJSON,
		sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting session: %w", err)
	}
	return nil
}

// Load retrieves a session by ID.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*core.Session, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, issue_number, title, body, labels, platform,
		       procedure_name, current_step_index, step_history,
		       created_at, updated_at
		FROM sessions WHERE id = ?
	`, id)

	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, sessionNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	return sess, nil
}

// List returns all sessions, most recently updated first.
func (s *SQLiteStore) List(ctx context.Context) ([]*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, issue_number, title, body, labels, platform,
		       procedure_name, current_step_index, step_history,
		       created_at, updated_at
		FROM sessions ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*core.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

// Delete removes a session.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if n == 0 {
		return sessionNotFound(id)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*core.Session, error) {
	var sess core.Session
	var body, labelsJSON, platform sql.NullString
	var procName, historyJSON sql.NullString
	var stepIndex int

	err := row.Scan(
		&sess.ID, &sess.IssueNumber, &sess.Title, &body, &labelsJSON, &platform,
		&procName, &stepIndex, &historyJSON,
		&sess.CreatedAt, &sess.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if body.Valid {
		sess.Body = body.String
	}
	if platform.Valid {
		sess.Platform = core.Platform(platform.String)
	}
	if labelsJSON.Valid && labelsJSON.String != "" {
		if err := json.Unmarshal([]byte(labelsJSON.String), &sess.Labels); err != nil {
			return nil, fmt.Errorf("unmarshaling labels: %w", err)
		}
	}

	if procName.Valid {
		proc := &core.SessionProcedureState{
			ProcedureName:    procName.String,
			CurrentStepIndex: stepIndex,
			StepHistory:      []core.StepRecord{},
		}
		if historyJSON.Valid && historyJSON.String != "" {
			if err := json.Unmarshal([]byte(historyJSON.String), &proc.StepHistory); err != nil {
				return nil, fmt.Errorf("unmarshaling step history: %w", err)
			}
		}
		sess.Procedure = proc
	}

	return &sess, nil
}
