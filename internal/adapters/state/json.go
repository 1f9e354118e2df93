// Package state persists sessions so paused or interrupted runs can be
// resumed. Two backends implement core.SessionStore: one JSON file per
// session with checksummed envelopes, and a single SQLite database.
package state

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/switchyard-dev/switchyard/internal/core"
	"github.com/switchyard-dev/switchyard/internal/logging"
)

// JSONStore keeps one checksummed JSON file per session in a directory.
type JSONStore struct {
	dir string
	log *logging.Logger
}

var _ core.SessionStore = (*JSONStore)(nil)

// NewJSONStore creates a JSON session store rooted at dir.
func NewJSONStore(dir string, log *logging.Logger) *JSONStore {
	if log == nil {
		log = logging.NewNop()
	}
	return &JSONStore{dir: dir, log: log.WithComponent("state")}
}

// envelope wraps a session with integrity metadata.
type envelope struct {
	Version  int           `json:"version"`
	Checksum string        `json:"checksum"`
	SavedAt  time.Time     `json:"saved_at"`
	Session  *core.Session `json:"session"`
}

// Save persists a session atomically, keeping the previous file as backup.
func (s *JSONStore) Save(_ context.Context, sess *core.Session) error {
	if err := checkID(sess.ID); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	path := s.sessionPath(sess.ID)
	if prev, err := os.ReadFile(path); err == nil {
		if err := atomicWriteFile(path+".bak", prev, 0o644); err != nil {
			return fmt.Errorf("writing backup: %w", err)
		}
	}

	sess.UpdatedAt = time.Now()

	body, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	sum := sha256.Sum256(body)

	data, err := json.MarshalIndent(envelope{
		Version:  1,
		Checksum: hex.EncodeToString(sum[:]),
		SavedAt:  time.Now(),
		Session:  sess,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}

	if err := atomicWriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	s.log.Debug("session saved", "session", sess.ID, "path", path)
	return nil
}

// Load retrieves a session by ID, falling back to the backup file when the
// primary is unreadable or fails its checksum.
func (s *JSONStore) Load(_ context.Context, id string) (*core.Session, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}

	path := s.sessionPath(id)
	sess, err := loadSessionFile(path)
	if err == nil {
		return sess, nil
	}
	if os.IsNotExist(err) {
		return nil, sessionNotFound(id)
	}

	backup, backupErr := loadSessionFile(path + ".bak")
	if backupErr != nil {
		return nil, core.ErrState(core.CodeStateCorrupted,
			fmt.Sprintf("session %s unreadable and backup failed: %v", id, backupErr)).WithCause(err)
	}
	s.log.Warn("session restored from backup", "session", id, "error", err)
	return backup, nil
}

// List returns all sessions, most recently updated first. Unreadable files
// are skipped so one corrupt session cannot hide the rest.
func (s *JSONStore) List(_ context.Context) ([]*core.Session, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading state directory: %w", err)
	}

	var sessions []*core.Session
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		sess, err := loadSessionFile(filepath.Join(s.dir, name))
		if err != nil {
			s.log.Warn("skipping unreadable session file", "file", name, "error", err)
			continue
		}
		sessions = append(sessions, sess)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

// Delete removes a session and its backup.
func (s *JSONStore) Delete(_ context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}

	path := s.sessionPath(id)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return sessionNotFound(id)
		}
		return fmt.Errorf("deleting session file: %w", err)
	}
	_ = os.Remove(path + ".bak")
	return nil
}

// Dir returns the store's root directory.
func (s *JSONStore) Dir() string {
	return s.dir
}

func (s *JSONStore) sessionPath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func loadSessionFile(path string) (*core.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshaling envelope: %w", err)
	}
	if env.Session == nil {
		return nil, fmt.Errorf("envelope carries no session")
	}

	body, err := json.Marshal(env.Session)
	if err != nil {
		return nil, fmt.Errorf("marshaling session for checksum: %w", err)
	}
	sum := sha256.Sum256(body)
	if hex.EncodeToString(sum[:]) != env.Checksum {
		return nil, core.ErrState(core.CodeStateCorrupted, "checksum mismatch")
	}

	return env.Session, nil
}

// checkID rejects IDs that cannot serve as file names. IDs reach the store
// from user input (resume flags), so this is the traversal guard.
func checkID(id string) error {
	if id == "" {
		return core.ErrState(core.CodeInvalidSessionID, "session id is empty")
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return core.ErrState(core.CodeInvalidSessionID,
				fmt.Sprintf("session id %q contains invalid characters", id))
		}
	}
	return nil
}

func sessionNotFound(id string) *core.DomainError {
	err := core.ErrNotFound("session", id)
	err.Code = core.CodeSessionNotFound
	return err
}
