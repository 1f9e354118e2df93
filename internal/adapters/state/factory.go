package state

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/switchyard-dev/switchyard/internal/core"
	"github.com/switchyard-dev/switchyard/internal/logging"
)

// Backend selects the session store implementation.
type Backend string

const (
	BackendJSON   Backend = "json"
	BackendSQLite Backend = "sqlite"
)

// NewStore creates a session store. For the JSON backend path is a
// directory; for SQLite it is the database file (a .db extension is
// enforced).
func NewStore(backend Backend, path string, log *logging.Logger) (core.SessionStore, error) {
	switch backend {
	case BackendJSON, "":
		return NewJSONStore(path, log), nil
	case BackendSQLite:
		if !strings.HasSuffix(path, ".db") {
			path = strings.TrimSuffix(path, filepath.Ext(path)) + ".db"
		}
		return NewSQLiteStore(path, log)
	default:
		return nil, core.ErrConfig(
			fmt.Sprintf("unknown state backend %q (known: %s, %s)", backend, BackendJSON, BackendSQLite))
	}
}

// Closeable is implemented by stores that hold resources.
type Closeable interface {
	Close() error
}

// CloseStore closes a store if its backend needs it.
func CloseStore(s core.SessionStore) error {
	if c, ok := s.(Closeable); ok {
		return c.Close()
	}
	return nil
}
