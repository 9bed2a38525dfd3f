package store

import (
	"database/sql"
	"sync"
)

// Registry is a process-wide singleton registry of *sql.DB handles keyed by
// connection URL, so every processor pointed at the same store URL shares
// one pool — the "per-URL connection singleton" design note. Callers obtain
// one via Open, which opens the connection on first use and reuses it on
// subsequent calls for the same (driver, url) pair.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*sql.DB
}

// Global is the default process-wide Registry. Backends use it unless a
// caller constructs a private Registry for test isolation.
var Global = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*sql.DB)}
}

// Open returns the shared *sql.DB for (driver, url), opening and pinging a
// new connection the first time it is requested.
func (r *Registry) Open(driver, url string) (*sql.DB, error) {
	key := driver + "|" + url

	r.mu.Lock()
	defer r.mu.Unlock()

	if db, ok := r.conns[key]; ok {
		return db, nil
	}

	db, err := sql.Open(driver, url)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	r.conns[key] = db
	return db, nil
}

// Close tears down every connection the registry owns. Intended for
// application shutdown.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for key, db := range r.conns {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.conns, key)
	}
	return firstErr
}
