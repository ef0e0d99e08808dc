package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/p32929/github-trending-repos/internal/trending"
	_ "modernc.org/sqlite"
)

// dateLayout is the calendar-date form used for freshness checks and
// for the persisted document.
const dateLayout = "2006-01-02"

// Snapshot is one complete, deduplicated trending set. It is
// immutable once built; the store swaps whole snapshots atomically.
type Snapshot struct {
	Repos       []trending.Repo `json:"repos"`
	GeneratedAt string          `json:"generatedAt"`
	BuiltAt     time.Time       `json:"builtAt"`
}

// DateOf returns the calendar date of t in snapshot form.
func DateOf(t time.Time) string {
	return t.Format(dateLayout)
}

// Store holds the current snapshot in memory and mirrors it to a
// SQLite-backed document so a fresh process can reuse the same day's
// result. Freshness is calendar-day granularity, not a TTL: a set
// built at 23:59 is stale at 00:01.
type Store struct {
	mu     sync.RWMutex
	snap   *Snapshot
	loaded bool

	db *sql.DB
}

// Open creates a store persisted at dbPath. An empty path gives a
// memory-only store.
func Open(dbPath string) (*Store, error) {
	if dbPath == "" {
		return &Store{loaded: true}, nil
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS trending_cache (
			generated_at TEXT PRIMARY KEY,
			document     BLOB NOT NULL,
			built_at     INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize cache schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Valid reports whether a snapshot exists and was generated on the
// same calendar date as now.
func (s *Store) Valid(now time.Time) bool {
	snap := s.Get()
	return snap != nil && snap.GeneratedAt == DateOf(now)
}

// Get returns the current snapshot, or nil when none exists. The
// persisted document is loaded lazily on first access; a read failure
// is logged and treated as an empty cache.
func (s *Store) Get() *Snapshot {
	s.mu.RLock()
	if s.loaded {
		defer s.mu.RUnlock()
		return s.snap
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		snap, err := s.load()
		if err != nil {
			slog.Warn("cache read failed, proceeding without cache", "error", err)
		}
		s.snap = snap
		s.loaded = true
	}
	return s.snap
}

// Replace atomically swaps in a new snapshot and persists it. Readers
// never observe a half-replaced set. Persistence failures are logged
// and do not fail the swap.
func (s *Store) Replace(snap *Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.loaded = true
	s.mu.Unlock()

	if err := s.persist(snap); err != nil {
		slog.Warn("cache write failed", "error", err)
	}
}

// Clear drops the in-memory snapshot and the persisted document.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.snap = nil
	s.loaded = true
	s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	if _, err := s.db.Exec("DELETE FROM trending_cache"); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// Close closes the underlying database, if any.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// load reads the most recent persisted document.
func (s *Store) load() (*Snapshot, error) {
	if s.db == nil {
		return nil, nil
	}

	var document []byte
	err := s.db.QueryRow(`
		SELECT document FROM trending_cache
		ORDER BY generated_at DESC LIMIT 1
	`).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache document: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(document, &snap); err != nil {
		return nil, fmt.Errorf("decode cache document: %w", err)
	}

	slog.Debug("loaded cached trending set",
		"generated_at", snap.GeneratedAt,
		"repos", len(snap.Repos),
	)
	return &snap, nil
}

// persist writes the snapshot as a single JSON document and drops
// older days; only the latest set is ever kept.
func (s *Store) persist(snap *Snapshot) error {
	if s.db == nil || snap == nil {
		return nil
	}

	document, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode cache document: %w", err)
	}

	if _, err := s.db.Exec(`
		INSERT OR REPLACE INTO trending_cache (generated_at, document, built_at)
		VALUES (?, ?, ?)
	`, snap.GeneratedAt, document, snap.BuiltAt.Unix()); err != nil {
		return fmt.Errorf("write cache document: %w", err)
	}

	if _, err := s.db.Exec(
		"DELETE FROM trending_cache WHERE generated_at <> ?",
		snap.GeneratedAt,
	); err != nil {
		return fmt.Errorf("prune cache: %w", err)
	}

	return nil
}
