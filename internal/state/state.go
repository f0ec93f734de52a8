// Package state persists per-tenant settings in a local SQLite database.
package state

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver
)

const (
	appName      = "wavesbot"
	dbFileName   = "wavesbot.db"
	saveDebounce = 500 * time.Millisecond
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used to report failed background saves.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDebounce sets how long volume writes are coalesced before hitting disk.
func WithDebounce(d time.Duration) Option {
	return func(s *Store) { s.debounce = d }
}

// Store is a SQLite backed settings store. Volume writes are debounced and
// flushed on Close.
type Store struct {
	db       *sql.DB
	logger   *zap.Logger
	debounce time.Duration

	flushMu sync.Mutex // serializes database writes

	saveMu    sync.Mutex
	saveTimer *time.Timer
	pending   map[string]int
	inflight  map[string]int // batch being written by Flush
	closed    bool
}

// Open opens the database at path, creating it and its directory if needed.
// An empty path uses the default location under the XDG data directory.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		p, err := getDBPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return newStore(db, opts)
}

// OpenMemory opens a private in-memory database.
func OpenMemory(opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, err
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return newStore(db, opts)
}

func newStore(db *sql.DB, opts []Option) (*Store, error) {
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	s := &Store{
		db:       db,
		logger:   zap.NewNop(),
		debounce: saveDebounce,
		pending:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Flush writes pending saves immediately. A failed batch is kept pending
// unless a newer value was saved meanwhile.
func (s *Store) Flush() error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.saveMu.Lock()
	if s.saveTimer != nil {
		s.saveTimer.Stop()
		s.saveTimer = nil
	}
	batch := s.pending
	if len(batch) == 0 {
		s.saveMu.Unlock()
		return nil
	}
	s.pending = make(map[string]int)
	s.inflight = batch
	s.saveMu.Unlock()

	err := saveVolumes(s.db, batch, time.Now())

	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	s.inflight = nil
	if err != nil {
		for tenant, volume := range batch {
			if _, newer := s.pending[tenant]; !newer {
				s.pending[tenant] = volume
			}
		}
	}
	return err
}

// Close flushes pending saves and closes the database.
func (s *Store) Close() error {
	s.saveMu.Lock()
	if s.closed {
		s.saveMu.Unlock()
		return nil
	}
	s.closed = true
	s.saveMu.Unlock()

	flushErr := s.Flush()
	if err := s.db.Close(); err != nil {
		return err
	}
	return flushErr
}

func (s *Store) scheduleLocked() {
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	s.saveTimer = time.AfterFunc(s.debounce, func() {
		if err := s.Flush(); err != nil {
			s.logger.Warn("failed to save settings", zap.Error(err))
		}
	})
}

func getDBPath() (string, error) {
	return xdg.DataFile(filepath.Join(appName, dbFileName))
}
