package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrUserExists      = errors.New("user already exists")
	ErrInvalidPassword = errors.New("invalid password")
	ErrInvalidName     = errors.New("invalid user name")
)

// DefaultCleanupInterval is how often expired bans are purged
const DefaultCleanupInterval = time.Hour

// DB is the server's persistent store: registered users and bans
type DB struct {
	db  *sql.DB
	log *zap.Logger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Open opens or creates the database at path and starts the ban cleaner.
// Use ":memory:" for a throwaway store.
func Open(path string, log *zap.Logger) (*DB, error) {
	return OpenWithCleanup(path, DefaultCleanupInterval, log)
}

// OpenWithCleanup is Open with an explicit cleanup interval; zero disables
// the cleaner
func OpenWithCleanup(path string, interval time.Duration, log *zap.Logger) (*DB, error) {
	if log == nil {
		log = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &DB{
		db:   db,
		log:  log.Named("storage"),
		stop: make(chan struct{}),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	if interval > 0 {
		store.wg.Add(1)
		go store.cleanupExpiredBans(interval)
	}

	return store, nil
}

// initSchema creates database tables
func (s *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		name_key TEXT UNIQUE NOT NULL,
		password_hash BLOB,
		cert_hash TEXT,
		comment TEXT NOT NULL DEFAULT '',
		last_seen INTEGER NOT NULL DEFAULT 0,
		last_channel INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE TABLE IF NOT EXISTS bans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		address BLOB,
		mask INTEGER NOT NULL DEFAULT 128,
		name TEXT NOT NULL DEFAULT '',
		hash TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		start INTEGER NOT NULL,
		duration INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_users_cert_hash ON users(cert_hash);
	CREATE INDEX IF NOT EXISTS idx_bans_hash ON bans(hash);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// cleanupExpiredBans periodically removes expired bans
func (s *DB) cleanupExpiredBans(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			count, err := s.PurgeExpiredBans(now)
			if err != nil {
				s.log.Warn("Failed to clean up expired bans", zap.Error(err))
				continue
			}
			if count > 0 {
				s.log.Info("Cleaned up expired bans", zap.Int64("count", count))
			}
		}
	}
}

// Close stops the cleaner and closes the database connection
func (s *DB) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
	return s.db.Close()
}
