package storage

import (
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database that lives as long as the store.
const MemoryPath = ":memory:"

// DescriptionEntry is a cached raw description for one image.
type DescriptionEntry struct {
	Text      string
	Describer string
	CreatedAt time.Time
}

// DescriptionStore caches raw image descriptions by image hash.
type DescriptionStore interface {
	GetDescription(imageHash string) (*DescriptionEntry, error)
	SetDescription(imageHash string, entry *DescriptionEntry) error
	Close() error
}

// SQLiteStore implements DescriptionStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore creates a new SQLite-based description store.
// Pass MemoryPath (or an empty path) to keep the cache in memory only.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = MemoryPath
	}

	dsn := dbPath
	if dbPath != MemoryPath {
		// WAL mode and busy timeout for file-backed databases
		dsn = fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	if dbPath != MemoryPath {
		if err := os.Chmod(dbPath, 0600); err != nil {
			log.Warn().Err(err).Str("dbPath", dbPath).Msg("failed to restrict database permissions")
		}
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	query := `
	CREATE TABLE IF NOT EXISTS description_cache (
		image_hash TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		describer TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create description_cache table: %w", err)
	}
	return nil
}

// GetDescription retrieves a cached description by image hash.
// Returns nil, nil if no cache entry exists.
func (s *SQLiteStore) GetDescription(imageHash string) (*DescriptionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entry DescriptionEntry
	err := s.db.QueryRow(
		"SELECT text, describer, created_at FROM description_cache WHERE image_hash = ?",
		imageHash,
	).Scan(&entry.Text, &entry.Describer, &entry.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query description cache: %w", err)
	}

	return &entry, nil
}

// SetDescription stores a description in the cache, replacing any existing entry.
func (s *SQLiteStore) SetDescription(imageHash string, entry *DescriptionEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.Exec(`
		INSERT INTO description_cache (image_hash, text, describer, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(image_hash) DO UPDATE SET
			text = excluded.text,
			describer = excluded.describer,
			created_at = excluded.created_at
	`, imageHash, entry.Text, entry.Describer, createdAt)

	if err != nil {
		return fmt.Errorf("failed to cache description: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
