// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package knowledge persists the assistant's local reference material in
// SQLite: genetics trait records indexed with FTS5 for domain lookup, and
// document chunks with embeddings for vector search. When the binary is
// built with the sqlite_vec tag the sqlite-vec extension computes cosine
// distance in SQL; otherwise similarity is computed in Go.
package knowledge

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/pdiddy/research-assistant/pkg/types"
)

const (
	traitsDir    = "traits"
	documentsDir = "documents"
	indexDir     = "index"
	dbFile       = "assistant.db"
)

// Store manages the knowledge SQLite database.
type Store struct {
	db           *sql.DB
	knowledgeDir string
	maxResults   int
	vecEnabled   bool
	log          *zap.Logger
}

// NewStore opens or creates the database at knowledgeDir/index/assistant.db
// and creates the schema if it does not exist.
func NewStore(cfg types.KnowledgeBaseConfig, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dbDir := filepath.Join(cfg.KnowledgeDir, indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	dbPath := filepath.Join(dbDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}

	s := &Store{
		db:           db,
		knowledgeDir: cfg.KnowledgeDir,
		maxResults:   maxResults,
		log:          log,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	s.vecEnabled = s.detectVec()
	log.Debug("knowledge store opened",
		zap.String("path", dbPath),
		zap.Bool("sqlite_vec", s.vecEnabled),
	)

	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// VecEnabled reports whether sqlite-vec is loaded.
func (s *Store) VecEnabled() bool {
	return s.vecEnabled
}

func (s *Store) detectVec() bool {
	var version string
	return s.db.QueryRow(`SELECT vec_version()`).Scan(&version) == nil
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS traits (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			source TEXT NOT NULL,
			name TEXT NOT NULL,
			gene TEXT,
			inheritance TEXT,
			alleles TEXT,
			description TEXT,
			tags TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_traits_source ON traits(source)`,
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			metadata TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			section TEXT,
			page INTEGER,
			text TEXT NOT NULL,
			embedding BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id)`,
		`CREATE TABLE IF NOT EXISTS indexing_status (
			source TEXT PRIMARY KEY,
			file_mod_time TEXT
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS5 virtual table with triggers for sync.
	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='traits_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}

	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE traits_fts USING fts5(name, description, tags, content=traits, content_rowid=rowid)`,
			`CREATE TRIGGER traits_ai AFTER INSERT ON traits BEGIN
				INSERT INTO traits_fts(rowid, name, description, tags) VALUES (new.rowid, new.name, new.description, new.tags);
			END`,
			`CREATE TRIGGER traits_ad AFTER DELETE ON traits BEGIN
				INSERT INTO traits_fts(traits_fts, rowid, name, description, tags) VALUES('delete', old.rowid, old.name, old.description, old.tags);
			END`,
			`CREATE TRIGGER traits_au AFTER UPDATE ON traits BEGIN
				INSERT INTO traits_fts(traits_fts, rowid, name, description, tags) VALUES('delete', old.rowid, old.name, old.description, old.tags);
				INSERT INTO traits_fts(rowid, name, description, tags) VALUES (new.rowid, new.name, new.description, new.tags);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}

	return nil
}
