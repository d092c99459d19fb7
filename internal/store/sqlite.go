package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO

	"github.com/open-access-policies/policy-crew/internal/chunk"
	herrors "github.com/open-access-policies/policy-crew/internal/errors"
)

// ChunkStore persists chunk text and build metadata in SQLite. A persisted
// index is the pair (vector store file, chunks.db): the vectors answer
// nearest-neighbour queries and the chunk store maps hit IDs back to text.
// Build metadata (corpus fingerprint, embedder model, chunking parameters)
// decides whether a persisted index can be reused for the current config.
type ChunkStore struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	closed bool
}

// validateChunkDBIntegrity checks a SQLite chunk database before opening.
// Returns nil when the file is absent (a fresh database will be created).
func validateChunkDBIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master
                       WHERE type='table' AND name='chunks'`).Scan(&count)
	if err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("chunks table missing")
	}
	return nil
}

// NewChunkStore opens or creates a chunk database at path. An empty path
// creates an in-memory store. A corrupt database is cleared and recreated
// empty, which forces the caller to rebuild the index.
func NewChunkStore(path string, logger *slog.Logger) (*ChunkStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, herrors.New(herrors.ErrCodeIndexPersist, "create index directory", err)
		}

		if validErr := validateChunkDBIntegrity(path); validErr != nil {
			logger.Warn("chunk store corrupted, clearing",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, herrors.Newf(herrors.ErrCodeIndexCorrupt, "chunk store corrupt at %s and cannot remove: %v (original error: %v)", path, removeErr, validErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, herrors.New(herrors.ErrCodeIndexPersist, "open chunk store", err)
	}

	// Single connection keeps writers serialized and keeps :memory:
	// databases from splitting across pool connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite ignores DSN parameters, so pragmas go through Exec.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, herrors.New(herrors.ErrCodeIndexPersist, "set pragma", err)
		}
	}

	s := &ChunkStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, herrors.New(herrors.ErrCodeIndexPersist, "initialize chunk store schema", err)
	}
	return s, nil
}

func (s *ChunkStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id           TEXT PRIMARY KEY,
		doc_path     TEXT NOT NULL,
		ordinal      INTEGER NOT NULL,
		start_offset INTEGER NOT NULL,
		end_offset   INTEGER NOT NULL,
		content      TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(doc_path, ordinal);

	CREATE TABLE IF NOT EXISTS build_meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Put upserts chunks in a single transaction.
func (s *ChunkStore) Put(ctx context.Context, chunks []chunk.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("chunk store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks (id, doc_path, ordinal, start_offset, end_offset, content)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocPath, c.Ordinal, c.Start, c.End, c.Content); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunks: %w", err)
	}
	return nil
}

// Get returns the chunk stored under id. The second return reports whether
// the chunk exists.
func (s *ChunkStore) Get(ctx context.Context, id string) (chunk.Chunk, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return chunk.Chunk{}, false, fmt.Errorf("chunk store is closed")
	}

	var c chunk.Chunk
	row := s.db.QueryRowContext(ctx, `
		SELECT id, doc_path, ordinal, start_offset, end_offset, content
		FROM chunks WHERE id = ?`, id)
	err := row.Scan(&c.ID, &c.DocPath, &c.Ordinal, &c.Start, &c.End, &c.Content)
	if err == sql.ErrNoRows {
		return chunk.Chunk{}, false, nil
	}
	if err != nil {
		return chunk.Chunk{}, false, fmt.Errorf("read chunk %s: %w", id, err)
	}
	return c, true, nil
}

// All returns every chunk ordered by document path, then ordinal. This is
// the order chunks were produced in during the build.
func (s *ChunkStore) All(ctx context.Context) ([]chunk.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("chunk store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, doc_path, ordinal, start_offset, end_offset, content
		FROM chunks ORDER BY doc_path, ordinal`)
	if err != nil {
		return nil, fmt.Errorf("read chunks: %w", err)
	}
	defer rows.Close()

	var chunks []chunk.Chunk
	for rows.Next() {
		var c chunk.Chunk
		if err := rows.Scan(&c.ID, &c.DocPath, &c.Ordinal, &c.Start, &c.End, &c.Content); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return chunks, nil
}

// Count returns the number of stored chunks.
func (s *ChunkStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, fmt.Errorf("chunk store is closed")
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return count, nil
}

// SetMeta upserts a build metadata entry.
func (s *ChunkStore) SetMeta(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("chunk store is closed")
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO build_meta (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}

// GetMeta returns a build metadata entry. The second return reports whether
// the key exists.
func (s *ChunkStore) GetMeta(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", false, fmt.Errorf("chunk store is closed")
	}

	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM build_meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get meta %s: %w", key, err)
	}
	return value, true, nil
}

// Clear removes all chunks and metadata, keeping the schema.
func (s *ChunkStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("chunk store is closed")
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM chunks"); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM build_meta"); err != nil {
		return fmt.Errorf("clear build meta: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *ChunkStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
