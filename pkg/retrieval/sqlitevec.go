package retrieval

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

func init() {
	// Auto-register sqlite-vec extension
	sqlite_vec.Auto()
}

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		index_name TEXT NOT NULL,
		chat_id TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		embedding BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_index_chat ON documents(index_name, chat_id);
`

// SQLiteIndex stores documents and embeddings in a single sqlite file and
// ranks them with sqlite-vec cosine distance.
type SQLiteIndex struct {
	db     *sql.DB
	logger zerolog.Logger
}

var _ Index = (*SQLiteIndex)(nil)

// OpenSQLite opens or creates the index at path.
func OpenSQLite(path string, logger zerolog.Logger) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps :memory: databases coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	var version string
	if err := db.QueryRow("SELECT vec_version()").Scan(&version); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec extension unavailable: %w", err)
	}

	logger.Debug().Str("path", path).Str("vec_version", version).Msg("SQLite vector index opened")

	return &SQLiteIndex{db: db, logger: logger}, nil
}

// Search returns the TopK nearest documents by cosine distance.
func (s *SQLiteIndex) Search(ctx context.Context, query Query) ([]Document, error) {
	if query.IndexName == "" {
		return nil, ErrEmptyIndexName
	}
	if query.TopK <= 0 {
		return []Document{}, nil
	}

	blob, err := sqlite_vec.SerializeFloat32(query.Vector)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize query vector: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			id,
			content,
			source,
			chat_id,
			vec_distance_cosine(embedding, ?) AS distance
		FROM documents
		WHERE index_name = ? AND (chat_id = ? OR chat_id = '')
		ORDER BY distance ASC
		LIMIT ?
	`, blob, query.IndexName, query.ChatID, query.TopK)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var doc Document
		var distance float64
		if err := rows.Scan(&doc.ID, &doc.Content, &doc.Source, &doc.ChatID, &distance); err != nil {
			return nil, err
		}
		doc.Score = 1.0 - distance
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("index", query.IndexName).
		Int("top_k", query.TopK).
		Int("results", len(docs)).
		Msg("SQLite vector search completed")

	return docs, nil
}

// Upsert inserts docs with their vectors, replacing rows with the same id.
func (s *SQLiteIndex) Upsert(ctx context.Context, indexName string, docs []Document, vectors [][]float32) error {
	if indexName == "" {
		return ErrEmptyIndexName
	}
	if len(docs) != len(vectors) {
		return ErrVectorMismatch
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (id, index_name, chat_id, content, source, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			index_name = excluded.index_name,
			chat_id = excluded.chat_id,
			content = excluded.content,
			source = excluded.source,
			embedding = excluded.embedding
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for i, doc := range docs {
		id := doc.ID
		if id == "" {
			id = uuid.NewString()
		}
		blob, err := sqlite_vec.SerializeFloat32(vectors[i])
		if err != nil {
			return fmt.Errorf("failed to serialize vector for %s: %w", id, err)
		}
		if _, err := stmt.ExecContext(ctx, id, indexName, doc.ChatID, doc.Content, doc.Source, blob, now); err != nil {
			return fmt.Errorf("failed to insert document %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit documents: %w", err)
	}

	s.logger.Info().Str("index", indexName).Int("documents", len(docs)).Msg("Documents indexed")
	return nil
}

// Count returns the number of documents stored under indexName.
func (s *SQLiteIndex) Count(ctx context.Context, indexName string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE index_name = ?", indexName).Scan(&n)
	return n, err
}

func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}
