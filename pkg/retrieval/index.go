package retrieval

import (
	"context"
	"errors"
)

var (
	ErrEmptyIndexName = errors.New("index name is required")
	ErrVectorMismatch = errors.New("documents and vectors length mismatch")
)

// Document is one retrievable text chunk.
type Document struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Source  string  `json:"source,omitempty"`
	ChatID  string  `json:"chat_id,omitempty"`
	Score   float64 `json:"score"`
}

// Query is a nearest-neighbour lookup. Documents stored without a chat id
// are shared across chats and always match.
type Query struct {
	IndexName string
	ChatID    string
	Vector    []float32
	TopK      int
}

// Index is a vector store partitioned by index name.
type Index interface {
	Search(ctx context.Context, query Query) ([]Document, error)
	Upsert(ctx context.Context, indexName string, docs []Document, vectors [][]float32) error
	Close() error
}
