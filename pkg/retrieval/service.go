package retrieval

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Request is one retrieval lookup made on behalf of a chat.
type Request struct {
	Query              string
	ChatID             string
	TopK               int
	EmbeddingModelName string
	IndexName          string
}

// IngestRequest adds documents to an index.
type IngestRequest struct {
	IndexName          string
	ChatID             string
	EmbeddingModelName string
	Documents          []Document
}

// Config configures a Service.
type Config struct {
	Embedders EmbedderFactory
	Index     Index
	Logger    zerolog.Logger
}

// Service embeds queries and documents and delegates to the vector index.
type Service struct {
	embedders EmbedderFactory
	index     Index
	logger    zerolog.Logger

	mu    sync.Mutex
	cache map[string]Embedder
}

// NewService creates a retrieval service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Embedders == nil {
		return nil, fmt.Errorf("embedder factory is required")
	}
	if cfg.Index == nil {
		return nil, fmt.Errorf("index is required")
	}

	return &Service{
		embedders: cfg.Embedders,
		index:     cfg.Index,
		logger:    cfg.Logger,
		cache:     make(map[string]Embedder),
	}, nil
}

// Embedder resolves and caches the embedder for modelName.
func (s *Service) Embedder(modelName string) (Embedder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.cache[modelName]; ok {
		return e, nil
	}
	e, err := s.embedders(modelName)
	if err != nil {
		return nil, err
	}
	s.cache[modelName] = e
	return e, nil
}

// Retrieve returns up to TopK documents nearest to the query text.
func (s *Service) Retrieve(ctx context.Context, req Request) ([]Document, error) {
	if req.IndexName == "" {
		return nil, ErrEmptyIndexName
	}

	embedder, err := s.Embedder(req.EmbeddingModelName)
	if err != nil {
		return nil, err
	}

	if req.TopK <= 0 {
		return []Document{}, nil
	}

	vectors, err := embedder.Embed(ctx, []string{req.Query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 query vector, got %d", len(vectors))
	}

	docs, err := s.index.Search(ctx, Query{
		IndexName: req.IndexName,
		ChatID:    req.ChatID,
		Vector:    vectors[0],
		TopK:      req.TopK,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("index", req.IndexName).
		Str("chat_id", req.ChatID).
		Int("results", len(docs)).
		Msg("Retrieved documents")

	return docs, nil
}

// Ingest embeds and stores documents, returning how many were written.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (int, error) {
	if req.IndexName == "" {
		return 0, ErrEmptyIndexName
	}
	if len(req.Documents) == 0 {
		return 0, nil
	}

	embedder, err := s.Embedder(req.EmbeddingModelName)
	if err != nil {
		return 0, err
	}

	texts := make([]string, len(req.Documents))
	docs := make([]Document, len(req.Documents))
	for i, doc := range req.Documents {
		texts[i] = doc.Content
		docs[i] = doc
		if docs[i].ChatID == "" {
			docs[i].ChatID = req.ChatID
		}
	}

	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed documents: %w", err)
	}

	if err := s.index.Upsert(ctx, req.IndexName, docs, vectors); err != nil {
		return 0, err
	}
	return len(docs), nil
}

// Close releases the underlying index.
func (s *Service) Close() error {
	return s.index.Close()
}
