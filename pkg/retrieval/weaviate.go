package retrieval

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"unicode"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

var documentNamespace = uuid.MustParse("6f1d3c1e-8b0a-4f5e-9a53-2c7a1b9e4d10")

// sharedChatID marks documents visible to every chat. Weaviate does not
// filter reliably on empty strings.
const sharedChatID = "_shared"

// WeaviateIndex stores each index name as its own Weaviate class with
// externally supplied vectors.
type WeaviateIndex struct {
	client  *weaviate.Client
	logger  zerolog.Logger
	mu      sync.Mutex
	ensured map[string]bool
}

var _ Index = (*WeaviateIndex)(nil)

// NewWeaviateIndex connects to the Weaviate instance at rawURL.
func NewWeaviateIndex(rawURL string, logger zerolog.Logger) (*WeaviateIndex, error) {
	cfg, err := weaviateConfig(rawURL)
	if err != nil {
		return nil, err
	}

	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}

	return &WeaviateIndex{
		client:  client,
		logger:  logger,
		ensured: make(map[string]bool),
	}, nil
}

func weaviateConfig(rawURL string) (weaviate.Config, error) {
	if rawURL == "" {
		return weaviate.Config{}, fmt.Errorf("weaviate url is required")
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return weaviate.Config{}, fmt.Errorf("invalid weaviate url: %w", err)
	}
	if u.Host == "" {
		return weaviate.Config{}, fmt.Errorf("invalid weaviate url: missing host")
	}
	return weaviate.Config{Host: u.Host, Scheme: u.Scheme}, nil
}

// ClassName maps an index name to a valid Weaviate class name.
func ClassName(indexName string) string {
	var b strings.Builder
	for _, r := range indexName {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	name := b.String()
	if name == "" {
		return ""
	}
	runes := []rune(name)
	if !unicode.IsLetter(runes[0]) {
		return "Index_" + name
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// Search runs a nearVector query scoped to the chat.
func (w *WeaviateIndex) Search(ctx context.Context, query Query) ([]Document, error) {
	if query.IndexName == "" {
		return nil, ErrEmptyIndexName
	}
	if query.TopK <= 0 {
		return []Document{}, nil
	}
	className := ClassName(query.IndexName)

	operands := []*filters.WhereBuilder{
		filters.Where().
			WithPath([]string{"chatId"}).
			WithOperator(filters.Equal).
			WithValueString(sharedChatID),
	}
	if query.ChatID != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"chatId"}).
			WithOperator(filters.Equal).
			WithValueString(query.ChatID))
	}
	whereFilter := filters.Where().
		WithOperator(filters.Or).
		WithOperands(operands)

	nearVector := w.client.GraphQL().NearVectorArgBuilder().
		WithVector(query.Vector)

	fields := []graphql.Field{
		{Name: "docId"},
		{Name: "content"},
		{Name: "source"},
		{Name: "chatId"},
		{Name: "_additional { distance }"},
	}

	result, err := w.client.GraphQL().Get().
		WithClassName(className).
		WithFields(fields...).
		WithWhere(whereFilter).
		WithNearVector(nearVector).
		WithLimit(query.TopK).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("search error: %s", result.Errors[0].Message)
	}

	docs := parseWeaviateDocuments(result, className)

	w.logger.Debug().
		Str("class", className).
		Int("top_k", query.TopK).
		Int("results", len(docs)).
		Msg("Weaviate vector search completed")

	return docs, nil
}

// Upsert batch-imports docs. Object ids are derived from the index and the
// document id, so re-ingesting a document replaces it.
func (w *WeaviateIndex) Upsert(ctx context.Context, indexName string, docs []Document, vectors [][]float32) error {
	if indexName == "" {
		return ErrEmptyIndexName
	}
	if len(docs) != len(vectors) {
		return ErrVectorMismatch
	}
	if len(docs) == 0 {
		return nil
	}

	className := ClassName(indexName)
	if err := w.ensureClass(ctx, className); err != nil {
		return err
	}

	objects := make([]*models.Object, len(docs))
	for i, doc := range docs {
		docID := doc.ID
		if docID == "" {
			docID = uuid.NewString()
		}
		objects[i] = &models.Object{
			Class:  className,
			ID:     strfmt.UUID(uuid.NewSHA1(documentNamespace, []byte(indexName+"/"+docID)).String()),
			Vector: vectors[i],
			Properties: map[string]interface{}{
				"docId":   docID,
				"content": doc.Content,
				"source":  doc.Source,
				"chatId":  storedChatID(doc.ChatID),
			},
		}
	}

	resp, err := w.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return fmt.Errorf("batch import failed: %w", err)
	}

	failed := 0
	for _, item := range resp {
		if item.Result != nil && item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 {
			failed++
			w.logger.Warn().
				Str("class", className).
				Str("error", item.Result.Errors.Error[0].Message).
				Msg("Weaviate batch item failed")
		}
	}
	if failed > 0 {
		return fmt.Errorf("batch import: %d of %d objects failed", failed, len(objects))
	}

	w.logger.Info().Str("class", className).Int("documents", len(docs)).Msg("Documents indexed")
	return nil
}

func (w *WeaviateIndex) ensureClass(ctx context.Context, className string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ensured[className] {
		return nil
	}

	if _, err := w.client.Schema().ClassGetter().WithClassName(className).Do(ctx); err != nil {
		w.logger.Info().Str("class", className).Msg("Schema not found, creating it")
		if err := w.client.Schema().ClassCreator().WithClass(documentClass(className)).Do(ctx); err != nil {
			return fmt.Errorf("failed to create schema for class %s: %w", className, err)
		}
	}

	w.ensured[className] = true
	return nil
}

func documentClass(className string) *models.Class {
	indexFilterable := true

	return &models.Class{
		Class:       className,
		Description: "Retrievable document chunks with externally supplied vectors.",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:            "docId",
				DataType:        []string{"text"},
				IndexFilterable: &indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "content",
				DataType:     []string{"text"},
				Tokenization: "word",
			},
			{
				Name:            "source",
				DataType:        []string{"text"},
				IndexFilterable: &indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "chatId",
				DataType:        []string{"text"},
				IndexFilterable: &indexFilterable,
				Tokenization:    "field",
			},
		},
	}
}

func parseWeaviateDocuments(result *models.GraphQLResponse, className string) []Document {
	docs := []Document{}
	if result == nil {
		return docs
	}

	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return docs
	}

	objects, ok := data[className].([]interface{})
	if !ok {
		return docs
	}

	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		doc := Document{
			ID:      getString(m, "docId"),
			Content: getString(m, "content"),
			Source:  getString(m, "source"),
			ChatID:  getString(m, "chatId"),
		}
		if doc.ChatID == sharedChatID {
			doc.ChatID = ""
		}
		if additional, ok := m["_additional"].(map[string]interface{}); ok {
			if distance, ok := additional["distance"].(float64); ok {
				doc.Score = 1.0 - distance
			}
		}
		docs = append(docs, doc)
	}

	return docs
}

func storedChatID(chatID string) string {
	if chatID == "" {
		return sharedChatID
	}
	return chatID
}

func getString(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func (w *WeaviateIndex) Close() error {
	return nil
}
