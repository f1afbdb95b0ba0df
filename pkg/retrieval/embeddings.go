package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/harun/oracle/pkg/agenterr"
)

// Embedder generates vector embeddings from text
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Model() string
}

// EmbeddingOptions configures the embeddings client.
type EmbeddingOptions struct {
	APIKey  string
	BaseURL string
}

// EmbedderFactory resolves an embedder by model name.
type EmbedderFactory func(modelName string) (Embedder, error)

var supportedModels = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// SupportedModels returns the embedding model names that can be resolved.
func SupportedModels() []string {
	names := make([]string, 0, len(supportedModels))
	for name := range supportedModels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsSupportedModel reports whether modelName has a known embeddings client.
func IsSupportedModel(modelName string) bool {
	_, ok := supportedModels[modelName]
	return ok
}

// EmbeddingsFor returns the embeddings client for modelName.
func EmbeddingsFor(modelName string, opts EmbeddingOptions) (Embedder, error) {
	dimension, ok := supportedModels[modelName]
	if !ok {
		return nil, agenterr.Domain(agenterr.CodeUnsupportedEmbeddingModel, "Embedding model not supported: %s", modelName)
	}

	clientOpts := []option.RequestOption{}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	return &OpenAIEmbedder{
		client:    openai.NewClient(clientOpts...),
		model:     modelName,
		dimension: dimension,
	}, nil
}

// NewEmbedderFactory binds opts into an EmbedderFactory.
func NewEmbedderFactory(opts EmbeddingOptions) EmbedderFactory {
	return func(modelName string) (Embedder, error) {
		return EmbeddingsFor(modelName, opts)
	}
}

// OpenAIEmbedder implements Embedder for OpenAI embedding models
type OpenAIEmbedder struct {
	client    openai.Client
	model     string
	dimension int
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) Model() string {
	return e.model
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call embeddings API: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings API returned %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	embeddings := make([][]float32, len(resp.Data))
	for _, data := range resp.Data {
		if int(data.Index) >= len(embeddings) {
			return nil, fmt.Errorf("embeddings API returned out of range index %d", data.Index)
		}
		vector := make([]float32, len(data.Embedding))
		for j, v := range data.Embedding {
			vector[j] = float32(v)
		}
		embeddings[data.Index] = vector
	}

	return embeddings, nil
}
