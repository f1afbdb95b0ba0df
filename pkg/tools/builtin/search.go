package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/harun/oracle/pkg/agenterr"
	"github.com/harun/oracle/pkg/retrieval"
	"github.com/harun/oracle/pkg/tools"
)

const noResults = "No relevant documents found."

type searchHit struct {
	Content string  `json:"content"`
	Source  string  `json:"source,omitempty"`
	Score   float64 `json:"score"`
}

// Search returns the retrieval tool. Everything except the query is bound
// from conversation state.
func Search(retriever Retriever) tools.Descriptor {
	return tools.Descriptor{
		Name:        SearchTool,
		Description: "Search the knowledge base for passages relevant to a query.",
		Parameters: []tools.Parameter{
			{Name: "query", Type: "string", Description: "Natural language search query", Required: true},
			{Name: "chat_id", Type: "string", Description: "Chat the search is scoped to"},
			{Name: "top_k", Type: "integer", Description: "Number of passages to return"},
			{Name: "embedding_model_name", Type: "string", Description: "Embedding model", Required: true},
			{Name: "index_name", Type: "string", Description: "Vector index", Required: true},
		},
		Bindings: []string{"chat_id", "top_k", "embedding_model_name", "index_name"},
		Parallel: true,
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			if retriever == nil {
				return "", agenterr.Domain(agenterr.CodeToolFailed, "Search failed: retrieval is not configured")
			}

			req := retrieval.Request{
				Query:              stringArg(args, "query"),
				ChatID:             stringArg(args, "chat_id"),
				TopK:               intArg(args, "top_k"),
				EmbeddingModelName: stringArg(args, "embedding_model_name"),
				IndexName:          stringArg(args, "index_name"),
			}

			docs, err := retriever.Retrieve(ctx, req)
			if err != nil {
				return "", searchError(ctx, err)
			}

			minScore, filter := configFloat(tools.ExecutionContextFrom(ctx), "min_score")
			hits := make([]searchHit, 0, len(docs))
			for _, d := range docs {
				if filter && d.Score < minScore {
					continue
				}
				hits = append(hits, searchHit{Content: d.Content, Source: d.Source, Score: d.Score})
			}
			if len(hits) == 0 {
				return noResults, nil
			}

			data, err := json.Marshal(hits)
			if err != nil {
				return "", fmt.Errorf("failed to encode search results: %w", err)
			}
			return string(data), nil
		},
	}
}

// searchError keeps cancellation and domain errors intact and turns backend
// failures into tool failures the model can react to.
func searchError(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return err
	}
	if _, ok := agenterr.AsDomain(err); ok {
		return err
	}
	return agenterr.WrapDomain(agenterr.CodeToolFailed, err, "Search failed: %v", err)
}

func stringArg(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

func intArg(args map[string]interface{}, key string) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func configFloat(execCtx *tools.ExecutionContext, key string) (float64, bool) {
	if execCtx == nil || execCtx.Config == nil {
		return 0, false
	}
	switch v := execCtx.Config[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
