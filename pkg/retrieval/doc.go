// Package retrieval embeds text and searches vector indexes partitioned by
// index name and chat.
//
// Invariants:
// - Only models listed in SupportedModels resolve to an embeddings client.
// - Documents stored without a chat id are visible to every chat.
//
// Usage:
//
//	index, _ := retrieval.OpenSQLite("/tmp/oracle.db", logger)
//	svc, _ := retrieval.NewService(retrieval.Config{
//		Embedders: retrieval.NewEmbedderFactory(retrieval.EmbeddingOptions{APIKey: key}),
//		Index:     index,
//	})
//	docs, _ := svc.Retrieve(ctx, retrieval.Request{Query: "go", IndexName: "courses", TopK: 4, EmbeddingModelName: "text-embedding-3-small"})
//	_ = docs
package retrieval
