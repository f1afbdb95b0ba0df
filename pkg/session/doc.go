// Package session persists chat history as JSONL files, one per chat id.
//
// Invariants:
// - Chat ids are validated and path-safe.
// - Appends for the same chat are serialized.
// - Corrupt lines are skipped on load rather than failing the chat.
//
// Usage:
//
//	store, _ := session.New("/tmp/oracle/sessions", zerolog.Nop())
//	_ = store.Append(ctx, "chat-1", "turn-1", result.Messages[len(history):])
//	history, _ := store.Load(ctx, "chat-1")
package session
