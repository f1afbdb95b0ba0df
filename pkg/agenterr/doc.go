// Package agenterr classifies orchestrator failures into a small taxonomy.
//
// Invariants:
// - Every failure is classified exactly once; Classify is idempotent.
// - Only DomainError is eligible for local recovery, and only during tool execution.
// - TracedError is the only variant carrying an execution trace.
// - Context cancellation is never reported as UnexpectedError.
//
// Usage:
//
//	err := agenterr.Classify(toolErr)
//	if agenterr.Recoverable(err) {
//		// record into history and continue
//	}
//	return agenterr.Trace(err, recorder.Events(), cfg.DefaultErrorMessage)
package agenterr
