package tracing

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/harun/oracle/pkg/agenterr"
)

// Node lifecycle events
const (
	EventEnter    = "Enter"
	EventSuccess  = "Success"
	EventError    = "Error"
	EventReraised = "Re-raising"
)

// Recorder accumulates the node trace of one turn and mirrors every event
// to the logger and the active span.
type Recorder struct {
	mu     sync.Mutex
	events []agenterr.TraceEvent
	logger zerolog.Logger
	now    func() time.Time
}

// NewRecorder creates a Recorder for one turn.
func NewRecorder(logger zerolog.Logger) *Recorder {
	return &Recorder{logger: logger, now: time.Now}
}

// Enter records that node started.
func (r *Recorder) Enter(ctx context.Context, node string) {
	r.record(ctx, node, EventEnter, "")
}

// Success records that node finished without error.
func (r *Recorder) Success(ctx context.Context, node string) {
	r.record(ctx, node, EventSuccess, "")
}

// Error records a failure inside node.
func (r *Recorder) Error(ctx context.Context, node string, err error) {
	r.record(ctx, node, EventError, errString(err))
	if span := trace.SpanFromContext(ctx); span.IsRecording() && err != nil {
		span.RecordError(err)
	}
}

// Reraise records that a failure is leaving the loop.
func (r *Recorder) Reraise(ctx context.Context, node string, err error) {
	r.record(ctx, node, EventReraised, errString(err))
	if span := trace.SpanFromContext(ctx); span.IsRecording() && err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
}

// Events returns a copy of the recorded trace.
func (r *Recorder) Events() []agenterr.TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]agenterr.TraceEvent, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) record(ctx context.Context, node, event, detail string) {
	ev := agenterr.TraceEvent{
		Node:      node,
		Event:     event,
		Timestamp: r.now(),
		Detail:    detail,
	}

	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()

	logEvent := r.logger.Debug()
	if event == EventError || event == EventReraised {
		logEvent = r.logger.Warn()
	}
	logEvent = logEvent.Str("node", node).Str("event", event)
	if detail != "" {
		logEvent = logEvent.Str("detail", detail)
	}
	logEvent.Msg("Node event")

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		attrs := []attribute.KeyValue{attribute.String("node", node)}
		if detail != "" {
			attrs = append(attrs, attribute.String("detail", detail))
		}
		span.AddEvent(event, trace.WithAttributes(attrs...))
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
