package agenterr

import (
	"context"
	"errors"
	"fmt"
)

// Classify wraps err into one of the known variants. Errors that already
// belong to the taxonomy are returned unchanged. context.Canceled is the
// only cancellation it recognises; a bare deadline is an inner timeout and
// therefore unexpected. Use ClassifyContext when the caller's ctx is known.
func Classify(err error) error {
	if err == nil || isClassified(err) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return &CancelledError{Cause: err}
	}
	return &UnexpectedError{Message: "unexpected failure", Cause: err}
}

// ClassifyContext classifies err observed while running under ctx. A
// failure is cancelled only when ctx itself is done; context errors from
// timeouts inside a live ctx are unexpected.
func ClassifyContext(ctx context.Context, err error) error {
	if err == nil || isClassified(err) {
		return err
	}
	if ctx != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(err, ctxErr) {
				return &CancelledError{Cause: err}
			}
			return &CancelledError{Cause: fmt.Errorf("%w: %w", ctxErr, err)}
		}
	}
	return &UnexpectedError{Message: "unexpected failure", Cause: err}
}

// isClassified reports whether err already belongs to the taxonomy. A wrapped
// domain error keeps its message chain but is still domain.
func isClassified(err error) bool {
	switch err.(type) {
	case *DomainError, *TracedError, *UnexpectedError, *CancelledError:
		return true
	}
	_, ok := AsDomain(err)
	return ok
}

// Recoverable reports whether err may be recorded into history instead of
// failing the turn.
func Recoverable(err error) bool {
	if err == nil {
		return false
	}
	var te *TracedError
	if errors.As(err, &te) {
		return false
	}
	var ue *UnexpectedError
	if errors.As(err, &ue) {
		return false
	}
	var ce *CancelledError
	if errors.As(err, &ce) {
		return false
	}
	_, ok := AsDomain(err)
	return ok
}

// IsCancelled reports whether err is a cancellation-class failure.
func IsCancelled(err error) bool {
	var ce *CancelledError
	return errors.As(err, &ce)
}

// Trace re-wraps err with the turn trace. The message is the domain message
// when one is available, otherwise defaultMessage.
func Trace(err error, trace []TraceEvent, defaultMessage string) *TracedError {
	if err == nil {
		return nil
	}

	var existing *TracedError
	if errors.As(err, &existing) {
		return existing
	}

	classified := Classify(err)
	message := defaultMessage
	if de, ok := AsDomain(classified); ok && de.Message != "" {
		message = de.Message
	}
	if message == "" {
		message = classified.Error()
	}

	events := make([]TraceEvent, len(trace))
	copy(events, trace)

	return &TracedError{
		Message: message,
		Trace:   events,
		Err:     classified,
	}
}
