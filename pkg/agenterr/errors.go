package agenterr

import (
	"errors"
	"fmt"
	"time"
)

// Code names an expected failure condition.
type Code string

const (
	CodeInvalidConfig             Code = "invalid_config"
	CodeInvalidTemperature        Code = "invalid_temperature"
	CodeUnknownTool               Code = "unknown_tool"
	CodeUnknownLLM                Code = "unknown_llm"
	CodeUnknownFormatter          Code = "unknown_formatter"
	CodeUnsupportedEmbeddingModel Code = "unsupported_embedding_model"
	CodeInvalidArguments          Code = "invalid_arguments"
	CodeToolFailed                Code = "tool_failed"
)

// DomainError is raised for expected, named failure conditions.
type DomainError struct {
	Code    Code
	Message string
	Cause   error
}

func (e *DomainError) Error() string {
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Domain creates a DomainError with a formatted message.
func Domain(code Code, format string, args ...interface{}) *DomainError {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapDomain creates a DomainError that keeps cause for errors.Is/As.
func WrapDomain(code Code, cause error, format string, args ...interface{}) *DomainError {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// UnexpectedError wraps any failure that is not one of the known variants.
type UnexpectedError struct {
	Message string
	Cause   error
}

func (e *UnexpectedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *UnexpectedError) Unwrap() error {
	return e.Cause
}

// CancelledError reports that the caller cancelled the turn.
type CancelledError struct {
	Cause error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("turn cancelled: %v", e.Cause)
}

func (e *CancelledError) Unwrap() error {
	return e.Cause
}

// TraceEvent is one entry of a turn's execution trace.
type TraceEvent struct {
	Node      string    `json:"node"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail,omitempty"`
}

// TracedError is a Domain, Unexpected or Cancelled failure re-raised at the
// loop boundary with the trace accumulated for the turn.
type TracedError struct {
	Message string
	Trace   []TraceEvent
	Err     error
}

func (e *TracedError) Error() string {
	return e.Message
}

func (e *TracedError) Unwrap() error {
	return e.Err
}

// AsDomain reports whether err is or wraps a DomainError.
func AsDomain(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether err wraps a DomainError with the given code.
func HasCode(err error, code Code) bool {
	de, ok := AsDomain(err)
	return ok && de.Code == code
}
