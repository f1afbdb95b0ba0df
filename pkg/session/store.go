package session

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/oracle/internal/tracing"
	"github.com/harun/oracle/pkg/llm"
)

const fileExt = ".jsonl"

// ErrInvalidChatID is returned for chat ids that are empty or not path-safe.
var ErrInvalidChatID = errors.New("invalid chat id")

// Entry is one persisted history line.
type Entry struct {
	ChatID    string      `json:"chat_id"`
	TurnID    string      `json:"turn_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Message   llm.Message `json:"message"`
}

// Store keeps chat history on disk.
type Store struct {
	dir    string
	logger zerolog.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates a store rooted at dir, creating it if needed.
func New(dir string, logger zerolog.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("sessions directory is required")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	return &Store{
		dir:    dir,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

func validateChatID(chatID string) error {
	switch {
	case chatID == "":
		return fmt.Errorf("%w: empty", ErrInvalidChatID)
	case strings.Contains(chatID, ".."):
		return fmt.Errorf("%w: cannot contain '..'", ErrInvalidChatID)
	case strings.ContainsAny(chatID, "/\\"):
		return fmt.Errorf("%w: cannot contain path separators", ErrInvalidChatID)
	case strings.Contains(chatID, "\x00"):
		return fmt.Errorf("%w: cannot contain null bytes", ErrInvalidChatID)
	}
	return nil
}

func (s *Store) path(chatID string) string {
	return filepath.Join(s.dir, chatID+fileExt)
}

func (s *Store) lock(chatID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	l, ok := s.locks[chatID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[chatID] = l
	}
	return l
}

// Append writes messages to the end of the chat's history.
func (s *Store) Append(ctx context.Context, chatID, turnID string, messages []llm.Message) (err error) {
	ctx, span := tracing.StartSpan(ctx, "session.append",
		attribute.String("chat_id", chatID),
		attribute.Int("messages", len(messages)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := validateChatID(chatID); err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	l := s.lock(chatID)
	l.Lock()
	defer l.Unlock()

	file, err := os.OpenFile(s.path(chatID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open session file: %w", err)
	}
	defer file.Close()

	now := time.Now()
	w := bufio.NewWriter(file)
	for _, msg := range messages {
		data, err := json.Marshal(Entry{ChatID: chatID, TurnID: turnID, Timestamp: now, Message: msg})
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("failed to write message: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}

	tracing.PropagateToLogger(ctx, s.logger).Debug().
		Str("chat_id", chatID).
		Int("messages", len(messages)).
		Msg("History appended")
	return nil
}

// Load returns the chat's history in write order. A chat with no file has
// an empty history.
func (s *Store) Load(ctx context.Context, chatID string) (_ []llm.Message, err error) {
	ctx, span := tracing.StartSpan(ctx, "session.load", attribute.String("chat_id", chatID))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	logger := tracing.PropagateToLogger(ctx, s.logger)

	if err := validateChatID(chatID); err != nil {
		return nil, err
	}

	file, err := os.Open(s.path(chatID))
	if err != nil {
		if os.IsNotExist(err) {
			return []llm.Message{}, nil
		}
		return nil, fmt.Errorf("failed to open session file: %w", err)
	}
	defer file.Close()

	messages := []llm.Message{}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil || entry.Message.Role == "" {
			logger.Warn().
				Str("chat_id", chatID).
				Int("line", lineNum).
				Msg("Skipping corrupt history line")
			continue
		}
		messages = append(messages, entry.Message)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	return messages, nil
}

// Delete removes the chat's history.
func (s *Store) Delete(ctx context.Context, chatID string) error {
	if err := validateChatID(chatID); err != nil {
		return err
	}

	l := s.lock(chatID)
	l.Lock()
	defer l.Unlock()

	if err := os.Remove(s.path(chatID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	tracing.PropagateToLogger(ctx, s.logger).Info().Str("chat_id", chatID).Msg("History deleted")
	return nil
}

// List returns the chat ids with stored history.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	chats := []string{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		chats = append(chats, strings.TrimSuffix(entry.Name(), fileExt))
	}
	return chats, nil
}
