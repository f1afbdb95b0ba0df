package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/harun/oracle/internal/config"
	"github.com/harun/oracle/internal/observability"
	"github.com/harun/oracle/pkg/agent"
	"github.com/harun/oracle/pkg/llm"
	"github.com/harun/oracle/pkg/session"
	"github.com/harun/oracle/pkg/tools"
)

var (
	chatID        string
	chatNoWatch   bool
	chatNoHistory bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive session. History is carried between turns and the
config file is watched: edits to the agent section apply from the next turn.
With --chat-id the history is stored next to the config file and resumed on
the next session with the same id.

Commands:
  /search QUERY   force a knowledge base search for QUERY
  /abort          end the turn with the best answer so far
  /reset          clear the conversation history
  /exit           leave the session`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatID, "chat-id", "", "chat id bound into tool calls (random when empty)")
	chatCmd.Flags().BoolVar(&chatNoWatch, "no-watch", false, "do not reload the config file on change")
	chatCmd.Flags().BoolVar(&chatNoHistory, "no-history", false, "do not store or resume history")
	rootCmd.AddCommand(chatCmd)
}

// chatSession is one REPL conversation.
type chatSession struct {
	runner  atomic.Pointer[agent.Runner]
	chatID  string
	history []llm.Message
	// store is nil when history is not persisted.
	store   *session.Store
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, appOptions{withRetrieval: true, withTelemetry: true})
	if err != nil {
		return err
	}
	defer a.Close()

	runner, err := a.newRunner(a.cfg)
	if err != nil {
		return fmt.Errorf("invalid agent config: %w", err)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chat := &chatSession{chatID: chatID}
	chat.runner.Store(runner)
	if chat.chatID == "" {
		chat.chatID = uuid.NewString()
	} else if !chatNoHistory {
		if err := chat.resume(ctx, a); err != nil {
			return err
		}
	}

	if !chatNoWatch {
		if err := a.watch(ctx, chat); err != nil {
			a.logger.Warn().Err(err).Msg("Config hot reload disabled")
		}
	}

	return chat.loop(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
}

// resume opens the history store and loads the stored turns of the chat.
func (s *chatSession) resume(ctx context.Context, a *app) error {
	dir := filepath.Join(filepath.Dir(a.loader.GetConfigPath()), "sessions")
	store, err := session.New(dir, a.log.Component("session"))
	if err != nil {
		return err
	}

	history, err := store.Load(ctx, s.chatID)
	if err != nil {
		return fmt.Errorf("failed to load history for %s: %w", s.chatID, err)
	}
	s.store = store
	s.history = history
	a.logger.Debug().Str("chat_id", s.chatID).Int("messages", len(history)).Msg("History resumed")
	return nil
}

// watch swaps the session runner whenever the config file changes to a
// config that resolves.
func (a *app) watch(ctx context.Context, chat *chatSession) error {
	watcher, err := config.NewWatcher(config.WatcherConfig{
		Loader:  a.loader,
		Initial: a.cfg,
		OnReload: func(cfg *config.Config) error {
			next, err := a.newRunner(cfg)
			if err != nil {
				observability.RecordConfigAudit(ctx, "reload", "rejected", map[string]interface{}{
					"error": err.Error(),
				})
				return err
			}
			chat.runner.Store(next)
			observability.RecordConfigAudit(ctx, "reload", "applied", nil)
			return nil
		},
		Logger: a.log.Component("config"),
	})
	if err != nil {
		return err
	}

	go func() {
		if err := watcher.Run(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Config watcher stopped")
		}
	}()
	return nil
}

func (s *chatSession) loop(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Fprintf(out, "Chat %s. Type /exit to leave.\n", s.chatID)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		input, done := parseChatLine(line)
		if done {
			return nil
		}
		if input == nil {
			if line == "/reset" {
				s.reset(ctx, out)
			}
			continue
		}

		input.ChatID = s.chatID
		input.History = s.history

		result, err := s.runner.Load().Run(ctx, *input)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		s.record(ctx, result)
		fmt.Fprintln(out, result.Answer.Text())
	}
}

// record adopts the turn's messages as history and persists the new ones.
func (s *chatSession) record(ctx context.Context, result *agent.TurnResult) {
	added := result.Messages[len(s.history):]
	s.history = result.Messages
	if s.store == nil {
		return
	}
	if err := s.store.Append(ctx, s.chatID, result.TurnID, added); err != nil {
		log.Warn().Err(err).Str("chat_id", s.chatID).Msg("Failed to store history")
	}
}

func (s *chatSession) reset(ctx context.Context, out io.Writer) {
	s.history = nil
	if s.store != nil {
		if err := s.store.Delete(ctx, s.chatID); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return
		}
	}
	fmt.Fprintln(out, "History cleared.")
}

// parseChatLine maps one REPL line to a turn. A nil input with done unset
// means there is nothing to run.
func parseChatLine(line string) (input *agent.TurnInput, done bool) {
	switch {
	case line == "":
		return nil, false
	case line == "/exit" || line == "/quit":
		return nil, true
	case line == "/reset":
		return nil, false
	case line == "/abort":
		return &agent.TurnInput{Trigger: tools.TriggerAbort}, false
	case line == "/search" || strings.HasPrefix(line, "/search "):
		query := strings.TrimSpace(strings.TrimPrefix(line, "/search"))
		if query == "" {
			return nil, false
		}
		return &agent.TurnInput{Query: query, Trigger: tools.TriggerForceSearch}, false
	default:
		return &agent.TurnInput{Query: line}, false
	}
}
