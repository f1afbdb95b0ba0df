package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harun/oracle/pkg/agent"
	"github.com/harun/oracle/pkg/tools"
)

var (
	askChatID  string
	askTrigger string
	askJSON    bool
)

var askCmd = &cobra.Command{
	Use:   "ask QUERY",
	Short: "Run a single turn and print the answer",
	Long: `Run one turn of the configured agent against QUERY and print the
formatted answer. --trigger forces ABORT or RAG_GRAPH_SEARCH before the
model is consulted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askChatID, "chat-id", "", "chat id bound into tool calls")
	askCmd.Flags().StringVar(&askTrigger, "trigger", "", "override trigger (ABORT, RAG_GRAPH_SEARCH)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the full formatted answer as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
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

	result, err := runner.Run(ctx, agent.TurnInput{
		Query:   strings.Join(args, " "),
		ChatID:  askChatID,
		Trigger: tools.Trigger(strings.ToUpper(askTrigger)),
	})
	if err != nil {
		return err
	}

	return printResult(cmd.OutOrStdout(), result, askJSON)
}

func printResult(w io.Writer, result *agent.TurnResult, asJSON bool) error {
	if !asJSON {
		_, err := fmt.Fprintln(w, result.Answer.Text())
		return err
	}

	data, err := json.MarshalIndent(map[string]interface{}{
		"turn_id":     result.TurnID,
		"answer":      result.Answer,
		"formatter":   result.Formatter,
		"stop_reason": result.StopReason,
		"iterations":  result.Iterations,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode answer: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
