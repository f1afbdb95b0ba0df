package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/harun/oracle/internal/config"
	"github.com/harun/oracle/internal/logger"
	"github.com/harun/oracle/internal/observability"
)

const redacted = "********"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration file",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and resolve the agent",
	Long: `Load the configuration file, resolve the agent section against the
registered LLMs, tools and formatters, and report problems without running
a turn.`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	path := a.loader.GetConfigPath()

	agentCfg, err := a.resolve(a.cfg)
	if err != nil {
		observability.RecordConfigAudit(commandContext(cmd), "validate", "failure", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
		return fmt.Errorf("invalid agent config: %w", err)
	}

	for _, warning := range config.NewValidator().ValidateConfig(a.cfg) {
		fmt.Fprintf(out, "warning: %v\n", warning)
	}

	observability.RecordConfigAudit(commandContext(cmd), "validate", "success", map[string]interface{}{
		"path": path,
	})

	fmt.Fprintf(out, "Configuration OK: %s\n", path)
	fmt.Fprintf(out, "  llms:        %d\n", len(agentCfg.LLMs))
	fmt.Fprintf(out, "  tools:       %s\n", strings.Join(agentCfg.ToolNames(), ", "))
	fmt.Fprintf(out, "  formatters:  %s\n", strings.Join(agentCfg.AnswerFormatters, ", "))
	fmt.Fprintf(out, "  max steps:   %d\n", agentCfg.MaxIntermediateSteps)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return writeRedactedYAML(cmd.OutOrStdout(), cfg)
}

// writeRedactedYAML renders cfg as YAML with every secret-looking value
// replaced.
func writeRedactedYAML(w io.Writer, cfg *config.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	redactNode(&doc)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}

func redactNode(node *yaml.Node) {
	if node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, value := node.Content[i], node.Content[i+1]
			if value.Kind == yaml.ScalarNode && logger.IsSecretKey(key.Value) && value.Value != "" {
				value.Value = redacted
				value.Tag = "!!str"
				value.Style = yaml.SingleQuotedStyle
				continue
			}
			redactNode(value)
		}
		return
	}
	for _, child := range node.Content {
		redactNode(child)
	}
}
