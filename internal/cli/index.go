package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/harun/oracle/pkg/retrieval"
)

var (
	indexName   string
	indexChatID string
	indexModel  string
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the knowledge base behind the search tool",
}

var indexAddCmd = &cobra.Command{
	Use:   "add FILE...",
	Short: "Embed files and store them in the vector index",
	Long: `Embed each FILE as one document and store it in the configured vector
index. The index and embedding model default to the agent's index_name and
embedding_model_name. Re-adding a file replaces its previous version.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIndexAdd,
}

func init() {
	indexAddCmd.Flags().StringVar(&indexName, "index", "", "index name (default: agent index_name)")
	indexAddCmd.Flags().StringVar(&indexChatID, "chat-id", "", "restrict the documents to one chat (shared when empty)")
	indexAddCmd.Flags().StringVar(&indexModel, "model", "", "embedding model (default: agent embedding_model_name)")
	indexCmd.AddCommand(indexAddCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndexAdd(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, appOptions{withRetrieval: true})
	if err != nil {
		return err
	}
	defer a.Close()

	name, model := indexName, indexModel
	if name == "" || model == "" {
		agentCfg, err := a.resolve(a.cfg)
		if err != nil {
			return fmt.Errorf("--index and --model are required without a valid agent config: %w", err)
		}
		if name == "" {
			name = agentCfg.IndexName
		}
		if model == "" {
			model = agentCfg.EmbeddingModelName
		}
	}

	docs, err := readDocuments(args)
	if err != nil {
		return err
	}

	n, err := a.retrieval.Ingest(commandContext(cmd), retrieval.IngestRequest{
		IndexName:          name,
		ChatID:             indexChatID,
		EmbeddingModelName: model,
		Documents:          docs,
	})
	if err != nil {
		return fmt.Errorf("failed to index documents: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d document(s) into %s\n", n, name)
	return nil
}

// readDocuments loads each path as a document whose id is derived from the
// absolute path, so re-adding a file overwrites it.
func readDocuments(paths []string) ([]retrieval.Document, error) {
	docs := make([]retrieval.Document, 0, len(paths))
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		content := strings.TrimSpace(string(data))
		if content == "" {
			continue
		}
		docs = append(docs, retrieval.Document{
			ID:      uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+abs)).String(),
			Content: content,
			Source:  filepath.Base(abs),
		})
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no non-empty files to index")
	}
	return docs, nil
}
