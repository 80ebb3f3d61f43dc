package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ragflow/internal/domain"
	"ragflow/internal/usecase"
)

var (
	queryText string
	queryTopK int
	queryJSON bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Ask a question over ingested documents",
	Long: `Embed the question, retrieve the nearest document chunks, and generate an
answer grounded in them.

Examples:
  ragflow query -q "How does checkout work?"
  ragflow query -q "What changed in v2?" --top-k 10 --json`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "question", "q", "", "question to answer (required)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of chunks to retrieve (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.MarkFlagRequired("question")
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	emb, err := newEmbedder(cfg)
	if err != nil {
		return err
	}
	store, closeStore, err := newVectorStore(cfg, GetRootDir())
	if err != nil {
		return err
	}
	defer closeStore()
	model, err := newLLM(cfg)
	if err != nil {
		return err
	}

	log := newLogger(cfg)
	exec, closeRuns, err := newExecutor(cfg, GetRootDir(), log)
	if err != nil {
		return err
	}
	defer closeRuns()

	pipeline := usecase.NewQueryPipeline(emb, store, model, exec, log)
	dispatcher := usecase.NewDispatcher(nil, pipeline, cfg.Query.WaitTimeout.Std())

	topK := cfg.Query.TopK
	if queryTopK > 0 {
		topK = queryTopK
	}

	result, err := dispatcher.Ask(cmd.Context(), domain.QueryEvent{
		Question: queryText,
		TopK:     topK,
	})
	if errors.Is(err, domain.ErrWaitTimeout) {
		return fmt.Errorf("no answer within %s; check 'ragflow runs' for the run's progress", cfg.Query.WaitTimeout)
	}
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if queryJSON {
		output, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(output))
		return nil
	}

	fmt.Println(result.Answer)
	if len(result.Sources) > 0 {
		fmt.Println()
		color.Cyan("Sources (%d chunks):", result.NumContexts)
		for _, s := range result.Sources {
			fmt.Printf("  - %s\n", s)
		}
	}
	return nil
}
