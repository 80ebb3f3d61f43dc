package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"ragflow/config"
)

var (
	cfgFile string
	cfg     *config.Config
	rootDir string
)

var rootCmd = &cobra.Command{
	Use:   "ragflow",
	Short: "Ingest documents and answer questions over them",
	Long: `ragflow runs two durable pipelines: ingestion chunks documents, embeds the
chunks, and upserts them into a vector store; querying embeds a question,
retrieves the nearest chunks, and asks a language model for an answer
grounded in them. Every run and step result is recorded, so interrupted
runs resume where they stopped.

Example usage:
  ragflow ingest ./docs              # Ingest documents in a directory
  ragflow query -q "What is X?"      # Ask a question over ingested docs
  ragflow runs                       # Inspect recorded runs`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./ragflow.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "state directory (default is current directory)")
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}
