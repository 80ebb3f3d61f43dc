package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"ragflow/internal/adapter/chunker"
	"ragflow/internal/adapter/fs"
	"ragflow/internal/domain"
	"ragflow/internal/usecase"
)

var (
	ingestIncludes []string
	ingestExcludes []string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path...]",
	Short: "Ingest documents into the vector store",
	Long: `Ingest files or directories. Directories are walked for files matching the
configured include patterns. Each file becomes one source; re-ingesting a
source replaces its previous chunks.

Examples:
  ragflow ingest ./docs
  ragflow ingest notes.md ./articles
  ragflow ingest ./wiki --include '**/*.rst'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringSliceVar(&ingestIncludes, "include", nil, "glob patterns to include (overrides config)")
	ingestCmd.Flags().StringSliceVar(&ingestExcludes, "exclude", nil, "glob patterns to exclude (overrides config)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	includes := cfg.Ingest.Includes
	if len(ingestIncludes) > 0 {
		includes = ingestIncludes
	}
	excludes := cfg.Ingest.Excludes
	if len(ingestExcludes) > 0 {
		excludes = ingestExcludes
	}
	walker := fs.NewWalker(includes, excludes)

	files, err := collectFiles(walker, args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("No matching files found.")
		return nil
	}

	ch, err := chunker.NewWindowChunker(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		return fmt.Errorf("invalid chunking config: %w", err)
	}
	emb, err := newEmbedder(cfg)
	if err != nil {
		return err
	}
	store, closeStore, err := newVectorStore(cfg, GetRootDir())
	if err != nil {
		return err
	}
	defer closeStore()

	log := newLogger(cfg)
	exec, closeRuns, err := newExecutor(cfg, GetRootDir(), log)
	if err != nil {
		return err
	}
	defer closeRuns()

	pipeline := usecase.NewIngestPipeline(ch, emb, store, exec, log)

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Ingesting[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)

	start := time.Now()
	var indexed, failed int
	for _, f := range files {
		text, err := fs.ReadFile(f.Path)
		if err != nil {
			color.Red("failed to read %s: %v", f.RelPath, err)
			failed++
			bar.Add(1)
			continue
		}

		result, err := pipeline.Run(cmd.Context(), domain.IngestEvent{
			SourceID: f.RelPath,
			Text:     text,
		})
		if err != nil {
			color.Red("failed to ingest %s: %v", f.RelPath, err)
			failed++
			bar.Add(1)
			continue
		}

		indexed += result.Indexed
		bar.Add(1)
	}

	elapsed := time.Since(start).Round(time.Millisecond)
	if failed > 0 {
		color.Yellow("Ingested %d files (%d chunks, %d failed) in %s",
			len(files)-failed, indexed, failed, elapsed)
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	color.Green("Ingested %d files (%d chunks) in %s", len(files), indexed, elapsed)
	return nil
}

// collectFiles resolves each argument to document files: directories are
// walked with the include and exclude patterns, plain files are taken as-is
// with their base name as source id.
func collectFiles(walker *fs.Walker, paths []string) ([]fs.FileInfo, error) {
	var files []fs.FileInfo
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("invalid path %s: %w", p, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("path does not exist: %w", err)
		}

		if info.IsDir() {
			found, err := walker.Walk(abs)
			if err != nil {
				return nil, fmt.Errorf("failed to walk %s: %w", p, err)
			}
			files = append(files, found...)
			continue
		}

		files = append(files, fs.FileInfo{
			Path:    abs,
			RelPath: filepath.Base(abs),
			Size:    info.Size(),
		})
	}
	return files, nil
}
