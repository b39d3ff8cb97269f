package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/matsen/paperdex/internal/config"
	"github.com/matsen/paperdex/internal/indexer"
	"github.com/matsen/paperdex/internal/semantic"
)

var noProgress bool

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexBuildCmd)
	indexCmd.AddCommand(indexCheckCmd)

	indexBuildCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Suppress progress output")
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the vector index",
	Long:  `Commands for rebuilding and checking the vector index.`,
}

// IndexBuildResult is the response for index build command.
type IndexBuildResult struct {
	Status          string  `json:"status"`
	ChunksIndexed   int     `json:"chunks_indexed"`
	Generation      string  `json:"generation"`
	DurationSeconds float64 `json:"duration_seconds"`
	Model           string  `json:"model"`
	Dimensions      int     `json:"dimensions"`
	IndexSizeBytes  int64   `json:"index_size_bytes"`
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Rebuild the vector index from the database",
	Long: `Re-embed every stored chunk into a fresh index and replace all embedding
mappings in one transaction. Deleted vectors are reclaimed.

Run this after changing the embedding model, or whenever 'pdx index check'
reports problems. Searches keep using the old index until the new one is
complete.`,
	Args: cobra.NoArgs,
	RunE: runIndexBuild,
}

func runIndexBuild(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	repoRoot := mustFindRepository()
	cfg := mustLoadConfig(repoRoot)

	db := mustOpenDatabase(repoRoot)
	defer db.Close()

	gen := mustLoadGenerator(ctx, cfg)
	defer gen.Release()

	showProgress := !noProgress && humanOutput && term.IsTerminal(int(os.Stderr.Fd()))
	var opts []indexer.Option
	if showProgress {
		opts = append(opts, indexer.WithProgress(printProgress))
		fmt.Fprintf(os.Stderr, "Building vector index...\n")
	}

	coord := mustOpenCoordinator(ctx, repoRoot, cfg, db, gen, opts...)
	stats, err := coord.RebuildIndex(ctx)
	if showProgress {
		clearProgress()
	}
	if err != nil {
		exitForError(err, "rebuilding index")
	}

	if humanOutput {
		fmt.Printf("Build complete:\n")
		fmt.Printf("  Chunks indexed: %d\n", stats.ChunksIndexed)
		fmt.Printf("  Time elapsed: %s\n", formatDuration(stats.Duration))
		fmt.Printf("  Index size: %s\n", formatBytes(stats.IndexSizeBytes))
		fmt.Printf("  Model: %s (%d dimensions)\n", stats.ModelName, stats.Dimensions)
		fmt.Printf("  Generation: %s\n", stats.Generation)
		return nil
	}
	outputJSON(IndexBuildResult{
		Status:          "complete",
		ChunksIndexed:   stats.ChunksIndexed,
		Generation:      stats.Generation,
		DurationSeconds: stats.Duration.Seconds(),
		Model:           stats.ModelName,
		Dimensions:      stats.Dimensions,
		IndexSizeBytes:  stats.IndexSizeBytes,
	})
	return nil
}

// IndexCheckResult is the response for index check command.
type IndexCheckResult struct {
	Status string `json:"status"`
	indexer.Health
	IndexSizeBytes int64  `json:"index_size_bytes"`
	Recommendation string `json:"recommendation,omitempty"`
}

var indexCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the index agrees with the database",
	Long: `Compare the vector index with the stored embedding mappings.

Opening the index already repairs what it can: a missing, corrupt or
outdated index file is rebuilt and unrecorded vectors are retired. The check
then reports chunks that were never indexed, mappings made with another
model, and vectors nothing refers to.

Exits with status 6 if the index needs a rebuild.`,
	Args: cobra.NoArgs,
	RunE: runIndexCheck,
}

func runIndexCheck(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	repoRoot := mustFindRepository()
	cfg := mustLoadConfig(repoRoot)

	db := mustOpenDatabase(repoRoot)
	defer db.Close()

	gen := mustLoadGenerator(ctx, cfg)
	defer gen.Release()

	coord := mustOpenCoordinator(ctx, repoRoot, cfg, db, gen)
	health, err := coord.Check(ctx)
	if err != nil {
		exitForError(err, "checking index")
	}

	result := IndexCheckResult{Status: "healthy", Health: *health}
	if size, err := semantic.FileSize(config.IndexPath(repoRoot)); err == nil {
		result.IndexSizeBytes = size
	}
	exitCode := ExitSuccess
	if !health.Healthy() {
		result.Status = "stale"
		result.Recommendation = "Run 'pdx index build' to rebuild the index."
		exitCode = ExitIndexStale
	}

	if humanOutput {
		fmt.Printf("Vector Index Status: %s\n\n", result.Status)
		fmt.Printf("Chunks:\n")
		fmt.Printf("  Total in database: %d\n", health.Chunks)
		fmt.Printf("  With mappings: %d\n", health.Mappings)
		fmt.Printf("  Never indexed: %d\n", health.Unmapped)
		fmt.Printf("  Stale mappings: %d\n", health.Stale)
		fmt.Printf("\nIndex Info:\n")
		fmt.Printf("  Model: %s\n", health.ModelName)
		fmt.Printf("  Generation: %s\n", health.Generation)
		fmt.Printf("  Vectors: %d (%d live, %d unreferenced)\n", health.IndexSize, health.IndexLive, health.Orphans)
		fmt.Printf("  Size: %s\n", formatBytes(result.IndexSizeBytes))
		if result.Recommendation != "" {
			fmt.Printf("\n%s\n", result.Recommendation)
		}
	} else {
		outputJSON(result)
	}

	if exitCode != ExitSuccess {
		os.Exit(exitCode)
	}
	return nil
}
