package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/matsen/paperdex/internal/config"
	"github.com/matsen/paperdex/internal/ingest"
)

var addNoCopy bool

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().BoolVar(&addNoCopy, "no-copy", false, "Record the original path instead of copying into .paperdex/uploads")
}

// AddResponse is the response for the add command.
type AddResponse struct {
	Added      int             `json:"added"`
	Duplicates int             `json:"duplicates"`
	Partial    int             `json:"partial"`
	Failed     int             `json:"failed"`
	Results    []ingest.Result `json:"results"`
}

var addCmd = &cobra.Command{
	Use:   "add <file>...",
	Short: "Add papers to the library",
	Long: `Extract text from PDFs, store each paper and its chunks, and index the
chunks for semantic search.

Files ending in .txt or .md are read as already extracted text. A file whose
text is already in the library is reported as a duplicate; any of its chunks
missing from the index are indexed again.

Exits with status 3 if any file could not be added.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

func runAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	repoRoot := mustFindRepository()
	cfg := mustLoadConfig(repoRoot)

	db := mustOpenDatabase(repoRoot)
	defer db.Close()

	gen := mustLoadGenerator(ctx, cfg)
	defer gen.Release()

	coord := mustOpenCoordinator(ctx, repoRoot, cfg, db, gen)

	opts := []ingest.Option{
		ingest.WithChunking(cfg.Chunk.Size, cfg.Chunk.Overlap),
		ingest.WithLogger(slog.Default()),
	}
	if !addNoCopy {
		opts = append(opts, ingest.WithUploadsDir(config.UploadsPath(repoRoot)))
	}
	pipeline, err := ingest.New(db, coord, opts...)
	if err != nil {
		exitWithError(ExitConfigError, "configuring ingest: %v", err)
	}

	results, err := pipeline.AddAll(ctx, args)
	if err != nil {
		exitWithError(ExitError, "adding papers: %v", err)
	}
	if err := coord.Save(); err != nil {
		exitWithError(ExitError, "%v", err)
	}

	resp := AddResponse{Results: results}
	for _, r := range results {
		switch r.Status {
		case ingest.StatusAdded:
			resp.Added++
		case ingest.StatusDuplicate:
			resp.Duplicates++
		case ingest.StatusPartial:
			resp.Partial++
		case ingest.StatusFailed:
			resp.Failed++
		}
	}

	if humanOutput {
		printAddHuman(resp)
	} else {
		outputJSON(resp)
	}

	if resp.Failed > 0 || resp.Partial > 0 {
		os.Exit(ExitDataError)
	}
	return nil
}

func printAddHuman(resp AddResponse) {
	for _, r := range resp.Results {
		switch r.Status {
		case ingest.StatusFailed:
			fmt.Printf("  FAILED     %s: %s\n", r.Path, r.Error)
		case ingest.StatusDuplicate:
			fmt.Printf("  duplicate  #%d %s (%d chunks, %d re-indexed)\n", r.PaperID, truncateString(r.Title, ListTitleMaxLen), r.Chunks, r.Indexed)
		default:
			fmt.Printf("  %-10s #%d %s (%d chunks)\n", r.Status, r.PaperID, truncateString(r.Title, ListTitleMaxLen), r.Chunks)
			for _, d := range r.Details {
				fmt.Printf("      chunk %d: %s\n", d.ChunkID, d.Error)
			}
		}
	}
	fmt.Printf("\nAdded %d, duplicates %d, partial %d, failed %d\n", resp.Added, resp.Duplicates, resp.Partial, resp.Failed)
}
