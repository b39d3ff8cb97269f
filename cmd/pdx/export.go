package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matsen/paperdex/internal/storage"
)

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

// ExportResponse is the response for the export command.
type ExportResponse struct {
	Status string `json:"status"`
	Path   string `json:"path"`
	Papers int    `json:"papers"`
}

// ImportResponse is the response for the import command.
type ImportResponse struct {
	New     int      `json:"new"`
	Skipped int      `json:"skipped"`
	Indexed int      `json:"indexed"`
	Errors  []string `json:"errors"`
}

var exportCmd = &cobra.Command{
	Use:   "export <file.jsonl>",
	Short: "Write the library to a JSONL file",
	Long: `Write every paper with its chunks and summaries to a JSONL file, one
paper per line. The file is plain text and suitable for version control.
Embeddings are not exported; they are recomputed on import.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <file.jsonl>",
	Short: "Load papers from a JSONL export",
	Long: `Load papers written by 'pdx export' and index their chunks. Papers whose
text is already in the library are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	repoRoot := mustFindRepository()
	db := mustOpenDatabase(repoRoot)
	defer db.Close()

	records, err := db.ExportRecords(ctx)
	if err != nil {
		exitForError(err, "exporting")
	}
	if err := storage.WriteRecords(args[0], records); err != nil {
		exitWithError(ExitError, "%v", err)
	}

	if humanOutput {
		outputHuman("Exported %d papers to %s\n", len(records), args[0])
	} else {
		outputJSON(ExportResponse{Status: "exported", Path: args[0], Papers: len(records)})
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	records, err := storage.ReadRecords(args[0])
	if err != nil {
		exitWithError(ExitDataError, "%v", err)
	}

	repoRoot := mustFindRepository()
	cfg := mustLoadConfig(repoRoot)
	db := mustOpenDatabase(repoRoot)
	defer db.Close()

	gen := mustLoadGenerator(ctx, cfg)
	defer gen.Release()
	coord := mustOpenCoordinator(ctx, repoRoot, cfg, db, gen)

	resp := ImportResponse{Errors: []string{}}
	for i, rec := range records {
		id, existed, err := db.ImportRecord(ctx, rec)
		if err != nil {
			resp.Errors = append(resp.Errors, fmt.Sprintf("record %d (%s): %v", i+1, rec.Paper.Title, err))
			continue
		}
		if existed {
			resp.Skipped++
			continue
		}
		resp.New++

		chunks, err := db.ListChunksForPaper(ctx, id)
		if err != nil {
			exitForError(err, "listing chunks")
		}
		results, err := coord.IndexBatch(ctx, chunks)
		if err != nil {
			resp.Errors = append(resp.Errors, fmt.Sprintf("indexing paper #%d: %v", id, err))
			continue
		}
		for _, r := range results {
			if r.Err != nil {
				resp.Errors = append(resp.Errors, fmt.Sprintf("indexing chunk %d: %s", r.ChunkID, r.Error))
				continue
			}
			resp.Indexed++
		}
	}
	if err := coord.Save(); err != nil {
		exitWithError(ExitError, "%v", err)
	}

	if humanOutput {
		fmt.Printf("Imported %d papers (%d skipped, %d chunks indexed)\n", resp.New, resp.Skipped, resp.Indexed)
		for _, e := range resp.Errors {
			fmt.Fprintf(os.Stderr, "  %s\n", e)
		}
	} else {
		outputJSON(resp)
	}
	if len(resp.Errors) > 0 {
		os.Exit(ExitDataError)
	}
	return nil
}
