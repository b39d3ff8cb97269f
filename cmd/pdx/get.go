package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/paperdex/internal/paper"
)

var (
	getChunks   bool
	getFullText bool
)

func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().BoolVar(&getChunks, "chunks", false, "Include chunk texts")
	getCmd.Flags().BoolVar(&getFullText, "full-text", false, "Include the extracted full text")
}

// GetResponse is the response for the get command.
type GetResponse struct {
	paper.Paper
	ChunkCount int             `json:"chunk_count"`
	Chunks     []paper.Chunk   `json:"chunks,omitempty"`
	Summaries  []paper.Summary `json:"summaries"`
}

var getCmd = &cobra.Command{
	Use:   "get <paper-id>",
	Short: "Show a paper with its summaries",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

// parseID parses a numeric record ID, exits on error.
func parseID(arg, what string) int64 {
	id, err := strconv.ParseInt(strings.TrimPrefix(arg, "#"), 10, 64)
	if err != nil || id <= 0 {
		exitWithError(ExitDataError, "invalid %s ID: %q", what, arg)
	}
	return id
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	id := parseID(args[0], "paper")

	repoRoot := mustFindRepository()
	db := mustOpenDatabase(repoRoot)
	defer db.Close()

	p, err := db.GetPaper(ctx, id)
	if err != nil {
		exitForError(err, "getting paper")
	}
	chunks, err := db.ListChunksForPaper(ctx, id)
	if err != nil {
		exitForError(err, "listing chunks")
	}
	summaries, err := db.ListSummaries(ctx, paper.OwnerPaper, id)
	if err != nil {
		exitForError(err, "listing summaries")
	}
	if summaries == nil {
		summaries = []paper.Summary{}
	}

	if !getFullText {
		p.FullText = ""
	}
	resp := GetResponse{Paper: *p, ChunkCount: len(chunks), Summaries: summaries}
	if getChunks {
		resp.Chunks = chunks
	}

	if humanOutput {
		printPaperHuman(resp)
		return nil
	}
	outputJSON(resp)
	return nil
}

func printPaperHuman(r GetResponse) {
	fmt.Printf("#%d %s\n", r.ID, displayTitle(r.Paper))
	if len(r.Authors) > 0 {
		fmt.Printf("  Authors: %s\n", strings.Join(r.Authors, ", "))
	}
	if r.DOI != "" {
		fmt.Printf("  DOI: %s\n", r.DOI)
	}
	fmt.Printf("  Source: %s\n", r.SourceFile)
	fmt.Printf("  Added: %s\n", r.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Printf("  Chunks: %d\n", r.ChunkCount)
	if r.Abstract != "" {
		fmt.Printf("\n  Abstract:\n  %s\n", wrapText(r.Abstract, TextWrapWidth, "  "))
	}
	for _, s := range r.Summaries {
		fmt.Printf("\n  [%s]\n  %s\n", s.Kind, wrapText(s.Text, TextWrapWidth, "  "))
	}
	for _, c := range r.Chunks {
		fmt.Printf("\n  --- chunk %d (id %d) ---\n  %s\n", c.Ordinal, c.ID, wrapText(c.Text, TextWrapWidth, "  "))
	}
	if r.FullText != "" {
		fmt.Printf("\n  --- full text ---\n%s\n", r.FullText)
	}
}
