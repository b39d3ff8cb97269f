package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/paperdex/internal/indexer"
)

var semanticLimit int

func init() {
	rootCmd.AddCommand(semanticCmd)
	semanticCmd.Flags().IntVarP(&semanticLimit, "limit", "l", 5, "Maximum number of results")
}

// SemanticResult is one chunk in semantic search results.
type SemanticResult struct {
	PaperID    int64   `json:"paper_id"`
	Title      string  `json:"title"`
	ChunkID    int64   `json:"chunk_id"`
	Ordinal    int     `json:"ordinal"`
	Distance   float32 `json:"distance"`
	Similarity float32 `json:"similarity"`
	Text       string  `json:"text"`
}

// SemanticResponse is the response for the semantic search command.
type SemanticResponse struct {
	Query   string           `json:"query"`
	Results []SemanticResult `json:"results"`
	Total   int              `json:"total"`
	Model   string           `json:"model"`
	Skipped int64            `json:"skipped_orphans,omitempty"`
}

var semanticCmd = &cobra.Command{
	Use:   "semantic <query>",
	Short: "Find passages by meaning",
	Long: `Search paper chunks by semantic similarity to the query.

Results are ordered nearest first. Distance is the squared Euclidean distance
between unit vectors (0 is identical, 4 is opposite); similarity is the
matching cosine similarity, 1 - distance/2.`,
	Args: cobra.ExactArgs(1),
	RunE: runSemantic,
}

func runSemantic(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	query := strings.TrimSpace(args[0])
	if query == "" {
		exitWithError(ExitDataError, "Search query cannot be empty")
	}
	if semanticLimit <= 0 {
		exitWithError(ExitDataError, "--limit must be positive")
	}

	repoRoot := mustFindRepository()
	cfg := mustLoadConfig(repoRoot)

	db := mustOpenDatabase(repoRoot)
	defer db.Close()

	gen := mustLoadGenerator(ctx, cfg)
	defer gen.Release()

	coord := mustOpenCoordinator(ctx, repoRoot, cfg, db, gen)

	hits, err := coord.Query(ctx, query, semanticLimit)
	if err != nil {
		exitForError(err, "searching")
	}

	results := buildSemanticResults(hits)
	if humanOutput {
		fmt.Printf("Search: %q\n", query)
		fmt.Printf("Found %d passages\n\n", len(results))
		printSemanticHuman(results)
		return nil
	}
	outputJSON(SemanticResponse{
		Query:   query,
		Results: results,
		Total:   len(results),
		Model:   gen.ModelName(),
		Skipped: coord.OrphanCount(),
	})
	return nil
}

func buildSemanticResults(hits []indexer.Result) []SemanticResult {
	results := make([]SemanticResult, len(hits))
	for i, h := range hits {
		results[i] = SemanticResult{
			PaperID:    h.Paper.ID,
			Title:      displayTitle(h.Paper),
			ChunkID:    h.Chunk.ID,
			Ordinal:    h.Chunk.Ordinal,
			Distance:   h.Distance,
			Similarity: 1 - h.Distance/2,
			Text:       h.Chunk.Text,
		}
	}
	return results
}

func printSemanticHuman(results []SemanticResult) {
	for i, r := range results {
		fmt.Printf("%d. [%.3f] #%d %s (chunk %d)\n", i+1, r.Similarity, r.PaperID, truncateString(r.Title, SearchTitleMaxLen), r.Ordinal)
		fmt.Printf("   %s\n\n", wrapText(snippet(r.Text, SnippetMaxLength), TextWrapWidth, "   "))
	}
}
