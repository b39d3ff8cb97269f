package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var searchLimit int

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", DefaultSearchLimit, "Maximum number of results")
}

// SearchResponse is the response for the keyword search command.
type SearchResponse struct {
	Query   string         `json:"query"`
	Results []PaperSummary `json:"results"`
	Total   int            `json:"total"`
}

var searchCmd = &cobra.Command{
	Use:   "search <keywords>",
	Short: "Search papers by keyword",
	Long: `Full-text keyword search over paper titles, abstracts and authors.

Each word is matched as a prefix. Use 'pdx semantic' to search by meaning.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		exitWithError(ExitDataError, "Search query cannot be empty")
	}

	repoRoot := mustFindRepository()
	db := mustOpenDatabase(repoRoot)
	defer db.Close()

	papers, err := db.SearchPapers(ctx, query, searchLimit)
	if err != nil {
		exitForError(err, "searching")
	}

	results := make([]PaperSummary, len(papers))
	for i, p := range papers {
		results[i] = summarizePaper(p)
	}

	if humanOutput {
		fmt.Printf("Found %d papers matching %q\n\n", len(results), query)
		for _, p := range papers {
			fmt.Printf("  #%-5d %s\n", p.ID, truncateString(displayTitle(p), SearchTitleMaxLen))
		}
		return nil
	}
	outputJSON(SearchResponse{Query: query, Results: results, Total: len(results)})
	return nil
}
