package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var listLimit int

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().IntVarP(&listLimit, "limit", "l", 0, "Maximum number of papers (0 for all)")
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List papers, newest first",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	repoRoot := mustFindRepository()
	db := mustOpenDatabase(repoRoot)
	defer db.Close()

	papers, err := db.ListPapers(ctx, listLimit)
	if err != nil {
		exitForError(err, "listing papers")
	}

	if humanOutput {
		if len(papers) == 0 {
			fmt.Println("No papers. Add some with 'pdx add <file.pdf>'.")
			return nil
		}
		for _, p := range papers {
			fmt.Printf("  #%-5d %s  %s\n", p.ID, p.CreatedAt.Format("2006-01-02"), truncateString(displayTitle(p), ListTitleMaxLen))
		}
		return nil
	}

	out := make([]PaperSummary, len(papers))
	for i, p := range papers {
		out[i] = summarizePaper(p)
	}
	outputJSON(out)
	return nil
}
