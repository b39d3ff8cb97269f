package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/matsen/paperdex/internal/paper"
)

var (
	summaryKind  string
	summaryChunk bool
	summaryFile  string
)

func init() {
	rootCmd.AddCommand(summaryCmd)
	summaryCmd.AddCommand(summarySetCmd)
	summaryCmd.AddCommand(summaryGetCmd)

	for _, c := range []*cobra.Command{summarySetCmd, summaryGetCmd} {
		c.Flags().StringVarP(&summaryKind, "kind", "k", string(paper.KindFinalSummary),
			"Summary kind: chunk-summary, final-summary, gap-analysis, combined-chunk-summaries")
		c.Flags().BoolVar(&summaryChunk, "chunk", false, "The ID is a chunk ID rather than a paper ID")
	}
	summarySetCmd.Flags().StringVarP(&summaryFile, "file", "f", "-", "Read the summary from this file ('-' for stdin)")
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Store and read generated summaries",
	Long: `Summaries are produced outside pdx (for example by a language model) and
attached to a paper or one of its chunks. There is one summary of each kind
per owner; setting it again replaces the text.`,
}

var summarySetCmd = &cobra.Command{
	Use:   "set <id>",
	Short: "Attach a summary to a paper or chunk",
	Example: `  pdx summary set 12 --kind gap-analysis -f gaps.md
  llm summarize chunk.txt | pdx summary set 340 --chunk --kind chunk-summary`,
	Args: cobra.ExactArgs(1),
	RunE: runSummarySet,
}

var summaryGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print a stored summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummaryGet,
}

func summaryOwner() paper.OwnerKind {
	if summaryChunk || paper.SummaryKind(summaryKind) == paper.KindChunkSummary {
		return paper.OwnerChunk
	}
	return paper.OwnerPaper
}

func mustSummaryKind() paper.SummaryKind {
	kind := paper.SummaryKind(summaryKind)
	if !slices.Contains(paper.ValidSummaryKinds, kind) {
		exitWithError(ExitDataError, "unknown summary kind %q (valid: %v)", summaryKind, paper.ValidSummaryKinds)
	}
	return kind
}

func readSummaryText(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}

func runSummarySet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	kind := mustSummaryKind()
	owner := summaryOwner()
	id := parseID(args[0], string(owner))

	text, err := readSummaryText(summaryFile)
	if err != nil {
		exitWithError(ExitError, "reading summary: %v", err)
	}

	repoRoot := mustFindRepository()
	db := mustOpenDatabase(repoRoot)
	defer db.Close()

	s := &paper.Summary{OwnerKind: owner, OwnerID: id, Kind: kind, Text: text}
	if err := db.SaveSummary(ctx, s); err != nil {
		exitForError(err, "saving summary")
	}

	if humanOutput {
		outputHuman("Saved %s for %s #%d\n", s.Kind, s.OwnerKind, s.OwnerID)
	} else {
		outputJSON(s)
	}
	return nil
}

func runSummaryGet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	kind := mustSummaryKind()
	owner := summaryOwner()
	id := parseID(args[0], string(owner))

	repoRoot := mustFindRepository()
	db := mustOpenDatabase(repoRoot)
	defer db.Close()

	s, err := db.GetSummary(ctx, owner, id, kind)
	if err != nil {
		exitForError(err, "getting summary")
	}

	if humanOutput {
		fmt.Println(s.Text)
	} else {
		outputJSON(s)
	}
	return nil
}
