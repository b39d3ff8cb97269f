package main

import (
	"context"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(deleteCmd)
}

// DeleteResponse is the response for the delete command.
type DeleteResponse struct {
	Status  string `json:"status"`
	PaperID int64  `json:"paper_id"`
}

var deleteCmd = &cobra.Command{
	Use:   "delete <paper-id>",
	Short: "Remove a paper, its chunks and summaries",
	Long: `Remove a paper with its chunks, summaries and embedding mappings. Its
vectors are retired from the index immediately and reclaimed by the next
'pdx index build'.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	id := parseID(args[0], "paper")

	repoRoot := mustFindRepository()
	cfg := mustLoadConfig(repoRoot)
	db := mustOpenDatabase(repoRoot)
	defer db.Close()

	gen := mustLoadGenerator(ctx, cfg)
	defer gen.Release()

	coord := mustOpenCoordinator(ctx, repoRoot, cfg, db, gen)
	if err := coord.DeletePaper(ctx, id); err != nil {
		exitForError(err, "deleting paper")
	}
	if err := coord.Save(); err != nil {
		exitWithError(ExitError, "%v", err)
	}

	if humanOutput {
		outputHuman("Deleted paper #%d\n", id)
	} else {
		outputJSON(DeleteResponse{Status: "deleted", PaperID: id})
	}
	return nil
}
