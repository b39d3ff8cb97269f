package main

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matsen/paperdex/internal/pdf"
)

func init() {
	rootCmd.AddCommand(openCmd)
}

var openCmd = &cobra.Command{
	Use:   "open <paper-id>...",
	Short: "Open papers' PDFs in the configured viewer",
	Long: `Open the stored copy of each paper's PDF with the viewer set in
'pdf.viewer' (default: the system handler).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runOpen,
}

func runOpen(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	repoRoot := mustFindRepository()
	cfg := mustLoadConfig(repoRoot)
	db := mustOpenDatabase(repoRoot)
	defer db.Close()

	viewer := pdf.NewViewer(cfg.PDF.Viewer)
	var opened []string
	for _, arg := range args {
		p, err := db.GetPaper(ctx, parseID(arg, "paper"))
		if err != nil {
			exitForError(err, "getting paper")
		}
		path := p.SourceFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(repoRoot, path)
		}
		if err := viewer.Open(path); err != nil {
			exitWithError(ExitError, "opening #%d: %v", p.ID, err)
		}
		opened = append(opened, path)
	}

	if humanOutput {
		for _, path := range opened {
			outputHuman("Opened %s\n", path)
		}
	} else {
		outputJSON(map[string][]string{"opened": opened})
	}
	return nil
}
