package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/matsen/paperdex/internal/config"
	"github.com/matsen/paperdex/internal/storage"
)

func init() {
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a paperdex repository in the current directory",
	Long: `Create a .paperdex directory holding the configuration, the paper
database and the vector index cache.

The default configuration uses Ollama with all-minilm:l6-v2. Change it with
'pdx config embedding.provider openai' or edit .paperdex/config.yml.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		exitWithError(ExitError, "getting current directory: %v", err)
	}

	if _, err := config.Init(cwd); err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}

	db, err := storage.OpenDB(config.DBPath(cwd))
	if err != nil {
		exitWithError(ExitError, "creating database: %v", err)
	}
	db.Close()

	if humanOutput {
		outputHuman("Initialized paperdex repository in %s\n", config.PaperdexPath(cwd))
	} else {
		outputJSON(StatusResponse{Status: "initialized", Path: config.PaperdexPath(cwd)})
	}
	return nil
}
