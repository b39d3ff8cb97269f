package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matsen/paperdex/internal/config"
)

func init() {
	rootCmd.AddCommand(configCmd)
}

// UpdateResponse is the response for config set commands.
type UpdateResponse struct {
	Status string `json:"status"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Get or set configuration values",
	Long: `Get or set repository configuration values in .paperdex/config.yml.

With no arguments, shows all configuration.
With one argument, shows the value of that key.
With two arguments, sets the key to the value.

Keys use dotted names; dashes are accepted for underscores:
  embedding.provider    ollama, openai or hash
  embedding.model       Model name, e.g. all-minilm:l6-v2
  embedding.dimensions  Vector length the model produces
  chunk.size            Words per chunk
  chunk.overlap         Words shared by neighbouring chunks
  pdf.viewer            system, skim, preview, zathura, evince or okular

Changing the embedding model or dimensions makes the next command rebuild
the vector index.`,
	Args: cobra.MaximumNArgs(2),
	RunE: runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	repoRoot := mustFindRepository()
	cfg := mustLoadConfig(repoRoot)

	switch len(args) {
	case 0:
		all := cfg.All()
		if humanOutput {
			for _, k := range config.Keys() {
				fmt.Printf("%s: %s\n", k, all[k])
			}
		} else {
			outputJSON(all)
		}

	case 1:
		value, err := cfg.Get(args[0])
		if err != nil {
			exitWithError(ExitConfigError, "%v\n  Valid keys: %v", err, config.Keys())
		}
		if humanOutput {
			fmt.Println(value)
		} else {
			outputJSON(map[string]string{config.NormalizeKey(args[0]): value})
		}

	case 2:
		key, value := config.NormalizeKey(args[0]), args[1]
		if err := cfg.Set(key, value); err != nil {
			exitWithError(ExitConfigError, "%v", err)
		}
		if err := cfg.Save(repoRoot); err != nil {
			exitWithError(ExitError, "saving config: %v", err)
		}
		if humanOutput {
			fmt.Printf("Set %s to %s\n", key, value)
		} else {
			outputJSON(UpdateResponse{Status: "updated", Key: key, Value: value})
		}
	}
	return nil
}
