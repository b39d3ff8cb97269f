// Package main provides the pdx CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/matsen/paperdex/internal/config"
	"github.com/matsen/paperdex/internal/embedding"
	"github.com/matsen/paperdex/internal/indexer"
	"github.com/matsen/paperdex/internal/paper"
	"github.com/matsen/paperdex/internal/storage"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	// humanOutput controls whether to use human-readable output
	humanOutput bool
	verbose     bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Print the error since we have SilenceErrors: true
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pdx",
	Short: "Semantic search over a local library of academic papers",
	Long: `pdx indexes academic PDFs for semantic retrieval.

Papers are split into overlapping chunks, embedded, and stored in a local
SQLite database with a vector index beside it. The database is the source of
truth; the index can always be rebuilt with 'pdx index build'.

All commands output JSON by default. Use --human for readable output.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	// .env may carry OPENAI_API_KEY, OLLAMA_HOST or PDX_ROOT
	_ = godotenv.Load()

	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")
	rootCmd.Version = Version
}

// mustFindRepository finds and validates the repository, exits on error.
// Returns the repository root path.
func mustFindRepository() string {
	start, err := config.StartDirectory()
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}

	repoRoot, err := config.FindRepository(start)
	if err != nil {
		fmt.Fprintln(os.Stderr, config.HelpfulConfigMessage())
		os.Exit(ExitConfigError)
	}
	return repoRoot
}

// mustOpenDatabase opens the SQLite database, exits on error.
// The caller is responsible for calling Close() on the returned DB.
func mustOpenDatabase(repoRoot string) *storage.DB {
	db, err := storage.OpenDB(config.DBPath(repoRoot))
	if err != nil {
		exitWithError(ExitError, "opening database: %v", err)
	}
	return db
}

// mustLoadConfig loads configuration, exits on error.
func mustLoadConfig(repoRoot string) *config.Config {
	cfg, err := config.Load(repoRoot)
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}
	return cfg
}

// newProvider builds the embedding provider named in the config.
func newProvider(cfg *config.Config) (embedding.Provider, error) {
	e := cfg.Embedding
	switch e.Provider {
	case config.ProviderOllama:
		opts := []embedding.OllamaOption{
			embedding.WithBaseURL(e.OllamaURL),
			embedding.WithModel(e.Model),
			embedding.WithDimensions(e.Dimensions),
		}
		if e.RequestsPerSecond > 0 {
			opts = append(opts, embedding.WithRateLimit(e.RequestsPerSecond))
		}
		return embedding.NewOllamaProvider(opts...), nil
	case config.ProviderOpenAI:
		opts := []embedding.OpenAIOption{
			embedding.WithOpenAIModel(e.Model),
			embedding.WithOpenAIDimensions(e.Dimensions),
		}
		if e.OpenAIBaseURL != "" {
			opts = append(opts, embedding.WithOpenAIBaseURL(e.OpenAIBaseURL))
		}
		return embedding.NewOpenAIProvider(config.OpenAIAPIKey(), opts...)
	case config.ProviderHash:
		return embedding.NewHashProvider(e.Dimensions), nil
	default:
		return nil, config.ValidateProvider(e.Provider)
	}
}

// mustLoadGenerator builds and loads the configured embedding model, exits
// with a hint if the backing service or model is missing.
// The caller is responsible for calling Release() on the returned Generator.
func mustLoadGenerator(ctx context.Context, cfg *config.Config) *embedding.Generator {
	provider, err := newProvider(cfg)
	if err != nil {
		exitWithError(ExitConfigError, "configuring embeddings: %v", err)
	}

	model := embedding.NewModel(provider)
	if _, err := model.Load(ctx); err != nil {
		switch cfg.Embedding.Provider {
		case config.ProviderOllama:
			if errors.Is(err, embedding.ErrModelUnavailable) && !ollamaReachable(ctx, provider) {
				exitWithError(ExitDataError, "Ollama is not running at %s\n\nStart Ollama with 'ollama serve' or install from https://ollama.ai", cfg.Embedding.OllamaURL)
			}
			exitWithError(ExitModelNotFound, "embedding model %q not found\n\nRun 'ollama pull %s' to download it.", provider.ModelName(), provider.ModelName())
		default:
			exitWithError(ExitDataError, "loading embedding model: %v", err)
		}
	}

	opts := []embedding.GeneratorOption{
		embedding.WithBatchSize(cfg.Embedding.BatchSize),
		embedding.WithGeneratorLogger(slog.Default()),
	}
	if cfg.Embedding.Workers > 0 {
		opts = append(opts, embedding.WithWorkers(cfg.Embedding.Workers))
	}
	gen, err := embedding.NewGenerator(model, opts...)
	if err != nil {
		exitWithError(ExitConfigError, "configuring embeddings: %v", err)
	}
	return gen
}

func ollamaReachable(ctx context.Context, p embedding.Provider) bool {
	c, ok := p.(embedding.Checker)
	return ok && c.IsAvailable(ctx) == nil
}

// mustOpenCoordinator opens the vector index for the repository, rebuilding
// it from the database if it is missing or out of date.
func mustOpenCoordinator(ctx context.Context, repoRoot string, cfg *config.Config, db *storage.DB, gen *embedding.Generator, opts ...indexer.Option) *indexer.Coordinator {
	opts = append([]indexer.Option{
		indexer.WithLogger(slog.Default()),
		indexer.WithAutoSave(cfg.Index.AutoSave),
		indexer.WithPersistAttempts(cfg.Index.PersistAttempts),
		indexer.WithRebuildBatchSize(cfg.Embedding.BatchSize),
	}, opts...)

	coord, err := indexer.Open(ctx, db, gen, config.IndexPath(repoRoot), opts...)
	if err != nil {
		exitForError(err, "opening vector index")
	}
	return coord
}

// exitForError exits with the code that matches err's category.
func exitForError(err error, action string) {
	code := ExitError
	switch {
	case errors.Is(err, paper.ErrNotFound):
		code = ExitNotFound
	case errors.Is(err, paper.ErrInvalidInput), errors.Is(err, paper.ErrInvalidArgument):
		code = ExitDataError
	case errors.Is(err, paper.ErrDimensionMismatch):
		code = ExitConfigError
	case errors.Is(err, embedding.ErrModelUnavailable):
		code = ExitModelNotFound
	}
	exitWithError(code, "%s: %v", action, err)
}
