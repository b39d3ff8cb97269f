// Package config handles repository configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

const (
	PaperdexDir = ".paperdex"
	ConfigFile  = "config.yml"
	DBFile      = "papers.db"
	CacheDir    = "cache"
	IndexFile   = "vectors.gob"
	UploadsDir  = "uploads"
)

// Embedding providers.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderHash   = "hash"
)

// ValidProviders lists the supported embedding providers.
var ValidProviders = []string{ProviderOllama, ProviderOpenAI, ProviderHash}

// ErrNotRepository is returned when no .paperdex directory can be found.
var ErrNotRepository = errors.New("not in a paperdex repository (no .paperdex directory found)")

// Config represents repository configuration stored in .paperdex/config.yml.
type Config struct {
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunk     ChunkConfig     `yaml:"chunk"`
	Index     IndexConfig     `yaml:"index"`
	PDF       PDFConfig       `yaml:"pdf"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider          string  `yaml:"provider"`
	Model             string  `yaml:"model"`
	Dimensions        int     `yaml:"dimensions"`
	OllamaURL         string  `yaml:"ollama_url,omitempty"`
	OpenAIBaseURL     string  `yaml:"openai_base_url,omitempty"`
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
	BatchSize         int     `yaml:"batch_size"`
	Workers           int     `yaml:"workers,omitempty"`
}

// ChunkConfig controls how paper text is split.
type ChunkConfig struct {
	Size    int `yaml:"size"`    // words per chunk
	Overlap int `yaml:"overlap"` // words shared by neighbouring chunks
}

// IndexConfig controls the vector index coordinator.
type IndexConfig struct {
	AutoSave        bool `yaml:"auto_save"`
	PersistAttempts int  `yaml:"persist_attempts"`
}

// PDFConfig controls how stored PDFs are opened.
type PDFConfig struct {
	Viewer string `yaml:"viewer"` // system, skim, preview, zathura, evince, okular
}

// Default returns the configuration written by 'pdx init'.
func Default() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider:   ProviderOllama,
			Model:      "all-minilm:l6-v2",
			Dimensions: 384,
			OllamaURL:  "http://localhost:11434",
			BatchSize:  32,
		},
		Chunk: ChunkConfig{
			Size:    400,
			Overlap: 50,
		},
		Index: IndexConfig{
			AutoSave:        true,
			PersistAttempts: 3,
		},
		PDF: PDFConfig{
			Viewer: "system",
		},
	}
}

// PaperdexPath returns the path to the .paperdex directory from a root path.
func PaperdexPath(root string) string {
	return filepath.Join(root, PaperdexDir)
}

// ConfigPath returns the path to config.yml from a root path.
func ConfigPath(root string) string {
	return filepath.Join(root, PaperdexDir, ConfigFile)
}

// DBPath returns the path to papers.db from a root path.
func DBPath(root string) string {
	return filepath.Join(root, PaperdexDir, DBFile)
}

// CachePath returns the path to the cache directory from a root path.
func CachePath(root string) string {
	return filepath.Join(root, PaperdexDir, CacheDir)
}

// IndexPath returns the path to the vector index file from a root path.
func IndexPath(root string) string {
	return filepath.Join(root, PaperdexDir, CacheDir, IndexFile)
}

// UploadsPath returns the directory that keeps copies of added PDFs.
func UploadsPath(root string) string {
	return filepath.Join(root, PaperdexDir, UploadsDir)
}

// IsRepository checks if the given path contains a paperdex repository.
func IsRepository(root string) bool {
	info, err := os.Stat(PaperdexPath(root))
	return err == nil && info.IsDir()
}

// FindRepository walks up from the given path to find a paperdex repository.
// Returns the repository root path or ErrNotRepository.
func FindRepository(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	for {
		if IsRepository(abs) {
			return abs, nil
		}

		parent := filepath.Dir(abs)
		if parent == abs {
			return "", ErrNotRepository
		}
		abs = parent
	}
}

// Init creates the repository layout under root and writes the default
// configuration. It fails if root is already a repository.
func Init(root string) (*Config, error) {
	if IsRepository(root) {
		return nil, fmt.Errorf("already a paperdex repository: %s", root)
	}
	for _, dir := range []string{PaperdexPath(root), CachePath(root), UploadsPath(root)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	cfg := Default()
	if err := cfg.Save(root); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads configuration from the repository at the given root. Missing
// fields keep their defaults and environment overrides are applied.
func Load(root string) (*Config, error) {
	data, err := os.ReadFile(ConfigPath(root))
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv() {
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		c.Embedding.OllamaURL = host
	}
	if url := os.Getenv("OPENAI_BASE_URL"); url != "" {
		c.Embedding.OpenAIBaseURL = url
	}
}

// Save writes configuration to the repository at the given root.
func (c *Config) Save(root string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(ConfigPath(root), data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := ValidateProvider(c.Embedding.Provider); err != nil {
		return err
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("invalid embedding.dimensions: %d (must be positive)", c.Embedding.Dimensions)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("invalid embedding.batch_size: %d (must be positive)", c.Embedding.BatchSize)
	}
	if c.Chunk.Size <= 0 {
		return fmt.Errorf("invalid chunk.size: %d (must be positive)", c.Chunk.Size)
	}
	if c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.Size {
		return fmt.Errorf("invalid chunk.overlap: %d (must be in [0, %d))", c.Chunk.Overlap, c.Chunk.Size)
	}
	if c.Index.PersistAttempts <= 0 {
		return fmt.Errorf("invalid index.persist_attempts: %d (must be positive)", c.Index.PersistAttempts)
	}
	return nil
}

// ValidateProvider checks that the provider value is valid.
func ValidateProvider(provider string) error {
	if slices.Contains(ValidProviders, provider) {
		return nil
	}
	return fmt.Errorf("invalid embedding.provider: %s (valid: %v)", provider, ValidProviders)
}

// ExpandPath expands ~ to the user's home directory.
// Returns the original path unchanged if it doesn't start with ~.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path // Return original if we can't get home directory
	}

	return filepath.Join(home, path[1:])
}
