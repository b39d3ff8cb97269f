package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPathFunctions(t *testing.T) {
	root := "/test/repo"

	tests := []struct {
		name string
		fn   func(string) string
		want string
	}{
		{"PaperdexPath", PaperdexPath, "/test/repo/.paperdex"},
		{"ConfigPath", ConfigPath, "/test/repo/.paperdex/config.yml"},
		{"DBPath", DBPath, "/test/repo/.paperdex/papers.db"},
		{"CachePath", CachePath, "/test/repo/.paperdex/cache"},
		{"IndexPath", IndexPath, "/test/repo/.paperdex/cache/vectors.gob"},
		{"UploadsPath", UploadsPath, "/test/repo/.paperdex/uploads"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.fn(root)
			if got != tt.want {
				t.Errorf("%s(%q) = %q, want %q", tt.name, root, got, tt.want)
			}
		})
	}
}

func TestIsRepository(t *testing.T) {
	tmpDir := t.TempDir()

	if IsRepository(tmpDir) {
		t.Error("IsRepository() = true for non-repo directory")
	}

	if err := os.Mkdir(filepath.Join(tmpDir, PaperdexDir), 0755); err != nil {
		t.Fatalf("Failed to create .paperdex: %v", err)
	}

	if !IsRepository(tmpDir) {
		t.Error("IsRepository() = false for repo directory")
	}
}

func TestIsRepository_FileNotDir(t *testing.T) {
	tmpDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(tmpDir, PaperdexDir), []byte("not a dir"), 0644); err != nil {
		t.Fatalf("Failed to create .paperdex file: %v", err)
	}

	if IsRepository(tmpDir) {
		t.Error("IsRepository() = true when .paperdex is a file")
	}
}

func TestFindRepository(t *testing.T) {
	tmpDir := t.TempDir()
	repoDir := filepath.Join(tmpDir, "repo")
	nestedDir := filepath.Join(repoDir, "papers", "2024")

	if err := os.MkdirAll(nestedDir, 0755); err != nil {
		t.Fatalf("Failed to create nested dirs: %v", err)
	}
	if err := os.Mkdir(filepath.Join(repoDir, PaperdexDir), 0755); err != nil {
		t.Fatalf("Failed to create .paperdex: %v", err)
	}

	found, err := FindRepository(nestedDir)
	if err != nil {
		t.Fatalf("FindRepository() error = %v", err)
	}
	if found != repoDir {
		t.Errorf("FindRepository() = %q, want %q", found, repoDir)
	}

	found, err = FindRepository(repoDir)
	if err != nil {
		t.Fatalf("FindRepository() error = %v", err)
	}
	if found != repoDir {
		t.Errorf("FindRepository() = %q, want %q", found, repoDir)
	}
}

func TestFindRepository_NotFound(t *testing.T) {
	_, err := FindRepository(t.TempDir())
	if err != ErrNotRepository {
		t.Errorf("FindRepository() error = %v, want ErrNotRepository", err)
	}
}

func TestInit(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Init(tmpDir)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if cfg.Chunk.Size != 400 || cfg.Chunk.Overlap != 50 {
		t.Errorf("chunk defaults = %d/%d, want 400/50", cfg.Chunk.Size, cfg.Chunk.Overlap)
	}

	for _, dir := range []string{CachePath(tmpDir), UploadsPath(tmpDir)} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("%s not created", dir)
		}
	}
	if _, err := os.Stat(ConfigPath(tmpDir)); err != nil {
		t.Errorf("config.yml not written: %v", err)
	}

	if _, err := Init(tmpDir); err == nil {
		t.Error("Init() should fail on an existing repository")
	}
}

func TestConfig_SaveAndLoad(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")
	t.Setenv("OPENAI_BASE_URL", "")
	tmpDir := t.TempDir()
	if err := os.Mkdir(PaperdexPath(tmpDir), 0755); err != nil {
		t.Fatalf("Failed to create .paperdex: %v", err)
	}

	cfg := Default()
	cfg.Embedding.Provider = ProviderHash
	cfg.Embedding.Dimensions = 128
	cfg.Chunk.Size = 200
	cfg.Chunk.Overlap = 20
	if err := cfg.Save(tmpDir); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Embedding.Provider != ProviderHash {
		t.Errorf("Provider = %q, want %q", loaded.Embedding.Provider, ProviderHash)
	}
	if loaded.Embedding.Dimensions != 128 {
		t.Errorf("Dimensions = %d, want 128", loaded.Embedding.Dimensions)
	}
	if loaded.Chunk != cfg.Chunk {
		t.Errorf("Chunk = %+v, want %+v", loaded.Chunk, cfg.Chunk)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")
	tmpDir := t.TempDir()
	if err := os.Mkdir(PaperdexPath(tmpDir), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ConfigPath(tmpDir), []byte("chunk:\n  size: 100\n  overlap: 10\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Chunk.Size != 100 {
		t.Errorf("Chunk.Size = %d, want 100", cfg.Chunk.Size)
	}
	if cfg.Embedding.Provider != ProviderOllama {
		t.Errorf("Provider = %q, want default %q", cfg.Embedding.Provider, ProviderOllama)
	}
	if !cfg.Index.AutoSave {
		t.Error("Index.AutoSave should default to true")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	if _, err := Init(tmpDir); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434")

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Embedding.OllamaURL != "http://gpu-box:11434" {
		t.Errorf("OllamaURL = %q, want env override", cfg.Embedding.OllamaURL)
	}
}

func TestLoad_NotFound(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.Mkdir(PaperdexPath(tmpDir), 0755); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(tmpDir); err == nil {
		t.Error("Load() should return error when config not found")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.Mkdir(PaperdexPath(tmpDir), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ConfigPath(tmpDir), []byte("chunk: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(tmpDir); err == nil {
		t.Error("Load() should return error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "bert" }, "embedding.provider"},
		{"zero dimensions", func(c *Config) { c.Embedding.Dimensions = 0 }, "embedding.dimensions"},
		{"zero batch", func(c *Config) { c.Embedding.BatchSize = 0 }, "embedding.batch_size"},
		{"zero chunk size", func(c *Config) { c.Chunk.Size = 0 }, "chunk.size"},
		{"overlap equals size", func(c *Config) { c.Chunk.Overlap = c.Chunk.Size }, "chunk.overlap"},
		{"negative overlap", func(c *Config) { c.Chunk.Overlap = -1 }, "chunk.overlap"},
		{"zero attempts", func(c *Config) { c.Index.PersistAttempts = 0 }, "index.persist_attempts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestGetSet(t *testing.T) {
	cfg := Default()

	if err := cfg.Set("chunk-size", "250"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := cfg.Get("chunk.size")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "250" {
		t.Errorf("chunk.size = %q, want 250", got)
	}

	if err := cfg.Set("Index.Auto_Save", "false"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if cfg.Index.AutoSave {
		t.Error("index.auto_save should be false")
	}

	if err := cfg.Set("embedding.requests_per_second", "2.5"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if cfg.Embedding.RequestsPerSecond != 2.5 {
		t.Errorf("requests_per_second = %v, want 2.5", cfg.Embedding.RequestsPerSecond)
	}
}

func TestSet_RejectsInvalid(t *testing.T) {
	cfg := Default()

	tests := []struct {
		key, value string
	}{
		{"no.such.key", "1"},
		{"chunk.size", "many"},
		{"chunk.overlap", "400"},
		{"embedding.provider", "word2vec"},
		{"index.auto_save", "sometimes"},
	}
	for _, tt := range tests {
		if err := cfg.Set(tt.key, tt.value); err == nil {
			t.Errorf("Set(%q, %q) should fail", tt.key, tt.value)
		}
	}

	if *cfg != *Default() {
		t.Errorf("failed Set() modified config: %+v", cfg)
	}
}

func TestKeys(t *testing.T) {
	keys := Keys()
	if len(keys) != len(Default().All()) {
		t.Errorf("Keys() = %d entries, All() = %d", len(keys), len(Default().All()))
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Errorf("Keys() not sorted at %d: %q >= %q", i, keys[i-1], keys[i])
		}
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Cannot get home directory")
	}

	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"/abs/path", "/abs/path"},
		{"relative", "relative"},
		{"~/papers", filepath.Join(home, "papers")},
	}
	for _, tt := range tests {
		if got := ExpandPath(tt.in); got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
