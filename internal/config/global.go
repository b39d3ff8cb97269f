package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// GlobalConfig represents configuration stored in ~/.config/pdx/config.yml.
type GlobalConfig struct {
	// DefaultRoot is the repository used when the working directory is not
	// inside one.
	DefaultRoot  string `yaml:"default_root,omitempty"`
	OpenAIAPIKey string `yaml:"openai_api_key,omitempty"`
}

const (
	// GlobalConfigDir is the directory name under XDG_CONFIG_HOME.
	GlobalConfigDir = "pdx"
	// GlobalConfigFile is the config file name.
	GlobalConfigFile = "config.yml"
)

// GlobalConfigPath returns $XDG_CONFIG_HOME/pdx/config.yml, or
// ~/.config/pdx/config.yml when XDG_CONFIG_HOME is unset. It returns ""
// when no home directory can be determined.
func GlobalConfigPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, GlobalConfigDir, GlobalConfigFile)
}

// LoadGlobalConfig reads the per-user config. A missing file yields the
// zero GlobalConfig.
func LoadGlobalConfig() (*GlobalConfig, error) {
	cfg := &GlobalConfig{}
	path := GlobalConfigPath()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.DefaultRoot = ExpandPath(cfg.DefaultRoot)
	return cfg, nil
}

// StartDirectory returns where to look for a repository: PDX_ROOT if set,
// then the global default_root, then the working directory.
func StartDirectory() (string, error) {
	if root := os.Getenv("PDX_ROOT"); root != "" {
		return ExpandPath(root), nil
	}
	if cfg, err := LoadGlobalConfig(); err == nil && cfg.DefaultRoot != "" {
		return cfg.DefaultRoot, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	return cwd, nil
}

// OpenAIAPIKey returns OPENAI_API_KEY, falling back to the global config.
func OpenAIAPIKey() string {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return key
	}
	cfg, err := LoadGlobalConfig()
	if err != nil {
		return ""
	}
	return cfg.OpenAIAPIKey
}

// HelpfulConfigMessage explains the ways to point pdx at a repository.
func HelpfulConfigMessage() string {
	path := GlobalConfigPath()
	var b strings.Builder
	b.WriteString("No paperdex repository found.\n\n")
	b.WriteString("Run 'pdx init' to create one here, set PDX_ROOT, or name a default in ")
	b.WriteString(path)
	b.WriteString(":\n")
	fmt.Fprintf(&b, "  mkdir -p %s\n", filepath.Dir(path))
	fmt.Fprintf(&b, "  echo 'default_root: /path/to/your/papers' > %s", path)
	return b.String()
}
