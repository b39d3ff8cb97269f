package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// field binds a dotted key to a Config field.
type field struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func intField(ptr func(c *Config) *int) field {
	return field{
		get: func(c *Config) string { return strconv.Itoa(*ptr(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("not an integer: %q", v)
			}
			*ptr(c) = n
			return nil
		},
	}
}

func stringField(ptr func(c *Config) *string) field {
	return field{
		get: func(c *Config) string { return *ptr(c) },
		set: func(c *Config, v string) error {
			*ptr(c) = v
			return nil
		},
	}
}

var fields = map[string]field{
	"embedding.provider":        stringField(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.model":           stringField(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.dimensions":      intField(func(c *Config) *int { return &c.Embedding.Dimensions }),
	"embedding.ollama_url":      stringField(func(c *Config) *string { return &c.Embedding.OllamaURL }),
	"embedding.openai_base_url": stringField(func(c *Config) *string { return &c.Embedding.OpenAIBaseURL }),
	"embedding.batch_size":      intField(func(c *Config) *int { return &c.Embedding.BatchSize }),
	"embedding.workers":         intField(func(c *Config) *int { return &c.Embedding.Workers }),
	"embedding.requests_per_second": {
		get: func(c *Config) string { return strconv.FormatFloat(c.Embedding.RequestsPerSecond, 'g', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("not a number: %q", v)
			}
			c.Embedding.RequestsPerSecond = f
			return nil
		},
	},
	"chunk.size":             intField(func(c *Config) *int { return &c.Chunk.Size }),
	"chunk.overlap":          intField(func(c *Config) *int { return &c.Chunk.Overlap }),
	"pdf.viewer":             stringField(func(c *Config) *string { return &c.PDF.Viewer }),
	"index.persist_attempts": intField(func(c *Config) *int { return &c.Index.PersistAttempts }),
	"index.auto_save": {
		get: func(c *Config) string { return strconv.FormatBool(c.Index.AutoSave) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("not a boolean: %q", v)
			}
			c.Index.AutoSave = b
			return nil
		},
	},
}

// NormalizeKey converts key formats (chunk-size, Chunk.Size) to the dotted
// snake_case form used in config.yml.
func NormalizeKey(key string) string {
	key = strings.ToLower(key)
	return strings.ReplaceAll(key, "-", "_")
}

// Keys returns every settable key in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the value of a dotted key such as "chunk.size".
func (c *Config) Get(key string) (string, error) {
	f, ok := fields[NormalizeKey(key)]
	if !ok {
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
	return f.get(c), nil
}

// Set assigns a dotted key and validates the result. On error c is left
// unchanged.
func (c *Config) Set(key, value string) error {
	f, ok := fields[NormalizeKey(key)]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s", key)
	}

	next := *c
	if err := f.set(&next, value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

// All returns every key with its current value.
func (c *Config) All() map[string]string {
	out := make(map[string]string, len(fields))
	for k, f := range fields {
		out[k] = f.get(c)
	}
	return out
}
