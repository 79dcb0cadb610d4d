package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Config holds every tunable setting.
type Config struct {
	LogSuffix        string `yaml:"log_suffix" json:"log_suffix"`
	IndexSuffix      string `yaml:"index_suffix" json:"index_suffix"`
	LogLevel         string `yaml:"log_level" json:"log_level"`
	LogFormat        string `yaml:"log_format" json:"log_format"`
	CompressionLevel int    `yaml:"compression_level" json:"compression_level"`
	ChunkTargetBytes int64  `yaml:"chunk_target_bytes" json:"chunk_target_bytes"`
	OnMalformed      string `yaml:"on_malformed" json:"on_malformed"`
	OnIndexError     string `yaml:"on_index_error" json:"on_index_error"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		LogSuffix:        ".gz",
		IndexSuffix:      ".index",
		LogLevel:         "info",
		LogFormat:        "text",
		CompressionLevel: -1,
		ChunkTargetBytes: 1 << 20,
		OnMalformed:      "abort",
		OnIndexError:     "abort",
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults. Unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks cfg against the schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := def.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.LogSuffix == c.IndexSuffix {
		return fmt.Errorf("invalid config: log_suffix and index_suffix are both %q", c.LogSuffix)
	}
	return nil
}

// Level returns the slog level named by LogLevel.
func (c Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}
