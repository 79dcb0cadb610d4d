package config

import (
	"fmt"
	"os"
	"strconv"
)

// EnvPrefix prefixes every environment variable read by FromEnv.
const EnvPrefix = "MAILBACKUP_"

// FromEnv overlays MAILBACKUP_* environment variables onto cfg. Numeric
// variables that do not parse are reported.
func FromEnv(cfg *Config) error {
	strs := map[string]*string{
		"LOG_SUFFIX":     &cfg.LogSuffix,
		"INDEX_SUFFIX":   &cfg.IndexSuffix,
		"LOG_LEVEL":      &cfg.LogLevel,
		"LOG_FORMAT":     &cfg.LogFormat,
		"ON_MALFORMED":   &cfg.OnMalformed,
		"ON_INDEX_ERROR": &cfg.OnIndexError,
	}
	for key, dst := range strs {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv(EnvPrefix + "COMPRESSION_LEVEL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sCOMPRESSION_LEVEL: %w", EnvPrefix, err)
		}
		cfg.CompressionLevel = n
	}
	if v := os.Getenv(EnvPrefix + "CHUNK_TARGET_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sCHUNK_TARGET_BYTES: %w", EnvPrefix, err)
		}
		cfg.ChunkTargetBytes = n
	}
	return nil
}
