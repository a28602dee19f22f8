// Package loader handles configuration file loading and validation.
//
// This package is responsible for:
//   - Loading YAML configuration files
//   - Expanding environment variables
//   - Validating the result before a run starts

package loader

import (
	"fmt"
	"os"
	"slices"

	"github.com/xtxerr/billstats/config"
	"github.com/xtxerr/billstats/internal/errors"
	"github.com/xtxerr/billstats/internal/export"
	"github.com/xtxerr/billstats/internal/report"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Load
// =============================================================================

// Load loads configuration from a YAML file. Fields absent from the file keep
// their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration data after expanding ${ENV} references.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// Validate
// =============================================================================

// Validate validates the configuration and reports every problem found.
func Validate(cfg *Config) error {
	errs := errors.NewValidationErrors()

	if cfg.Parse.MaxConsumption <= 0 {
		errs.AddField("parse.max_consumption", "must be positive")
	}
	if cfg.Parse.MaxLineBytes < 64 {
		errs.AddField("parse.max_line_bytes", "must be at least 64")
	}

	if cfg.Percentiles.Enabled {
		if cfg.Percentiles.Accuracy <= 0 || cfg.Percentiles.Accuracy >= 1 {
			errs.AddField("percentiles.accuracy", "must be between 0 and 1")
		}
		for i, q := range cfg.Percentiles.Quantiles {
			if !slices.Contains(config.DefaultQuantiles, q) {
				errs.AddField(fmt.Sprintf("percentiles.quantiles[%d]", i), "must be one of 0.5, 0.9, 0.99")
			}
		}
	}

	if _, err := report.ParseFormat(cfg.Report.Format); err != nil {
		errs.Add(err)
	}

	if cfg.Export.Parquet.Enabled {
		if cfg.Export.Parquet.Dir == "" {
			errs.AddMissing("export.parquet.dir")
		}
		switch cfg.Export.Parquet.Compression {
		case "", "none", "snappy", "zstd", "lz4", "gzip":
		default:
			errs.Add(errors.NewInvalidValue("export.parquet.compression", cfg.Export.Parquet.Compression,
				"must be one of none, snappy, zstd, lz4, gzip"))
		}
	}

	if cfg.History.Enabled && cfg.History.Path == "" {
		errs.AddMissing("history.path")
	}

	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs.Add(errors.NewInvalidValue("logging.level", cfg.Logging.Level, "must be debug, info, warn or error"))
	}

	return errs.Err()
}

// ParquetOptions converts the Parquet section into export options.
func (c *Config) ParquetOptions() export.Options {
	return export.Options{
		Dir:         c.Export.Parquet.Dir,
		Compression: c.Export.Parquet.Compression,
	}
}
