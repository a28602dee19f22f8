// Package loader - Configuration Types
//
// Defines the YAML configuration structure for billstats.
//
//	parse:        line validation and verbose rejection logging
//	percentiles:  DDSketch consumption quantiles
//	report:       console layout
//	export:       Parquet files and the protobuf summary stream
//	history:      DuckDB run history
//	logging:      level and format

package loader

import (
	"slices"

	"github.com/xtxerr/billstats/config"
)

// =============================================================================
// Root Configuration
// =============================================================================

// Config is the root configuration structure for billstats.
type Config struct {
	// Parse configures line validation.
	Parse ParseConfig `yaml:"parse"`

	// Percentiles configures per-month consumption quantiles.
	Percentiles PercentileConfig `yaml:"percentiles"`

	// Report configures console output.
	Report ReportConfig `yaml:"report"`

	// Export configures file outputs.
	Export ExportConfig `yaml:"export"`

	// History configures the run history database.
	History HistoryConfig `yaml:"history"`

	// Logging configures diagnostics.
	Logging LoggingConfig `yaml:"logging"`
}

// ParseConfig configures line validation.
type ParseConfig struct {
	// MaxConsumption is the inclusive upper bound on consumption.
	// Default: 200000
	MaxConsumption float64 `yaml:"max_consumption"`

	// MaxLineBytes caps a single input line.
	// Default: 1048576
	MaxLineBytes int `yaml:"max_line_bytes"`

	// Verbose logs each rejected line with its line number.
	Verbose bool `yaml:"verbose"`
}

// PercentileConfig configures DDSketch consumption quantiles.
type PercentileConfig struct {
	// Enabled turns percentile tracking on.
	Enabled bool `yaml:"enabled"`

	// Accuracy is the relative accuracy (0.01 = 1% error).
	Accuracy float64 `yaml:"accuracy"`

	// Quantiles to report, each in (0, 1).
	Quantiles []float64 `yaml:"quantiles"`
}

// ReportConfig configures console output.
type ReportConfig struct {
	// Format is "text" or "table".
	Format string `yaml:"format"`
}

// ExportConfig configures file outputs.
type ExportConfig struct {
	Parquet ParquetConfig `yaml:"parquet"`
	Stream  StreamConfig  `yaml:"stream"`
}

// ParquetConfig configures the Parquet export.
type ParquetConfig struct {
	Enabled bool `yaml:"enabled"`

	// Dir receives monthly.parquet and histogram.parquet.
	Dir string `yaml:"dir"`

	// Compression: snappy, zstd, lz4, gzip, none.
	Compression string `yaml:"compression"`
}

// StreamConfig configures the protobuf summary stream.
type StreamConfig struct {
	// Path of the file each run's summary is appended to. Empty disables.
	Path string `yaml:"path"`
}

// HistoryConfig configures the DuckDB run history.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures diagnostics.
type LoggingConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level"`

	// JSON switches to JSON log lines.
	JSON bool `yaml:"json"`
}

// DefaultConfig returns a configuration with all defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Parse: ParseConfig{
			MaxConsumption: config.DefaultMaxConsumption,
			MaxLineBytes:   config.DefaultMaxLineBytes,
		},
		Percentiles: PercentileConfig{
			Accuracy:  config.DefaultPercentileAccuracy,
			Quantiles: slices.Clone(config.DefaultQuantiles),
		},
		Report: ReportConfig{
			Format: config.DefaultReportFormat,
		},
		Export: ExportConfig{
			Parquet: ParquetConfig{
				Compression: config.DefaultParquetCompression,
			},
		},
		History: HistoryConfig{
			Path: config.DefaultHistoryPath,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
