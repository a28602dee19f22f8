// Package config provides configuration defaults and utilities
// for the billstats application.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or command-line flags.
package config

// =============================================================================
// Parse Defaults
// =============================================================================

const (
	// DefaultMaxConsumption is the largest consumption value accepted on a
	// record. Values strictly greater reject the whole record.
	// Override via config: parse.max_consumption
	DefaultMaxConsumption = 200000.0

	// DefaultMaxLineBytes caps the length of a single input line.
	// A longer line is skipped and counted as a rejected record.
	// Override via config: parse.max_line_bytes
	DefaultMaxLineBytes = 1024 * 1024

	// DefaultReadBufferSize is the initial line buffer size.
	DefaultReadBufferSize = 64 * 1024
)

// =============================================================================
// Percentile Defaults
// =============================================================================

const (
	// DefaultPercentileAccuracy is the DDSketch relative accuracy (0.01 = 1%).
	// Override via config: percentiles.accuracy
	DefaultPercentileAccuracy = 0.01
)

// DefaultQuantiles are the quantiles reported per service and month. They are
// also the only quantiles the Parquet and history columns hold, so a
// configured list may select from them but not add to them.
// Override via config: percentiles.quantiles
var DefaultQuantiles = []float64{0.50, 0.90, 0.99}

// =============================================================================
// Output Defaults
// =============================================================================

const (
	// DefaultReportFormat is the console report layout: "text" or "table".
	// Override via config: report.format
	DefaultReportFormat = "text"

	// DefaultParquetCompression is the Parquet codec for exports.
	// Override via config: export.parquet.compression
	DefaultParquetCompression = "zstd"

	// DefaultHistoryPath is the DuckDB file holding run history.
	// Override via config: history.path
	DefaultHistoryPath = "billstats.db"

	// DefaultMaxMessageSize limits a single protobuf summary message.
	DefaultMaxMessageSize = 16 * 1024 * 1024
)
