// Package export writes a stats.Summary to Parquet files.
//
// Each run produces two files in the target directory:
//   - monthly.parquet: consumption per service and month
//   - histogram.parquet: reading-count histograms per service
package export

import (
	"path/filepath"

	"github.com/xtxerr/billstats/internal/errors"
	"github.com/xtxerr/billstats/internal/stats"
)

// Options configures the Parquet export.
type Options struct {
	// Dir receives the exported files.
	Dir string

	// Compression is the Parquet codec name: snappy, zstd, lz4, gzip, none.
	Compression string
}

// Result lists the written files.
type Result struct {
	MonthlyPath   string
	HistogramPath string
	MonthlyRows   int
	HistogramRows int
}

// WriteSummary exports s under opts.Dir.
func WriteSummary(runID string, s *stats.Summary, opts Options) (*Result, error) {
	if opts.Dir == "" {
		return nil, errors.NewMissingField("export.parquet.dir")
	}
	ct := ParseCompressionType(opts.Compression)

	monthly := MonthlyRows(runID, s)
	histogram := HistogramRows(runID, s)

	res := &Result{
		MonthlyPath:   filepath.Join(opts.Dir, MonthlyFile),
		HistogramPath: filepath.Join(opts.Dir, HistogramFile),
		MonthlyRows:   len(monthly),
		HistogramRows: len(histogram),
	}

	if err := writeFile(res.MonthlyPath, ct, monthly); err != nil {
		return nil, errors.Wrap(err, "export monthly")
	}
	if err := writeFile(res.HistogramPath, ct, histogram); err != nil {
		return nil, errors.Wrap(err, "export histogram")
	}

	return res, nil
}
