package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
	"github.com/xtxerr/billstats/internal/errors"
	"github.com/xtxerr/billstats/internal/stats"
)

// File names written by WriteSummary.
const (
	MonthlyFile   = "monthly.parquet"
	HistogramFile = "histogram.parquet"
)

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// ParseCompressionType parses a compression type string.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none", "":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// MonthlyRow is one service/month of consumption in Parquet format.
type MonthlyRow struct {
	RunID   string  `parquet:"run_id,dict"`
	Service string  `parquet:"service,dict"`
	Month   int32   `parquet:"month"`
	Count   int64   `parquet:"count"`
	Total   float64 `parquet:"total"`
	Average float64 `parquet:"avg"`
	Min     float64 `parquet:"min"`
	Max     float64 `parquet:"max"`
	P50     float64 `parquet:"p50,optional"`
	P90     float64 `parquet:"p90,optional"`
	P99     float64 `parquet:"p99,optional"`
}

// HistogramRow is one reading-count bucket in Parquet format.
type HistogramRow struct {
	RunID     string `parquet:"run_id,dict"`
	Service   string `parquet:"service,dict"`
	Readings  int32  `parquet:"readings"`
	Customers int32  `parquet:"customers"`
}

// MonthlyRows flattens the monthly stats of both services.
func MonthlyRows(runID string, s *stats.Summary) []MonthlyRow {
	rows := make([]MonthlyRow, 0, len(s.ElectricityMonthly)+len(s.GasMonthly))
	rows = appendMonthlyRows(rows, runID, "electricity", s.ElectricityMonthly)
	rows = appendMonthlyRows(rows, runID, "gas", s.GasMonthly)
	return rows
}

func appendMonthlyRows(rows []MonthlyRow, runID, service string, monthly []stats.MonthlyStat) []MonthlyRow {
	for _, m := range monthly {
		row := MonthlyRow{
			RunID:   runID,
			Service: service,
			Month:   int32(m.Month),
			Count:   m.Count,
			Total:   m.Total,
			Average: m.Average,
			Min:     m.Min,
			Max:     m.Max,
		}
		for _, p := range m.Percentiles {
			switch p.Quantile {
			case 0.50:
				row.P50 = p.Value
			case 0.90:
				row.P90 = p.Value
			case 0.99:
				row.P99 = p.Value
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// HistogramRows flattens the histograms of both services.
func HistogramRows(runID string, s *stats.Summary) []HistogramRow {
	rows := make([]HistogramRow, 0, len(s.ElectricityHistogram)+len(s.GasHistogram))
	for _, b := range s.ElectricityHistogram {
		rows = append(rows, HistogramRow{RunID: runID, Service: "electricity", Readings: int32(b.Readings), Customers: int32(b.Customers)})
	}
	for _, b := range s.GasHistogram {
		rows = append(rows, HistogramRow{RunID: runID, Service: "gas", Readings: int32(b.Readings), Customers: int32(b.Customers)})
	}
	return rows
}

// Writer writes rows of type T to a Parquet file.
type Writer[T any] struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *parquet.GenericWriter[T]
	rowCount int64
	closed   bool
}

// NewWriter creates a Parquet writer at path, creating parent directories.
func NewWriter[T any](path string, ct CompressionType) (*Writer[T], error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	writer := parquet.NewGenericWriter[T](f, parquet.Compression(getCompression(ct)))

	return &Writer[T]{
		path:   path,
		file:   f,
		writer: writer,
	}, nil
}

// Write appends rows to the file.
func (w *Writer[T]) Write(rows []T) error {
	if len(rows) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errors.ErrWriterClosed
	}

	n, err := w.writer.Write(rows)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}

	w.rowCount += int64(n)
	return nil
}

// Close flushes and closes the file.
func (w *Writer[T]) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}

	return w.file.Close()
}

// RowCount returns the number of rows written.
func (w *Writer[T]) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// Path returns the file path.
func (w *Writer[T]) Path() string {
	return w.path
}

func writeFile[T any](path string, ct CompressionType, rows []T) error {
	w, err := NewWriter[T](path, ct)
	if err != nil {
		return err
	}
	if err := w.Write(rows); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// ReadAll reads every row of a Parquet file written by this package.
func ReadAll[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	reader := parquet.NewGenericReader[T](f)
	defer reader.Close()

	rows := make([]T, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return rows[:n], nil
}
