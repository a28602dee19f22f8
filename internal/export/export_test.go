package export

import (
	"path/filepath"
	"testing"

	"github.com/xtxerr/billstats/internal/errors"
	"github.com/xtxerr/billstats/internal/stats"
)

func testSummary() *stats.Summary {
	return &stats.Summary{
		UniqueCustomers:      3,
		ElectricityHistogram: []stats.HistogramBucket{{Readings: 1, Customers: 2}, {Readings: 4, Customers: 1}},
		GasHistogram:         []stats.HistogramBucket{{Readings: 2, Customers: 1}},
		ElectricityMonthly: []stats.MonthlyStat{
			{Month: 0, Count: 2, Total: 30, Average: 15, Min: 10, Max: 20},
			{Month: 5, Count: 1, Total: 7, Average: 7, Min: 7, Max: 7},
		},
		GasMonthly: []stats.MonthlyStat{{
			Month: 11, Count: 3, Total: 9, Average: 3, Min: 1, Max: 5,
			Percentiles: []stats.Percentile{{Quantile: 0.5, Value: 3}, {Quantile: 0.9, Value: 5}, {Quantile: 0.99, Value: 5}},
		}},
	}
}

func TestWriteSummary(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")

	for _, codec := range []string{"zstd", "snappy", "none"} {
		t.Run(codec, func(t *testing.T) {
			res, err := WriteSummary("run-1", testSummary(), Options{Dir: filepath.Join(dir, codec), Compression: codec})
			if err != nil {
				t.Fatalf("WriteSummary failed: %v", err)
			}
			if res.MonthlyRows != 3 || res.HistogramRows != 3 {
				t.Errorf("unexpected row counts %+v", res)
			}

			monthly, err := ReadAll[MonthlyRow](res.MonthlyPath)
			if err != nil {
				t.Fatalf("ReadAll monthly: %v", err)
			}
			if len(monthly) != 3 {
				t.Fatalf("expected 3 monthly rows, got %d", len(monthly))
			}
			if monthly[0].Service != "electricity" || monthly[0].Month != 0 || monthly[0].Average != 15 {
				t.Errorf("unexpected first row %+v", monthly[0])
			}
			gas := monthly[2]
			if gas.Service != "gas" || gas.Month != 11 || gas.P90 != 5 || gas.RunID != "run-1" {
				t.Errorf("unexpected gas row %+v", gas)
			}

			hist, err := ReadAll[HistogramRow](res.HistogramPath)
			if err != nil {
				t.Fatalf("ReadAll histogram: %v", err)
			}
			total := 0
			for _, h := range hist {
				if h.Service == "electricity" {
					total += int(h.Customers)
				}
			}
			if total != 3 {
				t.Errorf("expected 3 electricity customers in histogram, got %d", total)
			}
		})
	}
}

func TestWriteSummary_MissingDir(t *testing.T) {
	_, err := WriteSummary("run-1", testSummary(), Options{})
	if !errors.Is(err, errors.ErrMissingField) {
		t.Errorf("expected ErrMissingField, got %v", err)
	}
}

func TestWriter_Closed(t *testing.T) {
	w, err := NewWriter[HistogramRow](filepath.Join(t.TempDir(), "h.parquet"), CompressionNone)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	err = w.Write([]HistogramRow{{Service: "gas", Readings: 1, Customers: 1}})
	if !errors.Is(err, errors.ErrWriterClosed) {
		t.Errorf("expected ErrWriterClosed, got %v", err)
	}
}

func TestParseCompressionType(t *testing.T) {
	tests := map[string]CompressionType{
		"snappy": CompressionSnappy,
		"zstd":   CompressionZstd,
		"lz4":    CompressionLZ4,
		"gzip":   CompressionGzip,
		"none":   CompressionNone,
		"":       CompressionNone,
		"bogus":  CompressionZstd,
	}
	for in, want := range tests {
		if got := ParseCompressionType(in); got != want {
			t.Errorf("ParseCompressionType(%q) = %v, want %v", in, got, want)
		}
	}
}
