package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/xtxerr/billstats/internal/errors"
	"github.com/xtxerr/billstats/internal/export"
	"github.com/xtxerr/billstats/internal/stats"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "history.db")
	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRun(id string, started time.Time, januaryAvg float64) *Run {
	return &Run{
		ID:              id,
		Input:           "/data/" + id + ".gz",
		StartedAt:       started,
		FinishedAt:      started.Add(time.Second),
		LinesRead:       3,
		RecordsAccepted: 2,
		RecordsRejected: 1,
		Summary: &stats.Summary{
			UniqueCustomers:      1,
			BothServices:         1,
			ElectricityHistogram: []stats.HistogramBucket{{Readings: 1, Customers: 1}},
			GasHistogram:         []stats.HistogramBucket{{Readings: 1, Customers: 1}},
			ElectricityMonthly: []stats.MonthlyStat{{
				Month: 0, Count: 1, Total: januaryAvg, Average: januaryAvg, Min: januaryAvg, Max: januaryAvg,
				Percentiles: []stats.Percentile{{Quantile: 0.5, Value: januaryAvg}},
			}},
			GasMonthly: []stats.MonthlyStat{{Month: 1, Count: 1, Total: 50, Average: 50, Min: 50, Max: 50}},
		},
	}
}

func TestStore_SaveAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := s.SaveRun(ctx, testRun("r1", base, 300)); err != nil {
		t.Fatalf("SaveRun r1: %v", err)
	}
	if err := s.SaveRun(ctx, testRun("r2", base.Add(time.Hour), 330)); err != nil {
		t.Fatalf("SaveRun r2: %v", err)
	}

	runs, err := s.Runs(ctx, 0)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "r2" {
		t.Errorf("expected newest run first, got %s", runs[0].ID)
	}
	if runs[1].BothServices != 1 || runs[1].RecordsRejected != 1 {
		t.Errorf("unexpected run info %+v", runs[1])
	}

	limited, err := s.Runs(ctx, 1)
	if err != nil {
		t.Fatalf("Runs(1): %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected 1 run with limit, got %d", len(limited))
	}

	monthly, err := s.Monthly(ctx, "r1", "electricity")
	if err != nil {
		t.Fatalf("Monthly: %v", err)
	}
	if len(monthly) != 1 || monthly[0].Average != 300 {
		t.Fatalf("unexpected monthly %+v", monthly)
	}
	if len(monthly[0].Percentiles) != 1 || monthly[0].Percentiles[0].Quantile != 0.5 {
		t.Errorf("unexpected percentiles %+v", monthly[0].Percentiles)
	}

	hist, err := s.Histogram(ctx, "r1", "gas")
	if err != nil {
		t.Fatalf("Histogram: %v", err)
	}
	if len(hist) != 1 || hist[0] != (stats.HistogramBucket{Readings: 1, Customers: 1}) {
		t.Errorf("unexpected histogram %+v", hist)
	}

	trend, err := s.MonthlyTrend(ctx, "electricity", 0)
	if err != nil {
		t.Fatalf("MonthlyTrend: %v", err)
	}
	if len(trend) != 2 || trend[0].Average != 300 || trend[1].Average != 330 {
		t.Errorf("unexpected trend %+v", trend)
	}
}

func TestStore_DuplicateRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := testRun("dup", time.Now(), 1)
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	err := s.SaveRun(ctx, run)
	if !errors.Is(err, errors.ErrDatabase) {
		t.Fatalf("expected ErrDatabase on duplicate, got %v", err)
	}

	// The failed transaction must not leave partial rows.
	hist, err := s.Histogram(ctx, "dup", "electricity")
	if err != nil {
		t.Fatalf("Histogram: %v", err)
	}
	if len(hist) != 1 {
		t.Errorf("expected 1 histogram row after rollback, got %d", len(hist))
	}
}

func TestStore_MissingID(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveRun(context.Background(), &Run{}); !errors.Is(err, errors.ErrMissingField) {
		t.Errorf("expected ErrMissingField, got %v", err)
	}
}

func TestStore_ImportMonthlyParquet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sum := &stats.Summary{
		ElectricityMonthly: []stats.MonthlyStat{
			{Month: 2, Count: 4, Total: 40, Average: 10, Min: 5, Max: 15},
			{Month: 3, Count: 1, Total: 8, Average: 8, Min: 8, Max: 8},
		},
	}
	res, err := export.WriteSummary("imported", sum, export.Options{Dir: t.TempDir(), Compression: "snappy"})
	if err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}

	n, err := s.ImportMonthlyParquet(ctx, res.MonthlyPath)
	if err != nil {
		t.Fatalf("ImportMonthlyParquet: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 rows imported, got %d", n)
	}

	monthly, err := s.Monthly(ctx, "imported", "electricity")
	if err != nil {
		t.Fatalf("Monthly: %v", err)
	}
	if len(monthly) != 2 || monthly[0].Month != 2 || monthly[0].Average != 10 {
		t.Errorf("unexpected imported rows %+v", monthly)
	}
	if monthly[0].Percentiles != nil {
		t.Errorf("expected no percentiles for a run without them, got %+v", monthly[0].Percentiles)
	}
}

func TestStore_LoadSummary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	want := testRun("r1", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), 300)
	if err := s.SaveRun(ctx, want); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	info, sum, err := s.LoadSummary(ctx, "r1")
	if err != nil {
		t.Fatalf("LoadSummary: %v", err)
	}
	if info.Input != want.Input || info.RecordsRejected != 1 {
		t.Errorf("unexpected run header %+v", info)
	}
	if sum.UniqueCustomers != 1 || sum.BothServices != 1 {
		t.Errorf("unexpected counts %+v", sum)
	}
	if len(sum.ElectricityHistogram) != 1 || len(sum.GasHistogram) != 1 {
		t.Errorf("unexpected histograms %+v / %+v", sum.ElectricityHistogram, sum.GasHistogram)
	}
	if len(sum.ElectricityMonthly) != 1 || sum.ElectricityMonthly[0].Average != 300 {
		t.Errorf("unexpected electricity months %+v", sum.ElectricityMonthly)
	}
	if len(sum.GasMonthly) != 1 || sum.GasMonthly[0].Month != 1 {
		t.Errorf("unexpected gas months %+v", sum.GasMonthly)
	}
}

func TestStore_RunNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Run(context.Background(), "nope")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := s.LoadSummary(context.Background(), "nope"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected ErrNotFound from LoadSummary, got %v", err)
	}
}

func TestStore_ImportExport(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveRun(ctx, testRun("saved", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), 300)); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	sum := &stats.Summary{
		ElectricityHistogram: []stats.HistogramBucket{{Readings: 2, Customers: 5}},
		ElectricityMonthly:   []stats.MonthlyStat{{Month: 0, Count: 2, Total: 40, Average: 20, Min: 10, Max: 30}},
	}
	dir := t.TempDir()
	if _, err := export.WriteSummary("external", sum, export.Options{Dir: dir}); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}

	monthly, histogram, err := s.ImportExport(ctx, dir)
	if err != nil {
		t.Fatalf("ImportExport: %v", err)
	}
	if monthly != 1 || histogram != 1 {
		t.Errorf("expected 1 and 1 rows imported, got %d and %d", monthly, histogram)
	}

	hist, err := s.Histogram(ctx, "external", "electricity")
	if err != nil {
		t.Fatalf("Histogram: %v", err)
	}
	if len(hist) != 1 || hist[0].Customers != 5 {
		t.Errorf("unexpected imported histogram %+v", hist)
	}

	// Imported rows have no run header and sort before saved runs.
	trend, err := s.MonthlyTrend(ctx, "electricity", 0)
	if err != nil {
		t.Fatalf("MonthlyTrend: %v", err)
	}
	if len(trend) != 2 || trend[0].RunID != "external" || !trend[0].StartedAt.IsZero() || trend[1].RunID != "saved" {
		t.Errorf("unexpected trend %+v", trend)
	}
}

func TestParseTrendKey(t *testing.T) {
	tests := []struct {
		key     string
		service string
		month   int
		wantErr bool
	}{
		{"electricity:1", "electricity", 0, false},
		{"gas:12", "gas", 11, false},
		{"gas:0", "", 0, true},
		{"gas:13", "", 0, true},
		{"water:3", "", 0, true},
		{"electricity", "", 0, true},
		{"gas:march", "", 0, true},
	}

	for _, tt := range tests {
		service, month, err := ParseTrendKey(tt.key)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: expected error=%v, got %v", tt.key, tt.wantErr, err)
			continue
		}
		if !tt.wantErr && (service != tt.service || month != tt.month) {
			t.Errorf("%s: expected %s/%d, got %s/%d", tt.key, tt.service, tt.month, service, month)
		}
		if tt.wantErr && !errors.Is(err, errors.ErrInvalidConfig) {
			t.Errorf("%s: expected ErrInvalidConfig, got %v", tt.key, err)
		}
	}
}

func TestQuoteLiteral(t *testing.T) {
	if got := quoteLiteral("it's"); got != "'it''s'" {
		t.Errorf("unexpected quoting %s", got)
	}
}
