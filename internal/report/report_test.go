package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xtxerr/billstats/internal/stats"
)

func sampleSummary() *stats.Summary {
	return &stats.Summary{
		UniqueCustomers:      1,
		BothServices:         1,
		ElectricityHistogram: []stats.HistogramBucket{{Readings: 1, Customers: 1}},
		GasHistogram:         []stats.HistogramBucket{{Readings: 1, Customers: 1}},
		ElectricityMonthly:   []stats.MonthlyStat{{Month: 0, Count: 1, Total: 300, Average: 300, Min: 300, Max: 300}},
		GasMonthly: []stats.MonthlyStat{{
			Month: 1, Count: 1, Total: 50, Average: 50, Min: 50, Max: 50,
			Percentiles: []stats.Percentile{{Quantile: 0.5, Value: 50}, {Quantile: 0.99, Value: 50}},
		}},
	}
}

func TestWrite_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleSummary(), FormatText); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	want := `
Unique Customers              : 1
Electricity Only Customers    : 0
Gas Only Customers            : 0
Electricity And Gas Customers : 1

Electricity
Number of meter readings: Number of customers
1: 1

Gas
Number of meter readings: Number of customers
1: 1

Electricity
January: 300

Gas
February: 50
`
	if buf.String() != want {
		t.Errorf("unexpected report:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestWrite_Table(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleSummary(), FormatTable); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"ELECTRICITY ONLY", "January", "February", "P50", "P99"} {
		if !strings.Contains(strings.ToUpper(out), strings.ToUpper(want)) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{300, "300"},
		{50.0, "50"},
		{12.34, "12.3"},
		{12.36, "12.4"},
		{0, "0"},
		{-0.01, "0"},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.in); got != tt.want {
			t.Errorf("FormatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMonthName(t *testing.T) {
	if MonthName(0) != "January" || MonthName(11) != "December" {
		t.Error("unexpected month names")
	}
	if MonthName(-1) != "" || MonthName(12) != "" {
		t.Error("out of range months should be empty")
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("TABLE"); err != nil || f != FormatTable {
		t.Errorf("expected table, got %v, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatText {
		t.Errorf("expected text default, got %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}
