// Package report renders a stats.Summary for the console.
//
// Two formats are supported: "text", the plain line-oriented layout, and
// "table", which adds min/max and percentile columns.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/xtxerr/billstats/internal/errors"
	"github.com/xtxerr/billstats/internal/stats"
)

// Format selects the report layout.
type Format int

const (
	FormatText Format = iota
	FormatTable
)

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "table":
		return FormatTable, nil
	default:
		return FormatText, errors.NewInvalidValue("report format", s, "must be text or table")
	}
}

// String returns the config name of the format.
func (f Format) String() string {
	if f == FormatTable {
		return "table"
	}
	return "text"
}

// MonthName returns the English month name for a zero-based month index, or
// "" when out of range.
func MonthName(month int) string {
	if month < 0 || month > 11 {
		return ""
	}
	return time.Month(month + 1).String()
}

// FormatValue renders v with at most one decimal place: 300 -> "300",
// 12.34 -> "12.3".
func FormatValue(v float64) string {
	s := strconv.FormatFloat(v, 'f', 1, 64)
	s = strings.TrimSuffix(s, ".0")
	if s == "-0" {
		s = "0"
	}
	return s
}

// Write renders s to w in the given format.
func Write(w io.Writer, s *stats.Summary, format Format) error {
	if format == FormatTable {
		return writeTable(w, s)
	}
	return writeText(w, s)
}

func writeText(w io.Writer, s *stats.Summary) error {
	var b strings.Builder

	b.WriteString("\n")
	fmt.Fprintf(&b, "Unique Customers              : %d\n", s.UniqueCustomers)
	fmt.Fprintf(&b, "Electricity Only Customers    : %d\n", s.ElectricityOnly)
	fmt.Fprintf(&b, "Gas Only Customers            : %d\n", s.GasOnly)
	fmt.Fprintf(&b, "Electricity And Gas Customers : %d\n", s.BothServices)

	writeHistogram(&b, "Electricity", s.ElectricityHistogram)
	writeHistogram(&b, "Gas", s.GasHistogram)

	writeMonthly(&b, "Electricity", s.ElectricityMonthly)
	writeMonthly(&b, "Gas", s.GasMonthly)

	_, err := io.WriteString(w, b.String())
	return err
}

func writeHistogram(b *strings.Builder, title string, h []stats.HistogramBucket) {
	b.WriteString("\n")
	b.WriteString(title + "\n")
	b.WriteString("Number of meter readings: Number of customers\n")
	for _, bucket := range h {
		fmt.Fprintf(b, "%d: %d\n", bucket.Readings, bucket.Customers)
	}
}

func writeMonthly(b *strings.Builder, title string, monthly []stats.MonthlyStat) {
	b.WriteString("\n")
	b.WriteString(title + "\n")
	for _, m := range monthly {
		fmt.Fprintf(b, "%s: %s\n", MonthName(m.Month), FormatValue(m.Average))
	}
}

func writeTable(w io.Writer, s *stats.Summary) error {
	seg := tablewriter.NewWriter(w)
	seg.SetHeader([]string{"Segment", "Customers"})
	seg.Append([]string{"Unique", strconv.Itoa(s.UniqueCustomers)})
	seg.Append([]string{"Electricity only", strconv.Itoa(s.ElectricityOnly)})
	seg.Append([]string{"Gas only", strconv.Itoa(s.GasOnly)})
	seg.Append([]string{"Electricity and gas", strconv.Itoa(s.BothServices)})
	seg.Render()

	hist := tablewriter.NewWriter(w)
	hist.SetHeader([]string{"Service", "Readings", "Customers"})
	appendHistogram(hist, "electricity", s.ElectricityHistogram)
	appendHistogram(hist, "gas", s.GasHistogram)
	hist.Render()

	quantiles := percentileHeaders(s)
	header := append([]string{"Service", "Month", "Readings", "Average", "Min", "Max"}, quantiles...)
	monthly := tablewriter.NewWriter(w)
	monthly.SetHeader(header)
	appendMonthly(monthly, "electricity", s.ElectricityMonthly, len(quantiles))
	appendMonthly(monthly, "gas", s.GasMonthly, len(quantiles))
	monthly.Render()

	return nil
}

func appendHistogram(t *tablewriter.Table, service string, h []stats.HistogramBucket) {
	for _, b := range h {
		t.Append([]string{service, strconv.Itoa(b.Readings), strconv.Itoa(b.Customers)})
	}
}

func appendMonthly(t *tablewriter.Table, service string, monthly []stats.MonthlyStat, quantiles int) {
	for _, m := range monthly {
		row := []string{
			service,
			MonthName(m.Month),
			strconv.FormatInt(m.Count, 10),
			FormatValue(m.Average),
			FormatValue(m.Min),
			FormatValue(m.Max),
		}
		for i := 0; i < quantiles; i++ {
			if i < len(m.Percentiles) {
				row = append(row, FormatValue(m.Percentiles[i].Value))
			} else {
				row = append(row, "")
			}
		}
		t.Append(row)
	}
}

// percentileHeaders returns "p50", "p90", ... from the first month that
// carries percentiles.
func percentileHeaders(s *stats.Summary) []string {
	for _, monthly := range [][]stats.MonthlyStat{s.ElectricityMonthly, s.GasMonthly} {
		for _, m := range monthly {
			if len(m.Percentiles) == 0 {
				continue
			}
			headers := make([]string, len(m.Percentiles))
			for i, p := range m.Percentiles {
				headers[i] = "p" + strconv.FormatFloat(p.Quantile*100, 'f', -1, 64)
			}
			return headers
		}
	}
	return nil
}
