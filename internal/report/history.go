package report

import (
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/xtxerr/billstats/internal/history"
)

// WriteRuns lists stored runs, one row each.
func WriteRuns(w io.Writer, runs []history.RunInfo) error {
	t := tablewriter.NewWriter(w)
	t.SetHeader([]string{"Run", "Started", "Input", "Accepted", "Rejected", "Unique", "Both", "Source error"})
	for _, r := range runs {
		t.Append([]string{
			r.ID,
			r.StartedAt.UTC().Format(time.RFC3339),
			r.Input,
			strconv.FormatInt(r.RecordsAccepted, 10),
			strconv.FormatInt(r.RecordsRejected, 10),
			strconv.FormatInt(r.UniqueCustomers, 10),
			strconv.FormatInt(r.BothServices, 10),
			r.SourceError,
		})
	}
	t.Render()
	return nil
}

// WriteTrend lists the average consumption of one service and month across
// runs. Runs without a stored header show an empty start time.
func WriteTrend(w io.Writer, service string, month int, points []history.TrendPoint) error {
	t := tablewriter.NewWriter(w)
	t.SetCaption(true, service+" "+MonthName(month))
	t.SetHeader([]string{"Run", "Started", "Readings", "Average"})
	for _, p := range points {
		started := ""
		if !p.StartedAt.IsZero() {
			started = p.StartedAt.UTC().Format(time.RFC3339)
		}
		t.Append([]string{p.RunID, started, strconv.FormatInt(p.Count, 10), FormatValue(p.Average)})
	}
	t.Render()
	return nil
}
