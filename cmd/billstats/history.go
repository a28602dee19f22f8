package main

import (
	"context"
	"fmt"
	"io"

	"github.com/xtxerr/billstats/internal/history"
	"github.com/xtxerr/billstats/internal/logging"
	"github.com/xtxerr/billstats/internal/report"
)

// historyQuery selects one read or import against the history database in
// place of an aggregation run.
type historyQuery struct {
	runs      bool
	show      string
	trend     string
	importDir string
}

func (q historyQuery) active() bool {
	return q.runs || q.show != "" || q.trend != "" || q.importDir != ""
}

func (q historyQuery) count() int {
	n := 0
	for _, set := range []bool{q.runs, q.show != "", q.trend != "", q.importDir != ""} {
		if set {
			n++
		}
	}
	return n
}

func runHistoryQuery(ctx context.Context, path string, format report.Format, q historyQuery, w io.Writer) error {
	hcfg := history.DefaultConfig()
	hcfg.DSN = path

	store, err := history.Open(hcfg)
	if err != nil {
		return err
	}
	defer store.Close()

	switch {
	case q.runs:
		runs, err := store.Runs(ctx, 0)
		if err != nil {
			return err
		}
		return report.WriteRuns(w, runs)

	case q.show != "":
		_, sum, err := store.LoadSummary(ctx, q.show)
		if err != nil {
			return err
		}
		return report.Write(w, sum, format)

	case q.trend != "":
		service, month, err := history.ParseTrendKey(q.trend)
		if err != nil {
			return err
		}
		points, err := store.MonthlyTrend(ctx, service, month)
		if err != nil {
			return err
		}
		return report.WriteTrend(w, service, month, points)

	default:
		monthly, hist, err := store.ImportExport(ctx, q.importDir)
		if err != nil {
			return err
		}
		logging.Component("history").Info("export imported",
			"dir", q.importDir, "monthly_rows", monthly, "histogram_rows", hist)
		fmt.Fprintf(w, "imported %d monthly and %d histogram rows\n", monthly, hist)
		return nil
	}
}
