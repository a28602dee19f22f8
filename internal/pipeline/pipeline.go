// Package pipeline runs one aggregation end to end: it binds a parser to the
// input file, drains it into an aggregator, and hands the finalized summary
// to the configured outputs.
//
// Collection is single-threaded. Once the summary is immutable, the Parquet
// export, the protobuf stream and the history database are written
// concurrently.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/xtxerr/billstats/internal/errors"
	"github.com/xtxerr/billstats/internal/export"
	"github.com/xtxerr/billstats/internal/history"
	"github.com/xtxerr/billstats/internal/loader"
	"github.com/xtxerr/billstats/internal/logging"
	"github.com/xtxerr/billstats/internal/parser"
	"github.com/xtxerr/billstats/internal/record"
	"github.com/xtxerr/billstats/internal/stats"
	"github.com/xtxerr/billstats/internal/wire"
	"golang.org/x/sync/errgroup"
)

// Result describes a finished run.
type Result struct {
	RunID      string
	Input      string
	StartedAt  time.Time
	FinishedAt time.Time

	Summary    *stats.Summary
	ParseStats parser.Stats

	// SourceErr is set when the input could not be opened or read to the end.
	// The summary then reflects whatever was read before the failure.
	SourceErr error

	// Parquet is set when the Parquet export ran.
	Parquet *export.Result
}

// Run aggregates the gzip file at path using cfg. A source failure is not
// fatal: it is recorded in Result.SourceErr and the outputs still run. The
// returned error reports output failures only.
func Run(ctx context.Context, cfg *loader.Config, path string) (*Result, error) {
	res := &Result{
		RunID:     uuid.NewString(),
		Input:     path,
		StartedAt: time.Now(),
	}

	ctx = logging.ContextWithRunID(ctx, res.RunID)
	ctx = logging.ContextWithInput(ctx, path)
	log := logging.WithContext(ctx)

	p := parser.New(path, parser.Options{
		Record:       record.Options{MaxConsumption: cfg.Parse.MaxConsumption},
		Verbose:      cfg.Parse.Verbose,
		MaxLineBytes: cfg.Parse.MaxLineBytes,
		Logger:       log.With("component", "parser"),
	})
	defer p.Close()

	agg := stats.New(stats.Options{
		Percentiles: cfg.Percentiles.Enabled,
		Accuracy:    cfg.Percentiles.Accuracy,
		Quantiles:   cfg.Percentiles.Quantiles,
		Logger:      log.With("component", "stats"),
	})
	if err := agg.Collect(p); err != nil {
		return nil, err
	}

	res.Summary = agg.Summary()
	res.ParseStats = p.Stats()
	res.FinishedAt = time.Now()
	if err := p.Err(); errors.IsSource(err) {
		res.SourceErr = err
		log.Warn("input incomplete, statistics cover the lines read before the failure",
			"lines", res.ParseStats.LinesRead)
	}

	log.Info("collection complete",
		"lines", res.ParseStats.LinesRead,
		"accepted", res.ParseStats.RecordsAccepted,
		"rejected", res.ParseStats.RecordsRejected,
		"unique_customers", res.Summary.UniqueCustomers,
		"duration", res.FinishedAt.Sub(res.StartedAt))

	if err := writeOutputs(ctx, cfg, res); err != nil {
		return res, err
	}
	return res, nil
}

func writeOutputs(ctx context.Context, cfg *loader.Config, res *Result) error {
	log := logging.WithContext(ctx)
	g, ctx := errgroup.WithContext(ctx)

	if cfg.Export.Parquet.Enabled {
		g.Go(func() error {
			out, err := export.WriteSummary(res.RunID, res.Summary, cfg.ParquetOptions())
			if err != nil {
				return err
			}
			res.Parquet = out
			log.Info("parquet export written", "dir", cfg.Export.Parquet.Dir,
				"monthly_rows", out.MonthlyRows, "histogram_rows", out.HistogramRows)
			return nil
		})
	}

	if cfg.Export.Stream.Path != "" {
		g.Go(func() error {
			if err := wire.AppendFile(cfg.Export.Stream.Path, res.RunID, res.Summary); err != nil {
				return errors.Wrap(err, "summary stream")
			}
			log.Info("summary appended", "path", cfg.Export.Stream.Path)
			return nil
		})
	}

	if cfg.History.Enabled {
		g.Go(func() error {
			return saveHistory(ctx, cfg, res)
		})
	}

	return g.Wait()
}

func saveHistory(ctx context.Context, cfg *loader.Config, res *Result) error {
	hcfg := history.DefaultConfig()
	hcfg.DSN = cfg.History.Path

	store, err := history.Open(hcfg)
	if err != nil {
		return errors.Wrap(err, "open history")
	}
	defer store.Close()

	run := &history.Run{
		ID:              res.RunID,
		Input:           res.Input,
		StartedAt:       res.StartedAt,
		FinishedAt:      res.FinishedAt,
		LinesRead:       res.ParseStats.LinesRead,
		RecordsAccepted: res.ParseStats.RecordsAccepted,
		RecordsRejected: res.ParseStats.RecordsRejected,
		Summary:         res.Summary,
	}
	if res.SourceErr != nil {
		run.SourceError = res.SourceErr.Error()
	}

	if err := store.SaveRun(ctx, run); err != nil {
		return errors.Wrap(err, "save history")
	}
	logging.WithContext(ctx).Info("run saved to history", "path", cfg.History.Path)
	return nil
}
