// billstats aggregates a gzip-compressed utility billing export and prints
// customer segmentation, reading-count histograms and monthly consumption.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/xtxerr/billstats/internal/errors"
	"github.com/xtxerr/billstats/internal/loader"
	"github.com/xtxerr/billstats/internal/logging"
	"github.com/xtxerr/billstats/internal/pipeline"
	"github.com/xtxerr/billstats/internal/report"
)

// Version is set at build time via ldflags
var Version = "dev"

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "usage: billstats [-p] [options] <file.gz>\n")
	fmt.Fprintf(out, "       billstats [-db file] -runs | -show <run> | -trend <service:month> | -import <dir>\n\n")
	flag.PrintDefaults()
}

func main() {
	// CLI flags
	verbose := flag.Bool("p", false, "report every rejected line")
	cfgPath := flag.String("config", "billstats.yaml", "config file path")
	format := flag.String("format", "", "report format: text or table (overrides config)")
	parquetDir := flag.String("parquet", "", "write Parquet export to this directory")
	dbPath := flag.String("db", "", "DuckDB history file; runs are recorded in it and queries read it")
	stream := flag.String("stream", "", "append the summary to this protobuf stream file")
	version := flag.Bool("version", false, "print version and exit")

	var query historyQuery
	flag.BoolVar(&query.runs, "runs", false, "list runs stored in the history database")
	flag.StringVar(&query.show, "show", "", "print the report of a stored run")
	flag.StringVar(&query.trend, "trend", "", "average of one month across runs, as service:month (electricity:1)")
	flag.StringVar(&query.importDir, "import", "", "load a Parquet export directory into the history database")

	flag.Usage = usage
	flag.Parse()

	if *version {
		fmt.Println("billstats", Version)
		return
	}
	if query.active() {
		if flag.NArg() != 0 || query.count() != 1 {
			usage()
			os.Exit(2)
		}
	} else if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}

	// Load config
	cfg, err := loader.Load(*cfgPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "billstats: %v\n", err)
			os.Exit(1)
		}
		cfg = loader.DefaultConfig()
	}

	// CLI overrides
	if *verbose {
		cfg.Parse.Verbose = true
	}
	if *format != "" {
		cfg.Report.Format = *format
	}
	if *parquetDir != "" {
		cfg.Export.Parquet.Enabled = true
		cfg.Export.Parquet.Dir = *parquetDir
	}
	if *dbPath != "" {
		cfg.History.Enabled = true
		cfg.History.Path = *dbPath
	}
	if *stream != "" {
		cfg.Export.Stream.Path = *stream
	}

	if err := loader.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "billstats: invalid configuration: %v\n", err)
		os.Exit(1)
	}
	reportFormat, _ := report.ParseFormat(cfg.Report.Format)

	logging.Init(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.JSON)
	log := logging.Component("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if query.active() {
		if err := runHistoryQuery(ctx, cfg.History.Path, reportFormat, query, os.Stdout); err != nil {
			log.Error("history query failed", "error", err)
			os.Exit(1)
		}
		return
	}

	res, runErr := pipeline.Run(ctx, cfg, flag.Arg(0))
	if res != nil {
		if err := report.Write(os.Stdout, res.Summary, reportFormat); err != nil {
			log.Error("write report", "error", err)
			os.Exit(1)
		}
	}
	if runErr != nil {
		log.Error("run failed", "error", runErr)
		os.Exit(1)
	}
}
