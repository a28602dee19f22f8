// Package stats folds billing records into customer segmentation, reading
// count histograms and monthly consumption.
//
// An Aggregator is used once: Collect drains a Source, then finalizes. The
// accessors read the finalized state; before Collect they return empty
// results.
package stats

import (
	"log/slog"
	"slices"

	"github.com/xtxerr/billstats/config"
	"github.com/xtxerr/billstats/internal/errors"
	"github.com/xtxerr/billstats/internal/logging"
	"github.com/xtxerr/billstats/internal/record"
)

// Source is a pull-based record sequence. Call HasNext once before each Next.
// Next returns an error for a record that should be skipped. Parse errors are
// skipped silently; any other error is logged before skipping.
type Source interface {
	HasNext() bool
	Next() (record.Record, error)
}

// Options configures an Aggregator.
type Options struct {
	// Percentiles enables per-month DDSketch consumption percentiles.
	Percentiles bool

	// Accuracy is the DDSketch relative accuracy (0.01 = 1% error).
	Accuracy float64

	// Quantiles are reported when Percentiles is on.
	Quantiles []float64

	// Logger defaults to the "stats" component logger.
	Logger *slog.Logger
}

// DefaultOptions returns default options with percentiles disabled.
func DefaultOptions() Options {
	return Options{
		Accuracy:  config.DefaultPercentileAccuracy,
		Quantiles: slices.Clone(config.DefaultQuantiles),
	}
}

type customerSet map[int32]struct{}

func (s customerSet) add(id int32) { s[id] = struct{}{} }

// serviceStats is the per-service state built during collection.
type serviceStats struct {
	customers   customerSet
	readings    map[int32]int // customer -> valid readings
	consumption *monthlyConsumption
	histogram   []HistogramBucket // built at finalization
}

func newServiceStats(opts Options) *serviceStats {
	return &serviceStats{
		customers:   make(customerSet),
		readings:    make(map[int32]int),
		consumption: newMonthlyConsumption(opts.Percentiles, opts.Accuracy),
	}
}

func (s *serviceStats) add(r *record.Record) {
	s.customers.add(r.CustomerID)
	s.readings[r.CustomerID]++
	s.consumption.add(r.ReadMonth(), r.Consumption)
}

// buildHistogram groups customers by reading count, ascending.
func (s *serviceStats) buildHistogram() {
	counts := make(map[int]int)
	for _, n := range s.readings {
		counts[n]++
	}
	keys := make([]int, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	s.histogram = make([]HistogramBucket, 0, len(keys))
	for _, k := range keys {
		s.histogram = append(s.histogram, HistogramBucket{Readings: k, Customers: counts[k]})
	}
}

// Aggregator builds summary statistics from a single pass over a Source.
//
// Aggregator is not safe for concurrent use; the accessors may be called from
// any goroutine once Collect has returned.
type Aggregator struct {
	opts Options
	log  *slog.Logger

	finalized bool

	unique      customerSet
	electricity *serviceStats
	gas         *serviceStats
	both        customerSet
	records     int64
}

// New creates an empty Aggregator.
func New(opts Options) *Aggregator {
	if opts.Accuracy <= 0 {
		opts.Accuracy = config.DefaultPercentileAccuracy
	}
	log := opts.Logger
	if log == nil {
		log = logging.Component("stats")
	}
	return &Aggregator{opts: opts, log: log}
}

// Collect pulls every record from src, then finalizes: the customers seen for
// both services are split out of the electricity and gas sets, and both
// reading-count histograms are built. Records with an unrecognized service
// count toward unique customers only.
func (a *Aggregator) Collect(src Source) error {
	if a.finalized {
		return errors.ErrAlreadyCollected
	}

	a.unique = make(customerSet)
	a.electricity = newServiceStats(a.opts)
	a.gas = newServiceStats(a.opts)

	var skipped int64
	for src.HasNext() {
		r, err := src.Next()
		if err != nil {
			if !errors.IsParse(err) {
				a.log.Warn("record skipped", "error", err)
			}
			skipped++
			continue
		}
		a.records++
		a.unique.add(r.CustomerID)

		switch r.Service {
		case record.ServiceElectricity:
			a.electricity.add(&r)
		case record.ServiceGas:
			a.gas.add(&r)
		}
	}

	a.finalize()

	a.log.Debug("collection finished",
		"records", a.records,
		"skipped", skipped,
		"unique_customers", len(a.unique))
	return nil
}

func (a *Aggregator) finalize() {
	a.both = make(customerSet)
	for id := range a.electricity.customers {
		if _, ok := a.gas.customers[id]; ok {
			a.both.add(id)
		}
	}
	for id := range a.both {
		delete(a.electricity.customers, id)
		delete(a.gas.customers, id)
	}

	a.electricity.buildHistogram()
	a.gas.buildHistogram()
	a.finalized = true

	for _, s := range []struct {
		service string
		dropped int64
	}{
		{record.ServiceElectricity.String(), a.electricity.consumption.dropped},
		{record.ServiceGas.String(), a.gas.consumption.dropped},
	} {
		if s.dropped > 0 {
			a.log.Warn("consumption values left out of percentiles",
				"service", s.service, "dropped", s.dropped)
		}
	}
}

// Collected reports whether Collect has finished.
func (a *Aggregator) Collected() bool {
	return a.finalized
}

// UniqueCustomerCount returns the number of distinct customers across all
// records, including those with an unrecognized service.
func (a *Aggregator) UniqueCustomerCount() int {
	if !a.finalized {
		return 0
	}
	return len(a.unique)
}

// ElectricityOnlyCount returns customers with electricity but no gas records.
func (a *Aggregator) ElectricityOnlyCount() int {
	if !a.finalized {
		return 0
	}
	return len(a.electricity.customers)
}

// GasOnlyCount returns customers with gas but no electricity records.
func (a *Aggregator) GasOnlyCount() int {
	if !a.finalized {
		return 0
	}
	return len(a.gas.customers)
}

// BothServicesCount returns customers with both electricity and gas records.
func (a *Aggregator) BothServicesCount() int {
	if !a.finalized {
		return 0
	}
	return len(a.both)
}

// ElectricityHistogram returns reading count -> customer count, ascending.
func (a *Aggregator) ElectricityHistogram() []HistogramBucket {
	if !a.finalized {
		return nil
	}
	return slices.Clone(a.electricity.histogram)
}

// GasHistogram returns reading count -> customer count, ascending.
func (a *Aggregator) GasHistogram() []HistogramBucket {
	if !a.finalized {
		return nil
	}
	return slices.Clone(a.gas.histogram)
}

// ElectricityMonthly returns average electricity consumption per month,
// ascending. Months without readings are absent.
func (a *Aggregator) ElectricityMonthly() []MonthlyStat {
	if !a.finalized {
		return nil
	}
	return a.electricity.consumption.result(a.quantiles())
}

// GasMonthly returns average gas consumption per month, ascending. Months
// without readings are absent.
func (a *Aggregator) GasMonthly() []MonthlyStat {
	if !a.finalized {
		return nil
	}
	return a.gas.consumption.result(a.quantiles())
}

// Summary returns a snapshot of every accessor.
func (a *Aggregator) Summary() *Summary {
	return &Summary{
		UniqueCustomers:      a.UniqueCustomerCount(),
		ElectricityOnly:      a.ElectricityOnlyCount(),
		GasOnly:              a.GasOnlyCount(),
		BothServices:         a.BothServicesCount(),
		ElectricityHistogram: a.ElectricityHistogram(),
		GasHistogram:         a.GasHistogram(),
		ElectricityMonthly:   a.ElectricityMonthly(),
		GasMonthly:           a.GasMonthly(),
		RecordsCollected:     a.records,
	}
}

func (a *Aggregator) quantiles() []float64 {
	if !a.opts.Percentiles {
		return nil
	}
	return a.opts.Quantiles
}
