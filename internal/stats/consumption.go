package stats

import (
	"math"
	"slices"

	"github.com/DataDog/sketches-go/ddsketch"
)

// Accumulator is a running (count, total) pair for one service and month.
// It is a value type: Add returns the updated copy.
type Accumulator struct {
	Count int64
	Total float64
	Min   float64
	Max   float64
}

// Add returns a with v folded in.
func (a Accumulator) Add(v float64) Accumulator {
	if a.Count == 0 {
		a.Min, a.Max = v, v
	} else {
		a.Min = math.Min(a.Min, v)
		a.Max = math.Max(a.Max, v)
	}
	a.Count++
	a.Total += v
	return a
}

// Average returns Total / Count. ok is false when nothing was added.
func (a Accumulator) Average() (avg float64, ok bool) {
	if a.Count == 0 {
		return 0, false
	}
	return a.Total / float64(a.Count), true
}

// monthlyConsumption keeps per-month accumulators for one service and,
// optionally, a DDSketch per month for percentiles.
type monthlyConsumption struct {
	months   map[int]Accumulator
	sketches map[int]*ddsketch.DDSketch
	accuracy float64

	// dropped counts values the sketch could not index. They still count
	// toward the accumulators.
	dropped int64
}

func newMonthlyConsumption(percentiles bool, accuracy float64) *monthlyConsumption {
	m := &monthlyConsumption{
		months:   make(map[int]Accumulator),
		accuracy: accuracy,
	}
	if percentiles {
		m.sketches = make(map[int]*ddsketch.DDSketch)
	}
	return m
}

func (m *monthlyConsumption) add(month int, v float64) {
	m.months[month] = m.months[month].Add(v)

	if m.sketches == nil {
		return
	}
	sketch, ok := m.sketches[month]
	if !ok {
		var err error
		sketch, err = ddsketch.NewDefaultDDSketch(m.accuracy)
		if err != nil {
			// Invalid accuracy; percentiles stay off for this month.
			return
		}
		m.sketches[month] = sketch
	}
	if err := sketch.Add(v); err != nil {
		m.dropped++
	}
}

// result returns the monthly stats in ascending month order.
func (m *monthlyConsumption) result(quantiles []float64) []MonthlyStat {
	keys := make([]int, 0, len(m.months))
	for k := range m.months {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]MonthlyStat, 0, len(keys))
	for _, month := range keys {
		acc := m.months[month]
		avg, ok := acc.Average()
		if !ok {
			continue
		}
		stat := MonthlyStat{
			Month:   month,
			Count:   acc.Count,
			Total:   acc.Total,
			Average: avg,
			Min:     acc.Min,
			Max:     acc.Max,
		}
		if sketch := m.sketches[month]; sketch != nil && len(quantiles) > 0 {
			stat.Percentiles = make([]Percentile, 0, len(quantiles))
			for _, q := range quantiles {
				v, err := sketch.GetValueAtQuantile(q)
				if err != nil {
					continue
				}
				stat.Percentiles = append(stat.Percentiles, Percentile{Quantile: q, Value: v})
			}
		}
		out = append(out, stat)
	}
	return out
}
