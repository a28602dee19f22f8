package stats

// HistogramBucket is one row of a reading-count histogram: Customers
// customers had exactly Readings valid readings.
type HistogramBucket struct {
	Readings  int
	Customers int
}

// Percentile is a consumption quantile estimate.
type Percentile struct {
	Quantile float64
	Value    float64
}

// MonthlyStat is the consumption for one service in one calendar month.
type MonthlyStat struct {
	Month   int // 0 = January .. 11 = December
	Count   int64
	Total   float64
	Average float64
	Min     float64
	Max     float64

	// Percentiles is nil unless percentile tracking is enabled.
	Percentiles []Percentile
}

// Summary is an immutable snapshot of finalized statistics.
type Summary struct {
	UniqueCustomers      int
	ElectricityOnly      int
	GasOnly              int
	BothServices         int
	ElectricityHistogram []HistogramBucket
	GasHistogram         []HistogramBucket
	ElectricityMonthly   []MonthlyStat
	GasMonthly           []MonthlyStat

	// RecordsCollected counts records folded in, including unknown services.
	RecordsCollected int64
}

// HistogramTotal returns the sum of customer counts in h.
func HistogramTotal(h []HistogramBucket) int {
	total := 0
	for _, b := range h {
		total += b.Customers
	}
	return total
}
