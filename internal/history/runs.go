package history

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xtxerr/billstats/internal/errors"
	"github.com/xtxerr/billstats/internal/export"
	"github.com/xtxerr/billstats/internal/record"
	"github.com/xtxerr/billstats/internal/stats"
)

// Run is one completed aggregation.
type Run struct {
	ID              string
	Input           string
	StartedAt       time.Time
	FinishedAt      time.Time
	LinesRead       int64
	RecordsAccepted int64
	RecordsRejected int64
	SourceError     string
	Summary         *stats.Summary
}

// RunInfo is the stored header of a run, without histograms or months.
type RunInfo struct {
	ID              string
	Input           string
	StartedAt       time.Time
	FinishedAt      time.Time
	LinesRead       int64
	RecordsAccepted int64
	RecordsRejected int64
	SourceError     string
	UniqueCustomers int64
	ElectricityOnly int64
	GasOnly         int64
	BothServices    int64
}

// TrendPoint is the average consumption of one month in one run.
type TrendPoint struct {
	RunID     string
	StartedAt time.Time
	Count     int64
	Average   float64
}

// Service names as stored in the service columns.
var (
	serviceElectricity = record.ServiceElectricity.String()
	serviceGas         = record.ServiceGas.String()
)

// ParseTrendKey parses "service:month" with a 1-based month, as in
// "electricity:3" for March. It returns the zero-based month.
func ParseTrendKey(key string) (service string, month int, err error) {
	service, m, found := strings.Cut(key, ":")
	if !found {
		return "", 0, errors.NewInvalidValue("trend", key, "expected service:month")
	}
	if service != serviceElectricity && service != serviceGas {
		return "", 0, errors.NewInvalidValue("trend service", service, "must be electricity or gas")
	}
	n, err := strconv.Atoi(m)
	if err != nil || n < 1 || n > 12 {
		return "", 0, errors.NewInvalidValue("trend month", m, "must be 1-12")
	}
	return service, n - 1, nil
}

// SaveRun stores a run and its statistics in one transaction.
func (s *Store) SaveRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		return errors.NewMissingField("run.id")
	}
	sum := run.Summary
	if sum == nil {
		sum = &stats.Summary{}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.TransactionContext(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO runs (run_id, input, started_at, finished_at, lines_read,
			                  records_accepted, records_rejected, source_error,
			                  unique_customers, electricity_only, gas_only, both_services)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, run.ID, run.Input, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.LinesRead,
			run.RecordsAccepted, run.RecordsRejected, nullString(run.SourceError),
			sum.UniqueCustomers, sum.ElectricityOnly, sum.GasOnly, sum.BothServices)
		if err != nil {
			return fmt.Errorf("insert run: %v: %w", err, errors.ErrDatabase)
		}

		if err := insertHistogram(ctx, tx, run.ID, serviceElectricity, sum.ElectricityHistogram); err != nil {
			return err
		}
		if err := insertHistogram(ctx, tx, run.ID, serviceGas, sum.GasHistogram); err != nil {
			return err
		}
		if err := insertMonthly(ctx, tx, run.ID, serviceElectricity, sum.ElectricityMonthly); err != nil {
			return err
		}
		return insertMonthly(ctx, tx, run.ID, serviceGas, sum.GasMonthly)
	})
}

func insertHistogram(ctx context.Context, tx *sql.Tx, runID, service string, h []stats.HistogramBucket) error {
	if len(h) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO histogram (run_id, service, readings, customers) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare histogram: %v: %w", err, errors.ErrDatabase)
	}
	defer stmt.Close()

	for _, b := range h {
		if _, err := stmt.ExecContext(ctx, runID, service, b.Readings, b.Customers); err != nil {
			return fmt.Errorf("insert histogram: %v: %w", err, errors.ErrDatabase)
		}
	}
	return nil
}

func insertMonthly(ctx context.Context, tx *sql.Tx, runID, service string, monthly []stats.MonthlyStat) error {
	if len(monthly) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO monthly (run_id, service, month, count, total, avg, min, max, p50, p90, p99)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare monthly: %v: %w", err, errors.ErrDatabase)
	}
	defer stmt.Close()

	for _, m := range monthly {
		p50, p90, p99 := percentileColumns(m.Percentiles)
		if _, err := stmt.ExecContext(ctx, runID, service, m.Month, m.Count, m.Total,
			m.Average, m.Min, m.Max, p50, p90, p99); err != nil {
			return fmt.Errorf("insert monthly: %v: %w", err, errors.ErrDatabase)
		}
	}
	return nil
}

func percentileColumns(ps []stats.Percentile) (p50, p90, p99 sql.NullFloat64) {
	for _, p := range ps {
		switch p.Quantile {
		case 0.50:
			p50 = sql.NullFloat64{Float64: p.Value, Valid: true}
		case 0.90:
			p90 = sql.NullFloat64{Float64: p.Value, Valid: true}
		case 0.99:
			p99 = sql.NullFloat64{Float64: p.Value, Valid: true}
		}
	}
	return p50, p90, p99
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Runs returns the most recent runs, newest first. limit <= 0 returns all.
func (s *Store) Runs(ctx context.Context, limit int) ([]RunInfo, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, run_id`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %v: %w", err, errors.ErrDatabase)
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		r, err := scanRunInfo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

const runColumns = `run_id, input, started_at, finished_at, lines_read, records_accepted,
	records_rejected, source_error, unique_customers, electricity_only,
	gas_only, both_services`

func scanRunInfo(row interface{ Scan(...any) error }) (*RunInfo, error) {
	var (
		r      RunInfo
		srcErr sql.NullString
	)
	if err := row.Scan(&r.ID, &r.Input, &r.StartedAt, &r.FinishedAt, &r.LinesRead,
		&r.RecordsAccepted, &r.RecordsRejected, &srcErr, &r.UniqueCustomers,
		&r.ElectricityOnly, &r.GasOnly, &r.BothServices); err != nil {
		return nil, err
	}
	r.SourceError = srcErr.String
	return &r, nil
}

// Run returns the stored header of one run.
func (s *Store) Run(ctx context.Context, runID string) (*RunInfo, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	r, err := scanRunInfo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound("run", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %v: %w", err, errors.ErrDatabase)
	}
	return r, nil
}

// LoadSummary rebuilds the summary of a stored run.
func (s *Store) LoadSummary(ctx context.Context, runID string) (*RunInfo, *stats.Summary, error) {
	info, err := s.Run(ctx, runID)
	if err != nil {
		return nil, nil, err
	}

	sum := &stats.Summary{
		UniqueCustomers:  int(info.UniqueCustomers),
		ElectricityOnly:  int(info.ElectricityOnly),
		GasOnly:          int(info.GasOnly),
		BothServices:     int(info.BothServices),
		RecordsCollected: info.RecordsAccepted,
	}
	if sum.ElectricityHistogram, err = s.Histogram(ctx, runID, serviceElectricity); err != nil {
		return nil, nil, err
	}
	if sum.GasHistogram, err = s.Histogram(ctx, runID, serviceGas); err != nil {
		return nil, nil, err
	}
	if sum.ElectricityMonthly, err = s.Monthly(ctx, runID, serviceElectricity); err != nil {
		return nil, nil, err
	}
	if sum.GasMonthly, err = s.Monthly(ctx, runID, serviceGas); err != nil {
		return nil, nil, err
	}
	return info, sum, nil
}

// Monthly returns the stored monthly stats of one run and service, ascending.
func (s *Store) Monthly(ctx context.Context, runID, service string) ([]stats.MonthlyStat, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT month, count, total, avg, min, max, p50, p90, p99
		FROM monthly
		WHERE run_id = ? AND service = ?
		ORDER BY month
	`, runID, service)
	if err != nil {
		return nil, fmt.Errorf("query monthly: %v: %w", err, errors.ErrDatabase)
	}
	defer rows.Close()

	var out []stats.MonthlyStat
	for rows.Next() {
		var (
			m             stats.MonthlyStat
			p50, p90, p99 sql.NullFloat64
		)
		if err := rows.Scan(&m.Month, &m.Count, &m.Total, &m.Average, &m.Min, &m.Max, &p50, &p90, &p99); err != nil {
			return nil, fmt.Errorf("scan monthly: %v: %w", err, errors.ErrDatabase)
		}
		for _, p := range []struct {
			q float64
			v sql.NullFloat64
		}{{0.50, p50}, {0.90, p90}, {0.99, p99}} {
			if p.v.Valid {
				m.Percentiles = append(m.Percentiles, stats.Percentile{Quantile: p.q, Value: p.v.Float64})
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Histogram returns the stored histogram of one run and service, ascending.
func (s *Store) Histogram(ctx context.Context, runID, service string) ([]stats.HistogramBucket, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT readings, customers FROM histogram
		WHERE run_id = ? AND service = ?
		ORDER BY readings
	`, runID, service)
	if err != nil {
		return nil, fmt.Errorf("query histogram: %v: %w", err, errors.ErrDatabase)
	}
	defer rows.Close()

	var out []stats.HistogramBucket
	for rows.Next() {
		var b stats.HistogramBucket
		if err := rows.Scan(&b.Readings, &b.Customers); err != nil {
			return nil, fmt.Errorf("scan histogram: %v: %w", err, errors.ErrDatabase)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// MonthlyTrend returns the average consumption of a service in one calendar
// month across all runs, oldest first. Rows imported from Parquet without a
// stored run header have a zero StartedAt and sort first.
func (s *Store) MonthlyTrend(ctx context.Context, service string, month int) ([]TrendPoint, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.run_id, r.started_at, m.count, m.avg
		FROM monthly m
		LEFT JOIN runs r ON r.run_id = m.run_id
		WHERE m.service = ? AND m.month = ?
		ORDER BY r.started_at NULLS FIRST, m.run_id
	`, service, month)
	if err != nil {
		return nil, fmt.Errorf("query trend: %v: %w", err, errors.ErrDatabase)
	}
	defer rows.Close()

	var out []TrendPoint
	for rows.Next() {
		var (
			p       TrendPoint
			started sql.NullTime
		)
		if err := rows.Scan(&p.RunID, &started, &p.Count, &p.Average); err != nil {
			return nil, fmt.Errorf("scan trend: %v: %w", err, errors.ErrDatabase)
		}
		p.StartedAt = started.Time
		out = append(out, p)
	}
	return out, rows.Err()
}

// ImportMonthlyParquet loads a monthly Parquet export into the monthly table,
// replacing rows with the same run, service and month. It returns the number
// of rows loaded.
func (s *Store) ImportMonthlyParquet(ctx context.Context, path string) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO monthly (run_id, service, month, count, total, avg, min, max, p50, p90, p99)
		SELECT run_id, service, month, count, total, avg, min, max, p50, p90, p99
		FROM read_parquet(`+quoteLiteral(path)+`)
	`)
	if err != nil {
		return 0, fmt.Errorf("import %s: %v: %w", path, err, errors.ErrDatabase)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ImportHistogramParquet loads a histogram Parquet export into the histogram
// table, replacing rows with the same run, service and reading count.
func (s *Store) ImportHistogramParquet(ctx context.Context, path string) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO histogram (run_id, service, readings, customers)
		SELECT run_id, service, readings, customers
		FROM read_parquet(`+quoteLiteral(path)+`)
	`)
	if err != nil {
		return 0, fmt.Errorf("import %s: %v: %w", path, err, errors.ErrDatabase)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ImportExport loads both files of a Parquet export directory.
func (s *Store) ImportExport(ctx context.Context, dir string) (monthly, histogram int64, err error) {
	if monthly, err = s.ImportMonthlyParquet(ctx, filepath.Join(dir, export.MonthlyFile)); err != nil {
		return 0, 0, err
	}
	if histogram, err = s.ImportHistogramParquet(ctx, filepath.Join(dir, export.HistogramFile)); err != nil {
		return monthly, 0, err
	}
	return monthly, histogram, nil
}
