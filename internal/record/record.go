// Package record converts pipe-delimited billing lines into typed records.
//
// A line has 11 fields, or 12 when a trailing exception code is present:
//
//	CustID|ElecOrGas|Disconnect|MoveIn|MoveOut|BillYear|BillMonth|SpanDays|ReadDate|ReadType|Consumption[|Exception]
//
// Dates are YYYYMMDD. Any field that fails to convert rejects the whole line.
package record

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xtxerr/billstats/config"
	"github.com/xtxerr/billstats/internal/errors"
)

// Delimiter separates fields on a line.
const Delimiter = "|"

// DateLayout is the on-disk date format.
const DateLayout = "20060102"

const (
	fieldCountBase      = 11
	fieldCountException = 12
)

// ServiceType is the utility service a record belongs to.
type ServiceType int32

const (
	ServiceElectricity ServiceType = 1
	ServiceGas         ServiceType = 2
)

// String returns a human-readable representation of the ServiceType.
func (s ServiceType) String() string {
	switch s {
	case ServiceElectricity:
		return "electricity"
	case ServiceGas:
		return "gas"
	default:
		return "unknown"
	}
}

// Known reports whether s is electricity or gas.
func (s ServiceType) Known() bool {
	return s == ServiceElectricity || s == ServiceGas
}

// Record is one billing / meter-read event.
type Record struct {
	CustomerID    int32
	Service       ServiceType
	Disconnect    bool
	MoveInDate    time.Time
	MoveOutDate   time.Time
	BillYear      int32
	BillMonth     int32
	SpanDays      int32
	MeterReadDate time.Time
	MeterReadType string
	Consumption   float64

	// ExceptionCode is set only when the line carries a 12th field.
	ExceptionCode    string
	HasExceptionCode bool
}

// ReadMonth returns the zero-based calendar month of the meter read.
func (r *Record) ReadMonth() int {
	return int(r.MeterReadDate.Month()) - 1
}

// Options controls line validation.
type Options struct {
	// MaxConsumption is the inclusive upper bound for Consumption.
	MaxConsumption float64
}

// DefaultOptions returns the default parse options.
func DefaultOptions() Options {
	return Options{
		MaxConsumption: config.DefaultMaxConsumption,
	}
}

// FieldError describes the field that rejected a line.
type FieldError struct {
	Field string // human-readable field name
	Kind  string // expected type: int, date, double
	Value string // raw text
	Err   error  // sentinel from the errors package
}

func (e *FieldError) Error() string {
	if errors.Is(e.Err, errors.ErrOutOfRange) {
		return fmt.Sprintf("out of range - [%s] for [%s]", e.Value, e.Field)
	}
	return fmt.Sprintf("%s - [%s] for [%s]", e.Kind, e.Value, e.Field)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Field names used in FieldError.
const (
	FieldCustomerID    = "CustID"
	FieldService       = "ElecOrGas"
	FieldMoveInDate    = "Move In Date"
	FieldMoveOutDate   = "Move Out Date"
	FieldBillYear      = "Bill Year"
	FieldBillMonth     = "Bill Month"
	FieldSpanDays      = "Span Days"
	FieldMeterReadDate = "Meter Read Date"
	FieldConsumption   = "Consumption"
)

// SplitFields splits a line on the delimiter and drops trailing empty fields,
// so "a|b|" yields two fields.
func SplitFields(line string) []string {
	parts := strings.Split(line, Delimiter)
	n := len(parts)
	for n > 0 && parts[n-1] == "" {
		n--
	}
	return parts[:n]
}

// Parse converts one line into a Record.
// The returned error is an *FieldError or wraps errors.ErrFieldCount.
func Parse(line string, opts Options) (Record, error) {
	parts := SplitFields(line)
	if len(parts) != fieldCountBase && len(parts) != fieldCountException {
		return Record{}, fmt.Errorf("%d fields: %w", len(parts), errors.ErrFieldCount)
	}

	var (
		r   Record
		err error
	)

	if r.CustomerID, err = parseInt(parts[0], FieldCustomerID); err != nil {
		return Record{}, err
	}
	service, err := parseInt(parts[1], FieldService)
	if err != nil {
		return Record{}, err
	}
	r.Service = ServiceType(service)

	r.Disconnect = strings.EqualFold(parts[2], "Y")

	if r.MoveInDate, err = parseDate(parts[3], FieldMoveInDate); err != nil {
		return Record{}, err
	}
	if r.MoveOutDate, err = parseDate(parts[4], FieldMoveOutDate); err != nil {
		return Record{}, err
	}
	if r.BillYear, err = parseInt(parts[5], FieldBillYear); err != nil {
		return Record{}, err
	}
	if r.BillMonth, err = parseInt(parts[6], FieldBillMonth); err != nil {
		return Record{}, err
	}
	if r.SpanDays, err = parseInt(parts[7], FieldSpanDays); err != nil {
		return Record{}, err
	}
	if r.MeterReadDate, err = parseDate(parts[8], FieldMeterReadDate); err != nil {
		return Record{}, err
	}

	r.MeterReadType = parts[9]

	if r.Consumption, err = parseConsumption(parts[10], opts.MaxConsumption); err != nil {
		return Record{}, err
	}

	if len(parts) == fieldCountException {
		r.ExceptionCode = parts[11]
		r.HasExceptionCode = true
	}

	return r, nil
}

func parseInt(s, field string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, &FieldError{Field: field, Kind: "int", Value: s, Err: errors.ErrInvalidInteger}
	}
	return int32(v), nil
}

func parseDate(s, field string) (time.Time, error) {
	if len(s) != len(DateLayout) {
		return time.Time{}, &FieldError{Field: field, Kind: "date", Value: s, Err: errors.ErrInvalidDate}
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, &FieldError{Field: field, Kind: "date", Value: s, Err: errors.ErrInvalidDate}
	}
	return t, nil
}

func parseConsumption(s string, max float64) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &FieldError{Field: FieldConsumption, Kind: "double", Value: s, Err: errors.ErrInvalidNumber}
	}
	if v > max {
		return 0, &FieldError{Field: FieldConsumption, Kind: "double", Value: s, Err: errors.ErrOutOfRange}
	}
	return v, nil
}
