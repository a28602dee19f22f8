package record

import (
	"strings"
	"testing"
	"time"

	"github.com/xtxerr/billstats/internal/errors"
)

const validLine = "100|1|N|20220101|20231231|2023|1|31|20230115|A|300"

func TestParse_Valid(t *testing.T) {
	r, err := Parse(validLine, DefaultOptions())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if r.CustomerID != 100 {
		t.Errorf("expected customer 100, got %d", r.CustomerID)
	}
	if r.Service != ServiceElectricity {
		t.Errorf("expected electricity, got %v", r.Service)
	}
	if r.Disconnect {
		t.Error("expected disconnect=false")
	}
	if !r.MoveInDate.Equal(time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected move in date %v", r.MoveInDate)
	}
	if r.BillYear != 2023 || r.BillMonth != 1 || r.SpanDays != 31 {
		t.Errorf("unexpected bill fields %d/%d/%d", r.BillYear, r.BillMonth, r.SpanDays)
	}
	if r.MeterReadType != "A" {
		t.Errorf("expected read type A, got %q", r.MeterReadType)
	}
	if r.Consumption != 300 {
		t.Errorf("expected consumption 300, got %f", r.Consumption)
	}
	if r.HasExceptionCode {
		t.Error("11-field line should not carry an exception code")
	}

	if month := r.ReadMonth(); month != 0 {
		t.Errorf("expected read month 0, got %d", month)
	}
}

func TestParse_EarliestReadDate(t *testing.T) {
	r, err := Parse("100|1|N|20220101|20231231|2023|1|31|00010101|A|300", DefaultOptions())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if month := r.ReadMonth(); month != 0 {
		t.Errorf("expected read month 0 for 00010101, got %d", month)
	}
}

func TestParse_ExceptionCode(t *testing.T) {
	r, err := Parse(validLine+"|EX1", DefaultOptions())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !r.HasExceptionCode || r.ExceptionCode != "EX1" {
		t.Errorf("expected exception code EX1, got %q (present=%v)", r.ExceptionCode, r.HasExceptionCode)
	}
}

func TestParse_FieldCount(t *testing.T) {
	fields := strings.Split(validLine, "|")

	tests := []struct {
		name  string
		line  string
		valid bool
	}{
		{"10 fields", strings.Join(fields[:10], "|"), false},
		{"11 fields", validLine, true},
		{"12 fields", validLine + "|X", true},
		{"13 fields", validLine + "|X|Y", false},
		{"trailing delimiter", validLine + "|", true},
		{"empty line", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.line, DefaultOptions())
			if tt.valid && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.valid {
				if err == nil {
					t.Fatal("expected error")
				}
				if !errors.Is(err, errors.ErrFieldCount) {
					t.Errorf("expected ErrFieldCount, got %v", err)
				}
			}
		})
	}
}

func TestParse_Disconnect(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"Y", true},
		{"y", true},
		{"N", false},
		{"", false},
		{"Yes", false},
		{"1", false},
	}

	for _, tt := range tests {
		line := "100|1|" + tt.value + "|20220101|20231231|2023|1|31|20230115|A|300"
		r, err := Parse(line, DefaultOptions())
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", tt.value, err)
		}
		if r.Disconnect != tt.want {
			t.Errorf("disconnect %q: expected %v, got %v", tt.value, tt.want, r.Disconnect)
		}
	}
}

func TestParse_ConsumptionBound(t *testing.T) {
	tests := []struct {
		value string
		err   error
	}{
		{"200000.0", nil},
		{"200000", nil},
		{"0", nil},
		{"200000.01", errors.ErrOutOfRange},
		{"1e9", errors.ErrOutOfRange},
		{"abc", errors.ErrInvalidNumber},
		{"NaN", errors.ErrInvalidNumber},
		{"-inf", errors.ErrInvalidNumber},
		{"-Infinity", errors.ErrInvalidNumber},
		{"+Inf", errors.ErrInvalidNumber},
		{"-5", nil},
		{" 300", nil},
		{"300\t", nil},
	}

	for _, tt := range tests {
		line := "100|1|N|20220101|20231231|2023|1|31|20230115|A|" + tt.value
		_, err := Parse(line, DefaultOptions())
		if tt.err == nil && err != nil {
			t.Errorf("consumption %s: unexpected error %v", tt.value, err)
		}
		if tt.err != nil && !errors.Is(err, tt.err) {
			t.Errorf("consumption %s: expected %v, got %v", tt.value, tt.err, err)
		}
	}
}

func TestParse_CustomThreshold(t *testing.T) {
	opts := Options{MaxConsumption: 100}
	if _, err := Parse(validLine, opts); !errors.Is(err, errors.ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange with threshold 100, got %v", err)
	}
}

func TestParse_FieldErrors(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		field string
		msg   string
	}{
		{
			name:  "customer id",
			line:  "abc|1|N|20220101|20231231|2023|1|31|20230115|A|300",
			field: FieldCustomerID,
			msg:   "int - [abc] for [CustID]",
		},
		{
			name:  "service",
			line:  "100|x|N|20220101|20231231|2023|1|31|20230115|A|300",
			field: FieldService,
		},
		{
			name:  "move in date",
			line:  "100|1|N|2022-01-01|20231231|2023|1|31|20230115|A|300",
			field: FieldMoveInDate,
			msg:   "date - [2022-01-01] for [Move In Date]",
		},
		{
			name:  "impossible date",
			line:  "100|1|N|20220101|20231332|2023|1|31|20230115|A|300",
			field: FieldMoveOutDate,
		},
		{
			name:  "span days",
			line:  "100|1|N|20220101|20231231|2023|1|3.5|20230115|A|300",
			field: FieldSpanDays,
		},
		{
			name:  "read date",
			line:  "100|1|N|20220101|20231231|2023|1|31||A|300",
			field: FieldMeterReadDate,
		},
		{
			name:  "consumption range",
			line:  "100|1|N|20220101|20231231|2023|1|31|20230115|A|250000",
			field: FieldConsumption,
			msg:   "out of range - [250000] for [Consumption]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.line, DefaultOptions())
			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("expected *FieldError, got %v", err)
			}
			if fe.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, fe.Field)
			}
			if tt.msg != "" && fe.Error() != tt.msg {
				t.Errorf("expected message %q, got %q", tt.msg, fe.Error())
			}
			if !errors.IsParse(err) {
				t.Errorf("expected parse category for %v", err)
			}
		})
	}
}

func TestParse_UnknownService(t *testing.T) {
	r, err := Parse("100|7|N|20220101|20231231|2023|1|31|20230115|A|300", DefaultOptions())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if r.Service.Known() {
		t.Errorf("service 7 should not be known")
	}
	if r.Service.String() != "unknown" {
		t.Errorf("expected unknown, got %s", r.Service)
	}
}

func TestSplitFields(t *testing.T) {
	got := SplitFields("a||b||")
	if len(got) != 3 || got[1] != "" || got[2] != "b" {
		t.Errorf("unexpected split %q", got)
	}
	if len(SplitFields("")) != 0 {
		t.Error("empty line should yield no fields")
	}
}
