// Package wire streams run summaries as length-delimited protobuf messages.
//
// Each message is a google.protobuf.Struct framed with protobuf's standard
// varint length prefix, so a file can hold the summaries of many runs and be
// read back incrementally by any protobuf implementation.
package wire

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/xtxerr/billstats/config"
	"github.com/xtxerr/billstats/internal/errors"
	"github.com/xtxerr/billstats/internal/stats"
	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/known/structpb"
)

// Reader reads length-delimited summaries from an io.Reader.
// It is safe for concurrent use.
type Reader struct {
	r  *bufio.Reader
	mu sync.Mutex
}

// NewReader creates a Reader wrapping the given io.Reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Read reads the next message. It returns io.EOF at a clean end of stream.
func (r *Reader) Read() (*structpb.Struct, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := &structpb.Struct{}
	opts := protodelim.UnmarshalOptions{
		MaxSize: config.DefaultMaxMessageSize,
	}
	if err := opts.UnmarshalFrom(r.r, msg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read summary: %w", err)
	}
	return msg, nil
}

// Writer writes length-delimited summaries to an io.Writer.
// It is safe for concurrent use.
type Writer struct {
	w  io.Writer
	mu sync.Mutex
}

// NewWriter creates a Writer wrapping the given io.Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write marshals and writes a message with length prefix.
func (w *Writer) Write(msg *structpb.Struct) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := protodelim.MarshalTo(w.w, msg); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// AppendFile appends one summary message to the file at path.
func AppendFile(path, runID string, s *stats.Summary) error {
	msg, err := Encode(runID, s)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	if err := NewWriter(f).Write(msg); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Encode converts a summary into a protobuf Struct.
func Encode(runID string, s *stats.Summary) (*structpb.Struct, error) {
	m := map[string]any{
		"run_id":            runID,
		"unique_customers":  s.UniqueCustomers,
		"electricity_only":  s.ElectricityOnly,
		"gas_only":          s.GasOnly,
		"both_services":     s.BothServices,
		"records_collected": s.RecordsCollected,
		"electricity": map[string]any{
			"histogram": encodeHistogram(s.ElectricityHistogram),
			"monthly":   encodeMonthly(s.ElectricityMonthly),
		},
		"gas": map[string]any{
			"histogram": encodeHistogram(s.GasHistogram),
			"monthly":   encodeMonthly(s.GasMonthly),
		},
	}

	msg, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encode summary: %w", err)
	}
	return msg, nil
}

func encodeHistogram(h []stats.HistogramBucket) []any {
	out := make([]any, 0, len(h))
	for _, b := range h {
		out = append(out, map[string]any{
			"readings":  b.Readings,
			"customers": b.Customers,
		})
	}
	return out
}

func encodeMonthly(monthly []stats.MonthlyStat) []any {
	out := make([]any, 0, len(monthly))
	for _, m := range monthly {
		entry := map[string]any{
			"month":   m.Month,
			"count":   m.Count,
			"total":   m.Total,
			"average": m.Average,
			"min":     m.Min,
			"max":     m.Max,
		}
		if len(m.Percentiles) > 0 {
			ps := make([]any, 0, len(m.Percentiles))
			for _, p := range m.Percentiles {
				ps = append(ps, map[string]any{"quantile": p.Quantile, "value": p.Value})
			}
			entry["percentiles"] = ps
		}
		out = append(out, entry)
	}
	return out
}

// Decode converts a Struct written by Encode back into a summary.
// It returns the run ID alongside.
func Decode(msg *structpb.Struct) (string, *stats.Summary) {
	fields := msg.GetFields()
	s := &stats.Summary{
		UniqueCustomers:  intField(fields, "unique_customers"),
		ElectricityOnly:  intField(fields, "electricity_only"),
		GasOnly:          intField(fields, "gas_only"),
		BothServices:     intField(fields, "both_services"),
		RecordsCollected: int64(intField(fields, "records_collected")),
	}

	if elec := fields["electricity"].GetStructValue(); elec != nil {
		s.ElectricityHistogram = decodeHistogram(elec.GetFields()["histogram"])
		s.ElectricityMonthly = decodeMonthly(elec.GetFields()["monthly"])
	}
	if gas := fields["gas"].GetStructValue(); gas != nil {
		s.GasHistogram = decodeHistogram(gas.GetFields()["histogram"])
		s.GasMonthly = decodeMonthly(gas.GetFields()["monthly"])
	}

	return fields["run_id"].GetStringValue(), s
}

func intField(fields map[string]*structpb.Value, key string) int {
	return int(fields[key].GetNumberValue())
}

func decodeHistogram(v *structpb.Value) []stats.HistogramBucket {
	list := v.GetListValue().GetValues()
	out := make([]stats.HistogramBucket, 0, len(list))
	for _, item := range list {
		f := item.GetStructValue().GetFields()
		out = append(out, stats.HistogramBucket{
			Readings:  intField(f, "readings"),
			Customers: intField(f, "customers"),
		})
	}
	return out
}

func decodeMonthly(v *structpb.Value) []stats.MonthlyStat {
	list := v.GetListValue().GetValues()
	out := make([]stats.MonthlyStat, 0, len(list))
	for _, item := range list {
		f := item.GetStructValue().GetFields()
		m := stats.MonthlyStat{
			Month:   intField(f, "month"),
			Count:   int64(intField(f, "count")),
			Total:   f["total"].GetNumberValue(),
			Average: f["average"].GetNumberValue(),
			Min:     f["min"].GetNumberValue(),
			Max:     f["max"].GetNumberValue(),
		}
		for _, p := range f["percentiles"].GetListValue().GetValues() {
			pf := p.GetStructValue().GetFields()
			m.Percentiles = append(m.Percentiles, stats.Percentile{
				Quantile: pf["quantile"].GetNumberValue(),
				Value:    pf["value"].GetNumberValue(),
			})
		}
		out = append(out, m)
	}
	return out
}
