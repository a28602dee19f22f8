// Package parser exposes a gzip-compressed billing file as a pull-based
// sequence of records.
//
// The file is opened lazily on the first HasNext call and the header line is
// discarded. Malformed lines are skipped: Next returns an error for them and
// the sequence continues. A line longer than MaxLineBytes is drained and
// rejected the same way. The stream is released when the source is
// exhausted, fails, or Close is called.
package parser

import (
	"bufio"
	"io"
	"log/slog"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/xtxerr/billstats/config"
	"github.com/xtxerr/billstats/internal/errors"
	"github.com/xtxerr/billstats/internal/logging"
	"github.com/xtxerr/billstats/internal/record"
)

// headerLines is the number of lines discarded on open.
const headerLines = 1

// Options configures a Parser.
type Options struct {
	// Record controls per-line validation.
	Record record.Options

	// Verbose logs every rejected line with its line number.
	Verbose bool

	// MaxLineBytes caps the length of a single line. Longer lines are
	// rejected without being buffered in full.
	MaxLineBytes int

	// Logger receives diagnostics. Defaults to the "parser" component logger.
	Logger *slog.Logger
}

// DefaultOptions returns default parser options.
func DefaultOptions() Options {
	return Options{
		Record:       record.DefaultOptions(),
		MaxLineBytes: config.DefaultMaxLineBytes,
	}
}

// Stats holds parse counters.
type Stats struct {
	LinesRead       int64            // data lines, header excluded
	RecordsAccepted int64            // lines that produced a Record
	RecordsRejected int64            // lines that did not
	RejectedByField map[string]int64 // rejections keyed by field name, "Field Count" for arity errors
}

// Stats.RejectedByField keys for rejections not tied to a single field.
const (
	rejectFieldCount = "Field Count"
	rejectLineLength = "Line Length"
)

// Parser reads records from a gzip-compressed, pipe-delimited file.
//
// Parser is not safe for concurrent use.
type Parser struct {
	path string
	opts Options
	log  *slog.Logger

	file   *os.File
	gz     *gzip.Reader
	reader *bufio.Reader
	buf    []byte

	opened bool
	done   bool
	err    error

	line    string
	tooLong bool
	lineNum int // 1-based number of the buffered line; header is line 1

	stats Stats
}

// New creates a parser bound to path. The file is not opened until the first
// call to HasNext.
func New(path string, opts Options) *Parser {
	if opts.MaxLineBytes <= 0 {
		opts.MaxLineBytes = config.DefaultMaxLineBytes
	}
	log := opts.Logger
	if log == nil {
		log = logging.Component("parser")
	}

	return &Parser{
		path:  path,
		opts:  opts,
		log:   log.With("path", path),
		stats: Stats{RejectedByField: make(map[string]int64)},
	}
}

// HasNext advances to the next data line. It returns false when the source is
// exhausted or cannot be read; the stream is released in both cases. Open and
// read failures are logged regardless of verbose mode and kept in Err.
func (p *Parser) HasNext() bool {
	if p.done {
		return false
	}

	if !p.opened {
		p.opened = true
		if err := p.open(); err != nil {
			p.fail(err)
			return false
		}
	}

	line, tooLong, ok, err := p.readLine()
	if err != nil {
		p.fail(errors.Wrapf(errors.ErrSourceRead, "%s line %d: %v", p.path, p.lineNum+1, err))
		return false
	}
	if !ok {
		p.finish()
		return false
	}

	p.line = string(line)
	p.tooLong = tooLong
	p.lineNum++
	p.stats.LinesRead++
	return true
}

// Next parses the line buffered by the most recent HasNext. A malformed line
// yields an error and a zero Record; callers skip it and keep pulling.
func (p *Parser) Next() (record.Record, error) {
	if p.tooLong {
		err := errors.Wrapf(errors.ErrLineTooLong, "more than %d bytes", p.opts.MaxLineBytes)
		p.reject(err)
		return record.Record{}, err
	}

	r, err := record.Parse(p.line, p.opts.Record)
	if err != nil {
		p.reject(err)
		return record.Record{}, err
	}
	p.stats.RecordsAccepted++
	return r, nil
}

// Err returns the source-level error that ended the sequence, if any.
func (p *Parser) Err() error {
	return p.err
}

// Stats returns a copy of the parse counters.
func (p *Parser) Stats() Stats {
	s := p.stats
	s.RejectedByField = make(map[string]int64, len(p.stats.RejectedByField))
	for k, v := range p.stats.RejectedByField {
		s.RejectedByField[k] = v
	}
	return s
}

// LineNumber returns the 1-based line number of the buffered line.
func (p *Parser) LineNumber() int {
	return p.lineNum
}

// Close releases the underlying stream. It is safe to call more than once.
func (p *Parser) Close() error {
	p.done = true
	return p.release()
}

func (p *Parser) open() error {
	f, err := os.Open(p.path)
	if err != nil {
		return errors.Wrapf(errors.ErrSourceUnavailable, "open %s: %v", p.path, err)
	}
	p.file = f

	gz, err := gzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(errors.ErrSourceUnavailable, "gzip %s: %v", p.path, err)
	}
	p.gz = gz

	p.reader = bufio.NewReaderSize(gz, config.DefaultReadBufferSize)

	for i := 0; i < headerLines; i++ {
		_, _, ok, err := p.readLine()
		if err != nil {
			return errors.Wrapf(errors.ErrSourceRead, "read header %s: %v", p.path, err)
		}
		if !ok {
			break
		}
		p.lineNum++
	}

	p.log.Debug("source opened")
	return nil
}

// readLine returns the next line without its terminator. A line longer than
// MaxLineBytes is consumed to its end but not kept; tooLong reports it. ok is
// false at the end of input. The returned slice is valid until the next call.
func (p *Parser) readLine() (line []byte, tooLong, ok bool, err error) {
	// Room for a "\r\n" terminator on a line of exactly MaxLineBytes.
	limit := p.opts.MaxLineBytes + 2

	p.buf = p.buf[:0]
	read := false
	for {
		chunk, err := p.reader.ReadSlice('\n')
		if len(chunk) > 0 {
			read = true
		}
		if !tooLong {
			if len(p.buf)+len(chunk) > limit {
				tooLong = true
				p.buf = p.buf[:0]
			} else {
				p.buf = append(p.buf, chunk...)
			}
		}

		switch {
		case err == nil:
		case err == bufio.ErrBufferFull:
			continue
		case err == io.EOF:
			if !read {
				return nil, false, false, nil
			}
		default:
			return nil, false, false, err
		}

		line = trimEOL(p.buf)
		if len(line) > p.opts.MaxLineBytes {
			tooLong = true
		}
		if tooLong {
			line = nil
		}
		return line, tooLong, true, nil
	}
}

func trimEOL(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
	}
	if n := len(b); n > 0 && b[n-1] == '\r' {
		b = b[:n-1]
	}
	return b
}

func (p *Parser) reject(err error) {
	p.stats.RecordsRejected++

	field := rejectFieldCount
	attrs := []any{"line", p.lineNum}

	var fe *record.FieldError
	switch {
	case errors.As(err, &fe):
		field = fe.Field
		attrs = append(attrs, "field", fe.Field, "kind", fe.Kind, "value", fe.Value)
	case errors.Is(err, errors.ErrLineTooLong):
		field = rejectLineLength
	}
	p.stats.RejectedByField[field]++

	if p.opts.Verbose {
		p.log.Warn("record rejected: "+err.Error(), attrs...)
	}
}

func (p *Parser) fail(err error) {
	p.err = err
	p.log.Error("error accessing file", "error", err)
	p.finish()
}

func (p *Parser) finish() {
	p.done = true
	p.line = ""
	if err := p.release(); err != nil {
		p.log.Warn("close source", "error", err)
	}
}

func (p *Parser) release() error {
	var firstErr error
	if p.gz != nil {
		if err := p.gz.Close(); err != nil && err != io.EOF {
			firstErr = err
		}
		p.gz = nil
	}
	if p.file != nil {
		if err := p.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		p.file = nil
	}
	p.reader = nil
	return firstErr
}
