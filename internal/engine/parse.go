package engine

// parse.go turns raw bytes of a declared format into an ordered sequence of
// flat string-keyed records.
//
// CSV parsing is hand-rolled rather than delegated to encoding/csv because
// the contract requires a configurable quote character and per-row failure
// tolerance (a malformed line is excluded and counted, never aborts the
// batch), neither of which encoding/csv expresses. The quoting rules are the
// RFC 4180 ones: a quoted field may contain the delimiter and newlines, and
// a doubled quote inside a quoted field is a literal quote.
//
// JSON and JSON-Lines values are coerced to strings for uniform downstream
// type inference. Numbers keep their source formatting (json.Number), so the
// original scalar can be recovered by re-parsing later.

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ParseOptions configures format-specific parsing. The zero value means:
// comma delimiter, double-quote quote character, first row is the header,
// no leading rows skipped.
type ParseOptions struct {
	Delimiter rune `json:"-"`
	Quote     rune `json:"-"`
	// NoHeader synthesizes column names column_1..column_n instead of
	// reading them from the first row.
	NoHeader bool `json:"noHeader,omitempty"`
	// SkipRows drops this many leading rows before the header (or before
	// data, when NoHeader is set).
	SkipRows int `json:"skipRows,omitempty"`
}

func (o ParseOptions) delimiter() rune {
	if o.Delimiter == 0 {
		return ','
	}
	return o.Delimiter
}

func (o ParseOptions) quote() rune {
	if o.Quote == 0 {
		return '"'
	}
	return o.Quote
}

// ParseResult is an ordered batch of parsed records plus per-row failure
// accounting. TotalRows counts data rows encountered, including failed ones;
// Records holds only the rows that parsed cleanly.
type ParseResult struct {
	Records []Record
	// Rows holds the original 1-based data-row index of each record, so
	// reporting stays aligned when failed rows are interleaved.
	Rows       []int
	Columns    []string
	TotalRows  int
	FailedRows int
	RowErrors  []RowError
}

// Parse converts raw bytes of the declared format into records. A
// structurally empty input, or a header/skip configuration that yields zero
// data rows, returns a FatalParseError; individual bad rows are counted in
// FailedRows and excluded from Records.
func Parse(data []byte, format Format, opts ParseOptions) (*ParseResult, error) {
	data = sanitizeInput(data)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &FatalParseError{Reason: "empty file"}
	}

	switch format {
	case FormatCSV:
		return parseCSV(data, opts)
	case FormatJSON:
		return parseJSON(data)
	case FormatJSONLines:
		return parseJSONLines(data)
	default:
		return nil, &FatalParseError{Reason: fmt.Sprintf("unsupported format %q", format)}
	}
}

// sanitizeInput strips a UTF-8 BOM and replaces invalid UTF-8 sequences so
// downstream string handling never sees broken encodings. Windows exports
// are the usual source of both.
func sanitizeInput(data []byte) []byte {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if utf8.Valid(data) {
		return data
	}
	return bytes.ToValidUTF8(data, []byte("�"))
}

// ----------------------------------------------------------------------------
// CSV
// ----------------------------------------------------------------------------

type csvScanner struct {
	input []rune
	pos   int
	delim rune
	quote rune
}

var errMalformedRow = fmt.Errorf("malformed row")

// next reads one CSV record. A quoted field may span lines; a quote
// character followed by anything other than a quote, the delimiter, or a
// line ending makes the row malformed. On a malformed row the scanner skips
// to the next line so subsequent rows still parse.
func (s *csvScanner) next() ([]string, error) {
	if s.pos >= len(s.input) {
		return nil, nil
	}

	var fields []string
	var field strings.Builder
	inQuotes := false
	started := false

	for s.pos < len(s.input) {
		r := s.input[s.pos]

		if inQuotes {
			switch {
			case r == s.quote && s.peek(1) == s.quote:
				field.WriteRune(s.quote)
				s.pos += 2
			case r == s.quote:
				inQuotes = false
				s.pos++
				// Only the delimiter or a line ending may follow a
				// closing quote.
				if s.pos < len(s.input) {
					nxt := s.input[s.pos]
					if nxt != s.delim && nxt != '\n' && nxt != '\r' {
						s.skipLine()
						return nil, errMalformedRow
					}
				}
			default:
				field.WriteRune(r)
				s.pos++
			}
			continue
		}

		switch {
		case r == s.quote && field.Len() == 0 && !started:
			inQuotes = true
			started = true
			s.pos++
		case r == s.delim:
			fields = append(fields, field.String())
			field.Reset()
			started = false
			s.pos++
		case r == '\r':
			s.pos++
			if s.pos < len(s.input) && s.input[s.pos] == '\n' {
				s.pos++
			}
			return append(fields, field.String()), nil
		case r == '\n':
			s.pos++
			return append(fields, field.String()), nil
		default:
			field.WriteRune(r)
			started = true
			s.pos++
		}
	}

	if inQuotes {
		return nil, errMalformedRow
	}
	return append(fields, field.String()), nil
}

func (s *csvScanner) peek(ahead int) rune {
	if s.pos+ahead >= len(s.input) {
		return 0
	}
	return s.input[s.pos+ahead]
}

func (s *csvScanner) skipLine() {
	for s.pos < len(s.input) && s.input[s.pos] != '\n' {
		s.pos++
	}
	if s.pos < len(s.input) {
		s.pos++
	}
}

func (s *csvScanner) done() bool {
	return s.pos >= len(s.input)
}

func parseCSV(data []byte, opts ParseOptions) (*ParseResult, error) {
	sc := &csvScanner{
		input: []rune(string(data)),
		delim: opts.delimiter(),
		quote: opts.quote(),
	}

	for i := 0; i < opts.SkipRows && !sc.done(); i++ {
		sc.skipLine()
	}

	var columns []string
	if !opts.NoHeader {
		header, err := sc.next()
		if err != nil {
			return nil, &FatalParseError{Reason: "unreadable structure: malformed header row"}
		}
		if header == nil {
			return nil, &FatalParseError{Reason: "no data rows"}
		}
		columns = make([]string, len(header))
		for i, h := range header {
			columns[i] = strings.TrimSpace(h)
		}
	}

	res := &ParseResult{}
	for !sc.done() {
		row, err := sc.next()
		if err != nil {
			res.TotalRows++
			res.FailedRows++
			res.RowErrors = append(res.RowErrors, RowError{
				Row:    res.TotalRows,
				Reason: "malformed row: unbalanced or misplaced quote",
			})
			continue
		}
		if row == nil {
			break
		}
		// A trailing newline produces one empty single-field row; drop it.
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}
		res.TotalRows++

		if columns == nil {
			columns = syntheticColumns(len(row))
		}
		if len(row) > len(columns) {
			res.FailedRows++
			res.RowErrors = append(res.RowErrors, RowError{
				Row:    res.TotalRows,
				Reason: fmt.Sprintf("row has %d fields, header has %d", len(row), len(columns)),
			})
			continue
		}

		rec := make(Record, len(columns))
		for i, col := range columns {
			if i < len(row) {
				rec[col] = row[i]
			} else {
				rec[col] = ""
			}
		}
		res.Records = append(res.Records, rec)
		res.Rows = append(res.Rows, res.TotalRows)
	}

	if res.TotalRows == 0 {
		return nil, &FatalParseError{Reason: "no data rows"}
	}
	res.Columns = columns
	return res, nil
}

func syntheticColumns(n int) []string {
	cols := make([]string, n)
	for i := range cols {
		cols[i] = fmt.Sprintf("column_%d", i+1)
	}
	return cols
}

// ----------------------------------------------------------------------------
// JSON
// ----------------------------------------------------------------------------

// parseJSON accepts a top-level array of objects, a single object containing
// exactly one array-valued property, or a single object treated as one
// record.
func parseJSON(data []byte) (*ParseResult, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var top any
	if err := dec.Decode(&top); err != nil {
		return nil, &FatalParseError{Reason: "unreadable structure: " + err.Error()}
	}

	var items []any
	switch v := top.(type) {
	case []any:
		items = v
	case map[string]any:
		if arr, ok := singleArrayProperty(v); ok {
			items = arr
		} else {
			items = []any{v}
		}
	default:
		return nil, &FatalParseError{Reason: "unreadable structure: top-level value is not an object or array"}
	}

	if len(items) == 0 {
		return nil, &FatalParseError{Reason: "no data rows"}
	}

	res := &ParseResult{}
	seen := make(map[string]bool)
	for _, item := range items {
		res.TotalRows++
		obj, ok := item.(map[string]any)
		if !ok {
			res.FailedRows++
			res.RowErrors = append(res.RowErrors, RowError{
				Row:    res.TotalRows,
				Reason: "element is not an object",
			})
			continue
		}
		rec := flattenObject(obj)
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				res.Columns = append(res.Columns, k)
			}
		}
		res.Records = append(res.Records, rec)
		res.Rows = append(res.Rows, res.TotalRows)
	}
	sort.Strings(res.Columns)
	return res, nil
}

// singleArrayProperty returns the payload array when the object wraps its
// rows under exactly one array-valued key (a common API response shape).
func singleArrayProperty(obj map[string]any) ([]any, bool) {
	var found []any
	count := 0
	for _, v := range obj {
		if arr, ok := v.([]any); ok {
			found = arr
			count++
		}
	}
	if count == 1 {
		return found, true
	}
	return nil, false
}

func parseJSONLines(data []byte) (*ParseResult, error) {
	lines := strings.Split(string(data), "\n")

	res := &ParseResult{}
	seen := make(map[string]bool)
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		res.TotalRows++

		dec := json.NewDecoder(strings.NewReader(line))
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			res.FailedRows++
			res.RowErrors = append(res.RowErrors, RowError{
				Row:    res.TotalRows,
				Reason: "invalid JSON line: " + err.Error(),
			})
			continue
		}
		rec := flattenObject(obj)
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				res.Columns = append(res.Columns, k)
			}
		}
		res.Records = append(res.Records, rec)
		res.Rows = append(res.Rows, res.TotalRows)
	}

	if res.TotalRows == 0 {
		return nil, &FatalParseError{Reason: "no data rows"}
	}
	sort.Strings(res.Columns)
	return res, nil
}

// flattenObject coerces every value to its string form. Nested structures
// are kept as compact JSON so nothing is lost.
func flattenObject(obj map[string]any) Record {
	rec := make(Record, len(obj))
	for k, v := range obj {
		rec[k] = stringifyScalar(v)
	}
	return rec
}

func stringifyScalar(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}
