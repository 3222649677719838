// Package csvinput reads the id and list-literal columns of the input CSV in
// file order.
package csvinput

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Default column names.
const (
	DefaultIDColumn    = "id"
	DefaultValueColumn = "topics_list"
)

// Row is one data record of the input.
type Row struct {
	// Index is the 0-based position among data records.
	Index int
	// Line is the 1-based line the record starts on.
	Line     int
	ID       string
	RawValue string
}

// InputError reports an unreadable or malformed input file.
type InputError struct {
	Path string
	Line int
	Err  error
}

func (e *InputError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("input %s line %d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("input %s: %v", e.Path, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// ErrMissingColumn is wrapped by InputError when the header lacks a column.
var ErrMissingColumn = errors.New("missing column")

// Columns names the header fields to read.
type Columns struct {
	ID    string
	Value string
}

func (c Columns) withDefaults() Columns {
	if c.ID == "" {
		c.ID = DefaultIDColumn
	}
	if c.Value == "" {
		c.Value = DefaultValueColumn
	}
	return c
}

// Reader yields rows from an open CSV file.
type Reader struct {
	path     string
	file     *os.File
	csv      *csv.Reader
	idIdx    int
	valueIdx int
	next     int
}

// Open opens path and resolves the header columns.
func Open(path string, cols Columns) (*Reader, error) {
	cols = cols.withDefaults()

	file, err := os.Open(path)
	if err != nil {
		return nil, &InputError{Path: path, Err: err}
	}

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true
	// Unquoted JSON lists like ["a"] carry bare quotes; keep them verbatim.
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		file.Close()
		if errors.Is(err, io.EOF) {
			return nil, &InputError{Path: path, Err: errors.New("file is empty, expected a header row")}
		}
		return nil, &InputError{Path: path, Line: lineOf(err), Err: err}
	}

	idIdx, valueIdx := -1, -1
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		switch name {
		case cols.ID:
			if idIdx < 0 {
				idIdx = i
			}
		case cols.Value:
			if valueIdx < 0 {
				valueIdx = i
			}
		}
	}

	var missing []string
	if idIdx < 0 {
		missing = append(missing, cols.ID)
	}
	if valueIdx < 0 {
		missing = append(missing, cols.Value)
	}
	if len(missing) > 0 {
		file.Close()
		return nil, &InputError{
			Path: path,
			Line: 1,
			Err:  fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", ")),
		}
	}

	return &Reader{path: path, file: file, csv: r, idIdx: idIdx, valueIdx: valueIdx}, nil
}

// Next returns the next row, or io.EOF when the file is exhausted.
func (r *Reader) Next() (Row, error) {
	record, err := r.csv.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Row{}, io.EOF
		}
		return Row{}, &InputError{Path: r.path, Line: lineOf(err), Err: err}
	}

	line, _ := r.csv.FieldPos(0)
	row := Row{
		Index:    r.next,
		Line:     line,
		ID:       strings.TrimSpace(field(record, r.idIdx)),
		RawValue: field(record, r.valueIdx),
	}
	r.next++
	return row, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// Locate returns the Index of the first row whose id equals id.
// The file is read once from the start; found is false if no row matches.
func Locate(path string, cols Columns, id string) (index int, found bool, err error) {
	r, err := Open(path, cols)
	if err != nil {
		return 0, false, err
	}
	defer r.Close()

	id = strings.TrimSpace(id)
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			return 0, false, nil
		}
		if err != nil {
			return 0, false, err
		}
		if row.ID == id {
			return row.Index, true, nil
		}
	}
}

func field(record []string, idx int) string {
	if idx < len(record) {
		return record[idx]
	}
	return ""
}

func lineOf(err error) int {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return pe.StartLine
	}
	return 0
}
