// Package results persists trial outcomes as an append-only CSV table,
// one row per trial, header written once when the file is created.
package results

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/weiihann/streambench/harness"
)

// ColumnMbps is the name of the throughput column, always last.
const ColumnMbps = "mbps"

// Row is one persisted trial: column names with aligned values.
type Row struct {
	Columns []string
	Values  []string
}

// NewRow lays out cfg, then compile, then the throughput.
func NewRow(cfg harness.RunConfig, compile harness.CompileConfig, mbps float64) Row {
	cols := make([]string, 0, 8)
	cols = append(cols, cfg.Columns()...)
	cols = append(cols, compile.Columns()...)
	cols = append(cols, ColumnMbps)

	vals := make([]string, 0, len(cols))
	vals = append(vals, cfg.Values()...)
	vals = append(vals, compile.Values()...)
	vals = append(vals, strconv.FormatFloat(mbps, 'f', -1, 64))

	return Row{Columns: cols, Values: vals}
}

// Get returns the value of the named column.
func (r Row) Get(column string) (string, bool) {
	for i, c := range r.Columns {
		if c == column && i < len(r.Values) {
			return r.Values[i], true
		}
	}

	return "", false
}

// PersistError reports that a result could not be written.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist result to %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Append writes row to the CSV file at path. When the file does not
// exist yet (or is empty) the header is written first. The file is
// opened and closed on every call so each row is durable on its own.
// Column consistency with earlier rows is the caller's concern.
func Append(path string, row Row) (err error) {
	if len(row.Columns) != len(row.Values) {
		return &PersistError{Path: path, Err: fmt.Errorf(
			"row has %d columns but %d values", len(row.Columns), len(row.Values),
		)}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return &PersistError{Path: path, Err: err}
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = &PersistError{Path: path, Err: cerr}
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return &PersistError{Path: path, Err: err}
	}

	w := csv.NewWriter(f)

	if info.Size() == 0 {
		if err := w.Write(row.Columns); err != nil {
			return &PersistError{Path: path, Err: err}
		}
	}

	if err := w.Write(row.Values); err != nil {
		return &PersistError{Path: path, Err: err}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return &PersistError{Path: path, Err: err}
	}

	return nil
}

// Table is a result file read back into memory.
type Table struct {
	Header []string
	Rows   [][]string
}

// Row returns record i as a Row.
func (t *Table) Row(i int) Row {
	return Row{Columns: t.Header, Values: t.Rows[i]}
}

// Index returns the position of column in the header, or -1.
func (t *Table) Index(column string) int {
	for i, c := range t.Header {
		if c == column {
			return i
		}
	}

	return -1
}

// Load reads a result file written by Append.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open results %s: %w", path, err)
	}
	defer f.Close()

	return Read(f)
}

// Read parses result CSV from r.
func Read(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("results are empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	t := &Table{Header: header}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(t.Rows)+1, err)
		}

		t.Rows = append(t.Rows, rec)
	}

	return t, nil
}
