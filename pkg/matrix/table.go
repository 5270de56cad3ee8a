package matrix

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// IDColumn heads the first column of every feature file.
const IDColumn = "case_id"

// Table is a dense feature table keyed by case id. NaN marks missing data.
type Table struct {
	Columns []string
	Rows    []Row
}

type Row struct {
	ID     string
	Values []float64
}

func NewTable(columns []string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

func (t *Table) Append(id string, values []float64) error {
	if len(values) != len(t.Columns) {
		return fmt.Errorf("row %s: %d values for %d columns", id, len(values), len(t.Columns))
	}
	t.Rows = append(t.Rows, Row{ID: id, Values: values})
	return nil
}

func (t *Table) ColumnIndex(name string) (int, bool) {
	for i, c := range t.Columns {
		if c == name {
			return i, true
		}
	}
	return -1, false
}

// RowIndex maps case ids to row positions.
func (t *Table) RowIndex() map[string]int {
	idx := make(map[string]int, len(t.Rows))
	for i, r := range t.Rows {
		idx[r.ID] = i
	}
	return idx
}

func (t *Table) IDs() []string {
	ids := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		ids[i] = r.ID
	}
	return ids
}

// WriteCSV writes the table with a header row. Missing values are empty fields.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	header := append([]string{IDColumn}, t.Columns...)
	if err := cw.Write(header); err != nil {
		return err
	}
	record := make([]string, len(header))
	for _, row := range t.Rows {
		record[0] = row.ID
		for i, v := range row.Values {
			record[i+1] = FormatValue(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty feature file")
	}
	if err != nil {
		return nil, err
	}
	if len(header) == 0 || strings.TrimSpace(header[0]) != IDColumn {
		return nil, fmt.Errorf("feature file must start with a %s column", IDColumn)
	}
	t := NewTable(header[1:])
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		values := make([]float64, len(record)-1)
		for i, field := range record[1:] {
			v, err := ParseValue(field)
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, t.Columns[i], err)
			}
			values[i] = v
		}
		if err := t.Append(record[0], values); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	return t, nil
}

func SaveCSV(path string, t *Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, t); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func LoadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func FormatValue(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func ParseValue(field string) (float64, error) {
	field = strings.TrimSpace(field)
	switch strings.ToLower(field) {
	case "", "nan", "null", "na":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(field, 64)
}

// SaveList writes one entry per line.
func SaveList(path string, items []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var b strings.Builder
	for _, item := range items {
		b.WriteString(item)
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// LoadList reads non-empty, right-trimmed lines.
func LoadList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t\r")
		if line != "" {
			out = append(out, line)
		}
	}
	return out, sc.Err()
}
