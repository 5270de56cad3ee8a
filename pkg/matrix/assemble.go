package matrix

import (
	"fmt"
	"math"

	"github.com/synaptica-ai/patientpy/pkg/common/logger"
)

// Assemble joins feature blocks column-wise. Row order follows the first block;
// cases absent from a later block get NaN for that block's columns.
func Assemble(blocks []*Table) (*Table, error) {
	if len(blocks) == 0 {
		return nil, fmt.Errorf("no feature blocks to assemble")
	}
	seen := make(map[string]struct{})
	var columns []string
	for _, b := range blocks {
		for _, c := range b.Columns {
			if _, dup := seen[c]; dup {
				return nil, fmt.Errorf("duplicate feature column %q", c)
			}
			seen[c] = struct{}{}
			columns = append(columns, c)
		}
	}

	out := NewTable(columns)
	indexes := make([]map[string]int, len(blocks))
	for i, b := range blocks {
		indexes[i] = b.RowIndex()
	}
	for _, row := range blocks[0].Rows {
		values := make([]float64, 0, len(columns))
		for i, b := range blocks {
			pos, ok := indexes[i][row.ID]
			if !ok {
				logger.Log.WithField("case_id", row.ID).Warn("case missing from feature block")
				values = append(values, nanSlice(len(b.Columns))...)
				continue
			}
			values = append(values, b.Rows[pos].Values...)
		}
		if err := out.Append(row.ID, values); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// MatchColumns reorders t to the given column list so that an evaluation matrix
// lines up with a previously assembled training matrix. Columns t lacks are
// filled with NaN; columns not listed are dropped.
func MatchColumns(t *Table, columns []string) (*Table, int) {
	positions := make([]int, len(columns))
	missing := 0
	for i, c := range columns {
		pos, ok := t.ColumnIndex(c)
		if !ok {
			missing++
			pos = -1
		}
		positions[i] = pos
	}
	out := NewTable(columns)
	for _, row := range t.Rows {
		values := make([]float64, len(columns))
		for i, pos := range positions {
			if pos < 0 {
				values[i] = math.NaN()
				continue
			}
			values[i] = row.Values[pos]
		}
		out.Rows = append(out.Rows, Row{ID: row.ID, Values: values})
	}
	return out, missing
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
