package matrix

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
)

// CleanColumns returns the indexes of columns worth keeping: a column is dropped
// when it has no values, exactly one value, or a single distinct value.
func CleanColumns(t *Table) []int {
	var keep []int
	for c := range t.Columns {
		present := 0
		distinct := make(map[float64]struct{})
		for _, row := range t.Rows {
			v := row.Values[c]
			if math.IsNaN(v) {
				continue
			}
			present++
			if len(distinct) < 2 {
				distinct[v] = struct{}{}
			}
		}
		if present < 2 || len(distinct) < 2 {
			continue
		}
		keep = append(keep, c)
	}
	return keep
}

// MedianImputer fills missing values with per-column medians learned on a
// training matrix. It also fixes the kept column set.
type MedianImputer struct {
	Columns []string  `json:"columns"`
	Medians []float64 `json:"medians"`
}

func FitMedianImputer(t *Table) (*MedianImputer, error) {
	keep := CleanColumns(t)
	if len(keep) == 0 {
		return nil, fmt.Errorf("no informative columns left after cleaning %d columns", len(t.Columns))
	}
	im := &MedianImputer{
		Columns: make([]string, len(keep)),
		Medians: make([]float64, len(keep)),
	}
	values := make([]float64, 0, len(t.Rows))
	for i, c := range keep {
		values = values[:0]
		for _, row := range t.Rows {
			if v := row.Values[c]; !math.IsNaN(v) {
				values = append(values, v)
			}
		}
		im.Columns[i] = t.Columns[c]
		im.Medians[i] = Median(values)
	}
	return im, nil
}

// Transform restricts t to the fitted columns and replaces NaN by the median.
func (im *MedianImputer) Transform(t *Table) (*Table, error) {
	matched, missing := MatchColumns(t, im.Columns)
	if missing == len(im.Columns) && len(im.Columns) > 0 {
		return nil, fmt.Errorf("table shares no columns with the imputer")
	}
	for _, row := range matched.Rows {
		for i, v := range row.Values {
			if math.IsNaN(v) {
				row.Values[i] = im.Medians[i]
			}
		}
	}
	return matched, nil
}

// Median of values; the slice is sorted in place. NaN for an empty slice.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	sort.Float64s(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}

func (im *MedianImputer) Save(path string) error {
	payload, err := json.MarshalIndent(im, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(payload, '\n'), 0o644)
}

func LoadMedianImputer(path string) (*MedianImputer, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var im MedianImputer
	if err := json.Unmarshal(content, &im); err != nil {
		return nil, fmt.Errorf("decode imputer %s: %w", path, err)
	}
	if len(im.Columns) != len(im.Medians) {
		return nil, fmt.Errorf("imputer %s: %d columns but %d medians", path, len(im.Columns), len(im.Medians))
	}
	return &im, nil
}
