package matrix

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const FullFold = "full"

// Targets records, per outcome, which cases carry that outcome label.
type Targets struct {
	Names   []string
	CaseIDs []string
	Present [][]bool // [case][target]
}

// ReadTargets parses a presence CSV: case_id followed by one 0/1 column per target.
func ReadTargets(r io.Reader) (*Targets, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty target file")
	}
	if err != nil {
		return nil, err
	}
	if len(header) < 2 || strings.TrimSpace(header[0]) != IDColumn {
		return nil, fmt.Errorf("target file needs a %s column and at least one target", IDColumn)
	}
	t := &Targets{Names: append([]string(nil), header[1:]...)}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		flags := make([]bool, len(record)-1)
		for i, field := range record[1:] {
			n, err := strconv.Atoi(strings.TrimSpace(field))
			if err != nil {
				return nil, fmt.Errorf("case %s target %s: %w", record[0], t.Names[i], err)
			}
			flags[i] = n != 0
		}
		t.CaseIDs = append(t.CaseIDs, record[0])
		t.Present = append(t.Present, flags)
	}
	return t, nil
}

func LoadTargets(path string) (*Targets, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadTargets(f)
}

// Fold is the sample selection of one target in one fold.
type Fold struct {
	TargetIndex int
	TargetName  string
	Fold        string
	FeatureRows []int
	TargetRows  []int
	CaseIDs     []string
}

// AssignFolds walks the feature matrix rows in order and, for every target,
// deals the cases carrying it round-robin into k folds. A "full" fold with every
// such case precedes the numbered folds.
func AssignFolds(caseOrder []string, targets *Targets, k int) ([]Fold, error) {
	if k < 2 {
		return nil, fmt.Errorf("fold count must be at least 2, got %d", k)
	}
	targetRow := make(map[string]int, len(targets.CaseIDs))
	for i, id := range targets.CaseIDs {
		targetRow[id] = i
	}

	var out []Fold
	for ti, name := range targets.Names {
		full := Fold{TargetIndex: ti, TargetName: name, Fold: FullFold}
		folds := make([]Fold, k)
		for f := range folds {
			folds[f] = Fold{TargetIndex: ti, TargetName: name, Fold: strconv.Itoa(f)}
		}
		count := 0
		for featureRow, id := range caseOrder {
			tr, ok := targetRow[id]
			if !ok || !targets.Present[tr][ti] {
				continue
			}
			full.FeatureRows = append(full.FeatureRows, featureRow)
			full.TargetRows = append(full.TargetRows, tr)
			full.CaseIDs = append(full.CaseIDs, id)
			f := &folds[count%k]
			f.FeatureRows = append(f.FeatureRows, featureRow)
			f.TargetRows = append(f.TargetRows, tr)
			f.CaseIDs = append(f.CaseIDs, id)
			count++
		}
		out = append(out, full)
		out = append(out, folds...)
	}
	return out, nil
}

// FoldColumn selects what a sample file lists for each fold.
type FoldColumn int

const (
	FeatureRowColumn FoldColumn = iota
	TargetRowColumn
	CaseIDColumn
)

// WriteFolds writes one tab-separated line per fold:
// matrix name, target index, target name, fold, then the selected samples.
func WriteFolds(w io.Writer, matrixName string, folds []Fold, column FoldColumn) error {
	header := "#matrix_name\ttarget_id\ttarget_name\tfold_type\trow_indices\n"
	if column == CaseIDColumn {
		header = "#matrix_name\ttarget_id\ttarget_name\tfold_type\tcase_ids\n"
	}
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	for _, f := range folds {
		fields := []string{matrixName, strconv.Itoa(f.TargetIndex), f.TargetName, f.Fold}
		switch column {
		case FeatureRowColumn:
			fields = append(fields, itoas(f.FeatureRows)...)
		case TargetRowColumn:
			fields = append(fields, itoas(f.TargetRows)...)
		case CaseIDColumn:
			fields = append(fields, f.CaseIDs...)
		}
		if _, err := io.WriteString(w, strings.Join(fields, "\t")+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func itoas(values []int) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strconv.Itoa(v)
	}
	return out
}
