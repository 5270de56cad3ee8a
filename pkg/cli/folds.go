package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/synaptica-ai/patientpy/pkg/common/config"
	"github.com/synaptica-ai/patientpy/pkg/matrix"
	"github.com/synaptica-ai/patientpy/pkg/runs"
)

var (
	foldsTargets   string
	foldsCaseOrder string
	foldsName      string
	foldsK         int
	foldsOut       string
)

var foldsCmd = &cobra.Command{
	Use:     "folds",
	Short:   "Assign cross-validation folds for every target",
	Example: `  patientpy folds --targets targets.csv --matrix-name train --out ./out/train`,
	RunE:    runFolds,
}

func init() {
	foldsCmd.Flags().StringVar(&foldsTargets, "targets", "", "target presence CSV: case_id,<target>...")
	foldsCmd.Flags().StringVar(&foldsCaseOrder, "case-order", "", "row order of the feature matrix (default <feature-dir>/case_order_rows.txt)")
	foldsCmd.Flags().StringVar(&foldsName, "matrix-name", "feature_matrix", "name recorded in the sample files")
	foldsCmd.Flags().IntVarP(&foldsK, "folds", "k", 5, "number of folds")
	foldsCmd.Flags().StringVar(&foldsOut, "out", "", "output prefix (default <feature-dir>/<matrix-name>)")
	rootCmd.AddCommand(foldsCmd)
}

func runFolds(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	caseOrder := firstNonEmpty(foldsCaseOrder, filepath.Join(params.FeatureDir, "case_order_rows.txt"))
	out := firstNonEmpty(foldsOut, filepath.Join(params.FeatureDir, foldsName))
	for _, path := range []string{foldsTargets, caseOrder} {
		if err := config.RequireFile(path); err != nil {
			return err
		}
	}

	rt := &runtime{}
	defer rt.close()
	run := rt.tracker().Begin(ctx, runs.StageFolds, map[string]interface{}{
		"targets": foldsTargets,
		"k":       foldsK,
	})

	files, err := writeFolds(caseOrder, foldsTargets, foldsName, foldsK, out)
	if err != nil {
		run.Fail(ctx, err)
		return err
	}
	run.Complete(ctx, map[string]interface{}{"files": len(files)})
	return printJSON(map[string]interface{}{"files": files})
}

func writeFolds(caseOrderPath, targetsPath, name string, k int, out string) ([]string, error) {
	order, err := matrix.LoadList(caseOrderPath)
	if err != nil {
		return nil, err
	}
	targets, err := matrix.LoadTargets(targetsPath)
	if err != nil {
		return nil, fmt.Errorf("targets: %w", err)
	}
	folds, err := matrix.AssignFolds(order, targets, k)
	if err != nil {
		return nil, err
	}

	outputs := []struct {
		suffix string
		column matrix.FoldColumn
	}{
		{"_feature_rows.tsv", matrix.FeatureRowColumn},
		{"_target_rows.tsv", matrix.TargetRowColumn},
		{"_case_ids.tsv", matrix.CaseIDColumn},
	}
	var files []string
	for _, o := range outputs {
		path := out + o.suffix
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return files, err
		}
		f, err := os.Create(path)
		if err != nil {
			return files, err
		}
		if err := matrix.WriteFolds(f, name, folds, o.column); err != nil {
			f.Close()
			return files, err
		}
		if err := f.Close(); err != nil {
			return files, err
		}
		files = append(files, path)
	}
	return files, nil
}
