package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/synaptica-ai/patientpy/pkg/common/config"
	"github.com/synaptica-ai/patientpy/pkg/matrix"
	"github.com/synaptica-ai/patientpy/pkg/runs"
)

var (
	cleanTrain   string
	cleanEval    []string
	cleanImputer string
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Drop uninformative columns and impute missing values with training medians",
	Example: `  patientpy clean --train out/train.csv --eval out/test.csv
  patientpy clean --imputer out/train_imputer.json --eval out/holdout.csv`,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().StringVar(&cleanTrain, "train", "", "training matrix CSV the imputer is fitted on")
	cleanCmd.Flags().StringSliceVar(&cleanEval, "eval", nil, "evaluation matrices transformed with the fitted imputer")
	cleanCmd.Flags().StringVar(&cleanImputer, "imputer", "", "imputer JSON (written after fitting, read when --train is absent)")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if cleanTrain == "" && cleanImputer == "" {
		return fmt.Errorf("either --train or --imputer is required")
	}
	for _, path := range append([]string{cleanTrain}, cleanEval...) {
		if path == "" {
			continue
		}
		if err := config.RequireFile(path); err != nil {
			return err
		}
	}
	imputerPath := cleanImputer
	if imputerPath == "" {
		imputerPath = outputName(cleanTrain, "_imputer.json")
	}

	rt := &runtime{}
	defer rt.close()
	run := rt.tracker().Begin(ctx, runs.StageClean, map[string]interface{}{
		"train": cleanTrain,
		"eval":  len(cleanEval),
	})

	written, err := clean(cleanTrain, cleanEval, imputerPath)
	if err != nil {
		run.Fail(ctx, err)
		return err
	}
	run.Complete(ctx, map[string]interface{}{"files": len(written)})
	return printJSON(map[string]interface{}{"imputer": imputerPath, "files": written})
}

func clean(train string, eval []string, imputerPath string) ([]string, error) {
	var (
		im      *matrix.MedianImputer
		inputs  []string
		written []string
		err     error
	)
	if train != "" {
		t, err := matrix.LoadCSV(train)
		if err != nil {
			return nil, err
		}
		if im, err = matrix.FitMedianImputer(t); err != nil {
			return nil, err
		}
		if err := im.Save(imputerPath); err != nil {
			return nil, err
		}
		inputs = append(inputs, train)
	} else if im, err = matrix.LoadMedianImputer(imputerPath); err != nil {
		return nil, err
	}
	inputs = append(inputs, eval...)

	for _, path := range inputs {
		t, err := matrix.LoadCSV(path)
		if err != nil {
			return written, err
		}
		cleaned, err := im.Transform(t)
		if err != nil {
			return written, fmt.Errorf("%s: %w", path, err)
		}
		out := outputName(path, "_clean.csv")
		if err := matrix.SaveCSV(out, cleaned); err != nil {
			return written, err
		}
		written = append(written, out)
	}
	return written, nil
}

func outputName(path, suffix string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + suffix
}
