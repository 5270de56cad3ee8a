package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/synaptica-ai/patientpy/pkg/common/config"
	"github.com/synaptica-ai/patientpy/pkg/common/logger"
	"github.com/synaptica-ai/patientpy/pkg/common/models"
	"github.com/synaptica-ai/patientpy/pkg/features"
	"github.com/synaptica-ai/patientpy/pkg/matrix"
	"github.com/synaptica-ai/patientpy/pkg/runs"
)

var (
	assembleTypes       []string
	assembleAdditional  []string
	assembleMatch       string
	assembleOut         string
	assembleDuckDB      string
	assembleDuckDBTable string
)

var assembleCmd = &cobra.Command{
	Use:   "assemble",
	Short: "Join feature blocks into one feature matrix",
	Example: `  patientpy assemble --feature-types lab,vital --out ./out/train
  patientpy assemble --additional scores.csv --match-columns ./out/train_names.txt --out ./out/test`,
	RunE: runAssemble,
}

func init() {
	assembleCmd.Flags().StringSliceVar(&assembleTypes, "feature-types", nil, "domains whose blocks are joined (default --domains)")
	assembleCmd.Flags().StringSliceVar(&assembleAdditional, "additional", nil, "extra feature CSV files keyed by case_id")
	assembleCmd.Flags().StringVar(&assembleMatch, "match-columns", "", "names file of a previous matrix to align columns with")
	assembleCmd.Flags().StringVar(&assembleOut, "out", "", "output path without extension")
	assembleCmd.Flags().StringVar(&assembleDuckDB, "duckdb", "", "also export the matrix into this DuckDB file")
	assembleCmd.Flags().StringVar(&assembleDuckDBTable, "duckdb-table", "", "DuckDB table name")
	rootCmd.AddCommand(assembleCmd)
}

func runAssemble(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	types := params.Matrix.FeatureTypes
	if len(assembleTypes) > 0 {
		types = assembleTypes
	}
	if len(types) == 0 {
		types = params.Domains
	}
	doms, err := models.ParseDomains(types)
	if err != nil {
		return err
	}
	additional := append(append([]string(nil), params.Matrix.Additional...), assembleAdditional...)
	match := firstNonEmpty(assembleMatch, params.Matrix.MatchColumnsFile)
	out := firstNonEmpty(assembleOut, params.Output.Matrix, filepath.Join(params.FeatureDir, "feature_matrix"))
	duck := firstNonEmpty(assembleDuckDB, params.Output.DuckDB)
	duckTable := firstNonEmpty(assembleDuckDBTable, params.Output.DuckDBTable)

	if err := config.RequireDir(params.FeatureDir, false); err != nil {
		return fmt.Errorf("feature directory: %w", err)
	}
	for _, path := range additional {
		if err := config.RequireFile(path); err != nil {
			return fmt.Errorf("additional features: %w", err)
		}
	}
	var columns []string
	if match != "" {
		if columns, err = matrix.LoadList(match); err != nil {
			return fmt.Errorf("match columns: %w", err)
		}
	}

	rt := &runtime{}
	defer rt.close()
	run := rt.tracker().Begin(ctx, runs.StageAssemble, map[string]interface{}{
		"feature_types": types,
		"additional":    len(additional),
		"out":           out,
	})

	m, missing, err := assemble(doms, additional, columns)
	if err != nil {
		run.Fail(ctx, err)
		return err
	}
	if missing > 0 {
		logger.Log.WithField("missing", missing).Warn("Matched columns absent from assembled matrix")
	}
	if err := matrix.SaveCSV(out+".csv", m); err != nil {
		run.Fail(ctx, err)
		return err
	}
	if err := matrix.SaveList(out+"_names.txt", m.Columns); err != nil {
		run.Fail(ctx, err)
		return err
	}
	if duck != "" {
		sink, err := matrix.OpenDuckDB(duck)
		if err != nil {
			run.Fail(ctx, err)
			return err
		}
		err = sink.WriteTable(ctx, duckTable, m)
		sink.Close()
		if err != nil {
			run.Fail(ctx, err)
			return err
		}
	}

	stats := map[string]interface{}{
		"rows":    len(m.Rows),
		"columns": len(m.Columns),
		"missing": missing,
	}
	run.Complete(ctx, stats)
	stats["matrix"] = out + ".csv"
	return printJSON(stats)
}

func assemble(doms []models.Domain, additional, columns []string) (*matrix.Table, int, error) {
	var blocks []*matrix.Table
	for _, d := range doms {
		block, err := matrix.LoadCSV(features.BlockPath(params.FeatureDir, d))
		if err != nil {
			return nil, 0, fmt.Errorf("load %s block: %w", d, err)
		}
		blocks = append(blocks, block)
	}
	for _, path := range additional {
		block, err := matrix.LoadCSV(path)
		if err != nil {
			return nil, 0, err
		}
		suffix := "_" + strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		for i, c := range block.Columns {
			block.Columns[i] = c + suffix
		}
		blocks = append(blocks, block)
	}

	m, err := matrix.Assemble(blocks)
	if err != nil {
		return nil, 0, err
	}
	if columns == nil {
		return m, 0, nil
	}
	matched, missing := matrix.MatchColumns(m, columns)
	return matched, missing, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
