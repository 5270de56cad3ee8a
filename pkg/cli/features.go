package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/synaptica-ai/patientpy/pkg/cache"
	"github.com/synaptica-ai/patientpy/pkg/common/config"
	"github.com/synaptica-ai/patientpy/pkg/features"
)

var (
	featuresCaseList string
	featuresInfoDir  string
	featuresOnline   bool
)

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Build per-domain feature blocks for a labeled case list",
	Example: `  patientpy features --case-list cases.csv --participant-info-dir ./participants
  patientpy features --params run.yaml --online`,
	RunE: runFeatures,
}

func init() {
	featuresCmd.Flags().StringVar(&featuresCaseList, "case-list", "", "labeled case list CSV")
	featuresCmd.Flags().StringVar(&featuresInfoDir, "participant-info-dir", "", "directory of <case_id>.yaml window cutoffs")
	featuresCmd.Flags().BoolVar(&featuresOnline, "online", false, "materialize vectors to the Redis feature store")
	rootCmd.AddCommand(featuresCmd)
}

func runFeatures(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	caseList := params.Cases.CaseList
	if featuresCaseList != "" {
		caseList = featuresCaseList
	}
	infoDir := params.Cases.ParticipantInfoDir
	if featuresInfoDir != "" {
		infoDir = featuresInfoDir
	}
	online := params.Output.Online || featuresOnline

	if err := config.RequireFile(caseList); err != nil {
		return fmt.Errorf("case list: %w", err)
	}
	if infoDir != "" {
		if err := config.RequireDir(infoDir, false); err != nil {
			return fmt.Errorf("participant info: %w", err)
		}
	}
	store, err := cache.Open(params.CacheDir, false)
	if err != nil {
		return err
	}
	if err := config.RequireDir(params.FeatureDir, true); err != nil {
		return fmt.Errorf("feature directory: %w", err)
	}
	doms, err := domains()
	if err != nil {
		return err
	}

	rt := &runtime{}
	defer rt.close()
	cat, err := rt.catalog(ctx)
	if err != nil {
		return err
	}
	opts := []features.Option{features.WithTracker(rt.tracker())}
	if online {
		fs, err := rt.featureStore(ctx)
		if err != nil {
			return err
		}
		opts = append(opts, features.WithOnlineStore(fs))
	}

	cases, err := features.LoadCases(caseList, infoDir)
	if err != nil {
		return err
	}
	res, err := features.NewBuilder(store, cat, opts...).Build(ctx, cases, doms)
	if err != nil {
		return err
	}
	paths, err := res.Write(params.FeatureDir)
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{
		"cases": len(cases),
		"files": paths,
	})
}
