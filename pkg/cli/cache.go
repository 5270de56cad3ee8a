package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/synaptica-ai/patientpy/pkg/cache"
	"github.com/synaptica-ai/patientpy/pkg/common/config"
	"github.com/synaptica-ai/patientpy/pkg/extractor"
	"github.com/synaptica-ai/patientpy/pkg/matrix"
	"github.com/synaptica-ai/patientpy/pkg/source"
)

var (
	cacheAdmissionIDs  []string
	cacheAdmissionFile string
	cacheLimit         int
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Extract and cache per-admission clinical events",
	Example: `  patientpy cache --cache-dir ./cache
  patientpy cache --domains lab,vital --admission-file cohort.txt
  SOURCE_DRIVER=bigquery BIGQUERY_PROJECT=p BIGQUERY_DATASET=icu patientpy cache --limit 100`,
	RunE: runCache,
}

func init() {
	cacheCmd.Flags().StringSliceVar(&cacheAdmissionIDs, "admission-ids", nil, "restrict the cohort to these admissions")
	cacheCmd.Flags().StringVar(&cacheAdmissionFile, "admission-file", "", "file with one admission id per line")
	cacheCmd.Flags().IntVar(&cacheLimit, "limit", 0, "maximum number of admissions")
	rootCmd.AddCommand(cacheCmd)
}

func runCache(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	filter := source.CohortFilter{
		AdmissionIDs: params.Cohort.AdmissionIDs,
		Limit:        params.Cohort.Limit,
	}
	if len(cacheAdmissionIDs) > 0 {
		filter.AdmissionIDs = cacheAdmissionIDs
	}
	if cacheLimit > 0 {
		filter.Limit = cacheLimit
	}
	admissionFile := params.Cohort.AdmissionFile
	if cacheAdmissionFile != "" {
		admissionFile = cacheAdmissionFile
	}
	if admissionFile != "" {
		if err := config.RequireFile(admissionFile); err != nil {
			return fmt.Errorf("admission file: %w", err)
		}
		ids, err := matrix.LoadList(admissionFile)
		if err != nil {
			return err
		}
		filter.AdmissionIDs = append(filter.AdmissionIDs, ids...)
	}

	doms, err := domains()
	if err != nil {
		return err
	}
	store, err := cache.Open(params.CacheDir, true)
	if err != nil {
		return err
	}

	rt := &runtime{}
	defer rt.close()
	cat, err := rt.catalog(ctx)
	if err != nil {
		return err
	}
	src, err := rt.source(ctx)
	if err != nil {
		return err
	}

	svc := extractor.NewService(src, store, extractor.NewNormalizer(cat),
		extractor.WithDomains(doms),
		extractor.WithTracker(rt.tracker()),
	)
	summary, err := svc.Run(ctx, filter)
	if err != nil {
		return err
	}
	return printJSON(summary)
}
