package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/synaptica-ai/patientpy/pkg/common/config"
	"github.com/synaptica-ai/patientpy/pkg/common/logger"
	"github.com/synaptica-ai/patientpy/pkg/common/models"
)

var (
	paramsPath  string
	catalogPath string
	cacheDir    string
	featureDir  string
	domainList  []string
	verbose     bool

	cfg    *config.Config
	params *config.Params
)

var rootCmd = &cobra.Command{
	Use:   "patientpy",
	Short: "ICU clinical extraction and feature-matrix pipeline",
	Long: `patientpy - ICU clinical extraction and feature-matrix pipeline

Stages:
  cache     extract per-admission clinical events into the cache directory
  features  build per-domain feature blocks for a labeled case list
  assemble  join feature blocks into one matrix
  clean     drop uninformative columns and impute missing values
  folds     assign cross-validation folds per target`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the command tree; SIGINT and SIGTERM cancel the running stage.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&paramsPath, "params", "", "YAML run parameter file")
	rootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", "", `terminology catalog YAML, or "db" to read the mapping tables`)
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "cache directory (default $CACHE_DIR)")
	rootCmd.PersistentFlags().StringVar(&featureDir, "feature-dir", "", "feature directory (default $FEATURE_DIR)")
	rootCmd.PersistentFlags().StringSliceVar(&domainList, "domains", nil, "domains to process (default all)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// setup resolves configuration: environment first, then the parameter file,
// then flags.
func setup(cmd *cobra.Command, args []string) error {
	logger.Init()
	if verbose {
		logger.Log.SetLevel(logrus.DebugLevel)
	}
	cfg = config.Load()

	p, err := config.LoadParams(paramsPath, cfg)
	if err != nil {
		return err
	}
	if cacheDir != "" {
		p.CacheDir = cacheDir
	}
	if featureDir != "" {
		p.FeatureDir = featureDir
	}
	if catalogPath != "" {
		p.Catalog = catalogPath
	}
	if len(domainList) > 0 {
		p.Domains = domainList
	}
	params = p
	return nil
}

func domains() ([]models.Domain, error) {
	return models.ParseDomains(params.Domains)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
