package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Params is the externally supplied parameter set for one pipeline run.
type Params struct {
	CacheDir   string   `yaml:"cache_dir"`
	FeatureDir string   `yaml:"feature_dir"`
	Catalog    string   `yaml:"catalog"`
	Domains    []string `yaml:"domains"`

	Cohort CohortParams `yaml:"cohort"`
	Cases  CaseParams   `yaml:"cases"`
	Matrix MatrixParams `yaml:"matrix"`
	Output OutputParams `yaml:"output"`
}

type CohortParams struct {
	AdmissionIDs  []string `yaml:"admission_ids"`
	AdmissionFile string   `yaml:"admission_file"`
	Limit         int      `yaml:"limit"`
}

type CaseParams struct {
	CaseList           string `yaml:"case_list"`
	ParticipantInfoDir string `yaml:"participant_info_dir"`
}

type MatrixParams struct {
	FeatureTypes     []string `yaml:"feature_types"`
	Additional       []string `yaml:"additional"`
	MatchColumnsFile string   `yaml:"match_columns_file"`
}

type OutputParams struct {
	Matrix      string `yaml:"matrix"`
	DuckDB      string `yaml:"duckdb"`
	DuckDBTable string `yaml:"duckdb_table"`
	Online      bool   `yaml:"online"`
}

// LoadParams reads a YAML parameter file. An empty path yields defaults from cfg.
func LoadParams(path string, cfg *Config) (*Params, error) {
	p := &Params{}
	if path != "" {
		content, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("read params: %w", err)
		}
		if err := yaml.Unmarshal(content, p); err != nil {
			return nil, fmt.Errorf("parse params %s: %w", path, err)
		}
	}
	if cfg != nil {
		if p.CacheDir == "" {
			p.CacheDir = cfg.CacheDir
		}
		if p.FeatureDir == "" {
			p.FeatureDir = cfg.FeatureDir
		}
		if p.Catalog == "" {
			p.Catalog = cfg.CatalogPath
		}
	}
	if p.Output.DuckDBTable == "" {
		p.Output.DuckDBTable = "feature_matrix"
	}
	return p, nil
}

var ErrNotDirectory = errors.New("not a directory")

// RequireDir checks that path names an existing directory. With create set, a
// missing directory is created instead.
func RequireDir(path string, create bool) error {
	if path == "" {
		return fmt.Errorf("directory path is empty")
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) && create {
		return os.MkdirAll(path, 0o755)
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: %w", path, ErrNotDirectory)
	}
	return nil
}

// RequireFile checks that path names an existing regular file.
func RequireFile(path string) error {
	if path == "" {
		return fmt.Errorf("file path is empty")
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}
