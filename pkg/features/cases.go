package features

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/synaptica-ai/patientpy/pkg/common/logger"
	"github.com/synaptica-ai/patientpy/pkg/common/models"
	"gopkg.in/yaml.v3"
)

// participantInfo is the per-case file of the participant-info directory.
type participantInfo struct {
	AdmissionID string `yaml:"admission_id"`
	Label       string `yaml:"label"`
	WindowEnd   string `yaml:"window_end"`
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"}

func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// LoadCases reads the labeled case list. When infoDir is set, <infoDir>/<case_id>.yaml
// supplies or overrides the window end of each case. Cases left without a cutoff
// and repeated case ids are logged and skipped.
func LoadCases(path, infoDir string) ([]models.LabeledCase, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cases, err := ReadCases(f, infoDir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cases, nil
}

func ReadCases(r io.Reader, infoDir string) ([]models.LabeledCase, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty case list")
	}
	if err != nil {
		return nil, err
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"case_id", "admission_id", "label"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("case list lacks a %s column", required)
		}
	}
	field := func(record []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var cases []models.LabeledCase
	seen := make(map[string]struct{})
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		c := models.LabeledCase{
			CaseID:      field(record, "case_id"),
			AdmissionID: field(record, "admission_id"),
			Label:       field(record, "label"),
		}
		log := logger.Log.WithField("case_id", c.CaseID).WithField("line", line)
		if c.CaseID == "" {
			log.Warn("Case without id skipped")
			continue
		}
		if _, dup := seen[c.CaseID]; dup {
			log.Warn("Duplicate case skipped")
			continue
		}

		if raw := field(record, "window_end"); raw != "" {
			if c.WindowEnd, err = ParseTime(raw); err != nil {
				log.WithError(err).Warn("Unparseable window end skipped")
				continue
			}
		}
		if infoDir != "" {
			if err := applyParticipantInfo(&c, infoDir); err != nil {
				log.WithError(err).Warn("Participant info unusable, case skipped")
				continue
			}
		}
		if c.AdmissionID == "" || c.WindowEnd.IsZero() {
			log.Warn("Case without admission or window end skipped")
			continue
		}
		seen[c.CaseID] = struct{}{}
		cases = append(cases, c)
	}
	return cases, nil
}

func applyParticipantInfo(c *models.LabeledCase, dir string) error {
	if c.CaseID == "." || c.CaseID == ".." || strings.ContainsAny(c.CaseID, `/\`) {
		return fmt.Errorf("case id %q is not a plain file name", c.CaseID)
	}
	content, err := os.ReadFile(filepath.Join(dir, c.CaseID+".yaml"))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var info participantInfo
	if err := yaml.Unmarshal(content, &info); err != nil {
		return err
	}
	if info.AdmissionID != "" {
		c.AdmissionID = info.AdmissionID
	}
	if info.Label != "" {
		c.Label = info.Label
	}
	if info.WindowEnd != "" {
		end, err := ParseTime(info.WindowEnd)
		if err != nil {
			return err
		}
		c.WindowEnd = end
	}
	return nil
}
