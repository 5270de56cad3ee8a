package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/synaptica-ai/patientpy/pkg/common/config"
	"github.com/synaptica-ai/patientpy/pkg/common/models"
)

var ErrRecordNotFound = errors.New("cached record not found")

// Store is the cache directory tree: <root>/<domain>/<admission_id>.json.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

// Open validates that root is an existing directory. With create set the
// directory is created when missing.
func Open(root string, create bool) (*Store, error) {
	if err := config.RequireDir(root, create); err != nil {
		return nil, fmt.Errorf("cache directory: %w", err)
	}
	return NewStore(root), nil
}

func (s *Store) Root() string {
	return s.root
}

func (s *Store) Path(domain models.Domain, admissionID string) string {
	return filepath.Join(s.root, string(domain), safeName(admissionID)+".json")
}

// Write serializes the record and replaces any previous file atomically.
// Output depends only on the record, so rewriting unchanged data is byte-identical.
func (s *Store) Write(record models.CachedRecord) (string, error) {
	if record.Admission.AdmissionID == "" {
		return "", fmt.Errorf("cached record without admission id")
	}
	payload, err := Encode(record)
	if err != nil {
		return "", err
	}

	path := s.Path(record.Domain, record.Admission.AdmissionID)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return path, nil
}

func (s *Store) Read(domain models.Domain, admissionID string) (models.CachedRecord, error) {
	content, err := os.ReadFile(s.Path(domain, admissionID))
	if errors.Is(err, os.ErrNotExist) {
		return models.CachedRecord{}, fmt.Errorf("%s/%s: %w", domain, admissionID, ErrRecordNotFound)
	}
	if err != nil {
		return models.CachedRecord{}, err
	}
	var record models.CachedRecord
	if err := json.Unmarshal(content, &record); err != nil {
		return models.CachedRecord{}, fmt.Errorf("decode %s/%s: %w", domain, admissionID, err)
	}
	return record, nil
}

// List returns the admission ids cached for a domain, in directory order.
func (s *Store) List(domain models.Domain) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, string(domain)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		id, err := url.PathUnescape(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Encode is the canonical serialization of a cached record.
func Encode(record models.CachedRecord) ([]byte, error) {
	if record.Events == nil {
		record.Events = []models.Event{}
	}
	payload, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(payload, '\n'), nil
}

// safeName escapes an admission id into a single file name. The mapping is
// reversible so distinct ids never share a file.
func safeName(id string) string {
	name := url.PathEscape(id)
	if strings.HasPrefix(name, ".") {
		name = "%2E" + name[1:]
	}
	return name
}
