// Package registry persists planned jobs and the dataset catalog in the work directory.
// The registry is written once by submit and read by check and collect, which may run
// days later from a different shell.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/higgsanalysis/ftjobs/internal/models"
)

// Header describes the plan a registry was written for.
type Header struct {
	ID              string    `json:"id"`
	Executable      string    `json:"executable"`
	Created         time.Time `json:"created"`
	EntriesPerJob   int64     `json:"entries_per_job"`
	MaxJobsPerBatch int       `json:"max_jobs_per_batch"`
	InputRoot       string    `json:"input_root"`
}

// NewHeader creates a header with a fresh plan ID.
func NewHeader(executable string, entriesPerJob int64, maxJobsPerBatch int, inputRoot string) Header {
	return Header{
		ID:              uuid.NewString(),
		Executable:      executable,
		Created:         time.Now().UTC().Truncate(time.Second),
		EntriesPerJob:   entriesPerJob,
		MaxJobsPerBatch: maxJobsPerBatch,
		InputRoot:       inputRoot,
	}
}

type document struct {
	Plan Header                `json:"plan"`
	Jobs map[string]models.Job `json:"jobs"`
}

// Registry maps job numbers to job descriptors. It is read-only once built.
type Registry struct {
	header Header
	jobs   []models.Job
}

// New builds a registry. Job numbers must be exactly 0..len(jobs)-1.
func New(header Header, jobs []models.Job) (*Registry, error) {
	sorted := append([]models.Job(nil), jobs...)
	sort.Slice(sorted, func(i, k int) bool { return sorted[i].Number < sorted[k].Number })
	for i, j := range sorted {
		if j.Number != i {
			return nil, fmt.Errorf("job numbers are not dense: expected %d, found %d", i, j.Number)
		}
	}
	return &Registry{header: header, jobs: sorted}, nil
}

// Header returns the plan header.
func (r *Registry) Header() Header {
	return r.header
}

// Len returns the number of jobs.
func (r *Registry) Len() int {
	return len(r.jobs)
}

// Job looks up a job by number.
func (r *Registry) Job(n int) (models.Job, bool) {
	if n < 0 || n >= len(r.jobs) {
		return models.Job{}, false
	}
	return r.jobs[n], true
}

// Jobs returns all jobs in ascending number order.
func (r *Registry) Jobs() []models.Job {
	return append([]models.Job(nil), r.jobs...)
}

// ByNickname groups the jobs by dataset, each group in ascending number order.
func (r *Registry) ByNickname() map[string][]models.Job {
	groups := make(map[string][]models.Job)
	for _, j := range r.jobs {
		nick := j.Nickname()
		groups[nick] = append(groups[nick], j)
	}
	return groups
}

// Save writes the registry to path.
func (r *Registry) Save(path string) error {
	doc := document{Plan: r.header, Jobs: make(map[string]models.Job, len(r.jobs))}
	for _, j := range r.jobs {
		doc.Jobs[strconv.Itoa(j.Number)] = j
	}
	if err := writeJSON(path, doc); err != nil {
		return fmt.Errorf("failed to save job registry: %w", err)
	}
	return nil
}

// Load reads a registry written by Save.
func Load(path string) (*Registry, error) {
	var doc document
	if err := readJSON(path, &doc); err != nil {
		return nil, fmt.Errorf("failed to load job registry: %w", err)
	}

	jobs := make([]models.Job, 0, len(doc.Jobs))
	for key, j := range doc.Jobs {
		n, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("invalid job number %q in %s", key, path)
		}
		j.Number = n
		jobs = append(jobs, j)
	}
	r, err := New(doc.Plan, jobs)
	if err != nil {
		return nil, fmt.Errorf("invalid job registry %s: %w", path, err)
	}
	return r, nil
}

// SaveCatalog writes the dataset catalog snapshot to path.
func SaveCatalog(path string, cat *models.Catalog) error {
	if err := writeJSON(path, cat); err != nil {
		return fmt.Errorf("failed to save dataset catalog: %w", err)
	}
	return nil
}

// LoadCatalog reads a catalog written by SaveCatalog.
func LoadCatalog(path string) (*models.Catalog, error) {
	cat := &models.Catalog{}
	if err := readJSON(path, cat); err != nil {
		return nil, fmt.Errorf("failed to load dataset catalog: %w", err)
	}
	return cat, nil
}

// writeJSON writes v to a temporary file next to path and renames it into place.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to rename %s: %w", tmpName, err)
	}
	success = true
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s not found (run submit first): %w", path, err)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
