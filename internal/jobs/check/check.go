// Package check validates job outputs against the registry and prepares the
// resubmission of every job without a valid output.
package check

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/higgsanalysis/ftjobs/internal/config"
	"github.com/higgsanalysis/ftjobs/internal/datafile"
	"github.com/higgsanalysis/ftjobs/internal/jobs/batch"
	"github.com/higgsanalysis/ftjobs/internal/jobs/registry"
	"github.com/higgsanalysis/ftjobs/internal/logging"
	"github.com/higgsanalysis/ftjobs/internal/models"
	"github.com/higgsanalysis/ftjobs/internal/progress"
)

// Report is the outcome of a check run. Job numbers are ascending.
type Report struct {
	Valid    []int
	Corrupt  []int
	Missing  []int
	Resubmit []int

	ArgumentList string
	// Empty when nothing needs resubmitting.
	Descriptor string
	LogDir     string
}

// Classification returns how a job's output was classified.
func (r *Report) Classification(job int) models.Classification {
	for _, n := range r.Corrupt {
		if n == job {
			return models.OutputCorrupt
		}
	}
	for _, n := range r.Missing {
		if n == job {
			return models.OutputMissing
		}
	}
	return models.OutputValid
}

// Checker classifies outputs and writes the resubmission files.
type Checker struct {
	store    datafile.Store
	layout   config.Layout
	out      io.Writer
	progress progress.Reporter
	logger   *logging.Logger
}

// New creates a checker. The submit instruction for the resubmission goes to out.
func New(store datafile.Store, layout config.Layout, out io.Writer, logger *logging.Logger) *Checker {
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Checker{store: store, layout: layout, out: out, progress: progress.NewNoOpProgress(), logger: logger}
}

// SetProgress sets the reporter advanced once per checked job.
func (c *Checker) SetProgress(r progress.Reporter) {
	if r != nil {
		c.progress = r
	}
}

// Classify checks the expected output of one job.
func (c *Checker) Classify(job models.Job) (models.Classification, error) {
	path := c.layout.OutputPath(job)
	err := c.store.CheckIntegrity(path)
	switch {
	case err == nil:
		return models.OutputValid, nil
	case errors.Is(err, datafile.ErrNotExist):
		return models.OutputMissing, nil
	case errors.Is(err, datafile.ErrCorrupt):
		return models.OutputCorrupt, &models.IntegrityError{Job: job.Number, Path: path, Err: err}
	default:
		return "", fmt.Errorf("failed to check output of job %d: %w", job.Number, err)
	}
}

// Run classifies every registry job, deletes corrupt outputs and writes the
// resubmission argument list. When jobs need resubmitting, a descriptor derived from
// the batch 0 descriptor is written next to it, logging into a fresh directory.
func (c *Checker) Run(reg *registry.Registry) (*Report, error) {
	report := &Report{ArgumentList: c.layout.ResubmitArgumentListPath()}

	c.progress.Start(int64(reg.Len()), "Checking outputs")
	for _, job := range reg.Jobs() {
		class, err := c.Classify(job)
		c.progress.Increment()
		if err != nil && class != models.OutputCorrupt {
			c.progress.Finish()
			return nil, err
		}
		switch class {
		case models.OutputValid:
			report.Valid = append(report.Valid, job.Number)
			continue
		case models.OutputCorrupt:
			c.logger.Warn().Err(err).Int("job", job.Number).Msg("Corrupt output, deleting it")
			if err := os.Remove(c.layout.OutputPath(job)); err != nil && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to delete corrupt output of job %d: %w", job.Number, err)
			}
			report.Corrupt = append(report.Corrupt, job.Number)
		case models.OutputMissing:
			c.logger.Debug().Int("job", job.Number).Str("path", c.layout.OutputPath(job)).Msg("Output missing")
			report.Missing = append(report.Missing, job.Number)
		}
		report.Resubmit = append(report.Resubmit, job.Number)
	}
	c.progress.Finish()

	if err := config.EnsureDir(c.layout.ArgumentsDir()); err != nil {
		return nil, err
	}
	if err := batch.WriteArgumentList(report.ArgumentList, report.Resubmit); err != nil {
		return nil, fmt.Errorf("failed to write resubmission list: %w", err)
	}

	c.logger.Info().
		Int("valid", len(report.Valid)).
		Int("corrupt", len(report.Corrupt)).
		Int("missing", len(report.Missing)).
		Msg("Outputs checked")

	if len(report.Resubmit) == 0 {
		if err := os.Remove(c.layout.ResubmitDescriptorPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to remove stale resubmission descriptor: %w", err)
		}
		fmt.Fprintln(c.out, "All job outputs are valid, nothing to resubmit.")
		return report, nil
	}

	if err := c.writeDescriptor(report); err != nil {
		return nil, err
	}
	fmt.Fprintf(c.out, "%d jobs need resubmission. To run it, execute the following:\n", len(report.Resubmit))
	fmt.Fprintln(c.out, batch.SubmitInstruction(c.layout.Workdir, report.Descriptor))
	return report, nil
}

// writeDescriptor patches the text of the batch 0 descriptor, so that edits made
// to it by hand carry over to the resubmission.
func (c *Checker) writeDescriptor(report *Report) error {
	source := c.layout.DescriptorPath(0)
	data, err := os.ReadFile(source)
	if err != nil {
		return fmt.Errorf("failed to read descriptor %s: %w", source, err)
	}
	text := string(data)
	if !strings.Contains(text, c.layout.ArgumentListPath(0)) {
		return fmt.Errorf("descriptor %s does not reference %s, cannot derive the resubmission", source, c.layout.ArgumentListPath(0))
	}

	logDir, err := c.layout.NextResubmitLogDir()
	if err != nil {
		return err
	}
	report.LogDir = logDir
	if err := config.EnsureDir(report.LogDir); err != nil {
		return err
	}

	text = strings.ReplaceAll(text, c.layout.ArgumentListPath(0), report.ArgumentList)
	text = strings.ReplaceAll(text, c.layout.BatchLogDir(0), report.LogDir)

	report.Descriptor = c.layout.ResubmitDescriptorPath()
	if err := os.WriteFile(report.Descriptor, []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to write resubmission descriptor: %w", err)
	}
	return nil
}
