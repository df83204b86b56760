package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/higgsanalysis/ftjobs/internal/constants"
	"github.com/higgsanalysis/ftjobs/internal/models"
)

// DefaultWorkdir returns $CMSSW_BASE/src/<exe>_workdir, or ./<exe>_workdir outside
// a CMSSW environment.
func DefaultWorkdir(executable string) string {
	name := filepath.Base(executable) + "_workdir"
	if base := os.Getenv("CMSSW_BASE"); base != "" {
		return filepath.Join(base, "src", name)
	}
	return name
}

// Layout derives every path of a work directory. Nothing here touches the disk.
//
//	<workdir>/condor_<exe>.json              job registry
//	<workdir>/condor_<exe>_datasets.json     dataset catalog
//	<workdir>/condor_<exe>.sh                dispatch script
//	<workdir>/condor_<exe>_<b>.jdl           batch descriptors
//	<workdir>/arguments/arguments_<b>.txt    batch argument lists
//	<workdir>/logging/batch_<b>/             batch logs
//	<workdir>/<nick>/<nick>_<stream>_<first>_<last>.root
//	<workdir>/collected/<nick>/<nick>.root
type Layout struct {
	Workdir string
	name    string
}

// NewLayout creates the layout for an executable's work directory.
func NewLayout(workdir, executable string) Layout {
	return Layout{Workdir: workdir, name: filepath.Base(executable)}
}

// Layout returns the layout of the configured work directory.
func (c *Config) Layout() Layout {
	return NewLayout(c.Workdir, c.Executable)
}

func (l Layout) prefixed(suffix string) string {
	return filepath.Join(l.Workdir, "condor_"+l.name+suffix)
}

// RegistryPath is the job registry document.
func (l Layout) RegistryPath() string { return l.prefixed(".json") }

// CatalogPath is the dataset catalog document.
func (l Layout) CatalogPath() string { return l.prefixed("_datasets.json") }

// ScriptPath is the dispatch script shared by all batches.
func (l Layout) ScriptPath() string { return l.prefixed(".sh") }

// DescriptorPath is the submission descriptor of a batch.
func (l Layout) DescriptorPath(batch int) string {
	return l.prefixed(fmt.Sprintf("_%d.jdl", batch))
}

// ResubmitDescriptorPath is the descriptor written by check.
func (l Layout) ResubmitDescriptorPath() string {
	return l.prefixed("_" + constants.ResubmitSuffix + ".jdl")
}

// ArgumentsDir holds the argument lists.
func (l Layout) ArgumentsDir() string {
	return filepath.Join(l.Workdir, constants.ArgumentsDir)
}

// ArgumentListPath is the argument list of a batch.
func (l Layout) ArgumentListPath(batch int) string {
	return filepath.Join(l.ArgumentsDir(), fmt.Sprintf("arguments_%d.txt", batch))
}

// ResubmitArgumentListPath is the argument list written by check.
func (l Layout) ResubmitArgumentListPath() string {
	return filepath.Join(l.ArgumentsDir(), "arguments_"+constants.ResubmitSuffix+".txt")
}

// LoggingDir holds all cluster logs.
func (l Layout) LoggingDir() string {
	return filepath.Join(l.Workdir, constants.LoggingDir)
}

// BatchLogDir is the log directory of a batch.
func (l Layout) BatchLogDir(batch int) string {
	return filepath.Join(l.LoggingDir(), fmt.Sprintf("batch_%d", batch))
}

// ResubmitLogDir is the log directory of the n-th resubmission.
func (l Layout) ResubmitLogDir(n int) string {
	return filepath.Join(l.LoggingDir(), fmt.Sprintf("%s_%d", constants.ResubmitSuffix, n))
}

// NextResubmitLogDir returns the first resubmission log directory that does not exist yet.
func (l Layout) NextResubmitLogDir() (string, error) {
	for n := 0; ; n++ {
		dir := l.ResubmitLogDir(n)
		_, err := os.Stat(dir)
		switch {
		case err == nil:
			continue
		case errors.Is(err, os.ErrNotExist):
			return dir, nil
		default:
			return "", fmt.Errorf("failed to look up resubmission log directory: %w", err)
		}
	}
}

// OutputPath is where a job's output must land.
func (l Layout) OutputPath(job models.Job) string {
	return filepath.Join(l.Workdir, job.OutputName())
}

// CollectedPath is the merged output of a dataset.
func (l Layout) CollectedPath(nick string) string {
	return filepath.Join(l.Workdir, constants.CollectedDir, nick, nick+constants.OutputExtension)
}

// EnsureDir creates a directory tree if it doesn't exist.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}
