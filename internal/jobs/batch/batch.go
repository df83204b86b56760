// Package batch writes the files an operator needs to submit planned jobs to an
// HTCondor cluster: one dispatch script, and per batch an argument list and a
// submission descriptor. Submission itself is left to the operator.
package batch

import (
	"bytes"
	"embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/alessio/shellescape"

	"github.com/higgsanalysis/ftjobs/internal/config"
	"github.com/higgsanalysis/ftjobs/internal/constants"
	"github.com/higgsanalysis/ftjobs/internal/jobs/registry"
	"github.com/higgsanalysis/ftjobs/internal/logging"
	"github.com/higgsanalysis/ftjobs/internal/models"
)

//go:embed templates/*.jdl
var builtinTemplates embed.FS

// Clusters lists the built-in descriptor templates.
var Clusters = []string{"naf", "etp"}

// Slice cuts jobs into batches of at most size contiguous job numbers.
func Slice(jobs []models.Job, size int) ([]models.Batch, error) {
	if size <= 0 {
		return nil, fmt.Errorf("max jobs per batch must be positive, got %d", size)
	}
	var batches []models.Batch
	for start := 0; start < len(jobs); start += size {
		end := min(start+size, len(jobs))
		numbers := make([]int, 0, end-start)
		for _, j := range jobs[start:end] {
			numbers = append(numbers, j.Number)
		}
		batches = append(batches, models.Batch{Number: len(batches), Jobs: numbers})
	}
	return batches, nil
}

// DescriptorData is what a descriptor template can reference.
type DescriptorData struct {
	TaskDir      string
	Executable   string
	ArgumentList string
	LogDir       string
	Walltime     int64 // seconds
	PlanID       string
	Batch        int
	JobBatchName string
}

// Options configures a Writer.
type Options struct {
	Executable      string
	OutputFlag      string
	OptionStyle     models.OptionStyle
	Cluster         string
	TemplatePath    string
	Walltime        time.Duration
	MaxJobsPerBatch int
}

// OptionsFromConfig maps the loaded configuration onto writer options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Executable:      cfg.Executable,
		OutputFlag:      cfg.OutputFlag,
		OptionStyle:     models.OptionStyle(cfg.OptionStyle),
		Cluster:         cfg.BatchCluster,
		TemplatePath:    cfg.DescriptorTemplate,
		Walltime:        cfg.Walltime,
		MaxJobsPerBatch: cfg.MaxJobsPerBatch,
	}
}

// Writer renders the submission files of a registry into a work directory.
type Writer struct {
	layout config.Layout
	opts   Options
	tpl    *template.Template
	out    io.Writer
	logger *logging.Logger
}

// NewWriter loads the descriptor template. A custom template file takes precedence
// over the built-in template of the cluster.
func NewWriter(layout config.Layout, opts Options, out io.Writer, logger *logging.Logger) (*Writer, error) {
	if opts.MaxJobsPerBatch <= 0 {
		return nil, fmt.Errorf("max jobs per batch must be positive, got %d", opts.MaxJobsPerBatch)
	}
	if opts.Walltime <= 0 {
		opts.Walltime = constants.DefaultWalltime
	}
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	var src []byte
	var err error
	if opts.TemplatePath != "" {
		src, err = os.ReadFile(opts.TemplatePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read descriptor template: %w", err)
		}
	} else {
		src, err = builtinTemplates.ReadFile("templates/" + opts.Cluster + ".jdl")
		if err != nil {
			return nil, fmt.Errorf("unknown batch cluster %q (available: %s)", opts.Cluster, strings.Join(Clusters, ", "))
		}
	}
	tpl, err := template.New("descriptor").Option("missingkey=error").Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("failed to parse descriptor template: %w", err)
	}

	return &Writer{layout: layout, opts: opts, tpl: tpl, out: out, logger: logger}, nil
}

// Write creates the work directory structure and all submission files, then prints
// the submit command of every batch. It can be repeated safely.
func (w *Writer) Write(reg *registry.Registry) ([]models.Batch, error) {
	jobs := reg.Jobs()
	batches, err := Slice(jobs, w.opts.MaxJobsPerBatch)
	if err != nil {
		return nil, err
	}

	dirs := []string{w.layout.Workdir, w.layout.ArgumentsDir(), w.layout.LoggingDir()}
	for _, b := range batches {
		dirs = append(dirs, w.layout.BatchLogDir(b.Number))
	}
	for _, dir := range dirs {
		if err := config.EnsureDir(dir); err != nil {
			return nil, err
		}
	}

	if err := w.writeScript(jobs); err != nil {
		return nil, err
	}

	for _, b := range batches {
		if err := w.writeArgumentList(w.layout.ArgumentListPath(b.Number), b.Jobs); err != nil {
			return nil, err
		}
		data := w.descriptorData(reg.Header().ID, b.Number, w.layout.ArgumentListPath(b.Number), w.layout.BatchLogDir(b.Number))
		if err := w.writeDescriptor(w.layout.DescriptorPath(b.Number), data); err != nil {
			return nil, err
		}
		w.logger.Debug().Int("batch", b.Number).Int("jobs", len(b.Jobs)).Msg("Batch written")
	}

	w.logger.Info().Int("jobs", len(jobs)).Int("batches", len(batches)).Str("path", w.layout.Workdir).Msg("Submission files written")

	fmt.Fprintln(w.out, "To run the condor submission, execute the following:")
	for _, b := range batches {
		fmt.Fprintln(w.out, SubmitInstruction(w.layout.Workdir, w.layout.DescriptorPath(b.Number)))
	}
	return batches, nil
}

// SubmitInstruction is the command line the operator runs for one descriptor.
func SubmitInstruction(workdir, descriptor string) string {
	return fmt.Sprintf("cd %s; %s %s", shellescape.Quote(workdir), constants.SubmitCommand, shellescape.Quote(descriptor))
}

func (w *Writer) descriptorData(planID string, batch int, argList, logDir string) DescriptorData {
	return DescriptorData{
		TaskDir:      w.layout.Workdir,
		Executable:   w.layout.ScriptPath(),
		ArgumentList: argList,
		LogDir:       logDir,
		Walltime:     int64(w.opts.Walltime / time.Second),
		PlanID:       planID,
		Batch:        batch,
		JobBatchName: fmt.Sprintf("%s_%d", filepath.Base(w.opts.Executable), batch),
	}
}

// Script renders the dispatch script: job number in, one executable invocation out.
func Script(workdir, executable, outputFlag string, style models.OptionStyle, jobs []models.Job) string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("ulimit -s unlimited\n")
	b.WriteString("set -e\n")
	fmt.Fprintf(&b, "cd %s\n\n", shellescape.Quote(workdir))
	b.WriteString("case \"$1\" in\n")
	for _, j := range jobs {
		argv := models.CommandLine(executable, j.Args(outputFlag), style)
		fmt.Fprintf(&b, "  %d)\n    %s\n    ;;\n", j.Number, shellescape.QuoteCommand(argv))
	}
	b.WriteString("  *)\n    echo \"unknown job number: $1\" >&2\n    exit 1\n    ;;\nesac\n")
	return b.String()
}

func (w *Writer) writeScript(jobs []models.Job) error {
	path := w.layout.ScriptPath()
	content := Script(w.layout.Workdir, w.opts.Executable, w.opts.OutputFlag, w.opts.OptionStyle, jobs)
	if err := os.WriteFile(path, []byte(content), 0755); err != nil {
		return fmt.Errorf("failed to write dispatch script: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(path, 0755); err != nil {
		return fmt.Errorf("failed to make dispatch script executable: %w", err)
	}
	return nil
}

func (w *Writer) writeArgumentList(path string, numbers []int) error {
	if err := WriteArgumentList(path, numbers); err != nil {
		return fmt.Errorf("failed to write argument list: %w", err)
	}
	return nil
}

// WriteArgumentList writes job numbers one per line. An empty list gives an empty file.
func WriteArgumentList(path string, numbers []int) error {
	var b bytes.Buffer
	for _, n := range numbers {
		b.WriteString(strconv.Itoa(n))
		b.WriteByte('\n')
	}
	return os.WriteFile(path, b.Bytes(), 0644)
}

func (w *Writer) writeDescriptor(path string, data DescriptorData) error {
	var b bytes.Buffer
	if err := w.tpl.Execute(&b, data); err != nil {
		return fmt.Errorf("failed to render descriptor %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, b.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write descriptor: %w", err)
	}
	return nil
}
