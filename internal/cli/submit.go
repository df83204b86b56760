package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/higgsanalysis/ftjobs/internal/config"
	"github.com/higgsanalysis/ftjobs/internal/jobs/batch"
	"github.com/higgsanalysis/ftjobs/internal/jobs/catalog"
	"github.com/higgsanalysis/ftjobs/internal/jobs/planner"
	"github.com/higgsanalysis/ftjobs/internal/jobs/registry"
)

// newSubmitCmd creates the 'submit' command.
func newSubmitCmd() *cobra.Command {
	var friends []string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Plan jobs and write HTCondor submission files",
		Long: `Discover the datasets below the input directory, split every stream into jobs
and write the job registry, the dispatch script and one submission descriptor per
batch into the work directory. The condor_submit commands are printed, not run.

Example:
  ftjobs submit --executable SVFit --input-dir /store/ntuples \
    --events-per-job 20000 --restrict-channels mt,et \
    --friend mt=/store/friends/mela`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()

			cfg, err := loadConfig(cmd, map[string]string{
				"input_ntuples_directory":   "input-dir",
				"input_pattern":             "pattern",
				"events_per_job":            "events-per-job",
				"max_jobs_per_batch":        "max-jobs-per-batch",
				"batch_cluster":             "batch-cluster",
				"walltime":                  "walltime",
				"restrict_to_channels":      "restrict-channels",
				"restrict_to_shifts":        "restrict-shifts",
				"disable_channel_overrides": "no-channel-overrides",
				"descriptor_template":       "descriptor-template",
				"output_flag":               "output-flag",
				"option_style":              "option-style",
			})
			if err != nil {
				return err
			}
			if err := cfg.AddFriendDirectories(friends); err != nil {
				return err
			}
			if err := cfg.ValidateSubmit(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			store, err := newStore(cfg)
			if err != nil {
				return err
			}
			layout := cfg.Layout()

			logger.Info().
				Str("input", cfg.InputDirectory).
				Str("pattern", cfg.InputPattern).
				Str("path", layout.Workdir).
				Msg("Discovering datasets")

			paths, err := catalog.Discover(cfg.InputDirectory, cfg.InputPattern)
			if err != nil {
				return err
			}
			cat, warnings, err := catalog.NewBuilder(store, cfg.Tree, logger).Build(paths)
			if err != nil {
				return err
			}

			p, err := planner.New(planner.OptionsFromConfig(cfg), logger)
			if err != nil {
				return err
			}
			plan, err := p.Plan(cat)
			if err != nil {
				return err
			}
			if len(plan.Jobs) == 0 {
				return fmt.Errorf("no jobs planned: every stream is empty or excluded by the restrictions")
			}

			reg, err := registry.New(registry.NewHeader(cfg.Executable, cfg.EventsPerJob, cfg.MaxJobsPerBatch, cfg.InputDirectory), plan.Jobs)
			if err != nil {
				return err
			}
			if err := config.EnsureDir(layout.Workdir); err != nil {
				return err
			}
			if err := reg.Save(layout.RegistryPath()); err != nil {
				return err
			}
			if err := registry.SaveCatalog(layout.CatalogPath(), plan.Catalog); err != nil {
				return err
			}

			w, err := batch.NewWriter(layout, batch.OptionsFromConfig(cfg), cmd.OutOrStdout(), logger)
			if err != nil {
				return err
			}
			batches, err := w.Write(reg)
			if err != nil {
				return err
			}

			logger.Info().
				Str("plan", reg.Header().ID).
				Int("datasets", plan.Catalog.Len()).
				Int("jobs", reg.Len()).
				Int("batches", len(batches)).
				Int("empty_streams", len(warnings)).
				Msg("Submission prepared")

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Planned %d jobs (%d entries) in %d batches\n", reg.Len(), plan.TotalEntries(), len(batches))
			return nil
		},
	}

	cmd.Flags().StringP("input-dir", "i", "", "Directory with the input ntuples (required)")
	cmd.Flags().String("pattern", "", "Dataset file pattern below the input directory (default */*.root)")
	cmd.Flags().Int64("events-per-job", 0, "Entries per job (default 50000)")
	cmd.Flags().Int("max-jobs-per-batch", 0, "Jobs per submission descriptor (default 5000)")
	cmd.Flags().String("batch-cluster", "", "Descriptor template to use: naf or etp (default naf)")
	cmd.Flags().Duration("walltime", 0, "Requested runtime per job, e.g. 3h")
	cmd.Flags().StringSlice("restrict-channels", nil, "Only plan these channels (comma separated)")
	cmd.Flags().StringSlice("restrict-shifts", nil, "Only plan these shifts (comma separated)")
	cmd.Flags().Bool("no-channel-overrides", false, "Disable the implicit channel restriction of data streams")
	cmd.Flags().String("descriptor-template", "", "Custom descriptor template file")
	cmd.Flags().String("output-flag", "", "Pass the expected output path to the executable with this option")
	cmd.Flags().String("option-style", "", "Spelling of executable options: underscore (--first_entry) or hyphen (--first-entry)")
	cmd.Flags().StringArrayVar(&friends, "friend", nil, "Friend ntuple directory as channel=dir, '*' for all channels (repeatable)")

	return cmd
}
