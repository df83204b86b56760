package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/higgsanalysis/ftjobs/internal/jobs/merge"
	"github.com/higgsanalysis/ftjobs/internal/jobs/registry"
	"github.com/higgsanalysis/ftjobs/internal/progress"
)

// newCollectCmd creates the 'collect' command.
func newCollectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Merge job outputs into one file per dataset",
		Long: `Concatenate the outputs of all jobs of a dataset, stream by stream and in entry
order, into collected/<nick>/<nick>.root. Datasets are merged in parallel; a
dataset with a missing output fails on its own without stopping the others.

Example:
  ftjobs collect --executable SVFit --workers 8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()

			cfg, err := loadConfig(cmd, map[string]string{"merge_workers": "workers"})
			if err != nil {
				return err
			}
			if err := cfg.ValidateCollect(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			store, err := newStore(cfg)
			if err != nil {
				return err
			}
			layout := cfg.Layout()

			reg, err := registry.Load(layout.RegistryPath())
			if err != nil {
				return err
			}
			logger.Info().Str("plan", reg.Header().ID).Int("workers", cfg.MergeWorkers).Msg("Merging job outputs")

			m, err := merge.New(store, layout, cfg.MergeWorkers, progress.TrackerForWriter(cmd.ErrOrStderr()), logger)
			if err != nil {
				return err
			}
			results, mergeErr := m.Run(GetContext(), reg)

			merged := 0
			for _, r := range results {
				if r.OK() {
					merged++
					fmt.Fprintf(cmd.OutOrStdout(), "✓ %s: %d entries -> %s\n", r.Nickname, r.Entries, r.Output)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "✗ %s: %v\n", r.Nickname, r.Err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d datasets merged\n", merged, len(results))
			if mergeErr != nil {
				return fmt.Errorf("%d datasets failed to merge: %w", len(results)-merged, mergeErr)
			}
			return nil
		},
	}

	cmd.Flags().Int("workers", 0, "Datasets merged in parallel (default 4)")
	return cmd
}
