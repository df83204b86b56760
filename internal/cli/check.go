package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/higgsanalysis/ftjobs/internal/jobs/check"
	"github.com/higgsanalysis/ftjobs/internal/jobs/registry"
	"github.com/higgsanalysis/ftjobs/internal/progress"
)

// newCheckCmd creates the 'check' command.
func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate job outputs and prepare a resubmission",
		Long: `Check the output of every registered job. Corrupt outputs are deleted; missing
and corrupt jobs are written to arguments/arguments_resubmit.txt together with a
resubmission descriptor derived from the first batch descriptor.

Example:
  ftjobs check --executable SVFit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()

			cfg, err := loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			if err := cfg.ValidateCommon(); err != nil {
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
			logger.Info().Str("plan", reg.Header().ID).Int("jobs", reg.Len()).Msg("Checking job outputs")

			checker := check.New(store, layout, cmd.OutOrStdout(), logger)
			checker.SetProgress(progress.ForWriter(cmd.ErrOrStderr()))
			report, err := checker.Run(reg)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ %d valid, %d corrupt (deleted), %d missing; %d jobs to resubmit\n",
				len(report.Valid), len(report.Corrupt), len(report.Missing), len(report.Resubmit))
			return nil
		},
	}
	return cmd
}
