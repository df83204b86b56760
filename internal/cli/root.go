// Package cli provides the command-line interface for ftjobs.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/higgsanalysis/ftjobs/internal/config"
	"github.com/higgsanalysis/ftjobs/internal/datafile"
	"github.com/higgsanalysis/ftjobs/internal/datafile/flatfile"
	"github.com/higgsanalysis/ftjobs/internal/datafile/rootio"
	"github.com/higgsanalysis/ftjobs/internal/logging"
	"github.com/higgsanalysis/ftjobs/internal/version"
)

var (
	// Global flags
	cfgFile string
	verbose bool

	// Global logger
	logger *logging.Logger

	// Configuration sources of the running command
	v *viper.Viper

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	v = viper.New()

	rootCmd := &cobra.Command{
		Use:   "ftjobs",
		Short: "Friend-tree job manager for HTCondor",
		Long: `ftjobs ` + version.Version + ` - Built: ` + version.BuildTime + `
Splits ROOT ntuple datasets into jobs, writes HTCondor submission files,
checks job outputs and merges them back into one file per dataset.

Typical workflow:
  ftjobs submit  --executable SVFit --input-dir /store/ntuples
  (run the printed condor_submit commands)
  ftjobs check   --executable SVFit
  ftjobs collect --executable SVFit`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewLogger(cmd.ErrOrStderr())
			if verbose {
				logging.SetGlobalLevel(-1) // Debug level (zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	rootCmd.PersistentFlags().StringP("executable", "e", "", "Friend-tree executable run by every job")
	rootCmd.PersistentFlags().StringP("workdir", "w", "", "Work directory (default $CMSSW_BASE/src/<executable>_workdir)")
	rootCmd.PersistentFlags().String("tree", "", "Tree name inside every stream directory (default ntuple)")
	rootCmd.PersistentFlags().String("data-backend", "", "Data file backend: root or flat (default root)")

	rootCmd.Version = version.String()
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	// Create a context that can be cancelled by signals
	rootContext, cancelFunc = context.WithCancel(context.Background())
	defer cancelFunc()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\nReceived signal %v, finishing running merges...\n", sig)
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.Execute()

	signal.Stop(sigChan)
	close(sigChan)

	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newSubmitCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newCollectCmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return logger
}

// GetContext returns the global CLI context with signal handling.
// This context will be cancelled when the user presses Ctrl+C.
func GetContext() context.Context {
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}

// globalBindings maps configuration keys to the persistent flags of the root command.
var globalBindings = map[string]string{
	"executable":   "executable",
	"workdir":      "workdir",
	"tree":         "tree",
	"data_backend": "data-backend",
}

// loadConfig binds the flags of the running command and loads the configuration.
// Binding happens here rather than at construction since viper keeps one flag per key.
func loadConfig(cmd *cobra.Command, bindings map[string]string) (*config.Config, error) {
	if v == nil {
		v = viper.New()
	}
	if err := bindFlags(cmd.Flags(), globalBindings); err != nil {
		return nil, err
	}
	if err := bindFlags(cmd.Flags(), bindings); err != nil {
		return nil, err
	}

	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, err
	}
	GetLogger().Debug().
		Str("executable", cfg.Executable).
		Str("workdir", cfg.Workdir).
		Str("backend", cfg.DataBackend).
		Msg("Configuration loaded")
	return cfg, nil
}

func bindFlags(flags *pflag.FlagSet, bindings map[string]string) error {
	for key, name := range bindings {
		flag := flags.Lookup(name)
		if flag == nil {
			return fmt.Errorf("flag --%s is not defined", name)
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// newStore returns the data file backend selected by the configuration.
func newStore(cfg *config.Config) (datafile.Store, error) {
	switch cfg.DataBackend {
	case config.BackendROOT:
		return rootio.New(), nil
	case config.BackendFlat:
		return flatfile.New(), nil
	default:
		return nil, fmt.Errorf("unknown data backend %q", cfg.DataBackend)
	}
}
