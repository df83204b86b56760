// Package config provides configuration loading and validation for the job manager.
// Values come from, in increasing priority: defaults, a YAML config file, FTJOBS_*
// environment variables and command-line flags.
package config

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"

	"github.com/higgsanalysis/ftjobs/internal/constants"
	"github.com/higgsanalysis/ftjobs/internal/models"
	"github.com/higgsanalysis/ftjobs/internal/pathutil"
)

// Data backends
const (
	BackendROOT = "root"
	BackendFlat = "flat"
)

// FriendWildcard keys friend directories that apply to every channel.
const FriendWildcard = "*"

// Override implicitly restricts datasets whose nickname matches Pattern to Channels.
type Override struct {
	Pattern  string   `mapstructure:"pattern"`
	Channels []string `mapstructure:"channels"`
}

// DefaultOverrides returns the data-stream rules: a single-lepton or di-tau data
// stream only carries events of its own channel.
func DefaultOverrides() []Override {
	return []Override{
		{Pattern: "SingleElectron|EGamma", Channels: []string{"et"}},
		{Pattern: "SingleMuon", Channels: []string{"mt"}},
		{Pattern: "MuonEG", Channels: []string{"em"}},
		{Pattern: "^Tau_", Channels: []string{"tt"}},
	}
}

// Config holds every setting of submit, check and collect.
type Config struct {
	Executable     string `mapstructure:"executable"`
	BatchCluster   string `mapstructure:"batch_cluster"`
	InputDirectory string `mapstructure:"input_ntuples_directory"`
	InputPattern   string `mapstructure:"input_pattern"`
	Tree           string `mapstructure:"tree"`

	EventsPerJob    int64         `mapstructure:"events_per_job"`
	MaxJobsPerBatch int           `mapstructure:"max_jobs_per_batch"`
	Walltime        time.Duration `mapstructure:"walltime"`

	RestrictChannels []string `mapstructure:"restrict_to_channels"`
	RestrictShifts   []string `mapstructure:"restrict_to_shifts"`

	// Channel (or "*") -> friend ntuple directories replacing InputDirectory in a
	// dataset path.
	FriendDirectories map[string][]string `mapstructure:"friend_ntuples_directories"`

	ChannelOverrides        []Override `mapstructure:"channel_overrides"`
	DisableChannelOverrides bool       `mapstructure:"disable_channel_overrides"`

	MergeWorkers int `mapstructure:"merge_workers"`

	Workdir            string `mapstructure:"workdir"`
	DescriptorTemplate string `mapstructure:"descriptor_template"`
	OutputFlag         string `mapstructure:"output_flag"`
	OptionStyle        string `mapstructure:"option_style"`
	DataBackend        string `mapstructure:"data_backend"`
}

// SetDefaults registers the default of every key so that environment variables are
// picked up for all of them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("executable", "")
	v.SetDefault("batch_cluster", constants.DefaultBatchCluster)
	v.SetDefault("input_ntuples_directory", "")
	v.SetDefault("input_pattern", constants.DefaultInputPattern)
	v.SetDefault("tree", constants.DefaultTreeName)
	v.SetDefault("events_per_job", constants.DefaultEventsPerJob)
	v.SetDefault("max_jobs_per_batch", constants.DefaultMaxJobsPerBatch)
	v.SetDefault("walltime", time.Duration(0))
	v.SetDefault("restrict_to_channels", []string{})
	v.SetDefault("restrict_to_shifts", []string{})
	v.SetDefault("friend_ntuples_directories", map[string][]string{})
	v.SetDefault("disable_channel_overrides", false)
	v.SetDefault("merge_workers", constants.DefaultMergeWorkers)
	v.SetDefault("workdir", "")
	v.SetDefault("descriptor_template", "")
	v.SetDefault("output_flag", "")
	v.SetDefault("option_style", string(models.OptionUnderscore))
	v.SetDefault("data_backend", BackendROOT)
}

// Load reads the configuration from v, which may already have flags bound. An
// empty path skips the config file.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix("FTJOBS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.normalize()
	return &cfg, nil
}

func (c *Config) normalize() {
	c.RestrictChannels = splitList(c.RestrictChannels)
	c.RestrictShifts = splitList(c.RestrictShifts)
	if c.ChannelOverrides == nil && !c.DisableChannelOverrides {
		c.ChannelOverrides = DefaultOverrides()
	}
	if c.DisableChannelOverrides {
		c.ChannelOverrides = nil
	}
	if c.Workdir == "" && c.Executable != "" {
		c.Workdir = DefaultWorkdir(c.Executable)
	}
	c.InputDirectory = resolve(c.InputDirectory)
	c.Workdir = resolve(c.Workdir)
	c.DescriptorTemplate = resolve(c.DescriptorTemplate)
	for ch, dirs := range c.FriendDirectories {
		for i, dir := range dirs {
			dirs[i] = resolve(dir)
		}
		c.FriendDirectories[ch] = dirs
	}
}

// resolve makes a configured path absolute, leaving empty values and failures as given.
func resolve(path string) string {
	if path == "" {
		return ""
	}
	if abs, err := pathutil.ResolveAbsolutePath(path); err == nil {
		return abs
	}
	return path
}

// splitList accepts both proper lists and comma-separated values coming from
// environment variables.
func splitList(in []string) []string {
	out := []string{}
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// AddFriendDirectories merges "channel=dir" pairs, as given on the command line.
func (c *Config) AddFriendDirectories(pairs []string) error {
	for _, pair := range pairs {
		channel, dir, ok := strings.Cut(pair, "=")
		if !ok || channel == "" || dir == "" {
			return fmt.Errorf("invalid friend directory %q (expected channel=directory)", pair)
		}
		if c.FriendDirectories == nil {
			c.FriendDirectories = make(map[string][]string)
		}
		c.FriendDirectories[channel] = append(c.FriendDirectories[channel], resolve(dir))
	}
	return nil
}

// ValidateCommon checks the settings every command needs.
func (c *Config) ValidateCommon() error {
	var result *multierror.Error
	if c.Executable == "" {
		result = multierror.Append(result, fmt.Errorf("executable is required"))
	}
	if c.Workdir == "" {
		result = multierror.Append(result, fmt.Errorf("workdir could not be determined"))
	}
	switch c.DataBackend {
	case BackendROOT, BackendFlat:
	default:
		result = multierror.Append(result, fmt.Errorf("unknown data_backend %q (use %s or %s)", c.DataBackend, BackendROOT, BackendFlat))
	}
	if c.Tree == "" {
		result = multierror.Append(result, fmt.Errorf("tree name is required"))
	}
	return result.ErrorOrNil()
}

// ValidateSubmit checks the settings of the submit command.
func (c *Config) ValidateSubmit() error {
	var result *multierror.Error
	if err := c.ValidateCommon(); err != nil {
		result = multierror.Append(result, err)
	}
	if c.InputDirectory == "" {
		result = multierror.Append(result, fmt.Errorf("input_ntuples_directory is required"))
	}
	if c.EventsPerJob <= 0 {
		result = multierror.Append(result, fmt.Errorf("events_per_job must be positive, got %d", c.EventsPerJob))
	}
	if c.MaxJobsPerBatch <= 0 {
		result = multierror.Append(result, fmt.Errorf("max_jobs_per_batch must be positive, got %d", c.MaxJobsPerBatch))
	}
	if c.Walltime < 0 {
		result = multierror.Append(result, fmt.Errorf("walltime must not be negative"))
	}
	if _, err := models.ParseOptionStyle(c.OptionStyle); err != nil {
		result = multierror.Append(result, fmt.Errorf("option_style: %w", err))
	}
	for _, o := range c.ChannelOverrides {
		if _, err := regexp.Compile(o.Pattern); err != nil {
			result = multierror.Append(result, fmt.Errorf("channel override %q: %w", o.Pattern, err))
		}
		if len(o.Channels) == 0 {
			result = multierror.Append(result, fmt.Errorf("channel override %q lists no channels", o.Pattern))
		}
	}
	channels := make([]string, 0, len(c.FriendDirectories))
	for ch := range c.FriendDirectories {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	for _, ch := range channels {
		for _, dir := range c.FriendDirectories[ch] {
			if dir == "" {
				result = multierror.Append(result, fmt.Errorf("empty friend directory for channel %s", ch))
			}
		}
	}
	return result.ErrorOrNil()
}

// ValidateCollect checks the settings of the collect command.
func (c *Config) ValidateCollect() error {
	var result *multierror.Error
	if err := c.ValidateCommon(); err != nil {
		result = multierror.Append(result, err)
	}
	if c.MergeWorkers <= 0 {
		result = multierror.Append(result, fmt.Errorf("merge_workers must be positive, got %d", c.MergeWorkers))
	}
	return result.ErrorOrNil()
}
