// Package planner turns a dataset catalog into numbered jobs of bounded size.
package planner

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/higgsanalysis/ftjobs/internal/config"
	"github.com/higgsanalysis/ftjobs/internal/logging"
	"github.com/higgsanalysis/ftjobs/internal/models"
	"github.com/higgsanalysis/ftjobs/internal/validation"
)

// Range is a half-open entry range [First, End).
type Range struct {
	First int64
	End   int64
}

// Partition splits [0, n) into ceil(n/k) contiguous ranges of at most k entries.
// The last range takes the remainder.
func Partition(n, k int64) ([]Range, error) {
	if k <= 0 {
		return nil, fmt.Errorf("entries per job must be positive, got %d", k)
	}
	if n < 0 {
		return nil, fmt.Errorf("entry count must not be negative, got %d", n)
	}
	ranges := make([]Range, 0, (n+k-1)/k)
	for first := int64(0); first < n; first += k {
		ranges = append(ranges, Range{First: first, End: min(first+k, n)})
	}
	return ranges, nil
}

// Options controls planning.
type Options struct {
	EntriesPerJob int64
	Tree          string

	// Empty restrictions select everything.
	RestrictChannels []string
	RestrictShifts   []string

	// Ordered; the first rule matching a nickname applies.
	Overrides []config.Override

	// Channel (or config.FriendWildcard) -> friend roots substituted for InputRoot.
	Friends   map[string][]string
	InputRoot string
}

// OptionsFromConfig maps the loaded configuration onto planning options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		EntriesPerJob:    cfg.EventsPerJob,
		Tree:             cfg.Tree,
		RestrictChannels: cfg.RestrictChannels,
		RestrictShifts:   cfg.RestrictShifts,
		Overrides:        cfg.ChannelOverrides,
		Friends:          cfg.FriendDirectories,
		InputRoot:        cfg.InputDirectory,
	}
}

// Plan is the planner's result. Catalog is an annotated copy of the input catalog:
// streams that got no jobs carry their exclusion reason.
type Plan struct {
	Jobs    []models.Job
	Catalog *models.Catalog
}

// TotalEntries sums the planned entries.
func (p *Plan) TotalEntries() int64 {
	var n int64
	for _, j := range p.Jobs {
		n += j.Entries()
	}
	return n
}

type rule struct {
	re       *regexp.Regexp
	channels []string
}

// Planner builds plans.
type Planner struct {
	opts   Options
	rules  []rule
	logger *logging.Logger
}

// New validates the options and returns a planner.
func New(opts Options, logger *logging.Logger) (*Planner, error) {
	if opts.EntriesPerJob <= 0 {
		return nil, fmt.Errorf("entries per job must be positive, got %d", opts.EntriesPerJob)
	}
	if opts.Tree == "" {
		return nil, fmt.Errorf("tree name is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	p := &Planner{opts: opts, logger: logger}
	for _, o := range opts.Overrides {
		re, err := regexp.Compile(o.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid channel override %q: %w", o.Pattern, err)
		}
		p.rules = append(p.rules, rule{re: re, channels: o.Channels})
	}
	if opts.InputRoot != "" {
		p.opts.InputRoot = filepath.Clean(opts.InputRoot)
	}
	return p, nil
}

// Plan numbers jobs densely from zero in the order nickname, stream name, range
// start. The input catalog is not modified.
func (p *Planner) Plan(cat *models.Catalog) (*Plan, error) {
	out := cat.Clone()
	var jobs []models.Job

	for _, nick := range out.Nicknames() {
		ds, _ := out.Dataset(nick)

		channels, restricted := p.resolveChannels(nick)
		if restricted && len(channels) == 0 {
			p.logger.Warn().Str("nick", nick).Msg("Channel restriction leaves no channel for dataset, skipping it")
			for _, stream := range ds.StreamNames() {
				ds.Exclude(stream, models.ExcludedChannel)
			}
			continue
		}

		for _, stream := range ds.StreamNames() {
			if ds.IsExcluded(stream) {
				continue
			}
			key := models.ParseStreamKey(stream)
			if restricted && !contains(channels, key.Channel) {
				ds.Exclude(stream, models.ExcludedChannel)
				continue
			}
			if len(p.opts.RestrictShifts) > 0 && !contains(p.opts.RestrictShifts, key.Shift) {
				ds.Exclude(stream, models.ExcludedShift)
				continue
			}

			friends, err := p.friendPaths(ds, stream, key.Channel)
			if err != nil {
				return nil, err
			}
			ranges, err := Partition(ds.Streams[stream], p.opts.EntriesPerJob)
			if err != nil {
				return nil, &models.PlanError{Nickname: nick, Stream: stream, Reason: err.Error()}
			}
			for _, r := range ranges {
				jobs = append(jobs, models.Job{
					Number:     len(jobs),
					Input:      ds.Path,
					Folder:     stream,
					Tree:       p.opts.Tree,
					FirstEntry: r.First,
					EndEntry:   r.End,
					Friends:    friends,
				})
			}
			p.logger.Debug().Str("nick", nick).Str("stream", stream).Int("jobs", len(ranges)).Msg("Stream planned")
		}
	}

	p.logger.Info().Int("datasets", out.Len()).Int("jobs", len(jobs)).Msg("Jobs planned")
	return &Plan{Jobs: jobs, Catalog: out}, nil
}

// resolveChannels returns the channel set a dataset is planned for. An implicit
// override can only narrow an explicit restriction, never widen it.
func (p *Planner) resolveChannels(nick string) ([]string, bool) {
	explicit := p.opts.RestrictChannels
	for _, r := range p.rules {
		if !r.re.MatchString(nick) {
			continue
		}
		resolved := r.channels
		if len(explicit) > 0 {
			resolved = intersect(explicit, r.channels)
		}
		p.logger.Info().Str("nick", nick).Strs("channels", resolved).Msg("Implicit channel restriction applied")
		return resolved, true
	}
	return explicit, len(explicit) > 0
}

// friendPaths maps the dataset path onto every friend root configured for the
// channel, channel-specific roots first.
func (p *Planner) friendPaths(ds *models.Dataset, stream, channel string) ([]string, error) {
	roots := append(append([]string(nil), p.opts.Friends[channel]...), p.opts.Friends[config.FriendWildcard]...)
	if len(roots) == 0 {
		return nil, nil
	}
	root := p.opts.InputRoot
	if err := validation.ValidatePathInDirectory(ds.Path, root); err != nil || !filepath.IsAbs(ds.Path) {
		return nil, &models.PlanError{
			Nickname: ds.Nickname,
			Stream:   stream,
			Reason:   fmt.Sprintf("dataset path %s is not below input directory %q, cannot derive friend paths", ds.Path, root),
		}
	}

	friends := make([]string, 0, len(roots))
	seen := make(map[string]bool, len(roots))
	for _, friendRoot := range roots {
		if seen[friendRoot] {
			continue
		}
		seen[friendRoot] = true
		friends = append(friends, strings.Replace(ds.Path, root, filepath.Clean(friendRoot), 1))
	}
	return friends, nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func intersect(a, b []string) []string {
	out := []string{}
	for _, item := range a {
		if contains(b, item) {
			out = append(out, item)
		}
	}
	return out
}
