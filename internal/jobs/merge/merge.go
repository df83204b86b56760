// Package merge concatenates the job outputs of every dataset into one collected file.
package merge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/higgsanalysis/ftjobs/internal/config"
	"github.com/higgsanalysis/ftjobs/internal/constants"
	"github.com/higgsanalysis/ftjobs/internal/datafile"
	"github.com/higgsanalysis/ftjobs/internal/diskspace"
	"github.com/higgsanalysis/ftjobs/internal/jobs/registry"
	"github.com/higgsanalysis/ftjobs/internal/logging"
	"github.com/higgsanalysis/ftjobs/internal/models"
	"github.com/higgsanalysis/ftjobs/internal/progress"
)

// Merger merges datasets with a fixed number of workers. Each dataset is owned by
// exactly one worker; workers share only the read-only registry.
type Merger struct {
	store   datafile.Store
	layout  config.Layout
	workers int
	tracker progress.Tracker
	logger  *logging.Logger
}

// New creates a merger running the given number of workers.
func New(store datafile.Store, layout config.Layout, workers int, tracker progress.Tracker, logger *logging.Logger) (*Merger, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("merge workers must be positive, got %d", workers)
	}
	if tracker == nil {
		tracker = progress.NoOpTracker{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Merger{store: store, layout: layout, workers: workers, tracker: tracker, logger: logger}, nil
}

// Run merges every dataset of the registry. Results are sorted by nickname. The
// returned error aggregates every failed dataset; successful datasets are kept.
// Once ctx is cancelled no further dataset is started and the remaining ones are
// reported as failed.
func (m *Merger) Run(ctx context.Context, reg *registry.Registry) ([]models.MergeResult, error) {
	groups := reg.ByNickname()
	nicks := make([]string, 0, len(groups))
	for nick := range groups {
		nicks = append(nicks, nick)
	}
	sort.Strings(nicks)

	results := make([]models.MergeResult, len(nicks))

	var g errgroup.Group
	g.SetLimit(m.workers)
	for i, nick := range nicks {
		results[i] = models.MergeResult{Nickname: nick, Output: m.layout.CollectedPath(nick)}
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i] = m.mergeDataset(nick, groups[nick])
			return nil
		})
	}
	_ = g.Wait()
	m.tracker.Wait()

	var result *multierror.Error
	for _, r := range results {
		if r.OK() {
			m.logger.Info().Str("nick", r.Nickname).Int64("entries", r.Entries).Int("streams", r.Streams).Msg("Dataset merged")
			continue
		}
		m.logger.Error().Err(r.Err).Str("nick", r.Nickname).Msg("Dataset merge failed")
		result = multierror.Append(result, fmt.Errorf("%s: %w", r.Nickname, r.Err))
	}
	return results, result.ErrorOrNil()
}

func (m *Merger) mergeDataset(nick string, jobs []models.Job) (res models.MergeResult) {
	res = models.MergeResult{Nickname: nick, Output: m.layout.CollectedPath(nick)}
	log := m.logger.Child("nick", nick)

	// stream -> jobs in ascending first entry
	streams := make(map[string][]models.Job)
	for _, j := range jobs {
		streams[j.Folder] = append(streams[j.Folder], j)
	}
	names := make([]string, 0, len(streams))
	for name, js := range streams {
		sort.Slice(js, func(a, b int) bool { return js[a].FirstEntry < js[b].FirstEntry })
		names = append(names, name)
	}
	sort.Strings(names)

	task := m.tracker.Add(nick, int64(len(names)))
	defer func() { task.Done(res.Err) }()

	fragments := make(map[string][]string, len(names))
	var size int64
	for _, name := range names {
		for _, j := range streams[name] {
			path := m.layout.OutputPath(j)
			info, err := os.Stat(path)
			if errors.Is(err, os.ErrNotExist) {
				res.Err = &models.MissingFragmentError{Nickname: nick, Job: j.Number, Path: path}
				return res
			} else if err != nil {
				res.Err = fmt.Errorf("failed to stat fragment %s: %w", path, err)
				return res
			}
			size += info.Size()
			fragments[name] = append(fragments[name], path)
		}
	}

	if err := config.EnsureDir(filepath.Dir(res.Output)); err != nil {
		res.Err = err
		return res
	}
	if err := diskspace.Check(res.Output, size, constants.MergeSpaceMargin); err != nil {
		res.Err = err
		return res
	}
	tmp := res.Output + ".tmp"
	out, err := m.store.Create(tmp)
	if err != nil {
		res.Err = fmt.Errorf("failed to create merged output: %w", err)
		return res
	}

	success := false
	defer func() {
		if !success {
			out.Close()
			os.Remove(tmp)
		}
	}()

	for _, name := range names {
		var planned int64
		for _, j := range streams[name] {
			planned += j.Entries()
		}
		tree := streams[name][0].Tree
		n, err := out.CopyStream(name, tree, fragments[name])
		if err != nil {
			res.Err = fmt.Errorf("failed to merge stream %s: %w", name, err)
			return res
		}
		if n != planned {
			res.Err = fmt.Errorf("stream %s: merged %d entries, planned %d", name, n, planned)
			return res
		}
		log.Debug().Str("stream", name).Int("fragments", len(fragments[name])).Int64("entries", n).Msg("Stream merged")
		res.Streams++
		task.Increment()
		res.Entries += n
	}

	if err := out.Close(); err != nil {
		res.Err = fmt.Errorf("failed to close merged output: %w", err)
		return res
	}
	if err := os.Rename(tmp, res.Output); err != nil {
		res.Err = fmt.Errorf("failed to move merged output into place: %w", err)
		return res
	}
	success = true
	return res
}
