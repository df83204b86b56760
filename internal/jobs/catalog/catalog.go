// Package catalog discovers dataset files and records the entry count of every stream.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/mattn/go-zglob"

	"github.com/higgsanalysis/ftjobs/internal/datafile"
	"github.com/higgsanalysis/ftjobs/internal/logging"
	"github.com/higgsanalysis/ftjobs/internal/models"
	"github.com/higgsanalysis/ftjobs/internal/validation"
)

// Discover expands pattern below inputDir and returns the matching files as sorted
// absolute paths. "**" matches any number of directories.
func Discover(inputDir, pattern string) ([]string, error) {
	if pattern == "" {
		return nil, &models.DiscoveryError{Path: inputDir, Op: "glob", Err: fmt.Errorf("file pattern is required")}
	}
	root, err := filepath.Abs(inputDir)
	if err != nil {
		return nil, &models.DiscoveryError{Path: inputDir, Op: "resolve", Err: err}
	}
	if info, err := os.Stat(root); err != nil {
		return nil, &models.DiscoveryError{Path: root, Op: "stat", Err: err}
	} else if !info.IsDir() {
		return nil, &models.DiscoveryError{Path: root, Op: "stat", Err: fmt.Errorf("not a directory")}
	}

	full := filepath.Join(root, pattern)
	matches, err := zglob.Glob(full)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, &models.DiscoveryError{Path: full, Op: "glob", Err: err}
	}

	paths := make([]string, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		paths = append(paths, filepath.Clean(m))
	}
	if len(paths) == 0 {
		return nil, &models.DiscoveryError{Path: full, Op: "glob", Err: fmt.Errorf("no files found")}
	}
	sort.Strings(paths)
	return paths, nil
}

// Builder reads dataset files into a catalog.
type Builder struct {
	store  datafile.Store
	tree   string
	logger *logging.Logger
}

// NewBuilder creates a builder counting the entries of tree in every stream.
func NewBuilder(store datafile.Store, tree string, logger *logging.Logger) *Builder {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Builder{store: store, tree: tree, logger: logger}
}

// Build opens every file and records its streams. A file that cannot be opened,
// listed or counted fails the whole build: a partial catalog would plan too little
// work without anybody noticing. Empty streams are kept and marked excluded.
func (b *Builder) Build(paths []string) (*models.Catalog, []models.EmptyStreamWarning, error) {
	datasets := make([]*models.Dataset, 0, len(paths))
	var warnings []models.EmptyStreamWarning

	for _, path := range paths {
		ds, empty, err := b.readDataset(path)
		if err != nil {
			return nil, nil, err
		}
		for _, w := range empty {
			b.logger.Warn().Str("nick", w.Nickname).Str("stream", w.Stream).Msg("Stream has no entries, no jobs will be planned for it")
		}
		warnings = append(warnings, empty...)
		datasets = append(datasets, ds)

		b.logger.Debug().Str("nick", ds.Nickname).Int("streams", len(ds.Streams)).Msg("Dataset read")
	}

	cat, err := models.NewCatalog(datasets)
	if err != nil {
		return nil, nil, &models.DiscoveryError{Op: "catalog", Err: err}
	}
	b.logger.Info().Int("datasets", cat.Len()).Msg("Dataset catalog built")
	return cat, warnings, nil
}

func (b *Builder) readDataset(path string) (*models.Dataset, []models.EmptyStreamWarning, error) {
	f, err := b.store.Open(path)
	if err != nil {
		return nil, nil, &models.DiscoveryError{Path: path, Op: "open", Err: err}
	}
	defer f.Close()

	streams, err := f.Streams()
	if err != nil {
		return nil, nil, &models.DiscoveryError{Path: path, Op: "list streams", Err: err}
	}

	nick := models.NicknameFromPath(path)
	if err := validation.ValidateName(nick); err != nil {
		return nil, nil, &models.DiscoveryError{Path: path, Op: "nickname", Err: err}
	}
	ds := &models.Dataset{
		Nickname: nick,
		Path:     path,
		Streams:  make(map[string]int64, len(streams)),
	}
	var empty []models.EmptyStreamWarning
	for _, stream := range streams {
		if err := validation.ValidateName(stream); err != nil {
			return nil, nil, &models.DiscoveryError{Path: path, Op: "stream name", Err: err}
		}
		n, err := f.Entries(stream, b.tree)
		if err != nil {
			return nil, nil, &models.DiscoveryError{Path: path, Op: "count " + stream, Err: err}
		}
		ds.Streams[stream] = n
		if n == 0 {
			ds.Exclude(stream, models.ExcludedEmpty)
			empty = append(empty, models.EmptyStreamWarning{Nickname: ds.Nickname, Stream: stream})
		}
	}
	return ds, empty, nil
}
