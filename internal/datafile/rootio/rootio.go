// Package rootio implements datafile.Store for ROOT files using go-hep's groot.
// Streams are the top-level directories of a file ("mt_nominal", ...), each holding
// a flat tree.
package rootio

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"go-hep.org/x/hep/groot/riofs"
	"go-hep.org/x/hep/groot/rtree"

	"github.com/higgsanalysis/ftjobs/internal/datafile"
)

const directoryClass = "TDirectoryFile"

// Store reads and writes ROOT files on the local filesystem.
type Store struct{}

// New returns a Store.
func New() *Store {
	return &Store{}
}

// Open implements datafile.Store.
func (s *Store) Open(path string) (datafile.File, error) {
	f, err := riofs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &file{path: path, f: f}, nil
}

// Create implements datafile.Store.
func (s *Store) Create(path string) (datafile.Output, error) {
	f, err := riofs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return &output{path: path, f: f}, nil
}

// CheckIntegrity opens the file and reads the entry count of every stream tree.
// Files left behind by killed jobs fail to decode or miss their trees; those errors
// wrap datafile.ErrCorrupt. A file that cannot be read at all is reported as is.
func (s *Store) CheckIntegrity(path string) error {
	raw, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", path, datafile.ErrNotExist)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	raw.Close()

	f, err := riofs.Open(path)
	if err != nil {
		return corrupt(path, err)
	}
	defer f.Close()

	rf := &file{path: path, f: f}
	streams, _ := rf.Streams()
	if len(streams) == 0 {
		return corrupt(path, errors.New("no streams"))
	}
	for _, stream := range streams {
		dir, err := riofs.Dir(f).Get(stream)
		if err != nil {
			return corrupt(path, err)
		}
		d, ok := dir.(riofs.Directory)
		if !ok {
			return corrupt(path, fmt.Errorf("%s is not a directory", stream))
		}
		for _, k := range d.Keys() {
			obj, err := k.Object()
			if err != nil {
				return corrupt(path, fmt.Errorf("%s/%s: %w", stream, k.Name(), err))
			}
			if t, ok := obj.(rtree.Tree); ok && t.Entries() < 0 {
				return corrupt(path, fmt.Errorf("%s/%s: invalid entry count", stream, k.Name()))
			}
		}
	}
	return nil
}

func corrupt(path string, err error) error {
	return fmt.Errorf("%s: %w: %w", path, datafile.ErrCorrupt, err)
}

type file struct {
	path string
	f    *riofs.File
}

func (f *file) Path() string { return f.path }

// Streams returns the distinct top-level directory names, sorted.
func (f *file) Streams() ([]string, error) {
	seen := make(map[string]bool)
	var names []string
	for _, k := range f.f.Keys() {
		if k.ClassName() != directoryClass || seen[k.Name()] {
			continue
		}
		seen[k.Name()] = true
		names = append(names, k.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (f *file) Entries(stream, tree string) (int64, error) {
	t, err := getTree(f.f, stream, tree)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", f.path, err)
	}
	return t.Entries(), nil
}

func (f *file) Close() error {
	return f.f.Close()
}

func getTree(f *riofs.File, stream, tree string) (rtree.Tree, error) {
	obj, err := riofs.Dir(f).Get(stream + "/" + tree)
	if err != nil {
		return nil, err
	}
	t, ok := obj.(rtree.Tree)
	if !ok {
		return nil, fmt.Errorf("%s/%s is a %T, not a tree", stream, tree, obj)
	}
	return t, nil
}

type output struct {
	path string
	f    *riofs.File
}

// CopyStream chains the source trees and copies them into a new tree under a
// directory named after the stream.
func (o *output) CopyStream(stream, tree string, srcs []string) (int64, error) {
	if len(srcs) == 0 {
		return 0, nil
	}

	trees := make([]rtree.Tree, 0, len(srcs))
	for _, src := range srcs {
		f, err := riofs.Open(src)
		if err != nil {
			return 0, fmt.Errorf("failed to open %s: %w", src, err)
		}
		defer f.Close()

		t, err := getTree(f, stream, tree)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", src, err)
		}
		trees = append(trees, t)
	}
	chain := rtree.Chain(trees...)

	dir, err := riofs.Dir(o.f).Mkdir(stream)
	if err != nil {
		return 0, fmt.Errorf("failed to create directory %s in %s: %w", stream, o.path, err)
	}

	// The reader fills the same values the writer serialises.
	wvars := rtree.WriteVarsFromTree(chain)
	rvars := make([]rtree.ReadVar, len(wvars))
	for i, wv := range wvars {
		rvars[i] = rtree.ReadVar{Name: wv.Name, Value: wv.Value}
	}

	r, err := rtree.NewReader(chain, rvars)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s/%s: %w", stream, tree, err)
	}
	defer r.Close()

	w, err := rtree.NewWriter(dir, tree, wvars)
	if err != nil {
		return 0, fmt.Errorf("failed to create tree %s/%s in %s: %w", stream, tree, o.path, err)
	}
	if _, err := rtree.Copy(w, r); err != nil {
		_ = w.Close()
		return 0, fmt.Errorf("failed to copy %s/%s: %w", stream, tree, err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("failed to close tree %s/%s: %w", stream, tree, err)
	}
	return chain.Entries(), nil
}

func (o *output) Close() error {
	return o.f.Close()
}
