// Package flatfile is a plain-text datafile.Store. A file is a header line, one JSON
// line per stream/tree holding its records, and a trailer line; a file without its
// trailer counts as truncated. Encoding is deterministic, so merged outputs can be
// compared byte for byte. It backs the tests and dry runs without ROOT inputs.
package flatfile

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/higgsanalysis/ftjobs/internal/datafile"
)

const (
	formatName    = "ftjobs-flat"
	formatVersion = 1
)

type header struct {
	Format  string `json:"format"`
	Version int    `json:"version"`
}

type block struct {
	Stream  string   `json:"stream"`
	Tree    string   `json:"tree"`
	Records []string `json:"records"`
}

type trailer struct {
	End    bool `json:"end"`
	Blocks int  `json:"blocks"`
}

// content maps stream -> tree -> records.
type content map[string]map[string][]string

// Store reads and writes flat files on the local filesystem.
type Store struct{}

// New returns a Store.
func New() *Store {
	return &Store{}
}

// Write creates a file whose streams hold n records each in tree. Records are named
// "<stream>:<index>" so concatenation order is observable.
func Write(path, tree string, streams map[string]int64) error {
	c := make(content, len(streams))
	for stream, n := range streams {
		records := make([]string, n)
		for i := range records {
			records[i] = fmt.Sprintf("%s:%d", stream, i)
		}
		c[stream] = map[string][]string{tree: records}
	}
	return writeFile(path, c)
}

// WriteRecords creates a file holding a single stream with explicit records.
func WriteRecords(path, stream, tree string, records []string) error {
	return writeFile(path, content{stream: {tree: records}})
}

// Records returns the records of stream/tree in path.
func Records(path, stream, tree string) ([]string, error) {
	c, err := readFile(path)
	if err != nil {
		return nil, err
	}
	records, ok := c[stream][tree]
	if !ok {
		return nil, fmt.Errorf("%s: no tree %s/%s", path, stream, tree)
	}
	return records, nil
}

// Truncate damages a file the way an interrupted job leaves it: the trailer is lost.
func Truncate(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	idx := bytes.LastIndexByte(bytes.TrimRight(data, "\n"), '\n')
	if idx < 0 {
		idx = len(data) / 2
	}
	return os.WriteFile(path, data[:idx], 0644)
}

// Open implements datafile.Store.
func (s *Store) Open(path string) (datafile.File, error) {
	c, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return &file{path: path, c: c}, nil
}

// Create implements datafile.Store. Nothing is written until Close.
func (s *Store) Create(path string) (datafile.Output, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	return &output{path: path, c: make(content)}, nil
}

// CheckIntegrity implements datafile.Store.
func (s *Store) CheckIntegrity(path string) error {
	_, err := readFile(path)
	return err
}

func writeFile(path string, c content) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	data, err := encode(c)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func readFile(path string) (content, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, datafile.ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	c, err := decode(path, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", datafile.ErrCorrupt, err)
	}
	return c, nil
}

func encode(c content) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(header{Format: formatName, Version: formatVersion}); err != nil {
		return nil, err
	}

	streams := make([]string, 0, len(c))
	for s := range c {
		streams = append(streams, s)
	}
	sort.Strings(streams)

	blocks := 0
	for _, s := range streams {
		trees := make([]string, 0, len(c[s]))
		for t := range c[s] {
			trees = append(trees, t)
		}
		sort.Strings(trees)
		for _, t := range trees {
			records := c[s][t]
			if records == nil {
				records = []string{}
			}
			if err := enc.Encode(block{Stream: s, Tree: t, Records: records}); err != nil {
				return nil, err
			}
			blocks++
		}
	}

	if err := enc.Encode(trailer{End: true, Blocks: blocks}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(path string, data []byte) (content, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<30)

	if !scanner.Scan() {
		return nil, fmt.Errorf("%s: empty file", path)
	}
	var h header
	if err := json.Unmarshal(scanner.Bytes(), &h); err != nil || h.Format != formatName {
		return nil, fmt.Errorf("%s: not a %s file", path, formatName)
	}
	if h.Version != formatVersion {
		return nil, fmt.Errorf("%s: unsupported version %d", path, h.Version)
	}

	c := make(content)
	blocks := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		var tr trailer
		if err := json.Unmarshal(line, &tr); err == nil && tr.End {
			if tr.Blocks != blocks {
				return nil, fmt.Errorf("%s: trailer expects %d blocks, found %d", path, tr.Blocks, blocks)
			}
			return c, nil
		}
		var b block
		if err := json.Unmarshal(line, &b); err != nil {
			return nil, fmt.Errorf("%s: malformed block %d: %w", path, blocks, err)
		}
		if c[b.Stream] == nil {
			c[b.Stream] = make(map[string][]string)
		}
		c[b.Stream][b.Tree] = b.Records
		blocks++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return nil, fmt.Errorf("%s: truncated file (no trailer)", path)
}

type file struct {
	path string
	c    content
}

func (f *file) Path() string { return f.path }

func (f *file) Streams() ([]string, error) {
	names := make([]string, 0, len(f.c))
	for name := range f.c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (f *file) Entries(stream, tree string) (int64, error) {
	records, ok := f.c[stream][tree]
	if !ok {
		return 0, fmt.Errorf("%s: no tree %s/%s", f.path, stream, tree)
	}
	return int64(len(records)), nil
}

func (f *file) Close() error { return nil }

type output struct {
	path   string
	c      content
	closed bool
}

func (o *output) CopyStream(stream, tree string, srcs []string) (int64, error) {
	var merged []string
	for _, src := range srcs {
		records, err := Records(src, stream, tree)
		if err != nil {
			return 0, err
		}
		merged = append(merged, records...)
	}
	if o.c[stream] == nil {
		o.c[stream] = make(map[string][]string)
	}
	o.c[stream][tree] = append(o.c[stream][tree], merged...)
	return int64(len(merged)), nil
}

// Close writes the file.
func (o *output) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true
	return writeFile(o.path, o.c)
}
