// Package models defines the data structures shared by every phase of the job lifecycle:
// datasets and their catalog, job descriptors, batches and per-phase results.
package models

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Exclusion reasons recorded in Dataset.Excluded.
const (
	ExcludedEmpty   = "empty"
	ExcludedChannel = "channel"
	ExcludedShift   = "shift"
)

// Dataset is one input ntuple file and the entry count of each of its streams.
type Dataset struct {
	Nickname string            `json:"-"`
	Path     string            `json:"path"`
	Streams  map[string]int64  `json:"pipelines"`
	Excluded map[string]string `json:"excluded,omitempty"`
}

// NicknameFromPath strips the directory and the extension from a dataset path.
func NicknameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// StreamNames returns the stream names in sorted order.
func (d *Dataset) StreamNames() []string {
	names := make([]string, 0, len(d.Streams))
	for name := range d.Streams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Exclude marks a stream as not planned. The first recorded reason wins.
func (d *Dataset) Exclude(stream, reason string) {
	if d.Excluded == nil {
		d.Excluded = make(map[string]string)
	}
	if _, ok := d.Excluded[stream]; !ok {
		d.Excluded[stream] = reason
	}
}

// IsExcluded reports whether the stream was excluded from planning.
func (d *Dataset) IsExcluded(stream string) bool {
	_, ok := d.Excluded[stream]
	return ok
}

func (d *Dataset) clone() *Dataset {
	out := &Dataset{
		Nickname: d.Nickname,
		Path:     d.Path,
		Streams:  make(map[string]int64, len(d.Streams)),
	}
	for k, v := range d.Streams {
		out.Streams[k] = v
	}
	if len(d.Excluded) > 0 {
		out.Excluded = make(map[string]string, len(d.Excluded))
		for k, v := range d.Excluded {
			out.Excluded[k] = v
		}
	}
	return out
}

// Catalog is a snapshot of all discovered datasets keyed by nickname.
// Datasets handed out by a Catalog must be treated as read-only; use Clone
// to obtain a copy that can be annotated.
type Catalog struct {
	datasets map[string]*Dataset
}

// NewCatalog builds a catalog. Two datasets sharing a nickname are rejected
// since their outputs would land on the same paths.
func NewCatalog(datasets []*Dataset) (*Catalog, error) {
	c := &Catalog{datasets: make(map[string]*Dataset, len(datasets))}
	for _, d := range datasets {
		if prev, ok := c.datasets[d.Nickname]; ok {
			return nil, fmt.Errorf("duplicate dataset nickname %q (%s and %s)", d.Nickname, prev.Path, d.Path)
		}
		c.datasets[d.Nickname] = d
	}
	return c, nil
}

// Len returns the number of datasets.
func (c *Catalog) Len() int {
	return len(c.datasets)
}

// Nicknames returns all nicknames sorted. This is the planning order.
func (c *Catalog) Nicknames() []string {
	nicks := make([]string, 0, len(c.datasets))
	for nick := range c.datasets {
		nicks = append(nicks, nick)
	}
	sort.Strings(nicks)
	return nicks
}

// Dataset looks up a dataset by nickname.
func (c *Catalog) Dataset(nick string) (*Dataset, bool) {
	d, ok := c.datasets[nick]
	return d, ok
}

// Clone returns a deep copy of the catalog.
func (c *Catalog) Clone() *Catalog {
	out := &Catalog{datasets: make(map[string]*Dataset, len(c.datasets))}
	for nick, d := range c.datasets {
		out.datasets[nick] = d.clone()
	}
	return out
}

// MarshalJSON writes the catalog as nickname -> dataset.
func (c *Catalog) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.datasets)
}

// UnmarshalJSON reads a nickname -> dataset document.
func (c *Catalog) UnmarshalJSON(data []byte) error {
	var datasets map[string]*Dataset
	if err := json.Unmarshal(data, &datasets); err != nil {
		return err
	}
	for nick, d := range datasets {
		d.Nickname = nick
		if d.Streams == nil {
			d.Streams = make(map[string]int64)
		}
	}
	c.datasets = datasets
	return nil
}
