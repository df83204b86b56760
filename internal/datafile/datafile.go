// Package datafile is the narrow capability the job manager needs from the
// structured-data file layer: enumerate streams, count entries, concatenate streams
// and check that a file is structurally intact.
package datafile

import "errors"

var (
	// ErrNotExist is returned (wrapped) by CheckIntegrity when the file is absent.
	ErrNotExist = errors.New("file does not exist")

	// ErrCorrupt is returned (wrapped) when a file can be read but does not decode,
	// e.g. a job killed while writing its output.
	ErrCorrupt = errors.New("damaged file")
)

// Store opens and creates dataset files.
type Store interface {
	// Open opens an existing file for reading.
	Open(path string) (File, error)

	// Create creates (or truncates) an output file.
	Create(path string) (Output, error)

	// CheckIntegrity returns nil for an intact file, an error wrapping ErrNotExist
	// for a missing one and an error wrapping ErrCorrupt for a damaged one. Any other
	// error means the file could not be read at all.
	CheckIntegrity(path string) error
}

// File is an open dataset file.
type File interface {
	Path() string

	// Streams lists the stream names stored at the top level of the file.
	Streams() ([]string, error)

	// Entries counts the records of tree inside stream.
	Entries(stream, tree string) (int64, error)

	Close() error
}

// Output is a file being written.
type Output interface {
	// CopyStream writes stream/tree as the concatenation of stream/tree of every
	// source file, in argument order, and returns the number of entries written.
	CopyStream(stream, tree string, srcs []string) (int64, error)

	Close() error
}
