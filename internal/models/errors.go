package models

import "fmt"

// DiscoveryError means a dataset file could not be opened or enumerated.
// It aborts planning: a partial catalog would silently under-plan work.
type DiscoveryError struct {
	Path string
	Op   string
	Err  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// EmptyStreamWarning records a stream with zero entries. It is never returned as an error.
type EmptyStreamWarning struct {
	Nickname string
	Stream   string
}

func (w EmptyStreamWarning) Error() string {
	return fmt.Sprintf("stream %s of %s has no entries", w.Stream, w.Nickname)
}

// PlanError is a planning misconfiguration for one dataset stream.
type PlanError struct {
	Nickname string
	Stream   string
	Reason   string
}

func (e *PlanError) Error() string {
	if e.Stream == "" {
		return fmt.Sprintf("plan %s: %s", e.Nickname, e.Reason)
	}
	return fmt.Sprintf("plan %s/%s: %s", e.Nickname, e.Stream, e.Reason)
}

// IntegrityError is an output file that exists but fails the structural check.
type IntegrityError struct {
	Job  int
	Path string
	Err  error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("job %d: corrupt output %s: %v", e.Job, e.Path, e.Err)
}

func (e *IntegrityError) Unwrap() error { return e.Err }

// MissingFragmentError is a job output absent at merge time.
type MissingFragmentError struct {
	Nickname string
	Job      int
	Path     string
}

func (e *MissingFragmentError) Error() string {
	return fmt.Sprintf("%s: missing fragment of job %d: %s", e.Nickname, e.Job, e.Path)
}
