package models

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Job is one unit of work: a contiguous entry range of one stream of one dataset.
// The range is half-open, [FirstEntry, EndEntry).
type Job struct {
	Number     int      `json:"-"`
	Input      string   `json:"input"`
	Folder     string   `json:"folder"`
	Tree       string   `json:"tree"`
	FirstEntry int64    `json:"first_entry"`
	EndEntry   int64    `json:"end_entry"`
	Friends    []string `json:"friends,omitempty"`
}

// Nickname returns the nickname of the job's dataset.
func (j Job) Nickname() string {
	return NicknameFromPath(j.Input)
}

// Entries returns the number of entries in the job's range.
func (j Job) Entries() int64 {
	return j.EndEntry - j.FirstEntry
}

// LastEntry is the inclusive upper bound handed to executables.
func (j Job) LastEntry() int64 {
	return j.EndEntry - 1
}

// OutputName returns the job's output path relative to the work directory.
func (j Job) OutputName() string {
	return OutputName(j.Nickname(), j.Folder, j.FirstEntry, j.EndEntry)
}

// OutputName is the canonical relative output path for a job range. The file name
// carries the inclusive last entry, the convention the executables follow when they
// name their own outputs.
func OutputName(nick, folder string, first, end int64) string {
	return filepath.Join(nick, fmt.Sprintf("%s_%s_%d_%d.root", nick, folder, first, end-1))
}

// Arg is one named command-line option with its values.
type Arg struct {
	Key    string
	Values []string
}

// Tokens renders the option as "--key v1 v2 ...".
func (a Arg) Tokens(style OptionStyle) []string {
	return append([]string{style.Flag(a.Key)}, a.Values...)
}

// OptionStyle selects how multi-word option names are spelled on the command line.
// The C++ executables take --first_entry, argparse scripts take --first-entry.
type OptionStyle string

const (
	OptionUnderscore OptionStyle = "underscore"
	OptionHyphen     OptionStyle = "hyphen"
)

// ParseOptionStyle accepts "underscore" and "hyphen". Empty means underscore.
func ParseOptionStyle(s string) (OptionStyle, error) {
	switch OptionStyle(s) {
	case "", OptionUnderscore:
		return OptionUnderscore, nil
	case OptionHyphen:
		return OptionHyphen, nil
	default:
		return "", fmt.Errorf("unknown option style %q (use %s or %s)", s, OptionUnderscore, OptionHyphen)
	}
}

// Flag spells key as a long option.
func (s OptionStyle) Flag(key string) string {
	if s == OptionHyphen {
		key = strings.ReplaceAll(key, "_", "-")
	}
	return "--" + key
}

// Args maps the job onto the executable's options, in a fixed order. When outputFlag
// is set the expected output path is passed explicitly as well.
func (j Job) Args(outputFlag string) []Arg {
	args := []Arg{
		{Key: "input", Values: []string{j.Input}},
		{Key: "folder", Values: []string{j.Folder}},
		{Key: "tree", Values: []string{j.Tree}},
		{Key: "first_entry", Values: []string{strconv.FormatInt(j.FirstEntry, 10)}},
		{Key: "last_entry", Values: []string{strconv.FormatInt(j.LastEntry(), 10)}},
	}
	if len(j.Friends) > 0 {
		args = append(args, Arg{Key: "input_friends", Values: append([]string(nil), j.Friends...)})
	}
	if outputFlag != "" {
		args = append(args, Arg{Key: outputFlag, Values: []string{j.OutputName()}})
	}
	return args
}

// CommandLine flattens an executable and its options into argv form.
func CommandLine(executable string, args []Arg, style OptionStyle) []string {
	argv := []string{executable}
	for _, a := range args {
		argv = append(argv, a.Tokens(style)...)
	}
	return argv
}

// Batch is a contiguous slice of job numbers submitted together.
type Batch struct {
	Number int
	Jobs   []int
}

// Classification is the state of a job's expected output on disk.
type Classification string

const (
	OutputValid   Classification = "present-valid"
	OutputCorrupt Classification = "present-corrupt"
	OutputMissing Classification = "missing"
)

// MergeResult reports the outcome of merging one dataset.
type MergeResult struct {
	Nickname string
	Output   string
	Streams  int
	Entries  int64
	Err      error
}

// OK reports whether the dataset was merged.
func (r MergeResult) OK() bool {
	return r.Err == nil
}
