package constants

import "time"

// Job planning defaults
const (
	// DefaultTreeName - name of the flat tree inside every stream directory
	DefaultTreeName = "ntuple"

	// DefaultInputPattern - glob below the input directory that finds dataset files
	// Matches the <sample>/<sample>.root layout of the ntuple production
	DefaultInputPattern = "*/*.root"

	// DefaultEventsPerJob - entries handled by a single job
	DefaultEventsPerJob = 50000

	// DefaultMaxJobsPerBatch - upper bound of jobs in one submission descriptor
	DefaultMaxJobsPerBatch = 5000
)

// Batch system
const (
	// DefaultBatchCluster - descriptor template used when none is configured
	DefaultBatchCluster = "naf"

	// SubmitCommand - scheduler command printed for the operator
	SubmitCommand = "condor_submit"

	// DefaultWalltime - requested runtime per job when walltime is not configured
	DefaultWalltime = 3 * time.Hour
)

// Collection
const (
	// DefaultMergeWorkers - datasets merged in parallel
	DefaultMergeWorkers = 4

	// MergeSpaceMargin - free space required before a merge, as a multiple of the fragment sizes
	MergeSpaceMargin = 1.1
)

// Work directory layout
const (
	LoggingDir   = "logging"
	ArgumentsDir = "arguments"
	CollectedDir = "collected"

	// OutputExtension - file extension of dataset, job and merged files
	OutputExtension = ".root"

	// ResubmitSuffix - name used for argument lists and descriptors written by check
	ResubmitSuffix = "resubmit"
)
