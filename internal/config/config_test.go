package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/higgsanalysis/ftjobs/internal/constants"
	"github.com/higgsanalysis/ftjobs/internal/models"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CMSSW_BASE", "")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, constants.DefaultBatchCluster, cfg.BatchCluster)
	assert.Equal(t, constants.DefaultInputPattern, cfg.InputPattern)
	assert.Equal(t, constants.DefaultTreeName, cfg.Tree)
	assert.Equal(t, int64(constants.DefaultEventsPerJob), cfg.EventsPerJob)
	assert.Equal(t, constants.DefaultMaxJobsPerBatch, cfg.MaxJobsPerBatch)
	assert.Equal(t, constants.DefaultMergeWorkers, cfg.MergeWorkers)
	assert.Equal(t, BackendROOT, cfg.DataBackend)
	assert.Empty(t, cfg.RestrictChannels)
	assert.Equal(t, DefaultOverrides(), cfg.ChannelOverrides)
	assert.Empty(t, cfg.Workdir)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ftjobs.yaml")
	content := `
executable: SVFit
input_ntuples_directory: /store/ntuples
events_per_job: 20000
walltime: 3h
restrict_to_channels: [mt, et]
friend_ntuples_directories:
  mt: [/store/friends/mela]
  "*": [/store/friends/svfit]
channel_overrides:
  - pattern: SingleMuon
    channels: [mt, mm]
workdir: ` + filepath.Join(dir, "work") + `
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("FTJOBS_MERGE_WORKERS", "8")
	t.Setenv("FTJOBS_RESTRICT_TO_SHIFTS", "nominal,tauEsOneProngUp")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "SVFit", cfg.Executable)
	assert.Equal(t, "/store/ntuples", cfg.InputDirectory)
	assert.Equal(t, int64(20000), cfg.EventsPerJob)
	assert.Equal(t, 3*time.Hour, cfg.Walltime)
	assert.Equal(t, []string{"mt", "et"}, cfg.RestrictChannels)
	assert.Equal(t, []string{"nominal", "tauEsOneProngUp"}, cfg.RestrictShifts)
	assert.Equal(t, 8, cfg.MergeWorkers)
	assert.Equal(t, []string{"/store/friends/mela"}, cfg.FriendDirectories["mt"])
	assert.Equal(t, []string{"/store/friends/svfit"}, cfg.FriendDirectories[FriendWildcard])
	assert.Equal(t, []Override{{Pattern: "SingleMuon", Channels: []string{"mt", "mm"}}}, cfg.ChannelOverrides)
	assert.Equal(t, filepath.Join(dir, "work"), cfg.Workdir)
	assert.NoError(t, cfg.ValidateSubmit())
}

func TestLoad_DisableOverrides(t *testing.T) {
	v := viper.New()
	v.Set("disable_channel_overrides", true)
	cfg, err := Load(v, "")
	require.NoError(t, err)
	assert.Empty(t, cfg.ChannelOverrides)
}

func TestDefaultWorkdir(t *testing.T) {
	t.Setenv("CMSSW_BASE", "/cvmfs/CMSSW_10_2_14")
	assert.Equal(t, "/cvmfs/CMSSW_10_2_14/src/SVFit_workdir", DefaultWorkdir("/usr/bin/SVFit"))

	t.Setenv("CMSSW_BASE", "")
	assert.Equal(t, "SVFit_workdir", DefaultWorkdir("SVFit"))
}

func TestValidateSubmit_CollectsAllProblems(t *testing.T) {
	cfg := &Config{
		DataBackend:      "tape",
		EventsPerJob:     0,
		MaxJobsPerBatch:  -1,
		ChannelOverrides: []Override{{Pattern: "(", Channels: []string{"et"}}},
	}
	err := cfg.ValidateSubmit()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{"executable is required", "unknown data_backend", "tree name is required",
		"input_ntuples_directory is required", "events_per_job", "max_jobs_per_batch", "channel override"} {
		assert.Contains(t, msg, want)
	}
}

func TestValidateCollect_Workers(t *testing.T) {
	cfg := &Config{Executable: "SVFit", Workdir: "/w", DataBackend: BackendFlat, Tree: "ntuple"}
	assert.Error(t, cfg.ValidateCollect())
	cfg.MergeWorkers = 2
	assert.NoError(t, cfg.ValidateCollect())
}

func TestAddFriendDirectories(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.AddFriendDirectories([]string{"mt=/f/a", "mt=/f/b", "*=/f/all"}))
	assert.Equal(t, []string{"/f/a", "/f/b"}, cfg.FriendDirectories["mt"])
	assert.Equal(t, []string{"/f/all"}, cfg.FriendDirectories["*"])
	assert.Error(t, cfg.AddFriendDirectories([]string{"mt"}))
}

func TestAddFriendDirectories_RelativeRoot(t *testing.T) {
	cwd, err := os.Getwd()
	require.NoError(t, err)

	cfg := &Config{}
	require.NoError(t, cfg.AddFriendDirectories([]string{"mt=friends/svfit"}))
	assert.Equal(t, []string{filepath.Join(cwd, "friends", "svfit")}, cfg.FriendDirectories["mt"])
}

func TestLayout(t *testing.T) {
	l := NewLayout("/w", "/opt/bin/SVFit")
	job := models.Job{Input: "/in/DY/DY.root", Folder: "mt_nominal", FirstEntry: 0, EndEntry: 10}

	assert.Equal(t, "/w/condor_SVFit.json", l.RegistryPath())
	assert.Equal(t, "/w/condor_SVFit_datasets.json", l.CatalogPath())
	assert.Equal(t, "/w/condor_SVFit.sh", l.ScriptPath())
	assert.Equal(t, "/w/condor_SVFit_2.jdl", l.DescriptorPath(2))
	assert.Equal(t, "/w/condor_SVFit_resubmit.jdl", l.ResubmitDescriptorPath())
	assert.Equal(t, "/w/arguments/arguments_2.txt", l.ArgumentListPath(2))
	assert.Equal(t, "/w/arguments/arguments_resubmit.txt", l.ResubmitArgumentListPath())
	assert.Equal(t, "/w/logging/batch_2", l.BatchLogDir(2))
	assert.Equal(t, "/w/DY/DY_mt_nominal_0_9.root", l.OutputPath(job))
	assert.Equal(t, "/w/collected/DY/DY.root", l.CollectedPath("DY"))
}

func TestNextResubmitLogDir(t *testing.T) {
	l := NewLayout(t.TempDir(), "SVFit")
	first, err := l.NextResubmitLogDir()
	require.NoError(t, err)
	assert.Equal(t, l.ResubmitLogDir(0), first)
	require.NoError(t, EnsureDir(first))

	next, err := l.NextResubmitLogDir()
	require.NoError(t, err)
	assert.Equal(t, l.ResubmitLogDir(1), next)
}

func TestNextResubmitLogDir_LoggingIsAFile(t *testing.T) {
	l := NewLayout(t.TempDir(), "SVFit")
	require.NoError(t, os.WriteFile(l.LoggingDir(), []byte("not a directory"), 0644))

	dir, err := l.NextResubmitLogDir()
	assert.Error(t, err)
	assert.Empty(t, dir)
}

func TestValidateSubmit_OptionStyle(t *testing.T) {
	cfg := &Config{
		Executable: "FakeFactors.py", Workdir: "/w", DataBackend: BackendFlat, Tree: "ntuple",
		InputDirectory: "/in", EventsPerJob: 10, MaxJobsPerBatch: 10, OptionStyle: "hyphen",
	}
	assert.NoError(t, cfg.ValidateSubmit())

	cfg.OptionStyle = "dashes"
	err := cfg.ValidateSubmit()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "option_style")
}
