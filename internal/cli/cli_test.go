package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/higgsanalysis/ftjobs/internal/config"
	"github.com/higgsanalysis/ftjobs/internal/datafile/flatfile"
	"github.com/higgsanalysis/ftjobs/internal/jobs/registry"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	AddCommands(root)

	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// fakeJobOutputs does what the cluster would: write the expected output of every job.
func fakeJobOutputs(t *testing.T, layout config.Layout) {
	t.Helper()
	reg, err := registry.Load(layout.RegistryPath())
	require.NoError(t, err)
	for _, j := range reg.Jobs() {
		require.NoError(t, flatfile.Write(layout.OutputPath(j), j.Tree, map[string]int64{j.Folder: j.Entries()}))
	}
}

func TestSubmitCheckCollect(t *testing.T) {
	t.Setenv("CMSSW_BASE", "")
	base := t.TempDir()
	input := filepath.Join(base, "ntuples")
	workdir := filepath.Join(base, "work")
	require.NoError(t, flatfile.Write(filepath.Join(input, "DY", "DY.root"), "ntuple",
		map[string]int64{"mt_nominal": 105, "et_nominal": 20, "mt_tauEsUp": 0}))
	require.NoError(t, flatfile.Write(filepath.Join(input, "SingleMuon_Run2018A", "SingleMuon_Run2018A.root"), "ntuple",
		map[string]int64{"mt_nominal": 60, "et_nominal": 60}))

	common := []string{"--executable", "SVFit", "--workdir", workdir, "--data-backend", "flat"}

	out, err := execute(t, append([]string{"submit", "--input-dir", input, "--events-per-job", "50", "--max-jobs-per-batch", "4"}, common...)...)
	require.NoError(t, err)
	// DY: mt 3 jobs, et 1 job; SingleMuon: mt only, 2 jobs
	assert.Contains(t, out, "✓ Planned 6 jobs (185 entries) in 2 batches")
	layout := config.NewLayout(workdir, "SVFit")
	assert.Contains(t, out, "cd "+workdir+"; condor_submit "+layout.DescriptorPath(1))
	assert.FileExists(t, layout.ScriptPath())
	assert.FileExists(t, layout.CatalogPath())

	out, err = execute(t, append([]string{"check"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "0 valid, 0 corrupt (deleted), 6 missing; 6 jobs to resubmit")

	fakeJobOutputs(t, layout)
	out, err = execute(t, append([]string{"check"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "6 valid")
	assert.Contains(t, out, "nothing to resubmit")

	out, err = execute(t, append([]string{"collect", "--workers", "2"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "2 of 2 datasets merged")
	records, err := flatfile.Records(layout.CollectedPath("DY"), "mt_nominal", "ntuple")
	require.NoError(t, err)
	assert.Len(t, records, 105)
}

func TestCollect_FailureExitsNonZero(t *testing.T) {
	t.Setenv("CMSSW_BASE", "")
	base := t.TempDir()
	input := filepath.Join(base, "ntuples")
	workdir := filepath.Join(base, "work")
	require.NoError(t, flatfile.Write(filepath.Join(input, "DY", "DY.root"), "ntuple", map[string]int64{"mt_nominal": 10}))
	common := []string{"--executable", "SVFit", "--workdir", workdir, "--data-backend", "flat"}

	_, err := execute(t, append([]string{"submit", "--input-dir", input, "--events-per-job", "5"}, common...)...)
	require.NoError(t, err)

	out, err := execute(t, append([]string{"collect"}, common...)...)
	require.Error(t, err)
	assert.Contains(t, out, "✗ DY")
	assert.Contains(t, out, "0 of 1 datasets merged")
}

func TestSubmit_ConfigFile(t *testing.T) {
	t.Setenv("CMSSW_BASE", "")
	base := t.TempDir()
	input := filepath.Join(base, "ntuples")
	workdir := filepath.Join(base, "work")
	require.NoError(t, flatfile.Write(filepath.Join(input, "DY", "DY.root"), "ntuple",
		map[string]int64{"mt_nominal": 10, "et_nominal": 10}))

	cfgPath := filepath.Join(base, "ftjobs.yaml")
	cfg := strings.Join([]string{
		"executable: SVFit",
		"data_backend: flat",
		"input_ntuples_directory: " + input,
		"workdir: " + workdir,
		"events_per_job: 10",
		"restrict_to_channels: [et]",
		"batch_cluster: etp",
	}, "\n")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0644))

	out, err := execute(t, "submit", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Planned 1 jobs")

	jdl, err := os.ReadFile(config.NewLayout(workdir, "SVFit").DescriptorPath(0))
	require.NoError(t, err)
	assert.Contains(t, string(jdl), "+RemoteJob")
}

func TestSubmit_InvalidConfiguration(t *testing.T) {
	_, err := execute(t, "submit", "--data-backend", "flat")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "executable is required")
	assert.Contains(t, err.Error(), "input_ntuples_directory is required")
}

func TestCheck_WithoutRegistry(t *testing.T) {
	_, err := execute(t, "check", "--executable", "SVFit", "--workdir", t.TempDir(), "--data-backend", "flat")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run submit first")
}

func TestSubmit_HyphenOptionStyle(t *testing.T) {
	t.Setenv("CMSSW_BASE", "")
	base := t.TempDir()
	input := filepath.Join(base, "ntuples")
	workdir := filepath.Join(base, "work")
	friends := filepath.Join(base, "friends")
	require.NoError(t, flatfile.Write(filepath.Join(input, "DY", "DY.root"), "ntuple", map[string]int64{"mt_nominal": 10}))

	_, err := execute(t, "submit", "--executable", "FakeFactors.py", "--workdir", workdir, "--data-backend", "flat",
		"--input-dir", input, "--events-per-job", "10", "--option-style", "hyphen", "--friend", "mt="+friends)
	require.NoError(t, err)

	script, err := os.ReadFile(config.NewLayout(workdir, "FakeFactors.py").ScriptPath())
	require.NoError(t, err)
	assert.Contains(t, string(script), "--first-entry 0 --last-entry 9 --input-friends "+filepath.Join(friends, "DY", "DY.root"))
}
