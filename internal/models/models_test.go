package models

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStreamKey(t *testing.T) {
	tests := []struct {
		name string
		want StreamKey
	}{
		{"mt_nominal", StreamKey{Channel: "mt", Shift: "nominal"}},
		{"et_tauEsOneProng_Up", StreamKey{Channel: "et", Shift: "tauEsOneProng_Up"}},
		{"tt", StreamKey{Channel: "tt"}},
		{"", StreamKey{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseStreamKey(tt.name)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.name, got.String())
		})
	}
}

func TestNicknameFromPath(t *testing.T) {
	assert.Equal(t, "DYJetsToLL_M50", NicknameFromPath("/store/ntuples/DYJetsToLL_M50/DYJetsToLL_M50.root"))
	assert.Equal(t, "troot", NicknameFromPath("troot.root"))
	assert.Equal(t, "plain", NicknameFromPath("dir/plain"))
}

func TestJobArgs_LastEntryIsInclusive(t *testing.T) {
	job := Job{
		Number:     3,
		Input:      "/in/SingleMuon_Run2017B/SingleMuon_Run2017B.root",
		Folder:     "mt_nominal",
		Tree:       "ntuple",
		FirstEntry: 100,
		EndEntry:   105,
		Friends:    []string{"/friends/a.root", "/friends/b.root"},
	}

	argv := CommandLine("SVFit", job.Args(""), OptionUnderscore)
	assert.Equal(t, []string{
		"SVFit",
		"--input", job.Input,
		"--folder", "mt_nominal",
		"--tree", "ntuple",
		"--first_entry", "100",
		"--last_entry", "104",
		"--input_friends", "/friends/a.root", "/friends/b.root",
	}, argv)

	argv = CommandLine("FakeFactors.py", job.Args(""), OptionHyphen)
	assert.Equal(t, []string{
		"FakeFactors.py",
		"--input", job.Input,
		"--folder", "mt_nominal",
		"--tree", "ntuple",
		"--first-entry", "100",
		"--last-entry", "104",
		"--input-friends", "/friends/a.root", "/friends/b.root",
	}, argv)

	withOutput := job.Args("output")
	last := withOutput[len(withOutput)-1]
	assert.Equal(t, "output", last.Key)
	assert.Equal(t, []string{job.OutputName()}, last.Values)
}

func TestOutputName(t *testing.T) {
	job := Job{Input: "/in/x/WJets.root", Folder: "et_nominal", FirstEntry: 0, EndEntry: 50}
	assert.Equal(t, filepath.Join("WJets", "WJets_et_nominal_0_49.root"), job.OutputName())
	assert.Equal(t, int64(50), job.Entries())
	assert.Equal(t, "WJets", job.Nickname())
}

func TestCatalog_DuplicateNickname(t *testing.T) {
	_, err := NewCatalog([]*Dataset{
		{Nickname: "a", Path: "/x/a.root"},
		{Nickname: "a", Path: "/y/a.root"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate dataset nickname")
}

func TestCatalog_CloneIsIndependent(t *testing.T) {
	c, err := NewCatalog([]*Dataset{
		{Nickname: "b", Path: "/b.root", Streams: map[string]int64{"mt_nominal": 3}},
		{Nickname: "a", Path: "/a.root", Streams: map[string]int64{"et_nominal": 0}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, c.Nicknames())

	clone := c.Clone()
	d, _ := clone.Dataset("a")
	d.Exclude("et_nominal", ExcludedEmpty)
	d.Streams["et_nominal"] = 9

	orig, _ := c.Dataset("a")
	assert.False(t, orig.IsExcluded("et_nominal"))
	assert.Equal(t, int64(0), orig.Streams["et_nominal"])
}

func TestCatalog_JSONRestoresNicknames(t *testing.T) {
	c, err := NewCatalog([]*Dataset{
		{Nickname: "a", Path: "/a.root", Streams: map[string]int64{"mt_nominal": 3}, Excluded: map[string]string{"mt_nominal": ExcludedShift}},
	})
	require.NoError(t, err)

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":{"path":"/a.root","pipelines":{"mt_nominal":3},"excluded":{"mt_nominal":"shift"}}}`, string(data))

	var back Catalog
	require.NoError(t, json.Unmarshal(data, &back))
	d, ok := back.Dataset("a")
	require.True(t, ok)
	assert.Equal(t, "a", d.Nickname)
	assert.True(t, d.IsExcluded("mt_nominal"))
}

func TestDatasetExclude_FirstReasonWins(t *testing.T) {
	d := &Dataset{Streams: map[string]int64{"mt_nominal": 0}}
	d.Exclude("mt_nominal", ExcludedEmpty)
	d.Exclude("mt_nominal", ExcludedChannel)
	assert.Equal(t, ExcludedEmpty, d.Excluded["mt_nominal"])
}

func TestParseOptionStyle(t *testing.T) {
	tests := []struct {
		in      string
		want    OptionStyle
		wantErr bool
	}{
		{"", OptionUnderscore, false},
		{"underscore", OptionUnderscore, false},
		{"hyphen", OptionHyphen, false},
		{"camel", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOptionStyle(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	assert.Equal(t, "--input-friends", OptionHyphen.Flag("input_friends"))
	assert.Equal(t, "--input_friends", OptionUnderscore.Flag("input_friends"))
}
