package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/netfabric/fabricsim/pkg/flowproto"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionWithFCT(sec float64) *flowproto.CompletionRecord {
	return &flowproto.CompletionRecord{Bytes: 1000, DurationSec: sec}
}

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestParseFilenameSplitsIdxSenderReceiver(t *testing.T) {
	idx, src, dst, ok := parseFilename("42_0-1.0_to_0-2.0.json")
	require.True(t, ok)
	assert.Equal(t, 42, idx)
	assert.Equal(t, "0-1.0", src)
	assert.Equal(t, "0-2.0", dst)
}

func TestParseFilenameRejectsMalformedNames(t *testing.T) {
	_, _, _, ok := parseFilename("not-a-flow-log.json")
	assert.False(t, ok)
}

func TestAnalyzeClassifiesByGroupKey(t *testing.T) {
	dir := t.TempDir()
	// same group (0-1) -> distributed inference
	writeFile(t, dir, "0_0-1.0_to_0-1.1.json",
		`{"event":"flow_complete","bytes":1000,"duration_sec":0.1,"throughput_mbps":80}`)
	// different group -> agent to agent
	writeFile(t, dir, "1_0-1.0_to_0-2.0.json",
		`{"event":"flow_complete","bytes":2000,"duration_sec":0.2,"throughput_mbps":80}`)

	rep, err := Analyze(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.SuccessCount)
	assert.Equal(t, 1, rep.ByClass[ClassDistributedInference].Count)
	assert.Equal(t, 1, rep.ByClass[ClassAgentToAgent].Count)
	assert.Equal(t, int64(3000), rep.Aggregate.TotalBytes)
}

func TestAnalyzeBucketsErrorsByTaxonomy(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "0_0-1.0_to_0-2.0.json", "")
	writeFile(t, dir, "1_0-1.0_to_0-2.0.json", `{"event":"error","error":"connection refused"}`)
	writeFile(t, dir, "2_0-1.0_to_0-2.0.json", `not json at all`)
	writeFile(t, dir, "3_0-1.0_to_0-2.0.json", `{"end":{}}`)

	rep, err := Analyze(dir)
	require.NoError(t, err)
	assert.Equal(t, 4, rep.FailureCount)
	assert.Equal(t, 1, rep.ErrorCounts[ErrorEmptyFile])
	assert.Equal(t, 1, rep.ErrorCounts[ErrorConnectionRefused])
	assert.Equal(t, 1, rep.ErrorCounts[ErrorJSONParse])
	assert.Equal(t, 1, rep.ErrorCounts[ErrorIncompleteJSON])
}

func TestComputeStatsPercentiles(t *testing.T) {
	rs := []FlowResult{
		{Completion: completionWithFCT(1)},
		{Completion: completionWithFCT(2)},
		{Completion: completionWithFCT(3)},
		{Completion: completionWithFCT(4)},
	}
	stats := computeStats(rs)
	assert.Equal(t, 4, stats.Count)
	assert.Equal(t, 4.0, stats.MaxFCTSec)
	assert.InDelta(t, 2.5, stats.MeanFCTSec, 0.001)
	assert.Equal(t, 2.0, stats.P50FCTSec)
	assert.Equal(t, 4.0, stats.P99FCTSec)
}

func TestIgnoresNonJSONFilesInDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "README.txt", "not a flow log")
	rep, err := Analyze(dir)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.SuccessCount)
	assert.Equal(t, 0, rep.FailureCount)
}
