package trace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTraceFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestLoadFileNamespacesIdentifiers(t *testing.T) {
	dir := t.TempDir()
	p := writeTraceFile(t, dir, "trace0.json", `[
		{"sender": 1, "receiver": [2], "time_sent": 0.0, "llm_gen_time": 1.0, "data_size(kb)": 4.0},
		{"sender": 2, "receiver": [1], "time_sent": 1.0, "llm_gen_time": 0.5, "data_size(kb)": 2.0}
	]`)

	entries, err := LoadFile(p, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "0-1", entries[0].Sender)
	assert.Equal(t, []string{"0-2"}, entries[0].Receiver)
	assert.Equal(t, "0-2", entries[1].Sender)
}

func TestLoadFileExternalSenderNotNamespaced(t *testing.T) {
	dir := t.TempDir()
	p := writeTraceFile(t, dir, "trace0.json", `[
		{"sender": -1, "receiver": [1], "time_sent": 0.0, "llm_gen_time": 0.0, "data_size(kb)": 1.0}
	]`)

	entries, err := LoadFile(p, 3)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "-1", entries[0].Sender)
	assert.Equal(t, "3-1", entries[0].Receiver[0])
	assert.False(t, entries[0].ProducesWireFlows())
}

func TestLoadFileRejectsMixedTimeRepresentations(t *testing.T) {
	dir := t.TempDir()
	p := writeTraceFile(t, dir, "mixed.json", `[
		{"sender": 1, "receiver": [2], "time_sent": 0.0, "llm_gen_time": 1.0, "data_size(kb)": 1.0},
		{"sender": 2, "receiver": [1], "time_sent": "2026-01-01T00:00:01Z", "llm_gen_time": 1.0, "data_size(kb)": 1.0}
	]`)

	_, err := LoadFile(p, 0)
	assert.ErrorIs(t, err, ErrTraceFormat)
}

func TestLoadFileRejectsUnrecognizedShape(t *testing.T) {
	dir := t.TempDir()
	p := writeTraceFile(t, dir, "bad.json", `{"not": "an array"}`)

	_, err := LoadFile(p, 0)
	assert.ErrorIs(t, err, ErrTraceFormat)
}

func TestLoadAndMergeSortsGloballyByTime(t *testing.T) {
	dir := t.TempDir()
	p0 := writeTraceFile(t, dir, "t0.json", `[
		{"sender": 1, "receiver": [2], "time_sent": 5.0, "llm_gen_time": 1.0, "data_size(kb)": 1.0}
	]`)
	p1 := writeTraceFile(t, dir, "t1.json", `[
		{"sender": 1, "receiver": [2], "time_sent": 1.0, "llm_gen_time": 1.0, "data_size(kb)": 1.0}
	]`)

	entries, failed, err := LoadAndMerge([]string{p0, p1})
	require.NoError(t, err)
	assert.Empty(t, failed)
	require.Len(t, entries, 2)
	assert.Equal(t, "1-1", entries[0].Sender) // trace index 1, time 1.0, sorts first
	assert.Equal(t, "0-1", entries[1].Sender)
}

func TestLoadAndMergeAllFilesFailingIsFatal(t *testing.T) {
	dir := t.TempDir()
	bad := writeTraceFile(t, dir, "bad.json", `not json`)

	_, failed, err := LoadAndMerge([]string{bad})
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrTraceFormat)
	assert.Equal(t, []string{bad}, failed)
}

func TestLoadAndMergePartialFailureContinues(t *testing.T) {
	dir := t.TempDir()
	good := writeTraceFile(t, dir, "good.json", `[
		{"sender": 1, "receiver": [2], "time_sent": 0.0, "llm_gen_time": 1.0, "data_size(kb)": 1.0}
	]`)
	bad := writeTraceFile(t, dir, "bad.json", `not json`)

	entries, failed, err := LoadAndMerge([]string{good, bad})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, []string{bad}, failed)
}
