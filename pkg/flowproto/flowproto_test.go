package flowproto

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCompletionRecordComputesThroughput(t *testing.T) {
	cr := NewCompletionRecord("10.0.0.2", 1_000_000, 1.0)
	assert.InDelta(t, 8.0, cr.ThroughputMbps, 1e-9)
}

func TestParseReportFlowgenCompletion(t *testing.T) {
	data, err := Encode(NewCompletionRecord("10.0.0.2", 2048, 0.5))
	require.NoError(t, err)

	cr, err := ParseReport(data)
	require.NoError(t, err)
	assert.Equal(t, int64(2048), cr.Bytes)
}

func TestParseReportFlowgenError(t *testing.T) {
	data, err := Encode(NewErrorRecord(errors.New("connection-refused")))
	require.NoError(t, err)

	_, err = ParseReport(data)
	assert.Error(t, err)
}

func TestParseReportIperf3Completion(t *testing.T) {
	data := []byte(`{"end":{"sum_sent":{"seconds":2.0,"bytes":4096}}}`)
	cr, err := ParseReport(data)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), cr.Bytes)
	assert.InDelta(t, 2.0, cr.DurationSec, 1e-9)
}

func TestParseReportIperf3TopLevelError(t *testing.T) {
	data := []byte(`{"error":"unable to connect to server"}`)
	_, err := ParseReport(data)
	assert.Error(t, err)
}

func TestParseReportIncomplete(t *testing.T) {
	data := []byte(`{"end":{}}`)
	_, err := ParseReport(data)
	assert.ErrorIs(t, err, ErrIncompleteReport)
}

func TestParseReportEmpty(t *testing.T) {
	_, err := ParseReport(nil)
	assert.Error(t, err)
}
