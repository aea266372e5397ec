package synth

import (
	"math/rand"
	"testing"

	"github.com/netfabric/fabricsim/pkg/trace"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesizeProducesNoZeroOrNegativeSizeEvents(t *testing.T) {
	entries := []trace.Entry{
		{Sender: "0-1", Receiver: []string{"0-2"}, TimeSent: 0, LLMGenTime: 2.0, DataSizeKB: 8.0},
		{Sender: "0-2", Receiver: []string{"0-1"}, TimeSent: 2.0, LLMGenTime: 1.0, DataSizeKB: 4.0},
	}

	rng := rand.New(rand.NewSource(1))
	_, events := Synthesize(entries, rng)

	require.NotEmpty(t, events)
	for _, ev := range events {
		assert.Greater(t, ev.Size, 0)
	}
}

func TestSynthesizeZeroInputSizeSuppressesPrefillButNotDecode(t *testing.T) {
	entries := []trace.Entry{
		// first entry carries input_size_kb forward as 0 by being a no-op
		// (external) entry so the next real entry starts with input_size 0.
		{Sender: "-1", Receiver: []string{"0-1"}, TimeSent: 0, LLMGenTime: 0, DataSizeKB: 0},
		{Sender: "0-1", Receiver: []string{"0-2"}, TimeSent: 0, LLMGenTime: 1.0, DataSizeKB: 8.0},
	}

	rng := rand.New(rand.NewSource(1))
	desc, events := Synthesize(entries, rng)

	require.Contains(t, desc, "0-1")
	assert.Len(t, desc["0-1"], NodesPerAgent)

	// input_size 0 makes every prefill sub-flow size 0, so it is dropped;
	// everything but the final 8 KB application message is a decode flow.
	require.NotEmpty(t, events)
	decode := 0
	for _, ev := range events[:len(events)-1] {
		assert.Equal(t, MsgBytes, ev.Size)
		decode++
	}
	assert.Greater(t, decode, 0)
	assert.Equal(t, 8000, events[len(events)-1].Size)
}

func TestSynthesizeFinalApplicationMessageTargetsSubNodeZero(t *testing.T) {
	entries := []trace.Entry{
		{Sender: "0-1", Receiver: []string{"0-2"}, TimeSent: 0, LLMGenTime: 0.5, DataSizeKB: 4.0},
	}

	rng := rand.New(rand.NewSource(7))
	_, events := Synthesize(entries, rng)

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, []string{"0-2.0"}, last.Receiver)
	assert.InDelta(t, 0.5, last.Time, 1e-9)
}

func TestSynthesizeProcessDescriptorListsEachSenderOnce(t *testing.T) {
	entries := []trace.Entry{
		{Sender: "0-1", Receiver: []string{"0-2"}, TimeSent: 0, LLMGenTime: 1.0, DataSizeKB: 4.0},
		{Sender: "0-1", Receiver: []string{"0-2"}, TimeSent: 1.0, LLMGenTime: 1.0, DataSizeKB: 4.0},
	}

	rng := rand.New(rand.NewSource(3))
	desc, _ := Synthesize(entries, rng)

	assert.Len(t, desc, 1)
	assert.Len(t, desc["0-1"], NodesPerAgent)
}

func TestSynthesizeCumulativeTimeAdvancesAcrossEntries(t *testing.T) {
	entries := []trace.Entry{
		{Sender: "0-1", Receiver: []string{"0-2"}, TimeSent: 0, LLMGenTime: 1.0, DataSizeKB: 4.0},
		{Sender: "0-2", Receiver: []string{"0-1"}, TimeSent: 1.0, LLMGenTime: 1.0, DataSizeKB: 4.0},
	}

	rng := rand.New(rand.NewSource(3))
	_, events := Synthesize(entries, rng)

	var maxFirstEntryTime, minSecondEntryTime float64
	minSecondEntryTime = -1
	for _, ev := range events {
		if ev.Time <= 1.0 && ev.Time > maxFirstEntryTime {
			maxFirstEntryTime = ev.Time
		}
	}
	for _, ev := range events {
		if ev.Time > 1.0 && (minSecondEntryTime < 0 || ev.Time < minSecondEntryTime) {
			minSecondEntryTime = ev.Time
		}
	}
	assert.GreaterOrEqual(t, minSecondEntryTime, 1.0)
}
