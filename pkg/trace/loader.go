package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"
)

// timeShape tracks which wall-time representation a file uses, so a file
// that mixes ISO strings and float offsets can be rejected rather than
// silently guessed at.
type timeShape int

const (
	shapeUnknown timeShape = iota
	shapeFloat
	shapeISO
)

// LoadFile parses one logical trace file and namespaces every identifier
// with the "<idx>-" prefix, per the loader's namespacing convention.
// ISO time_sent values are normalized to float seconds relative to the first
// entry's timestamp in the file; float time_sent values are taken as offsets
// already and kept unchanged. Returns ErrTraceFormat if the file's elements are
// not recognizable logical entries, or if ISO and float time_sent values are
// mixed within one file.
func LoadFile(path string, idx int) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("trace: read %s: %w", path, err)
	}

	var raws []rawEntry
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTraceFormat, path, err)
	}

	prefix := fmt.Sprintf("%d-", idx)
	entries := make([]Entry, 0, len(raws))

	shape := shapeUnknown
	var firstWall time.Time
	haveFirstWall := false

	for i, r := range raws {
		if r.Sender == "" {
			return nil, fmt.Errorf("%w: %s: element %d missing sender", ErrTraceFormat, path, i)
		}

		t, thisShape, err := parseTimeSent(r.TimeSent)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: element %d: %v", ErrTraceFormat, path, i, err)
		}
		if shape == shapeUnknown {
			shape = thisShape
		} else if shape != thisShape {
			return nil, fmt.Errorf("%w: %s: mixed time_sent representations (ISO and float) in one file", ErrTraceFormat, path)
		}

		var normalized float64
		if thisShape == shapeISO {
			wall := t
			if !haveFirstWall {
				firstWall = wall
				haveFirstWall = true
			}
			normalized = wall.Sub(firstWall).Seconds()
		} else {
			normalized = t.Sub(time.Time{}).Seconds()
		}

		receivers := make([]string, 0, len(r.Receiver))
		for _, rv := range r.Receiver {
			receivers = append(receivers, namespacedID(prefix, rv.String()))
		}

		entries = append(entries, Entry{
			Sender:     namespacedID(prefix, r.Sender.String()),
			Receiver:   receivers,
			TimeSent:   normalized,
			LLMGenTime: r.LLMGenTime,
			DataSizeKB: r.DataSizeKB,
		})
	}

	return entries, nil
}

// namespacedID prefixes id with prefix, except for the external-user
// sentinel "-1", which is never namespaced (it does not denote a real
// logical node).
func namespacedID(prefix, id string) string {
	if id == "-1" {
		return id
	}
	return prefix + id
}

// parseTimeSent accepts either a JSON string (ISO-8601) or a JSON number
// (float seconds) for time_sent, returning a time.Time representation in
// both cases (float offsets are represented as an offset from the zero
// time.Time so Sub() yields back the original float).
func parseTimeSent(raw json.RawMessage) (time.Time, timeShape, error) {
	if len(raw) == 0 {
		return time.Time{}, shapeUnknown, fmt.Errorf("missing time_sent")
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, shapeUnknown, fmt.Errorf("invalid ISO time_sent: %w", err)
		}
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			ts, err = time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return time.Time{}, shapeUnknown, fmt.Errorf("invalid ISO time_sent %q: %w", s, err)
			}
		}
		return ts, shapeISO, nil
	}

	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return time.Time{}, shapeUnknown, fmt.Errorf("invalid numeric time_sent: %w", err)
	}
	return time.Time{}.Add(time.Duration(f * float64(time.Second))), shapeFloat, nil
}

// LoadAndMerge loads every file in paths (in order), namespacing each by its
// index, and returns the globally time-sorted union. A file that fails to
// load is skipped and listed in failed; if every file fails, LoadAndMerge
// returns an error wrapping ErrTraceFormat.
func LoadAndMerge(paths []string) (entries []Entry, failed []string, err error) {
	for idx, p := range paths {
		e, loadErr := LoadFile(p, idx)
		if loadErr != nil {
			failed = append(failed, p)
			continue
		}
		entries = append(entries, e...)
	}

	if len(paths) > 0 && len(failed) == len(paths) {
		return nil, failed, fmt.Errorf("%w: all %d trace file(s) failed to load", ErrTraceFormat, len(paths))
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TimeSent < entries[j].TimeSent
	})

	return entries, failed, nil
}
