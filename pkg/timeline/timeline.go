// Package timeline computes where each compiled segment lands in the
// output. The compiler and the transcript exporter both read offsets from
// the same Plan, so audio and text cannot drift apart.
package timeline

import (
	"time"

	vrerrors "github.com/otherjamesbrown/voxreel/pkg/errors"
)

// Item is one segment to place, in output order.
type Item struct {
	SegmentID string
	// Duration is the audio length after any trimming.
	Duration time.Duration
	// GapBefore is the silence inserted before this item. It is ignored
	// for the first item.
	GapBefore time.Duration
}

// Entry is a placed segment. Offsets are exact at the plan sample rate.
type Entry struct {
	SegmentID  string        `json:"segment_id" yaml:"segment_id"`
	StartFrame int           `json:"start_frame" yaml:"start_frame"`
	Frames     int           `json:"frames" yaml:"frames"`
	GapFrames  int           `json:"gap_frames" yaml:"gap_frames"`
	Start      time.Duration `json:"start" yaml:"start"`
	End        time.Duration `json:"end" yaml:"end"`
}

// Plan is the full output layout.
type Plan struct {
	SampleRate  int           `json:"sample_rate" yaml:"sample_rate"`
	Entries     []Entry       `json:"entries" yaml:"entries"`
	TotalFrames int           `json:"total_frames" yaml:"total_frames"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
}

// Frames converts d to a whole number of frames at rate, rounding to nearest.
func Frames(d time.Duration, rate int) int {
	if d <= 0 {
		return 0
	}
	return int((int64(d)*int64(rate) + int64(time.Second)/2) / int64(time.Second))
}

// Offset converts a frame position at rate to a duration.
func Offset(frames, rate int) time.Duration {
	return time.Duration(int64(frames) * int64(time.Second) / int64(rate))
}

// Build lays items end to end with their gaps at the given sample rate.
func Build(items []Item, rate int) (Plan, error) {
	if rate <= 0 {
		return Plan{}, vrerrors.Validationf("plan sample rate must be positive, got %d", rate)
	}

	plan := Plan{SampleRate: rate, Entries: make([]Entry, 0, len(items))}
	cursor := 0
	for i, it := range items {
		if it.Duration < 0 || it.GapBefore < 0 {
			return Plan{}, vrerrors.Validationf("segment %s: negative duration or gap", it.SegmentID)
		}
		gap := 0
		if i > 0 {
			gap = Frames(it.GapBefore, rate)
		}
		cursor += gap
		n := Frames(it.Duration, rate)
		plan.Entries = append(plan.Entries, Entry{
			SegmentID:  it.SegmentID,
			StartFrame: cursor,
			Frames:     n,
			GapFrames:  gap,
			Start:      Offset(cursor, rate),
			End:        Offset(cursor+n, rate),
		})
		cursor += n
	}
	plan.TotalFrames = cursor
	plan.Duration = Offset(cursor, rate)
	return plan, nil
}
