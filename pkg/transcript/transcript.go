// Package transcript renders the text side of a compiled conversation
// and reads WebVTT transcripts back.
package transcript

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	vrerrors "github.com/otherjamesbrown/voxreel/pkg/errors"
	"github.com/otherjamesbrown/voxreel/pkg/segment"
	"github.com/otherjamesbrown/voxreel/pkg/timeline"
)

// Format is a transcript file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatVTT  Format = "vtt"
	FormatSRT  Format = "srt"
	FormatText Format = "txt"
)

// NoTranscript is written in place of empty text in cue-based formats.
const NoTranscript = "[no transcript]"

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatVTT, "webvtt":
		return FormatVTT, nil
	case FormatSRT:
		return FormatSRT, nil
	case FormatText, "text":
		return FormatText, nil
	}
	return "", vrerrors.Validationf("unknown transcript format %q (want json, vtt, srt or txt)", s)
}

// FormatForPath infers the format from a file extension.
func FormatForPath(path string) (Format, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		return "", vrerrors.Validationf("cannot infer transcript format from %q", path)
	}
	return ParseFormat(ext)
}

// Entry is one segment's text placed on the output timeline.
type Entry struct {
	SegmentID string            `json:"segment_id" yaml:"segment_id"`
	Direction segment.Direction `json:"direction" yaml:"direction"`
	Text      string            `json:"text" yaml:"text"`
	Start     time.Duration     `json:"start" yaml:"start"`
	End       time.Duration     `json:"end" yaml:"end"`
}

// Build maps every planned segment to a transcript entry. Offsets are
// copied from the plan unchanged.
func Build(plan timeline.Plan, segments []segment.Segment) ([]Entry, error) {
	byID := make(map[string]segment.Segment, len(segments))
	for _, s := range segments {
		byID[s.ID] = s
	}

	entries := make([]Entry, 0, len(plan.Entries))
	for _, pe := range plan.Entries {
		s, ok := byID[pe.SegmentID]
		if !ok {
			return nil, fmt.Errorf("planned segment %s has no metadata: %w", pe.SegmentID, vrerrors.ErrInvalidState)
		}
		entries = append(entries, Entry{
			SegmentID: s.ID,
			Direction: s.Direction,
			Text:      s.TranscriptText,
			Start:     pe.Start,
			End:       pe.End,
		})
	}
	return entries, nil
}

// displayText returns the text written into cue-based formats.
func displayText(e Entry) string {
	if e.Text == "" {
		return NoTranscript
	}
	return e.Text
}

// formatClock renders d as HH:MM:SS<sep>mmm.
func formatClock(d time.Duration, sep string) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	h := ms / 3600000
	m := (ms / 60000) % 60
	s := (ms / 1000) % 60
	return fmt.Sprintf("%02d:%02d:%02d%s%03d", h, m, s, sep, ms%1000)
}
