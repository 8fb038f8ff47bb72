// Package conversation orders segments into turns and partitions turns
// into sessions.
package conversation

import (
	"sort"
	"time"

	vrerrors "github.com/otherjamesbrown/voxreel/pkg/errors"
	"github.com/otherjamesbrown/voxreel/pkg/segment"
)

// Defaults.
const (
	DefaultMergeThreshold = 1500 * time.Millisecond
	DefaultSessionGap     = 5 * time.Minute
)

// TurnIDPrefix prefixes the ID of a turn's first segment to form the turn ID.
const TurnIDPrefix = "turn:"

// Turn is a run of consecutive same-direction segments.
type Turn struct {
	ID        string            `json:"id" yaml:"id"`
	Direction segment.Direction `json:"direction" yaml:"direction"`
	Segments  []segment.Segment `json:"segments" yaml:"segments"`
	Start     time.Time         `json:"start" yaml:"start"`
	End       time.Time         `json:"end" yaml:"end"`
}

// SegmentIDs returns the IDs of the turn's segments in order.
func (t Turn) SegmentIDs() []string {
	ids := make([]string, len(t.Segments))
	for i, s := range t.Segments {
		ids[i] = s.ID
	}
	return ids
}

// Text joins the transcript text of the turn's segments.
func (t Turn) Text() string {
	var out string
	for _, s := range t.Segments {
		if s.TranscriptText == "" {
			continue
		}
		if out != "" {
			out += " "
		}
		out += s.TranscriptText
	}
	return out
}

// TurnID returns the turn ID for a turn starting with segmentID.
func TurnID(segmentID string) string {
	return TurnIDPrefix + segmentID
}

// Less reports whether a sorts before b: by timestamp, then user before
// assistant, then by ID.
func Less(a, b segment.Segment) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	if a.Direction.Rank() != b.Direction.Rank() {
		return a.Direction.Rank() < b.Direction.Rank()
	}
	return a.ID < b.ID
}

// Order returns a sorted copy of segments.
func Order(segments []segment.Segment) []segment.Segment {
	out := make([]segment.Segment, len(segments))
	copy(out, segments)
	sort.SliceStable(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out
}

// ValidateMergeThreshold rejects negative thresholds. Zero disables merging.
func ValidateMergeThreshold(d time.Duration) error {
	if d < 0 {
		return vrerrors.Validationf("merge threshold must not be negative, got %s", d)
	}
	return nil
}

// BuildTurns orders segments and groups them into turns in one forward
// pass. A segment joins the current turn only when it has the same
// direction and starts less than mergeThreshold after the turn ends;
// overlapping segments (negative gap) merge.
func BuildTurns(segments []segment.Segment, mergeThreshold time.Duration) ([]Turn, error) {
	if err := ValidateMergeThreshold(mergeThreshold); err != nil {
		return nil, err
	}

	ordered := Order(segments)
	var turns []Turn
	for _, s := range ordered {
		if n := len(turns); n > 0 {
			cur := &turns[n-1]
			gap := s.Timestamp.Sub(cur.End)
			if s.Direction == cur.Direction && gap < mergeThreshold {
				cur.Segments = append(cur.Segments, s)
				if end := s.End(); end.After(cur.End) {
					cur.End = end
				}
				continue
			}
		}
		turns = append(turns, Turn{
			ID:        TurnID(s.ID),
			Direction: s.Direction,
			Segments:  []segment.Segment{s},
			Start:     s.Timestamp,
			End:       s.End(),
		})
	}
	return turns, nil
}

// Index maps turn IDs to turns.
type Index map[string]Turn

// NewIndex indexes turns by ID.
func NewIndex(turns []Turn) Index {
	idx := make(Index, len(turns))
	for _, t := range turns {
		idx[t.ID] = t
	}
	return idx
}
