// Package segment models recorded STT/TTS audio segments and builds an
// immutable catalog of them from a storage root.
package segment

import (
	"fmt"
	"strings"
	"time"

	"github.com/otherjamesbrown/voxreel/pkg/audio"
	vrerrors "github.com/otherjamesbrown/voxreel/pkg/errors"
)

// Direction is the speaker side of a segment.
type Direction string

const (
	// DirectionUser is speech captured from the user (STT).
	DirectionUser Direction = "user"

	// DirectionAssistant is speech synthesized for the assistant (TTS).
	DirectionAssistant Direction = "assistant"
)

// ParseDirection accepts the canonical direction names.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case DirectionUser:
		return DirectionUser, nil
	case DirectionAssistant:
		return DirectionAssistant, nil
	}
	return "", vrerrors.Validationf("unknown direction %q", s)
}

// Label returns the speaker label used in transcripts.
func (d Direction) Label() string {
	switch d {
	case DirectionUser:
		return "User"
	case DirectionAssistant:
		return "Assistant"
	}
	return string(d)
}

// Rank orders directions when timestamps tie: user before assistant.
func (d Direction) Rank() int {
	if d == DirectionUser {
		return 0
	}
	return 1
}

// Segment is one recorded audio file.
type Segment struct {
	// ID is the slash-separated path relative to the storage root.
	ID string `json:"id" yaml:"id"`

	Timestamp  time.Time     `json:"timestamp" yaml:"timestamp"`
	Direction  Direction     `json:"direction" yaml:"direction"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
	Frames     int           `json:"frames" yaml:"frames"`
	SampleRate int           `json:"sample_rate" yaml:"sample_rate"`
	Channels   int           `json:"channels" yaml:"channels"`
	Format     audio.Codec   `json:"format" yaml:"format"`

	// TranscriptText is empty when no text is known.
	TranscriptText string `json:"transcript_text,omitempty" yaml:"transcript_text,omitempty"`

	// TimestampFromMTime is set when the name carried no timestamp.
	TimestampFromMTime bool `json:"timestamp_from_mtime,omitempty" yaml:"timestamp_from_mtime,omitempty"`

	Audio   audio.Ref `json:"audio" yaml:"audio"`
	Size    int64     `json:"size" yaml:"size"`
	ModTime time.Time `json:"mod_time" yaml:"mod_time"`
}

// End returns the instant the segment's audio finishes.
func (s Segment) End() time.Time {
	return s.Timestamp.Add(s.Duration)
}

// String returns a short description for logs.
func (s Segment) String() string {
	return fmt.Sprintf("%s (%s, %s, %s)", s.ID, s.Direction, s.Timestamp.Format(time.RFC3339Nano), s.Duration)
}
