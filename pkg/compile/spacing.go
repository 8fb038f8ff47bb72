package compile

import (
	"time"

	vrerrors "github.com/otherjamesbrown/voxreel/pkg/errors"
	"github.com/otherjamesbrown/voxreel/pkg/segment"
)

// SpacingMode selects how silence between segments is chosen.
type SpacingMode string

const (
	// SpacingFixed inserts the same gap between every pair of segments.
	SpacingFixed SpacingMode = "fixed"

	// SpacingOriginal reproduces the recorded gap, clamped to MaxGap.
	SpacingOriginal SpacingMode = "original"
)

// Spacing defaults.
const (
	DefaultGap    = 500 * time.Millisecond
	DefaultMaxGap = 10 * time.Second
)

// Spacing is the inter-segment silence policy.
type Spacing struct {
	Mode   SpacingMode   `json:"mode" yaml:"mode"`
	Gap    time.Duration `json:"gap" yaml:"gap"`
	MaxGap time.Duration `json:"max_gap" yaml:"max_gap"`
}

// DefaultSpacing returns a fixed 500ms gap.
func DefaultSpacing() Spacing {
	return Spacing{Mode: SpacingFixed, Gap: DefaultGap, MaxGap: DefaultMaxGap}
}

// ParseSpacingMode validates a mode name.
func ParseSpacingMode(s string) (SpacingMode, error) {
	switch SpacingMode(s) {
	case SpacingFixed, SpacingOriginal:
		return SpacingMode(s), nil
	}
	return "", vrerrors.Validationf("unknown spacing mode %q (want fixed or original)", s)
}

// Validate checks the policy.
func (s Spacing) Validate() error {
	if _, err := ParseSpacingMode(string(s.Mode)); err != nil {
		return err
	}
	if s.Gap < 0 {
		return vrerrors.Validationf("gap must not be negative, got %s", s.Gap)
	}
	if s.MaxGap < 0 {
		return vrerrors.Validationf("max gap must not be negative, got %s", s.MaxGap)
	}
	return nil
}

// Between returns the silence to insert between prev and next.
func (s Spacing) Between(prev, next segment.Segment) time.Duration {
	if s.Mode != SpacingOriginal {
		return s.Gap
	}
	gap := next.Timestamp.Sub(prev.Timestamp) - prev.Duration
	if gap < 0 {
		return 0
	}
	if gap > s.MaxGap {
		return s.MaxGap
	}
	return gap
}
