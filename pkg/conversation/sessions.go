package conversation

import (
	"fmt"
	"time"

	vrerrors "github.com/otherjamesbrown/voxreel/pkg/errors"
)

// Session is a maximal run of turns with no gap at or above the session gap.
type Session struct {
	Index int       `json:"index" yaml:"index"`
	ID    string    `json:"id" yaml:"id"`
	Turns []Turn    `json:"turns" yaml:"turns"`
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`
}

// SessionID formats the ID of the session with the given 1-based index.
func SessionID(index int) string {
	return fmt.Sprintf("session-%03d", index)
}

// Duration returns the wall-clock span of the session.
func (s Session) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// TurnIDs returns the IDs of the session's turns.
func (s Session) TurnIDs() []string {
	ids := make([]string, len(s.Turns))
	for i, t := range s.Turns {
		ids[i] = t.ID
	}
	return ids
}

// SegmentIDs returns the IDs of every segment in the session, in order.
func (s Session) SegmentIDs() []string {
	var ids []string
	for _, t := range s.Turns {
		ids = append(ids, t.SegmentIDs()...)
	}
	return ids
}

// ValidateSessionGap rejects non-positive gaps.
func ValidateSessionGap(d time.Duration) error {
	if d <= 0 {
		return vrerrors.Validationf("session gap must be positive, got %s", d)
	}
	return nil
}

// DetectSessions splits ordered turns into sessions. A new session starts
// when the next turn begins at least gap after the previous turn ends.
// Sessions own their turn slices.
func DetectSessions(turns []Turn, gap time.Duration) ([]Session, error) {
	if err := ValidateSessionGap(gap); err != nil {
		return nil, err
	}
	if len(turns) == 0 {
		return nil, nil
	}

	var (
		sessions []Session
		cur      []Turn
	)
	flush := func() {
		owned := make([]Turn, len(cur))
		copy(owned, cur)
		end := owned[0].End
		for _, t := range owned[1:] {
			if t.End.After(end) {
				end = t.End
			}
		}
		idx := len(sessions) + 1
		sessions = append(sessions, Session{
			Index: idx,
			ID:    SessionID(idx),
			Turns: owned,
			Start: owned[0].Start,
			End:   end,
		})
		cur = cur[:0]
	}

	for i, t := range turns {
		if i > 0 && t.Start.Sub(turns[i-1].End) >= gap {
			flush()
		}
		cur = append(cur, t)
	}
	flush()
	return sessions, nil
}

// Flatten concatenates the turns of sessions in order.
func Flatten(sessions []Session) []Turn {
	var out []Turn
	for _, s := range sessions {
		out = append(out, s.Turns...)
	}
	return out
}

// ByIndex returns the session with the given 1-based index.
func ByIndex(sessions []Session, index int) (Session, error) {
	if index < 1 || index > len(sessions) {
		return Session{}, fmt.Errorf("session %d (have %d): %w", index, len(sessions), vrerrors.ErrNotFound)
	}
	return sessions[index-1], nil
}
