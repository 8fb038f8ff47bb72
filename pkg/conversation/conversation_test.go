package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vrerrors "github.com/otherjamesbrown/voxreel/pkg/errors"
	"github.com/otherjamesbrown/voxreel/pkg/segment"
)

var base = time.Date(2025, 6, 18, 14, 30, 0, 0, time.UTC)

func seg(id string, dir segment.Direction, offset, dur time.Duration) segment.Segment {
	return segment.Segment{
		ID:        id,
		Direction: dir,
		Timestamp: base.Add(offset),
		Duration:  dur,
	}
}

const (
	user      = segment.DirectionUser
	assistant = segment.DirectionAssistant
)

func ids(segs []segment.Segment) []string {
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = s.ID
	}
	return out
}

func TestOrder(t *testing.T) {
	input := []segment.Segment{
		seg("c", assistant, 2*time.Second, time.Second),
		seg("b", assistant, time.Second, time.Second),
		seg("a", user, time.Second, time.Second),
		seg("z", user, 0, time.Second),
		seg("y", user, 0, time.Second),
	}

	ordered := Order(input)

	assert.Equal(t, []string{"y", "z", "a", "b", "c"}, ids(ordered))
	assert.Equal(t, "c", input[0].ID, "input must not be reordered")
	for i := 1; i < len(ordered); i++ {
		assert.False(t, Less(ordered[i], ordered[i-1]), "ordering violated at %d", i)
	}
}

func TestBuildTurns_Alternating(t *testing.T) {
	turns, err := BuildTurns([]segment.Segment{
		seg("u1", user, 0, 2*time.Second),
		seg("a1", assistant, 3*time.Second, 4*time.Second),
		seg("u2", user, 8*time.Second, time.Second),
	}, DefaultMergeThreshold)
	require.NoError(t, err)

	require.Len(t, turns, 3)
	assert.Equal(t, "turn:u1", turns[0].ID)
	assert.Equal(t, assistant, turns[1].Direction)
	assert.Equal(t, base.Add(7*time.Second), turns[1].End)
}

func TestBuildTurns_MergeThresholdBoundary(t *testing.T) {
	threshold := 1500 * time.Millisecond

	// First segment ends at 1s. A second segment exactly threshold later
	// starts a new turn; one millisecond earlier it merges.
	equal := []segment.Segment{
		seg("s1", user, 0, time.Second),
		seg("s2", user, time.Second+threshold, time.Second),
	}
	turns, err := BuildTurns(equal, threshold)
	require.NoError(t, err)
	assert.Len(t, turns, 2)

	below := []segment.Segment{
		seg("s1", user, 0, time.Second),
		seg("s2", user, time.Second+threshold-time.Millisecond, time.Second),
	}
	turns, err = BuildTurns(below, threshold)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, []string{"s1", "s2"}, turns[0].SegmentIDs())
	assert.Equal(t, base.Add(time.Second+threshold-time.Millisecond+time.Second), turns[0].End)
}

func TestBuildTurns_DirectionChangeAlwaysSplits(t *testing.T) {
	turns, err := BuildTurns([]segment.Segment{
		seg("u", user, 0, time.Second),
		seg("a", assistant, time.Second, time.Second),
	}, time.Hour)
	require.NoError(t, err)
	assert.Len(t, turns, 2)
}

func TestBuildTurns_OverlapMerges(t *testing.T) {
	turns, err := BuildTurns([]segment.Segment{
		seg("a1", assistant, 0, 5*time.Second),
		seg("a2", assistant, 2*time.Second, time.Second),
	}, DefaultMergeThreshold)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, base.Add(5*time.Second), turns[0].End, "end is the maximum segment end")
}

func TestBuildTurns_ZeroThresholdDisablesMerging(t *testing.T) {
	turns, err := BuildTurns([]segment.Segment{
		seg("s1", user, 0, time.Second),
		seg("s2", user, time.Second, time.Second),
	}, 0)
	require.NoError(t, err)
	assert.Len(t, turns, 2)
}

func TestBuildTurns_NegativeThreshold(t *testing.T) {
	_, err := BuildTurns(nil, -time.Second)
	assert.True(t, vrerrors.IsValidation(err))
}

func TestBuildTurns_Empty(t *testing.T) {
	turns, err := BuildTurns(nil, DefaultMergeThreshold)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestTurn_Text(t *testing.T) {
	turn := Turn{Segments: []segment.Segment{
		{TranscriptText: "hello"},
		{},
		{TranscriptText: "world"},
	}}
	assert.Equal(t, "hello world", turn.Text())
}

func buildSessions(t *testing.T, gap time.Duration) ([]Turn, []Session) {
	t.Helper()
	turns, err := BuildTurns([]segment.Segment{
		seg("u1", user, 0, 2*time.Second),
		seg("a1", assistant, 3*time.Second, 2*time.Second),
		// 5m gap after a1 ends at 5s.
		seg("u2", user, 5*time.Second+5*time.Minute, time.Second),
		seg("a2", assistant, 5*time.Minute+7*time.Second, time.Second),
		// Just under the gap.
		seg("u3", user, 5*time.Minute+8*time.Second+5*time.Minute-time.Millisecond, time.Second),
	}, DefaultMergeThreshold)
	require.NoError(t, err)
	sessions, err := DetectSessions(turns, gap)
	require.NoError(t, err)
	return turns, sessions
}

func TestDetectSessions(t *testing.T) {
	turns, sessions := buildSessions(t, DefaultSessionGap)

	require.Len(t, sessions, 2)
	assert.Equal(t, 1, sessions[0].Index)
	assert.Equal(t, "session-001", sessions[0].ID)
	assert.Equal(t, []string{"turn:u1", "turn:a1"}, sessions[0].TurnIDs())
	assert.Equal(t, "session-002", sessions[1].ID)
	assert.Len(t, sessions[1].Turns, 3)
	assert.Equal(t, turns[0].Start, sessions[0].Start)
	assert.Equal(t, base.Add(5*time.Second), sessions[0].End)
}

func TestDetectSessions_FlattenReproducesInput(t *testing.T) {
	for _, gap := range []time.Duration{time.Millisecond, time.Second, DefaultSessionGap, 24 * time.Hour} {
		turns, sessions := buildSessions(t, gap)
		assert.Equal(t, turns, Flatten(sessions), "gap %s", gap)
	}
}

func TestDetectSessions_Boundaries(t *testing.T) {
	sessions, err := DetectSessions(nil, DefaultSessionGap)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	one := []Turn{{ID: "turn:x", Start: base, End: base.Add(time.Second)}}
	sessions, err = DetectSessions(one, DefaultSessionGap)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	_, err = DetectSessions(one, 0)
	assert.True(t, vrerrors.IsValidation(err))
}

func TestDetectSessions_GapEqualSplits(t *testing.T) {
	turns := []Turn{
		{ID: "turn:a", Start: base, End: base.Add(time.Second)},
		{ID: "turn:b", Start: base.Add(time.Second + time.Minute), End: base.Add(2*time.Second + time.Minute)},
	}
	sessions, err := DetectSessions(turns, time.Minute)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestDetectSessions_RunsDoNotShareState(t *testing.T) {
	turns, first := buildSessions(t, DefaultSessionGap)
	firstIDs := first[0].TurnIDs()

	turns[0].ID = "mutated"
	_, err := DetectSessions(turns, time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, firstIDs, first[0].TurnIDs())
}

func TestByIndex(t *testing.T) {
	_, sessions := buildSessions(t, DefaultSessionGap)

	s, err := ByIndex(sessions, 2)
	require.NoError(t, err)
	assert.Equal(t, "session-002", s.ID)

	_, err = ByIndex(sessions, 3)
	assert.True(t, vrerrors.IsNotFound(err))
	_, err = ByIndex(sessions, 0)
	assert.True(t, vrerrors.IsNotFound(err))
}

func TestSession_SegmentIDs(t *testing.T) {
	_, sessions := buildSessions(t, DefaultSessionGap)
	assert.Equal(t, []string{"u2", "a2", "u3"}, sessions[1].SegmentIDs())
}
