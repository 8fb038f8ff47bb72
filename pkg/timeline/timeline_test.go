package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vrerrors "github.com/otherjamesbrown/voxreel/pkg/errors"
)

func TestBuild_TwoSegmentsWithGap(t *testing.T) {
	plan, err := Build([]Item{
		{SegmentID: "s1", Duration: 2 * time.Second},
		{SegmentID: "s2", Duration: 3 * time.Second, GapBefore: time.Second},
	}, 16000)
	require.NoError(t, err)

	require.Len(t, plan.Entries, 2)
	assert.Equal(t, time.Duration(0), plan.Entries[0].Start)
	assert.Equal(t, 2*time.Second, plan.Entries[0].End)
	assert.Equal(t, 3*time.Second, plan.Entries[1].Start)
	assert.Equal(t, 48000, plan.Entries[1].StartFrame)
	assert.Equal(t, 16000, plan.Entries[1].GapFrames)
	assert.Equal(t, 6*time.Second, plan.Duration)
	assert.Equal(t, 96000, plan.TotalFrames)
}

func TestBuild_FirstGapIgnored(t *testing.T) {
	plan, err := Build([]Item{{SegmentID: "s1", Duration: time.Second, GapBefore: time.Hour}}, 8000)
	require.NoError(t, err)
	assert.Zero(t, plan.Entries[0].StartFrame)
	assert.Equal(t, 8000, plan.TotalFrames)
}

func TestBuild_EntriesAreContiguous(t *testing.T) {
	items := []Item{
		{SegmentID: "a", Duration: 333 * time.Millisecond},
		{SegmentID: "b", Duration: 1234567 * time.Microsecond, GapBefore: 250 * time.Millisecond},
		{SegmentID: "c", Duration: 0, GapBefore: 77 * time.Millisecond},
		{SegmentID: "d", Duration: 10 * time.Second, GapBefore: 0},
	}
	plan, err := Build(items, 44100)
	require.NoError(t, err)

	cursor := 0
	for _, e := range plan.Entries {
		assert.Equal(t, cursor+e.GapFrames, e.StartFrame, e.SegmentID)
		assert.Equal(t, Offset(e.StartFrame, 44100), e.Start)
		cursor = e.StartFrame + e.Frames
	}
	assert.Equal(t, cursor, plan.TotalFrames)
}

func TestBuild_Validation(t *testing.T) {
	_, err := Build(nil, 0)
	assert.True(t, vrerrors.IsValidation(err))

	_, err = Build([]Item{{SegmentID: "x", Duration: -time.Second}}, 16000)
	assert.True(t, vrerrors.IsValidation(err))
}

func TestFrames(t *testing.T) {
	assert.Equal(t, 16000, Frames(time.Second, 16000))
	assert.Equal(t, 8, Frames(500*time.Microsecond, 16000))
	assert.Equal(t, 0, Frames(-time.Second, 16000))
	assert.Equal(t, 22050, Frames(500*time.Millisecond, 44100))
}
