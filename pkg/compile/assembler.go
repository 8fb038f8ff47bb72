package compile

import (
	"context"
	"fmt"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/generators"

	"github.com/otherjamesbrown/voxreel/pkg/audio"
	vrerrors "github.com/otherjamesbrown/voxreel/pkg/errors"
	"github.com/otherjamesbrown/voxreel/pkg/logging"
	"github.com/otherjamesbrown/voxreel/pkg/observability"
	"github.com/otherjamesbrown/voxreel/pkg/timeline"
)

// assembler streams the planned output one segment at a time. Only the
// segment being written is held in memory.
type assembler struct {
	ctx        context.Context
	c          *Compiler
	log        logging.Logger
	plan       timeline.Plan
	placements []placement

	next    int
	current beep.Streamer
	written int
	err     error
}

func (a *assembler) Stream(samples [][2]float64) (int, bool) {
	if a.err != nil {
		return 0, false
	}
	filled := 0
	for filled < len(samples) {
		if a.current == nil {
			if a.next >= len(a.placements) {
				break
			}
			if err := a.ctx.Err(); err != nil {
				a.err = vrerrors.ClassifyError(err, observability.StageCompile)
				break
			}
			s, err := a.open(a.next)
			if err != nil {
				a.err = err
				break
			}
			a.current = s
			a.next++
		}
		n, ok := a.current.Stream(samples[filled:])
		filled += n
		if !ok || n == 0 {
			a.current = nil
		}
	}
	a.written += filled
	if filled == 0 {
		return 0, false
	}
	return filled, true
}

func (a *assembler) Err() error {
	return a.err
}

// open loads placement i and returns its gap followed by its audio,
// fitted to the planned frame count.
func (a *assembler) open(i int) (beep.Streamer, error) {
	p := a.placements[i]
	entry := a.plan.Entries[i]
	rate := a.plan.SampleRate

	clip, err := audio.Load(a.ctx, p.seg.Audio, a.c.opts.DecodeTimeout)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w: %w", p.seg.ID, vrerrors.ErrUnreadable, err)
	}
	if p.leading > 0 || p.trailing > 0 {
		clip, err = audio.Trim(clip, p.leading, p.trailing)
		if err != nil {
			return nil, err
		}
	}
	if ch := clip.Format().NumChannels; ch != a.c.opts.Output.Channels {
		a.log.Debug("Converting channels",
			logging.F("segment_id", p.seg.ID),
			logging.F("from", ch),
			logging.F("to", a.c.opts.Output.Channels))
		a.c.metrics.RecordConversion("channels")
	}
	from := int(clip.Format().SampleRate)
	clip, converted, err := audio.Normalize(clip, rate)
	if err != nil {
		return nil, err
	}
	if converted {
		a.log.Info("Resampling segment",
			logging.F("segment_id", p.seg.ID),
			logging.F("from_hz", from),
			logging.F("to_hz", rate))
		a.c.metrics.RecordConversion("sample_rate")
	}

	body := audio.Fit(entry.Frames, clip.Streamer())
	if entry.GapFrames == 0 {
		return body, nil
	}
	return beep.Seq(generators.Silence(entry.GapFrames), body), nil
}
