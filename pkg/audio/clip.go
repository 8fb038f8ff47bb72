package audio

import (
	"context"
	"fmt"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/generators"

	vrerrors "github.com/otherjamesbrown/voxreel/pkg/errors"
)

// ResampleQuality is passed to beep.Resample when normalizing sample rates.
const ResampleQuality = 4

// Clip is one segment's audio decoded into memory. Clips are never
// modified; Trim and Normalize return new clips.
type Clip struct {
	buf *beep.Buffer
}

// Load decodes ref fully into memory.
func Load(ctx context.Context, ref Ref, timeout time.Duration) (*Clip, error) {
	return withTimeout(ctx, timeout, func(ctx context.Context) (*Clip, error) {
		s, format, err := ref.Open()
		if err != nil {
			return nil, err
		}
		defer s.Close()

		buf := beep.NewBuffer(format)
		buf.Append(&ctxStreamer{ctx: ctx, s: s})
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.Err(); err != nil {
			return nil, fmt.Errorf("decode stream: %w", err)
		}
		return &Clip{buf: buf}, nil
	})
}

// NewClip copies s into a new clip with the given format.
func NewClip(format beep.Format, s beep.Streamer) *Clip {
	buf := beep.NewBuffer(format)
	if s != nil {
		buf.Append(s)
	}
	return &Clip{buf: buf}
}

// Format returns the clip's sample format.
func (c *Clip) Format() beep.Format {
	return c.buf.Format()
}

// Len returns the clip length in frames.
func (c *Clip) Len() int {
	return c.buf.Len()
}

// Duration returns the clip length.
func (c *Clip) Duration() time.Duration {
	return c.buf.Format().SampleRate.D(c.buf.Len())
}

// Streamer returns a fresh streamer over the whole clip.
func (c *Clip) Streamer() beep.StreamSeeker {
	return c.buf.Streamer(0, c.buf.Len())
}

// Trim returns a new clip with leading and trailing removed. Trimming more
// than the clip holds yields an empty clip.
func Trim(c *Clip, leading, trailing time.Duration) (*Clip, error) {
	if leading < 0 || trailing < 0 {
		return nil, vrerrors.Validationf("trim amounts must not be negative (leading %s, trailing %s)", leading, trailing)
	}
	format := c.Format()
	from := format.SampleRate.N(leading)
	to := c.Len() - format.SampleRate.N(trailing)
	if from >= to {
		return NewClip(format, nil), nil
	}
	return NewClip(format, c.buf.Streamer(from, to)), nil
}

// Normalize resamples c to rate. It reports whether a conversion happened.
// Channel layout is left alone; the WAV encoder downmixes on output.
func Normalize(c *Clip, rate int) (*Clip, bool, error) {
	if rate <= 0 {
		return nil, false, vrerrors.Validationf("target sample rate must be positive, got %d", rate)
	}
	format := c.Format()
	if int(format.SampleRate) == rate {
		return c, false, nil
	}

	target := format
	target.SampleRate = beep.SampleRate(rate)
	if c.Len() == 0 {
		return NewClip(target, nil), true, nil
	}
	resampled := beep.Resample(ResampleQuality, format.SampleRate, target.SampleRate, c.Streamer())
	return NewClip(target, resampled), true, nil
}

// Fit streams exactly frames frames from s, padding with silence when s
// ends early and truncating when it runs long.
func Fit(frames int, s beep.Streamer) beep.Streamer {
	if frames <= 0 {
		return generators.Silence(0)
	}
	return beep.Take(frames, beep.Seq(s, generators.Silence(-1)))
}

// ctxStreamer stops streaming once ctx is done.
type ctxStreamer struct {
	ctx context.Context
	s   beep.Streamer
}

func (c *ctxStreamer) Stream(samples [][2]float64) (int, bool) {
	if c.ctx.Err() != nil {
		return 0, false
	}
	return c.s.Stream(samples)
}

func (c *ctxStreamer) Err() error {
	if err := c.ctx.Err(); err != nil {
		return err
	}
	return c.s.Err()
}
