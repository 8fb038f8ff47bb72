package audio

import (
	"context"
	"fmt"
	"time"

	"github.com/gopxl/beep/v2"
)

// DefaultDecodeTimeout bounds how long a single file may take to decode.
const DefaultDecodeTimeout = 30 * time.Second

// streamChunk is the number of frames read per Stream call.
const streamChunk = 4096

// Probe decodes the header of ref and determines its length in frames.
// When the decoder cannot report a length, the stream is read to the end.
func Probe(ctx context.Context, ref Ref, timeout time.Duration) (Info, error) {
	return withTimeout(ctx, timeout, func(ctx context.Context) (Info, error) {
		s, format, err := ref.Open()
		if err != nil {
			return Info{}, err
		}
		defer s.Close()

		frames := s.Len()
		if frames <= 0 {
			frames, err = countFrames(ctx, s)
			if err != nil {
				return Info{}, err
			}
		}
		if frames <= 0 {
			return Info{}, fmt.Errorf("%s: zero frames decoded", ref.Path)
		}

		return Info{
			Codec:      ref.Codec,
			SampleRate: int(format.SampleRate),
			Channels:   format.NumChannels,
			Frames:     frames,
			Duration:   format.SampleRate.D(frames),
		}, nil
	})
}

// countFrames drains s and returns the number of frames it produced.
func countFrames(ctx context.Context, s beep.Streamer) (int, error) {
	buf := make([][2]float64, streamChunk)
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, ok := s.Stream(buf)
		total += n
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return 0, fmt.Errorf("decode stream: %w", err)
	}
	return total, nil
}

// withTimeout runs fn on its own goroutine and abandons it when ctx is done
// or timeout elapses. An abandoned fn keeps running until it notices its
// context is cancelled, so fn must honour ctx.
func withTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v: v, err: err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
