package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/stretchr/testify/require"
)

// toneStreamer produces a sine tone of a fixed number of frames. An
// amplitude of zero produces digital silence.
type toneStreamer struct {
	rate   int
	freq   float64
	amp    float64
	frames int
	pos    int
}

func tone(rate int, d time.Duration, amp float64) *toneStreamer {
	return &toneStreamer{
		rate:   rate,
		freq:   440,
		amp:    amp,
		frames: beep.SampleRate(rate).N(d),
	}
}

func (s *toneStreamer) Stream(samples [][2]float64) (int, bool) {
	if s.pos >= s.frames {
		return 0, false
	}
	n := 0
	for n < len(samples) && s.pos < s.frames {
		v := s.amp * math.Sin(2*math.Pi*s.freq*float64(s.pos)/float64(s.rate))
		samples[n] = [2]float64{v, v}
		n++
		s.pos++
	}
	return n, true
}

func (s *toneStreamer) Err() error { return nil }

// writeWAV encodes the concatenation of parts to dir/name.
func writeWAV(t *testing.T, dir, name string, rate, channels int, parts ...beep.Streamer) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	err = EncodeWAV(f, beep.Seq(parts...), OutputFormat{SampleRate: rate, Channels: channels})
	require.NoError(t, err)
	return path
}

func mustRef(t *testing.T, path string) Ref {
	t.Helper()
	ref, err := NewRef(path)
	require.NoError(t, err)
	return ref
}

// writePCM16 writes a mono 16-bit PCM WAV by hand so level checks do not
// depend on the decoder under test.
func writePCM16(t *testing.T, dir, name string, rate int, samples []float64) string {
	t.Helper()
	var data bytes.Buffer
	for _, v := range samples {
		require.NoError(t, binary.Write(&data, binary.LittleEndian, int16(math.Round(v*32767))))
	}

	var b bytes.Buffer
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(36+data.Len()))
	b.WriteString("WAVEfmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	binary.Write(&b, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&b, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&b, binary.LittleEndian, uint32(rate))
	binary.Write(&b, binary.LittleEndian, uint32(rate*2))
	binary.Write(&b, binary.LittleEndian, uint16(2))
	binary.Write(&b, binary.LittleEndian, uint16(16))
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(data.Len()))
	b.Write(data.Bytes())

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, b.Bytes(), 0644))
	return path
}

// sineSamples returns n samples of a 440 Hz tone at rate.
func sineSamples(rate, n int, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*440*float64(i)/float64(rate))
	}
	return out
}
