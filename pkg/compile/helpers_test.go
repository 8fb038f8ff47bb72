package compile

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/voxreel/pkg/audio"
	"github.com/otherjamesbrown/voxreel/pkg/segment"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// sine returns d of a 440 Hz tone at rate. amp 0 gives silence.
func sine(rate int, d time.Duration, amp float64) beep.Streamer {
	frames := beep.SampleRate(rate).N(d)
	pos := 0
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if pos >= frames {
			return 0, false
		}
		n := 0
		for n < len(samples) && pos < frames {
			v := amp * math.Sin(2*math.Pi*440*float64(pos)/float64(rate))
			samples[n] = [2]float64{v, v}
			n++
			pos++
		}
		return n, true
	})
}

// newSegment writes a WAV into dir and returns a probed segment for it.
func newSegment(t *testing.T, dir, id string, ts time.Time, dirn segment.Direction, text string, rate int, parts ...beep.Streamer) segment.Segment {
	t.Helper()
	path := filepath.Join(dir, id)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, audio.EncodeWAV(f, beep.Seq(parts...), audio.OutputFormat{SampleRate: rate, Channels: 1}))
	require.NoError(t, f.Close())
	return segmentFor(t, path, id, ts, dirn, text)
}

// segmentFor probes the audio file at path and wraps it as a segment.
func segmentFor(t *testing.T, path, id string, ts time.Time, dirn segment.Direction, text string) segment.Segment {
	t.Helper()
	ref, err := audio.NewRef(path)
	require.NoError(t, err)
	info, err := audio.Probe(context.Background(), ref, time.Second*10)
	require.NoError(t, err)

	return segment.Segment{
		ID:             id,
		Timestamp:      ts,
		Direction:      dirn,
		Duration:       info.Duration,
		Frames:         info.Frames,
		SampleRate:     info.SampleRate,
		Channels:       info.Channels,
		Format:         info.Codec,
		TranscriptText: text,
		Audio:          ref,
	}
}

func probeFile(t *testing.T, path string) audio.Info {
	t.Helper()
	ref, err := audio.NewRef(path)
	require.NoError(t, err)
	info, err := audio.Probe(context.Background(), ref, time.Second*10)
	require.NoError(t, err)
	return info
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// writePCM16 writes a mono 16-bit PCM WAV without going through the codec
// used by the compiler.
func writePCM16(t *testing.T, path string, rate int, samples []float64) {
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
	binary.Write(&b, binary.LittleEndian, uint16(1))
	binary.Write(&b, binary.LittleEndian, uint16(1))
	binary.Write(&b, binary.LittleEndian, uint32(rate))
	binary.Write(&b, binary.LittleEndian, uint32(rate*2))
	binary.Write(&b, binary.LittleEndian, uint16(2))
	binary.Write(&b, binary.LittleEndian, uint16(16))
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(data.Len()))
	b.Write(data.Bytes())
	require.NoError(t, os.WriteFile(path, b.Bytes(), 0644))
}

// readPCM16 parses a 16-bit PCM WAV and returns its rate and the samples
// of the first channel scaled to [-1, 1).
func readPCM16(t *testing.T, path string) (int, []float64) {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(raw), 12)
	require.Equal(t, "RIFF", string(raw[0:4]))
	require.Equal(t, "WAVE", string(raw[8:12]))

	var rate, channels int
	for off := 12; off+8 <= len(raw); {
		id := string(raw[off : off+4])
		size := int(binary.LittleEndian.Uint32(raw[off+4 : off+8]))
		body := raw[off+8 : min(off+8+size, len(raw))]
		switch id {
		case "fmt ":
			require.Equal(t, uint16(16), binary.LittleEndian.Uint16(body[14:16]), "bits per sample")
			channels = int(binary.LittleEndian.Uint16(body[2:4]))
			rate = int(binary.LittleEndian.Uint32(body[4:8]))
		case "data":
			require.NotZero(t, channels, "fmt chunk precedes data")
			frames := len(body) / (2 * channels)
			out := make([]float64, frames)
			for i := range out {
				v := int16(binary.LittleEndian.Uint16(body[i*2*channels:]))
				out[i] = float64(v) / 32768
			}
			return rate, out
		}
		off += 8 + size + size%2
	}
	t.Fatalf("%s has no data chunk", path)
	return 0, nil
}

// sineSamples returns n samples of a 440 Hz tone at rate.
func sineSamples(rate, n int, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*440*float64(i)/float64(rate))
	}
	return out
}

func rms(samples []float64) float64 {
	var sum float64
	for _, v := range samples {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
