package audio

import (
	"io"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"

	vrerrors "github.com/otherjamesbrown/voxreel/pkg/errors"
)

// Output defaults.
const (
	DefaultOutputSampleRate = 16000
	DefaultOutputChannels   = 1

	// outputPrecision is bytes per sample: 16-bit PCM.
	outputPrecision = 2
)

// OutputFormat describes the compiled WAV file.
type OutputFormat struct {
	SampleRate int `json:"sample_rate" yaml:"sample_rate"`
	Channels   int `json:"channels" yaml:"channels"`
}

// DefaultOutputFormat returns 16 kHz mono.
func DefaultOutputFormat() OutputFormat {
	return OutputFormat{
		SampleRate: DefaultOutputSampleRate,
		Channels:   DefaultOutputChannels,
	}
}

// Validate checks the output format.
func (o OutputFormat) Validate() error {
	if o.SampleRate < 8000 || o.SampleRate > 192000 {
		return vrerrors.Validationf("output sample rate must be between 8000 and 192000, got %d", o.SampleRate)
	}
	if o.Channels != 1 && o.Channels != 2 {
		return vrerrors.Validationf("output channels must be 1 or 2, got %d", o.Channels)
	}
	return nil
}

// Beep returns the equivalent beep.Format.
func (o OutputFormat) Beep() beep.Format {
	return beep.Format{
		SampleRate:  beep.SampleRate(o.SampleRate),
		NumChannels: o.Channels,
		Precision:   outputPrecision,
	}
}

// EncodeWAV writes s to w as 16-bit PCM. Mono output averages the two
// channels of every frame.
func EncodeWAV(w io.WriteSeeker, s beep.Streamer, o OutputFormat) error {
	if err := o.Validate(); err != nil {
		return err
	}
	return wav.Encode(w, s, o.Beep())
}
