// Package audio handles decoding, analysis, trimming, resampling and WAV
// encoding of conversation segments. Audio is never held by the catalog:
// a Ref names a file and decodes it on demand.
package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"

	vrerrors "github.com/otherjamesbrown/voxreel/pkg/errors"
)

// Codec identifies a container/codec pair by its decoder.
type Codec string

const (
	CodecWAV    Codec = "wav"
	CodecMP3    Codec = "mp3"
	CodecFLAC   Codec = "flac"
	CodecVorbis Codec = "ogg"
)

// codecByExt maps lower-case file extensions to codecs.
var codecByExt = map[string]Codec{
	".wav":  CodecWAV,
	".wave": CodecWAV,
	".mp3":  CodecMP3,
	".flac": CodecFLAC,
	".ogg":  CodecVorbis,
	".oga":  CodecVorbis,
}

// SupportedExtensions returns the audio file extensions that can be decoded.
func SupportedExtensions() []string {
	return []string{".wav", ".wave", ".mp3", ".flac", ".ogg", ".oga"}
}

// CodecFor returns the codec for path based on its extension.
func CodecFor(path string) (Codec, bool) {
	c, ok := codecByExt[strings.ToLower(filepath.Ext(path))]
	return c, ok
}

// Ref is a lazy handle to a segment's audio.
type Ref struct {
	Path  string `json:"path" yaml:"path"`
	Codec Codec  `json:"codec" yaml:"codec"`
}

// NewRef returns a Ref for path, choosing the codec by extension.
func NewRef(path string) (Ref, error) {
	c, ok := CodecFor(path)
	if !ok {
		return Ref{}, fmt.Errorf("unsupported audio extension %q: %w", filepath.Ext(path), vrerrors.ErrUnreadable)
	}
	return Ref{Path: path, Codec: c}, nil
}

// Open decodes the referenced file. The caller must Close the returned
// stream, which also closes the underlying file.
func (r Ref) Open() (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(r.Path)
	if err != nil {
		return nil, beep.Format{}, err
	}

	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch r.Codec {
	case CodecWAV:
		s, format, err = wav.Decode(f)
	case CodecMP3:
		s, format, err = mp3.Decode(f)
	case CodecFLAC:
		s, format, err = flac.Decode(f)
	case CodecVorbis:
		s, format, err = vorbis.Decode(f)
	default:
		err = fmt.Errorf("unsupported codec %q", r.Codec)
	}
	if err != nil {
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("decode %s: %w", filepath.Base(r.Path), err)
	}
	if format.SampleRate <= 0 {
		s.Close()
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("decode %s: invalid sample rate %d", filepath.Base(r.Path), format.SampleRate)
	}
	return &fileStream{StreamSeekCloser: s, f: f}, format, nil
}

// fileStream closes the decoder and then the file it reads from.
type fileStream struct {
	beep.StreamSeekCloser
	f *os.File
}

func (s *fileStream) Close() error {
	err := s.StreamSeekCloser.Close()
	if cerr := s.f.Close(); cerr != nil && !errors.Is(cerr, os.ErrClosed) && err == nil {
		err = cerr
	}
	return err
}

// Info is the header-level description of a decoded file.
type Info struct {
	Codec      Codec         `json:"codec" yaml:"codec"`
	SampleRate int           `json:"sample_rate" yaml:"sample_rate"`
	Channels   int           `json:"channels" yaml:"channels"`
	Frames     int           `json:"frames" yaml:"frames"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
}
