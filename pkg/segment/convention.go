package segment

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/otherjamesbrown/voxreel/pkg/audio"
	vrerrors "github.com/otherjamesbrown/voxreel/pkg/errors"
)

// DefaultPattern matches names such as:
//
//	20250618_143012_123-stt.wav
//	20250618T143012-tts.mp3
//	2025-06-18T14-30-12.123-stt-hello_there.wav
const DefaultPattern = `^(?P<ts>\d{8}[_T]\d{6}(?:[_.]\d{3})?|\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}(?:\.\d{3})?)-(?P<dir>[A-Za-z]+)(?:-(?P<text>.+))?$`

// DefaultTimestampLayouts are tried in order. A three digit millisecond
// suffix separated by "_" is rewritten to ".000" form before parsing.
var DefaultTimestampLayouts = []string{
	"20060102_150405.000",
	"20060102_150405",
	"20060102T150405.000",
	"20060102T150405",
	"2006-01-02T15-04-05.000",
	"2006-01-02T15-04-05",
}

// Default direction tokens.
var (
	DefaultUserTokens      = []string{"stt", "user", "in", "mic"}
	DefaultAssistantTokens = []string{"tts", "assistant", "out", "bot"}
)

// DefaultSidecarExtension is the extension of per-segment transcript files.
const DefaultSidecarExtension = ".txt"

// msUnderscore rewrites "..._123" to "....123" so time.Parse sees a fraction.
var msUnderscore = regexp.MustCompile(`^(.*\d{6})_(\d{3})$`)

// Convention describes how segment filenames encode their metadata.
type Convention struct {
	// Pattern is matched against the base name without extension. It must
	// define the named groups "ts" and "dir"; "text" is optional.
	Pattern *regexp.Regexp

	TimestampLayouts []string
	UserTokens       []string
	AssistantTokens  []string
	AudioExtensions  []string
	SidecarExtension string

	// Location interprets timestamps that carry no zone.
	Location *time.Location

	// AllowMTimeFallback accepts names whose "ts" group is empty and
	// uses the file modification time instead.
	AllowMTimeFallback bool
}

// DefaultConvention returns the default naming convention in UTC.
func DefaultConvention() Convention {
	return Convention{
		Pattern:          regexp.MustCompile(DefaultPattern),
		TimestampLayouts: DefaultTimestampLayouts,
		UserTokens:       DefaultUserTokens,
		AssistantTokens:  DefaultAssistantTokens,
		AudioExtensions:  audio.SupportedExtensions(),
		SidecarExtension: DefaultSidecarExtension,
		Location:         time.UTC,
	}
}

// NewConvention compiles pattern and returns a convention that otherwise
// uses the defaults.
func NewConvention(pattern string) (Convention, error) {
	c := DefaultConvention()
	if pattern == "" {
		return c, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Convention{}, vrerrors.Validationf("invalid filename pattern: %v", err)
	}
	c.Pattern = re
	return c, c.Validate()
}

// Validate checks that the convention can be applied.
func (c Convention) Validate() error {
	if c.Pattern == nil {
		return vrerrors.Validationf("filename pattern is required")
	}
	names := map[string]bool{}
	for _, n := range c.Pattern.SubexpNames() {
		names[n] = true
	}
	if !names["ts"] || !names["dir"] {
		return vrerrors.Validationf("filename pattern must define named groups \"ts\" and \"dir\"")
	}
	if len(c.UserTokens) == 0 || len(c.AssistantTokens) == 0 {
		return vrerrors.Validationf("both user and assistant direction tokens are required")
	}
	for _, u := range c.UserTokens {
		for _, a := range c.AssistantTokens {
			if strings.EqualFold(u, a) {
				return vrerrors.Validationf("direction token %q is both user and assistant", u)
			}
		}
	}
	if len(c.AudioExtensions) == 0 {
		return vrerrors.Validationf("at least one audio extension is required")
	}
	return nil
}

// IsAudio reports whether name has one of the convention's audio extensions.
func (c Convention) IsAudio(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range c.AudioExtensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// SidecarPath returns the transcript sidecar path for an audio file.
func (c Convention) SidecarPath(audioPath string) string {
	ext := c.SidecarExtension
	if ext == "" {
		ext = DefaultSidecarExtension
	}
	return strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + ext
}

// ParsedName holds the metadata encoded in a filename.
type ParsedName struct {
	Timestamp    time.Time
	HasTimestamp bool
	Direction    Direction
	Text         string
}

// Parse extracts metadata from a file name (directory components are ignored).
func (c Convention) Parse(name string) (ParsedName, error) {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	m := c.Pattern.FindStringSubmatch(stem)
	if m == nil {
		return ParsedName{}, fmt.Errorf("filename %q does not match naming convention", base)
	}

	var ts, dir, text string
	for i, n := range c.Pattern.SubexpNames() {
		switch n {
		case "ts":
			ts = m[i]
		case "dir":
			dir = m[i]
		case "text":
			text = m[i]
		}
	}

	var p ParsedName
	d, err := c.direction(dir)
	if err != nil {
		return ParsedName{}, fmt.Errorf("filename %q: %w", base, err)
	}
	p.Direction = d

	if ts == "" {
		if !c.AllowMTimeFallback {
			return ParsedName{}, fmt.Errorf("filename %q carries no timestamp", base)
		}
	} else {
		t, err := c.parseTimestamp(ts)
		if err != nil {
			return ParsedName{}, fmt.Errorf("filename %q: %w", base, err)
		}
		p.Timestamp = t
		p.HasTimestamp = true
	}

	p.Text = strings.Join(strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(text)), " ")
	return p, nil
}

func (c Convention) direction(token string) (Direction, error) {
	for _, t := range c.UserTokens {
		if strings.EqualFold(t, token) {
			return DirectionUser, nil
		}
	}
	for _, t := range c.AssistantTokens {
		if strings.EqualFold(t, token) {
			return DirectionAssistant, nil
		}
	}
	return "", fmt.Errorf("unknown direction token %q", token)
}

func (c Convention) parseTimestamp(ts string) (time.Time, error) {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	norm := msUnderscore.ReplaceAllString(ts, "$1.$2")
	for _, layout := range c.TimestampLayouts {
		if t, err := time.ParseInLocation(layout, norm, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", ts)
}
