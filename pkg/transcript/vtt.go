package transcript

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/otherjamesbrown/voxreel/pkg/segment"
)

// VTT parsing regular expressions
var (
	// Matches timestamp line: 00:00:05.579 --> 00:00:06.858 (hours optional)
	vttTimestampRegex = regexp.MustCompile(`^((?:\d{2,}:)?\d{2}:\d{2}\.\d{3})\s+-->\s+((?:\d{2,}:)?\d{2}:\d{2}\.\d{3})`)

	// Matches a voice tag: <v Speaker>text
	vttVoiceRegex = regexp.MustCompile(`^<v(?:\.[^\s>]+)*\s+([^>]*)>(.*?)(?:</v>)?$`)
)

// Document is a parsed WebVTT transcript.
type Document struct {
	Entries  []Entry       `json:"entries" yaml:"entries"`
	Speakers []string      `json:"speakers" yaml:"speakers"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// ParseVTT parses a WebVTT transcript. Cue identifiers become segment IDs
// and voice tags naming User or Assistant set the direction.
func ParseVTT(r io.Reader) (*Document, error) {
	scanner := bufio.NewScanner(r)
	doc := &Document{Entries: make([]Entry, 0)}
	speakerSet := make(map[string]bool)

	var (
		current   *Entry
		pendingID string
		inNote    bool
		lineNo    int
	)
	finish := func() {
		if current != nil {
			if current.Text == NoTranscript {
				current.Text = ""
			}
			doc.Entries = append(doc.Entries, *current)
			current = nil
		}
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))

		if lineNo == 1 {
			if !strings.HasPrefix(line, "WEBVTT") {
				return nil, fmt.Errorf("not a WebVTT file: missing WEBVTT header")
			}
			continue
		}

		if line == "" {
			finish()
			pendingID = ""
			inNote = false
			continue
		}
		if inNote {
			continue
		}
		if current == nil && (line == "NOTE" || strings.HasPrefix(line, "NOTE ")) {
			inNote = true
			continue
		}

		if matches := vttTimestampRegex.FindStringSubmatch(line); matches != nil {
			finish()
			start, err := parseVTTTimestamp(matches[1])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			end, err := parseVTTTimestamp(matches[2])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			current = &Entry{SegmentID: pendingID, Start: start, End: end}
			pendingID = ""
			if end > doc.Duration {
				doc.Duration = end
			}
			continue
		}

		if current == nil {
			pendingID = line
			continue
		}

		text := line
		if m := vttVoiceRegex.FindStringSubmatch(line); m != nil {
			speaker := strings.TrimSpace(m[1])
			text = m[2]
			if speaker != "" {
				if d, err := segment.ParseDirection(speaker); err == nil {
					current.Direction = d
				}
				if !speakerSet[speaker] {
					speakerSet[speaker] = true
					doc.Speakers = append(doc.Speakers, speaker)
				}
			}
		}
		text = unescapeVTT(strings.TrimSpace(text))
		if current.Text != "" {
			current.Text += " "
		}
		current.Text += text
	}
	finish()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return doc, nil
}

// parseVTTTimestamp parses [HH:]MM:SS.mmm.
func parseVTTTimestamp(ts string) (time.Duration, error) {
	parts := strings.Split(ts, ":")
	if len(parts) == 2 {
		parts = append([]string{"0"}, parts...)
	}
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid VTT timestamp %q", ts)
	}

	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid VTT timestamp %q", ts)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid VTT timestamp %q", ts)
	}

	secParts := strings.Split(parts[2], ".")
	seconds, err := strconv.Atoi(secParts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid VTT timestamp %q", ts)
	}
	milliseconds := 0
	if len(secParts) > 1 {
		milliseconds, _ = strconv.Atoi(secParts[1])
	}

	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(milliseconds)*time.Millisecond, nil
}
