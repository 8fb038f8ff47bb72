package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	vrerrors "github.com/otherjamesbrown/voxreel/pkg/errors"
)

// jsonEntry is the on-disk JSON shape of an entry.
type jsonEntry struct {
	SegmentID string  `json:"segment_id"`
	Direction string  `json:"direction"`
	Speaker   string  `json:"speaker"`
	Text      string  `json:"text"`
	StartMs   int64   `json:"start_ms"`
	EndMs     int64   `json:"end_ms"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
}

// Write renders entries to w in the given format.
func Write(w io.Writer, entries []Entry, format Format) error {
	bw := bufio.NewWriter(w)
	var err error
	switch format {
	case FormatJSON:
		err = writeJSON(bw, entries)
	case FormatVTT:
		err = writeVTT(bw, entries)
	case FormatSRT:
		err = writeSRT(bw, entries)
	case FormatText:
		err = writeText(bw, entries)
	default:
		err = vrerrors.Validationf("unknown transcript format %q", format)
	}
	if err != nil {
		return err
	}
	return bw.Flush()
}

func writeJSON(w io.Writer, entries []Entry) error {
	out := make([]jsonEntry, len(entries))
	for i, e := range entries {
		out[i] = jsonEntry{
			SegmentID: e.SegmentID,
			Direction: string(e.Direction),
			Speaker:   e.Direction.Label(),
			Text:      e.Text,
			StartMs:   e.Start.Milliseconds(),
			EndMs:     e.End.Milliseconds(),
			Start:     e.Start.Seconds(),
			End:       e.End.Seconds(),
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeVTT(w io.Writer, entries []Entry) error {
	if _, err := io.WriteString(w, "WEBVTT\n"); err != nil {
		return err
	}
	for _, e := range entries {
		_, err := fmt.Fprintf(w, "\n%s\n%s --> %s\n<v %s>%s\n",
			cueID(e.SegmentID),
			formatClock(e.Start, "."),
			formatClock(e.End, "."),
			e.Direction.Label(),
			escapeVTT(displayText(e)))
		if err != nil {
			return err
		}
	}
	return nil
}

func writeSRT(w io.Writer, entries []Entry) error {
	for i, e := range entries {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintf(w, "%d\n%s --> %s\n%s: %s\n",
			i+1,
			formatClock(e.Start, ","),
			formatClock(e.End, ","),
			e.Direction.Label(),
			displayText(e))
		if err != nil {
			return err
		}
	}
	return nil
}

func writeText(w io.Writer, entries []Entry) error {
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "[%s] %s: %s\n", formatClock(e.Start, "."), e.Direction.Label(), displayText(e)); err != nil {
			return err
		}
	}
	return nil
}

// cueID makes a segment ID safe for a VTT cue identifier line, which may
// not contain "-->" or line breaks.
func cueID(id string) string {
	id = strings.ReplaceAll(id, "-->", "->")
	return strings.NewReplacer("\n", " ", "\r", " ").Replace(id)
}

func escapeVTT(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}

func unescapeVTT(s string) string {
	return strings.NewReplacer("&lt;", "<", "&gt;", ">", "&amp;", "&").Replace(s)
}
