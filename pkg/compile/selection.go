// Package compile resolves selections against the catalog and renders
// selected segments into a single WAV file plus a transcript.
package compile

import (
	"bufio"
	"io"
	"strings"

	"github.com/otherjamesbrown/voxreel/pkg/conversation"
	vrerrors "github.com/otherjamesbrown/voxreel/pkg/errors"
	"github.com/otherjamesbrown/voxreel/pkg/segment"
)

// Selection is an ordered list of segment IDs and/or turn IDs.
type Selection struct {
	IDs []string `json:"ids" yaml:"ids"`
}

// NewSelection builds a selection from ids, splitting comma lists and
// dropping blanks.
func NewSelection(ids ...string) Selection {
	var out []string
	for _, id := range ids {
		for _, part := range strings.Split(id, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return Selection{IDs: out}
}

// ParseSelection reads one ID per line. Blank lines and lines starting
// with "#" are ignored.
func ParseSelection(r io.Reader) (Selection, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return Selection{}, err
	}
	return NewSelection(lines...), nil
}

// Resolve expands turn IDs and looks every ID up in the catalog. All
// unknown IDs are reported together in a *StaleReferenceError. A segment
// named more than once is kept at its first position.
func Resolve(sel Selection, catalog *segment.Catalog, turns conversation.Index) ([]segment.Segment, error) {
	if len(sel.IDs) == 0 {
		return nil, vrerrors.Validationf("selection is empty")
	}

	var (
		ids     []string
		missing []string
	)
	for _, id := range sel.IDs {
		if t, ok := turns[id]; ok {
			ids = append(ids, t.SegmentIDs()...)
			continue
		}
		if _, ok := catalog.Get(id); ok {
			ids = append(ids, id)
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) > 0 {
		return nil, &vrerrors.StaleReferenceError{Missing: missing}
	}

	seen := make(map[string]bool, len(ids))
	unique := ids[:0]
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}

	// Turn members are checked too, in case the turn index predates the catalog.
	return catalog.Lookup(unique)
}
