package segment

import (
	"fmt"
	"sort"
	"time"

	vrerrors "github.com/otherjamesbrown/voxreel/pkg/errors"
)

// ScanFailure records a file the scanner could not turn into a segment.
type ScanFailure struct {
	Path    string             `json:"path" yaml:"path"`
	Stage   string             `json:"stage" yaml:"stage"`
	Code    vrerrors.ErrorCode `json:"code" yaml:"code"`
	Message string             `json:"error" yaml:"error"`
	Err     error              `json:"-" yaml:"-"`
}

// Catalog is an immutable, ID-ordered set of segments from one scan.
type Catalog struct {
	root      string
	scannedAt time.Time
	segments  []Segment
	byID      map[string]int
	failures  []ScanFailure
}

// NewCatalog builds a catalog. Segment IDs must be unique.
func NewCatalog(root string, segments []Segment, failures []ScanFailure) (*Catalog, error) {
	segs := make([]Segment, len(segments))
	copy(segs, segments)
	sort.Slice(segs, func(i, j int) bool { return segs[i].ID < segs[j].ID })

	byID := make(map[string]int, len(segs))
	for i, s := range segs {
		if s.ID == "" {
			return nil, vrerrors.Validationf("segment with empty ID")
		}
		if _, dup := byID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate segment ID %q: %w", s.ID, vrerrors.ErrInvalidState)
		}
		byID[s.ID] = i
	}

	fails := make([]ScanFailure, len(failures))
	copy(fails, failures)
	sort.Slice(fails, func(i, j int) bool { return fails[i].Path < fails[j].Path })

	return &Catalog{
		root:      root,
		scannedAt: time.Now(),
		segments:  segs,
		byID:      byID,
		failures:  fails,
	}, nil
}

// Root returns the scanned storage root.
func (c *Catalog) Root() string { return c.root }

// ScannedAt returns when the catalog was built.
func (c *Catalog) ScannedAt() time.Time { return c.scannedAt }

// Len returns the number of segments.
func (c *Catalog) Len() int { return len(c.segments) }

// Segments returns a copy of all segments in ID order.
func (c *Catalog) Segments() []Segment {
	out := make([]Segment, len(c.segments))
	copy(out, c.segments)
	return out
}

// Get returns a copy of the segment with the given ID.
func (c *Catalog) Get(id string) (Segment, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Segment{}, false
	}
	return c.segments[i], true
}

// Lookup returns copies of the segments for ids, in order. Every unknown ID
// is reported in a single *StaleReferenceError.
func (c *Catalog) Lookup(ids []string) ([]Segment, error) {
	out := make([]Segment, 0, len(ids))
	var missing []string
	for _, id := range ids {
		s, ok := c.Get(id)
		if !ok {
			missing = append(missing, id)
			continue
		}
		out = append(out, s)
	}
	if len(missing) > 0 {
		return nil, &vrerrors.StaleReferenceError{Missing: missing}
	}
	return out, nil
}

// Failures returns a copy of the files skipped during the scan.
func (c *Catalog) Failures() []ScanFailure {
	out := make([]ScanFailure, len(c.failures))
	copy(out, c.failures)
	return out
}
