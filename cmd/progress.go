package cmd

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/otherjamesbrown/voxreel/pkg/batch"
)

// progressInterval is the minimum time between two progress lines.
const progressInterval = 250 * time.Millisecond

// progressPrinter writes a one-line batch status to w. Lines are rewritten
// in place on a terminal and appended otherwise.
type progressPrinter struct {
	w       io.Writer
	label   string
	inPlace bool

	mu       sync.Mutex
	lastDone int
	last     time.Time
}

func newProgressPrinter(w io.Writer, label string, inPlace bool) *progressPrinter {
	return &progressPrinter{w: w, label: label, inPlace: inPlace, lastDone: -1}
}

// update prints s when work has advanced and the interval has passed. The
// final snapshot is always printed.
func (p *progressPrinter) update(s batch.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !s.Finished() {
		if s.Done == p.lastDone || time.Since(p.last) < progressInterval {
			return
		}
	}
	p.lastDone = s.Done
	p.last = time.Now()

	line := fmt.Sprintf("%s: %d/%d (%.0f%%)", p.label, s.Done, s.Total, s.PercentComplete())
	if s.Failed > 0 {
		line += fmt.Sprintf(", %d failed", s.Failed)
	}
	if left, ok := s.Remaining(); ok && !s.Finished() {
		line += fmt.Sprintf(", ~%s left", left.Round(time.Second))
	}

	switch {
	case !p.inPlace:
		fmt.Fprintln(p.w, line)
	case s.Finished():
		fmt.Fprintf(p.w, "\r%s\n", line)
	default:
		fmt.Fprintf(p.w, "\r%s", line)
	}
}
