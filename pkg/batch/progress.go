// Package batch runs a per-file function over many files on a bounded
// worker pool and tracks progress.
package batch

import (
	"sync"
	"time"
)

// State is the lifecycle stage of a batch.
type State string

// Batch states.
const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Progress counts finished files while a batch runs. Update callbacks
// receive immutable snapshots, one at a time, in the order changes happen.
type Progress struct {
	mu    sync.Mutex
	state Snapshot

	notifyMu sync.Mutex
	onUpdate func(Snapshot)
}

// NewProgress creates a tracker for total files.
func NewProgress(total int) *Progress {
	now := time.Now()
	return &Progress{state: Snapshot{
		Total:     total,
		State:     StatePending,
		StartedAt: now,
		UpdatedAt: now,
	}}
}

// SetOnUpdate registers fn to be called after every change.
func (p *Progress) SetOnUpdate(fn func(Snapshot)) {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()
	p.onUpdate = fn
}

func (p *Progress) start() {
	p.update(func(s *Snapshot) {
		s.State = StateRunning
		s.StartedAt = time.Now()
	})
}

func (p *Progress) begin(path string) {
	p.update(func(s *Snapshot) { s.Current = path })
}

func (p *Progress) finish(skipped, failed bool) {
	p.update(func(s *Snapshot) {
		s.Done++
		switch {
		case skipped:
			s.Skipped++
		case failed:
			s.Failed++
		default:
			s.Succeeded++
		}
	})
}

func (p *Progress) end(state State) {
	p.update(func(s *Snapshot) {
		s.State = state
		s.Current = ""
	})
}

// update applies fn and notifies while holding notifyMu, so callbacks see
// changes in order. Snapshot readers only take mu.
func (p *Progress) update(fn func(*Snapshot)) {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()

	p.mu.Lock()
	fn(&p.state)
	p.state.UpdatedAt = time.Now()
	snap := p.state
	p.mu.Unlock()

	if p.onUpdate != nil {
		p.onUpdate(snap)
	}
}

// Snapshot returns the current counts.
func (p *Progress) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Snapshot is a point-in-time copy of batch progress.
type Snapshot struct {
	Total     int
	Done      int
	Succeeded int
	Skipped   int
	Failed    int
	Current   string
	State     State
	StartedAt time.Time
	UpdatedAt time.Time
}

// Elapsed is the time from start to the last update.
func (s Snapshot) Elapsed() time.Duration {
	return s.UpdatedAt.Sub(s.StartedAt)
}

// Remaining estimates the time left from the average pace so far. It
// reports false until at least one file has finished.
func (s Snapshot) Remaining() (time.Duration, bool) {
	if s.Done == 0 {
		return 0, false
	}
	per := s.Elapsed() / time.Duration(s.Done)
	return per * time.Duration(s.Total-s.Done), true
}

// PercentComplete returns the share of files finished, 0 to 100.
func (s Snapshot) PercentComplete() float64 {
	if s.Total == 0 {
		return 100
	}
	return float64(s.Done) / float64(s.Total) * 100
}

// Finished reports whether the batch has left the running state.
func (s Snapshot) Finished() bool {
	return s.State == StateCompleted || s.State == StateFailed || s.State == StateCancelled
}
