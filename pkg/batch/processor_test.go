package batch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestProgress(t *testing.T) {
	p := NewProgress(4)
	if s := p.Snapshot(); s.Total != 4 || s.State != StatePending {
		t.Fatalf("unexpected initial snapshot: %+v", s)
	}

	p.start()
	p.begin("/data/a.wav")
	if s := p.Snapshot(); s.State != StateRunning || s.Current != "/data/a.wav" {
		t.Errorf("unexpected running snapshot: %+v", s)
	}

	p.finish(false, false)
	p.finish(true, false)
	p.finish(false, true)
	s := p.Snapshot()
	if s.Done != 3 || s.Succeeded != 1 || s.Skipped != 1 || s.Failed != 1 {
		t.Errorf("unexpected counts: %+v", s)
	}
	if s.PercentComplete() != 75 {
		t.Errorf("unexpected percent: %f", s.PercentComplete())
	}
	if _, ok := s.Remaining(); !ok {
		t.Error("expected an estimate once files are done")
	}
	if s.Finished() {
		t.Error("running batch reported as finished")
	}

	p.end(StateFailed)
	if s := p.Snapshot(); !s.Finished() || s.Current != "" {
		t.Errorf("unexpected final snapshot: %+v", s)
	}
}

func TestSnapshot_Empty(t *testing.T) {
	s := NewProgress(0).Snapshot()
	if s.PercentComplete() != 100 {
		t.Errorf("empty batch should be 100%%, got %f", s.PercentComplete())
	}
	if _, ok := s.Remaining(); ok {
		t.Error("no estimate expected before any file is done")
	}
}

func TestProcessor_ReportsProgressInOrder(t *testing.T) {
	files := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	proc := NewProcessor(ProcessorConfig{Concurrency: 4}, func(ctx context.Context, path string) (int, error) {
		return 0, nil
	}, nil)

	var updates []Snapshot
	proc.OnStart(func(p *Progress) {
		p.SetOnUpdate(func(s Snapshot) { updates = append(updates, s) })
	})
	proc.Process(context.Background(), files)

	if len(updates) == 0 {
		t.Fatal("no progress updates")
	}
	last := -1
	for _, u := range updates {
		if u.Done < last {
			t.Fatalf("done count went backwards: %d after %d", u.Done, last)
		}
		last = u.Done
	}
	final := updates[len(updates)-1]
	if final.State != StateCompleted || final.Done != len(files) || final.PercentComplete() != 100 {
		t.Errorf("unexpected final update: %+v", final)
	}
}

func TestProcessor_ResultsInInputOrder(t *testing.T) {
	for _, concurrency := range []int{1, 4} {
		t.Run(fmt.Sprintf("concurrency=%d", concurrency), func(t *testing.T) {
			files := []string{"a", "b", "c", "d", "e", "f"}
			proc := NewProcessor(ProcessorConfig{Concurrency: concurrency, Name: "test"},
				func(ctx context.Context, path string) (string, error) {
					if path == "c" {
						return "", errors.New("broken")
					}
					return path + "!", nil
				}, nil)

			res := proc.Process(context.Background(), files)

			if res.TotalFiles != 6 || res.SucceededCount != 5 || res.FailedCount != 1 || res.SkippedCount != 0 {
				t.Fatalf("unexpected counts: %+v", res)
			}
			for i, r := range res.Results {
				if r.Path != files[i] {
					t.Errorf("result %d: path %q, want %q", i, r.Path, files[i])
				}
			}
			if res.Results[0].Value != "a!" {
				t.Errorf("unexpected value %q", res.Results[0].Value)
			}
			if res.Results[2].Err == nil || res.Results[2].Skipped {
				t.Errorf("expected c to fail, got %+v", res.Results[2])
			}
			snap := proc.Progress().Snapshot()
			if snap.Done != len(files) {
				t.Errorf("progress should count every file, got %d", snap.Done)
			}
			if snap.State != StateFailed {
				t.Errorf("expected failed state, got %s", snap.State)
			}
		})
	}
}

func TestProcessor_ConcurrencyBound(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	proc := NewProcessor(ProcessorConfig{Concurrency: 2}, func(ctx context.Context, path string) (int, error) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return 0, nil
	}, nil)

	proc.Process(context.Background(), []string{"1", "2", "3", "4", "5", "6", "7", "8"})

	if maxInFlight.Load() > 2 {
		t.Errorf("expected at most 2 concurrent handlers, saw %d", maxInFlight.Load())
	}
}

func TestProcessor_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	proc := NewProcessor(ProcessorConfig{Concurrency: 1}, func(ctx context.Context, path string) (int, error) {
		calls.Add(1)
		return 0, nil
	}, nil)

	res := proc.Process(ctx, []string{"a", "b"})

	if !res.Cancelled {
		t.Error("expected result to be marked cancelled")
	}
	if calls.Load() != 0 {
		t.Errorf("handler should not run after cancellation, ran %d times", calls.Load())
	}
	if res.SkippedCount != 2 {
		t.Errorf("expected 2 skipped, got %d", res.SkippedCount)
	}
	if !errors.Is(res.Results[0].Err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", res.Results[0].Err)
	}
}
