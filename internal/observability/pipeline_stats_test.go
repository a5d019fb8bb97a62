package observability

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// TestRecordPipelineConcurrent tests concurrent RecordPipeline calls for race conditions.
func TestRecordPipelineConcurrent(t *testing.T) {
	ps := NewPipelineStats(time.Hour)
	var wg sync.WaitGroup
	numGoroutines := 10
	recordsPerGoroutine := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < recordsPerGoroutine; j++ {
				ps.RecordPipeline("timeseries", 2, time.Millisecond, nil)
				ps.RecordPipeline("share", 1, time.Millisecond, nil)
			}
		}()
	}
	wg.Wait()

	want := int64(numGoroutines * recordsPerGoroutine)
	for _, s := range ps.Snapshot() {
		if s.Calls != want {
			t.Errorf("%s: expected %d calls, got %d", s.Pipeline, want, s.Calls)
		}
	}
	if got := ps.Snapshot()[1]; got.Pipeline != "timeseries" || got.Rows != 2*want {
		t.Errorf("unexpected timeseries entry: %+v", got)
	}
}

func TestRecordPipelineTimingsAndErrors(t *testing.T) {
	ps := NewPipelineStats(0)
	ps.RecordPipeline("providers", 10, 10*time.Millisecond, nil)
	ps.RecordPipeline("providers", 0, 30*time.Millisecond, errors.New("scan failed"))

	s := ps.Snapshot()[0]
	if s.Calls != 2 || s.Errors != 1 || s.Rows != 10 {
		t.Errorf("counters = %+v", s)
	}
	if s.MaxDuration != 30*time.Millisecond || s.MeanDuration() != 20*time.Millisecond {
		t.Errorf("max %v, mean %v", s.MaxDuration, s.MeanDuration())
	}
	if s.LastError != "scan failed" {
		t.Errorf("last error = %q", s.LastError)
	}
}

func TestTopOrdering(t *testing.T) {
	ps := NewPipelineStats(time.Hour)
	for i := 0; i < 3; i++ {
		ps.RecordPipeline("share", 0, 0, nil)
	}
	for i := 0; i < 5; i++ {
		ps.RecordPipeline("timeseries", 0, 0, nil)
	}
	ps.RecordPipeline("products", 0, 0, nil)

	top := ps.Top(2)
	if len(top) != 2 || top[0].Pipeline != "timeseries" || top[1].Pipeline != "share" {
		t.Errorf("unexpected top: %+v", top)
	}
	if len(ps.Top(0)) != 0 {
		t.Error("Top(0) should be empty")
	}
	if len(ps.Top(10)) != 3 {
		t.Error("Top(10) should return every entry")
	}
}

// TestPruneRemovesOldEntries tests that Prune removes entries older than the window.
func TestPruneRemovesOldEntries(t *testing.T) {
	ps := NewPipelineStats(50 * time.Millisecond)
	ps.RecordPipeline("old", 0, 0, nil)
	time.Sleep(100 * time.Millisecond)
	ps.RecordPipeline("fresh", 0, 0, nil)

	ps.Prune()

	snap := ps.Snapshot()
	if len(snap) != 1 || snap[0].Pipeline != "fresh" {
		t.Errorf("expected only fresh entry, got %+v", snap)
	}
}
