// Package observability tracks report pipeline executions for the stats
// endpoint.
package observability

import (
	"sort"
	"sync"
	"time"
)

// PipelineStats aggregates execution counts and timings per pipeline name.
type PipelineStats struct {
	mu        sync.RWMutex
	pipelines map[string]*Stats
	window    time.Duration
}

// Stats holds the counters of one pipeline.
type Stats struct {
	Pipeline      string        `json:"pipeline"`
	Calls         int64         `json:"calls"`
	Errors        int64         `json:"errors"`
	Rows          int64         `json:"rows"`
	TotalDuration time.Duration `json:"total_duration_ns"`
	MaxDuration   time.Duration `json:"max_duration_ns"`
	LastSeen      time.Time     `json:"last_seen"`
	LastError     string        `json:"last_error,omitempty"`
}

// MeanDuration returns the average duration per call.
func (s Stats) MeanDuration() time.Duration {
	if s.Calls == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.Calls)
}

// NewPipelineStats creates a tracker. Entries idle for longer than window are
// dropped by Prune; a zero window keeps everything.
func NewPipelineStats(window time.Duration) *PipelineStats {
	return &PipelineStats{
		pipelines: make(map[string]*Stats),
		window:    window,
	}
}

// RecordPipeline records one execution. Safe for concurrent use.
func (p *PipelineStats) RecordPipeline(name string, rows int64, duration time.Duration, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.pipelines[name]
	if !ok {
		s = &Stats{Pipeline: name}
		p.pipelines[name] = s
	}

	s.Calls++
	s.Rows += rows
	s.TotalDuration += duration
	if duration > s.MaxDuration {
		s.MaxDuration = duration
	}
	s.LastSeen = time.Now()
	if err != nil {
		s.Errors++
		s.LastError = err.Error()
	}
}

// Snapshot returns a copy of every entry, sorted by pipeline name.
func (p *PipelineStats) Snapshot() []Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Stats, 0, len(p.pipelines))
	for _, s := range p.pipelines {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pipeline < out[j].Pipeline })
	return out
}

// Top returns the n most frequently run pipelines, busiest first.
func (p *PipelineStats) Top(n int) []Stats {
	if n <= 0 {
		return []Stats{}
	}
	stats := p.Snapshot()
	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].Calls > stats[j].Calls
	})
	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Prune removes entries not seen within the window.
func (p *PipelineStats) Prune() {
	if p.window <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	threshold := time.Now().Add(-p.window)
	for name, s := range p.pipelines {
		if s.LastSeen.Before(threshold) {
			delete(p.pipelines, name)
		}
	}
}
