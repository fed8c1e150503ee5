// Package profile measures wall-clock time spent in instrumented code
// units. It is built entirely on the public tripwire API: a profiler is a
// pair of start and return handlers per attached entity, so it exercises
// the same dispatch path as any user handler.
package profile

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chosenoffset/tripwire/pkg/tripwire"
)

// UnitStats aggregates the timings of one code unit.
type UnitStats struct {
	Unit  string        `json:"unit"`
	Calls uint64        `json:"calls"`
	Total time.Duration `json:"total_ns"`
	Min   time.Duration `json:"min_ns"`
	Max   time.Duration `json:"max_ns"`
}

// Mean returns the average duration per call.
func (s UnitStats) Mean() time.Duration {
	if s.Calls == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Calls)
}

// Profiler times every call into the units of its attached entities.
// Nested and recursive calls are tracked per activation frame, so a
// function that calls itself contributes one sample per activation.
type Profiler struct {
	engine *tripwire.Engine

	mu sync.Mutex
	// starts holds the start timestamp of each in-flight activation. An
	// activation whose dispatch aborts before its return event leaves its
	// entry behind; Reset and Detach drop such entries, bounding them to
	// the profiling session.
	starts   map[tripwire.Frame]time.Time
	stats    map[string]*UnitStats
	handlers []*tripwire.Handler
}

// New creates a profiler over an engine. Nothing is instrumented until
// Attach.
func New(engine *tripwire.Engine) *Profiler {
	return &Profiler{
		engine: engine,
		starts: make(map[tripwire.Frame]time.Time),
		stats:  make(map[string]*UnitStats),
	}
}

// Attach instruments an entity with start and return probes. Repeated
// Attach calls accumulate; each adds its own handler pair.
func (p *Profiler) Attach(entity tripwire.Entity) error {
	start, err := p.engine.When(entity, []tripwire.Identifier{tripwire.Start})
	if err != nil {
		return err
	}
	hs, err := start.Do(tripwire.Call(p.onStart, "_frame"))
	if err != nil {
		return err
	}

	ret, err := p.engine.When(entity, []tripwire.Identifier{tripwire.Return})
	if err != nil {
		hs.Remove()
		return err
	}
	hr, err := ret.Do(tripwire.Call(p.onReturn, "_frame", "_unit"))
	if err != nil {
		hs.Remove()
		return err
	}

	p.mu.Lock()
	p.handlers = append(p.handlers, hs, hr)
	p.mu.Unlock()
	return nil
}

// Detach removes every probe the profiler installed. Collected stats
// survive; pending start samples do not.
func (p *Profiler) Detach() {
	p.mu.Lock()
	handlers := p.handlers
	p.handlers = nil
	p.starts = make(map[tripwire.Frame]time.Time)
	p.mu.Unlock()
	for _, h := range handlers {
		h.Remove()
	}
}

// Reset clears collected stats without touching the probes.
func (p *Profiler) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.starts = make(map[tripwire.Frame]time.Time)
	p.stats = make(map[string]*UnitStats)
}

func (p *Profiler) onStart(args tripwire.Args) (any, error) {
	f := args["_frame"].(tripwire.Frame)
	p.mu.Lock()
	p.starts[f] = time.Now()
	p.mu.Unlock()
	return nil, nil
}

func (p *Profiler) onReturn(args tripwire.Args) (any, error) {
	f := args["_frame"].(tripwire.Frame)
	u := args["_unit"].(*tripwire.CodeUnit)
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	started, ok := p.starts[f]
	if !ok {
		// The start probe attached mid-call; skip the partial sample.
		return nil, nil
	}
	delete(p.starts, f)
	p.record(u.Name(), now.Sub(started))
	return nil, nil
}

func (p *Profiler) record(unit string, d time.Duration) {
	st := p.stats[unit]
	if st == nil {
		st = &UnitStats{Unit: unit, Min: d, Max: d}
		p.stats[unit] = st
	}
	st.Calls++
	st.Total += d
	if d < st.Min {
		st.Min = d
	}
	if d > st.Max {
		st.Max = d
	}
}

// Stats returns a snapshot of the per-unit aggregates.
func (p *Profiler) Stats() []UnitStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]UnitStats, 0, len(p.stats))
	for _, st := range p.stats {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Unit < out[j].Unit
	})
	return out
}

// Report renders collected stats.
type Report struct {
	Stats []UnitStats `json:"stats"`
}

// Report snapshots the profiler into a report, ordered by total time
// descending.
func (p *Profiler) Report() Report {
	return Report{Stats: p.Stats()}
}

// Summary renders a fixed-width table of the report.
func (r Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %8s %12s %12s %12s %12s\n",
		"unit", "calls", "total", "mean", "min", "max")
	for _, st := range r.Stats {
		fmt.Fprintf(&b, "%-20s %8d %12s %12s %12s %12s\n",
			st.Unit, st.Calls, st.Total, st.Mean(), st.Min, st.Max)
	}
	return b.String()
}

// ToJSON serializes the report.
func (r Report) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
