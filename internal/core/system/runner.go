package system

import (
	"fmt"
	"sort"
	"time"
)

// PhaseTiming is the wall time spent in one phase.
type PhaseTiming struct {
	Phase Phase
	Last  time.Duration
	Total time.Duration
}

// Runner executes systems in phase order each cycle. Systems sharing a phase
// run in registration order.
type Runner struct {
	systems []System
	sorted  bool
	cycles  uint64
	timing  [len(phaseNames)]PhaseTiming
	used    [len(phaseNames)]bool
	now     func() time.Time
}

func NewRunner() *Runner {
	return &Runner{
		systems: make([]System, 0, 16),
		now:     time.Now,
	}
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

// Validate checks the cycle ordering rule: exactly one system publishes the
// snapshot, and it runs last.
func (r *Runner) Validate() error {
	swaps := 0
	for _, s := range r.systems {
		if s.Phase() == PhaseSwap {
			swaps++
		}
		if s.Phase() < 0 || int(s.Phase()) >= len(phaseNames) {
			return fmt.Errorf("system %T has unknown phase %d", s, s.Phase())
		}
	}
	if swaps != 1 {
		return fmt.Errorf("runner needs exactly one %s system, got %d", PhaseSwap, swaps)
	}
	return nil
}

// Tick runs one full cycle and records how long each phase took.
func (r *Runner) Tick(dt time.Duration) {
	r.ensureSorted()
	if len(r.systems) == 0 {
		r.cycles++
		return
	}
	cur := r.systems[0].Phase()
	start := r.now()
	for _, s := range r.systems {
		if p := s.Phase(); p != cur {
			start = r.record(cur, start)
			cur = p
		}
		s.Update(dt)
	}
	r.record(cur, start)
	r.cycles++
}

// TickPhase runs only the systems of one phase. It does not count as a cycle.
func (r *Runner) TickPhase(phase Phase, dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.systems {
		if s.Phase() == phase {
			s.Update(dt)
		}
	}
}

// Cycles is the number of completed Tick calls.
func (r *Runner) Cycles() uint64 { return r.cycles }

// Timings returns the phases that have systems, in execution order.
func (r *Runner) Timings() []PhaseTiming {
	out := make([]PhaseTiming, 0, len(r.timing))
	for p, t := range r.timing {
		if r.used[p] {
			out = append(out, t)
		}
	}
	return out
}

func (r *Runner) record(p Phase, start time.Time) time.Time {
	end := r.now()
	if p >= 0 && int(p) < len(r.timing) {
		d := end.Sub(start)
		t := &r.timing[p]
		t.Phase, t.Last = p, d
		t.Total += d
		r.used[p] = true
	}
	return end
}

func (r *Runner) ensureSorted() {
	if !r.sorted {
		sort.SliceStable(r.systems, func(i, j int) bool {
			return r.systems[i].Phase() < r.systems[j].Phase()
		})
		r.sorted = true
	}
}
