package system

import "time"

// Phase defines execution ordering within a single simulation cycle.
type Phase int

const (
	PhaseInput      Phase = iota // 0: external commands queued for this cycle
	PhaseUpdate                  // 1: domain logic mutates the write buffer
	PhasePostUpdate              // 2: deferred removals, derived state
	PhaseDispatch                // 3: drain the event bus once
	PhasePersist                 // 4: checkpoint the completed cycle
	PhaseSwap                    // 5: publish the cycle to readers
)

var phaseNames = [...]string{"input", "update", "post-update", "dispatch", "persist", "swap"}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// System is the interface every cycle participant implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
