package system

import (
	"time"

	coresys "github.com/archon/statecore/internal/core/system"
	"github.com/archon/statecore/internal/world"
)

// DispatchSystem drains the event bus once per cycle, after all domain logic
// and before the swap. Phase 3 (Dispatch).
type DispatchSystem struct {
	world     *world.State
	delivered uint64
}

func NewDispatchSystem(ws *world.State) *DispatchSystem {
	return &DispatchSystem{world: ws}
}

func (s *DispatchSystem) Phase() coresys.Phase { return coresys.PhaseDispatch }

func (s *DispatchSystem) Update(_ time.Duration) {
	s.delivered += uint64(s.world.Bus().DrainAll())
}

// Delivered is the total number of events delivered so far.
func (s *DispatchSystem) Delivered() uint64 { return s.delivered }
