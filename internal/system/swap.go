package system

import (
	"time"

	coresys "github.com/archon/statecore/internal/core/system"
	"github.com/archon/statecore/internal/world"
)

// SwapSystem publishes the cycle to readers and advances the clock. It must
// be the last thing in a cycle. Phase 5 (Swap).
type SwapSystem struct {
	world *world.State
}

func NewSwapSystem(ws *world.State) *SwapSystem {
	return &SwapSystem{world: ws}
}

func (s *SwapSystem) Phase() coresys.Phase { return coresys.PhaseSwap }

func (s *SwapSystem) Update(_ time.Duration) {
	s.world.EndCycle()
}
