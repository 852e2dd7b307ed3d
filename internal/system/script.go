package system

import (
	"time"

	"go.uber.org/zap"

	coresys "github.com/archon/statecore/internal/core/system"
	"github.com/archon/statecore/internal/scripting"
	"github.com/archon/statecore/internal/world"
)

// ScriptSystem runs the Lua on_cycle hook. Phase 1 (Update).
type ScriptSystem struct {
	world  *world.State
	engine *scripting.Engine
	log    *zap.Logger
	errors int
}

func NewScriptSystem(ws *world.State, engine *scripting.Engine, log *zap.Logger) *ScriptSystem {
	return &ScriptSystem{world: ws, engine: engine, log: log}
}

func (s *ScriptSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

// Update logs script failures and keeps the cycle going; whatever the script
// wrote before failing stays written.
func (s *ScriptSystem) Update(_ time.Duration) {
	if err := s.engine.OnCycle(s.world.Cycle(), s.world.Year()); err != nil {
		s.errors++
		s.log.Error("script cycle failed",
			zap.Uint64("cycle", s.world.Cycle()),
			zap.Int("errors", s.errors),
			zap.Error(err))
	}
}

// Errors is the number of cycles whose hook failed.
func (s *ScriptSystem) Errors() int { return s.errors }
