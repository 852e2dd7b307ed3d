package system

import (
	"time"

	"go.uber.org/zap"

	coresys "github.com/archon/statecore/internal/core/system"
	"github.com/archon/statecore/internal/world"
)

// CleanupSystem flushes the deferred removal queue after domain logic has
// run. Phase 2 (PostUpdate).
type CleanupSystem struct {
	world *world.State
	log   *zap.Logger
}

func NewCleanupSystem(ws *world.State, log *zap.Logger) *CleanupSystem {
	return &CleanupSystem{world: ws, log: log}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *CleanupSystem) Update(_ time.Duration) {
	if n := s.world.FlushRemovals(); n > 0 {
		s.log.Debug("entities removed", zap.Int("count", n), zap.Uint64("cycle", s.world.Cycle()))
	}
}
