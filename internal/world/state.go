package world

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/archon/statecore/internal/config"
	"github.com/archon/statecore/internal/core/ecs"
	"github.com/archon/statecore/internal/core/event"
	"github.com/archon/statecore/internal/core/history"
	"github.com/archon/statecore/internal/core/sparse"
	"github.com/archon/statecore/internal/core/state"
	"github.com/archon/statecore/internal/data"
)

// Built-in sparse collection names.
const (
	Buildings = "buildings"
	Modifiers = "modifiers"
	Claims    = "claims"
)

// Fallback estimates when the config has no [sparse.<name>] table.
const (
	defaultBuildingEstimate = 1024
	defaultModifierEstimate = 1024
	defaultClaimEstimate    = 1024
)

// State owns every registry of the simulation core. Nothing in it is global:
// two States never share data, which is what the determinism check relies on.
// Single-goroutine access (the cycle loop); concurrent readers go through
// Store().View().
type State struct {
	log *zap.Logger

	bus     *event.Bus
	store   *state.Store
	sparse  *sparse.Registry[ecs.EntityID]
	history *history.Store
	names   *ecs.ColdStore[string]

	buildings *sparse.Collection[ecs.EntityID, data.KindID]
	modifiers *sparse.Collection[ecs.EntityID, data.KindID]
	claims    *sparse.Collection[ecs.EntityID, ecs.OwnerID]

	// cascade removes an entity from every per-entity store at flush time.
	cascade     *ecs.Registry
	removeQueue []ecs.EntityID

	startYear     int32
	cyclesPerYear uint64
	cycle         uint64
	closed        bool
}

func New(cfg *config.Config, log *zap.Logger) (*State, error) {
	hist, err := history.New(history.Config{
		RecentCap: cfg.History.RecentCap,
		MediumCap: cfg.History.MediumCap,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("history store: %w", err)
	}

	bus := event.NewBus(log)
	hint := cfg.Core.EventQueueHint
	event.Reserve[event.OwnershipChanged](bus, hint)
	event.Reserve[event.ControllerChanged](bus, hint)
	event.Reserve[event.DevelopmentChanged](bus, hint)
	event.Reserve[event.FlagsChanged](bus, hint)
	event.Reserve[event.TerrainChanged](bus, hint)

	s := &State{
		log:           log,
		bus:           bus,
		store:         state.NewStore(cfg.Core.EntityCapacity, bus, log),
		sparse:        sparse.NewRegistry[ecs.EntityID](),
		history:       hist,
		names:         ecs.NewColdStore[string](cfg.Core.EntityCapacity),
		cascade:       ecs.NewRegistry(),
		removeQueue:   make([]ecs.EntityID, 0, 64),
		startYear:     int32(cfg.Simulation.StartYear),
		cyclesPerYear: uint64(cfg.Simulation.CyclesPerYear),
	}

	s.buildings = sparse.New[ecs.EntityID, data.KindID](Buildings, cfg.SparseEstimate(Buildings, defaultBuildingEstimate), log)
	s.modifiers = sparse.New[ecs.EntityID, data.KindID](Modifiers, cfg.SparseEstimate(Modifiers, defaultModifierEstimate), log)
	s.claims = sparse.New[ecs.EntityID, ecs.OwnerID](Claims, cfg.SparseEstimate(Claims, defaultClaimEstimate), log)
	for _, c := range []sparse.Tracker[ecs.EntityID]{s.buildings, s.modifiers, s.claims} {
		if err := s.sparse.Register(c); err != nil {
			return nil, err
		}
	}
	// Any other configured collection is a generic kind list reachable by
	// name from scripts.
	for name, sc := range cfg.Sparse {
		if _, ok := s.sparse.Lookup(name); ok {
			continue
		}
		if err := s.sparse.Register(sparse.New[ecs.EntityID, data.KindID](name, sc.EstimatedCapacity, log)); err != nil {
			return nil, err
		}
	}

	for _, side := range []struct {
		name  string
		store ecs.Removable
	}{{"sparse", s.sparse}, {"history", s.history}, {"names", s.names}} {
		if err := s.cascade.Register(side.name, side.store); err != nil {
			return nil, err
		}
	}

	log.Info("state core ready",
		zap.Int("entity_capacity", s.store.Capacity()),
		zap.Int("sparse_collections", s.sparse.Len()),
		zap.Int("history_recent_cap", cfg.History.RecentCap),
		zap.Int("history_medium_cap", cfg.History.MediumCap))
	return s, nil
}

func (s *State) Log() *zap.Logger                      { return s.log }
func (s *State) Bus() *event.Bus                       { return s.bus }
func (s *State) Store() *state.Store                   { return s.store }
func (s *State) Sparse() *sparse.Registry[ecs.EntityID] { return s.sparse }
func (s *State) History() *history.Store               { return s.history }
func (s *State) Names() *ecs.ColdStore[string]         { return s.names }

func (s *State) Buildings() *sparse.Collection[ecs.EntityID, data.KindID] { return s.buildings }
func (s *State) Modifiers() *sparse.Collection[ecs.EntityID, data.KindID] { return s.modifiers }
func (s *State) Claims() *sparse.Collection[ecs.EntityID, ecs.OwnerID]    { return s.claims }

// KindCollection returns a named collection of attribute kinds (buildings,
// modifiers or any extra configured collection).
func (s *State) KindCollection(name string) (*sparse.Collection[ecs.EntityID, data.KindID], bool) {
	return sparse.Lookup[data.KindID](s.sparse, name)
}

// Seed registers the provinces from the seed table. Registration errors are
// configuration errors: the first one aborts seeding.
func (s *State) Seed(seeds []data.ProvinceSeed) error {
	for i := range seeds {
		p := &seeds[i]
		if _, err := s.store.RegisterWith(p.ID, p.Record); err != nil {
			return fmt.Errorf("seed province %d: %w", p.ID, err)
		}
		if p.Name != "" {
			s.names.Set(p.ID, p.Name)
		}
		for _, b := range p.Buildings {
			s.buildings.Add(p.ID, b)
		}
		if p.Record.Owner != ecs.Unowned {
			s.claims.Add(p.ID, p.Record.Owner)
		}
	}
	s.log.Info("provinces seeded", zap.Int("count", len(seeds)))
	return nil
}

// MarkForRemoval queues an entity for removal at the end of the update
// phase. Removing mid-update would invalidate indexes other systems hold.
func (s *State) MarkForRemoval(id ecs.EntityID) {
	s.removeQueue = append(s.removeQueue, id)
}

// FlushRemovals removes all queued entities from the store, then cascades
// the ones that were live through every per-entity collection in one batch.
// Returns the number removed.
func (s *State) FlushRemovals() int {
	removed := s.removeQueue[:0]
	for _, id := range s.removeQueue {
		if s.store.Remove(id) {
			removed = append(removed, id)
		}
	}
	s.cascade.RemoveBatch(removed)
	if len(removed) > 0 {
		s.log.Debug("removal cascade",
			zap.Int("entities", len(removed)),
			zap.Strings("stores", s.cascade.Names()))
	}
	s.removeQueue = s.removeQueue[:0]
	return len(removed)
}

// Cascaded is the number of entities removed since startup.
func (s *State) Cascaded() uint64 { return s.cascade.Cascaded() }

// PendingRemovals is the length of the removal queue.
func (s *State) PendingRemovals() int { return len(s.removeQueue) }

// Cycle is the number of completed cycles.
func (s *State) Cycle() uint64 { return s.cycle }

// Year is the in-game year of the current cycle.
func (s *State) Year() int32 { return s.YearAt(s.cycle) }

// YearAt is the in-game year of the given cycle index.
func (s *State) YearAt(cycle uint64) int32 {
	return s.startYear + int32(cycle/s.cyclesPerYear)
}

// EndCycle publishes the write buffer to readers and advances the clock.
func (s *State) EndCycle() {
	s.store.Swap()
	s.cycle++
}

// Close tears down every registry. Safe to call twice.
func (s *State) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.bus.Close()
	s.sparse.Close()
	s.history.Close()
	s.log.Info("state core closed", zap.Uint64("cycles", s.cycle), zap.Int("entities", s.store.Len()))
}
