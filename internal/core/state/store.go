// Package state owns the canonical hot state of every simulated entity: a
// dense HotRecord array behind stable-ID indirection, double-buffered so
// readers see the last completed cycle without locks.
package state

import (
	"go.uber.org/zap"

	"github.com/archon/statecore/internal/core/ecs"
	"github.com/archon/statecore/internal/core/event"
	"github.com/archon/statecore/internal/core/snapshot"
)

// Store is mutated only by the simulation loop. Reads through Get see this
// cycle's writes; readers on other goroutines must use View.
type Store struct {
	ids     *ecs.IndexMap
	buf     *snapshot.Buffer[HotRecord]
	dirty   []uint64 // bitset over dense indices written this cycle
	journal []int32  // same indices, in write order
	bus     *event.Bus
	log     *zap.Logger
}

// NewStore sizes everything for capacity entities. The ceiling is fixed for
// the lifetime of the store.
func NewStore(capacity int, bus *event.Bus, log *zap.Logger) *Store {
	if capacity > ecs.MaxEntities {
		capacity = ecs.MaxEntities
	}
	return &Store{
		ids:     ecs.NewIndexMap(capacity),
		buf:     snapshot.New[HotRecord](capacity),
		dirty:   make([]uint64, (capacity+63)/64),
		journal: make([]int32, 0, capacity),
		bus:     bus,
		log:     log,
	}
}

// Register adds id with a zero record. Duplicate IDs and capacity overruns
// are configuration errors: logged, no-op, returned for callers that check.
func (s *Store) Register(id ecs.EntityID) (int, error) {
	return s.RegisterWith(id, HotRecord{})
}

// RegisterWith adds id with initial field values. Only EntityRegistered is
// emitted; seeding is not a change.
func (s *Store) RegisterWith(id ecs.EntityID, rec HotRecord) (int, error) {
	idx, err := s.ids.Register(id)
	if err != nil {
		s.log.Error("register entity",
			zap.Uint16("entity", uint16(id)),
			zap.Int("capacity", s.ids.Capacity()),
			zap.Error(err))
		return 0, err
	}
	s.write(idx, rec)
	event.Emit(s.bus, event.EntityRegistered{Entity: id})
	return idx, nil
}

// Remove drops id. Its record is zeroed in the write buffer; readers keep
// seeing the entity and its previous-cycle record until the next swap.
func (s *Store) Remove(id ecs.EntityID) bool {
	idx, ok := s.ids.Remove(id)
	if !ok {
		s.log.Debug("remove unknown entity", zap.Uint16("entity", uint16(id)))
		return false
	}
	last := s.buf.Write()[idx].Owner
	s.write(idx, HotRecord{})
	event.Emit(s.bus, event.EntityRemoved{Entity: id, LastOwner: last})
	return true
}

// Get returns the current-cycle record, or DefaultRecord for unknown IDs.
func (s *Store) Get(id ecs.EntityID) HotRecord {
	idx, ok := s.ids.Index(id)
	if !ok {
		return DefaultRecord
	}
	return s.buf.Write()[idx]
}

func (s *Store) Has(id ecs.EntityID) bool { return s.ids.Has(id) }
func (s *Store) Len() int                 { return s.ids.Len() }
func (s *Store) Capacity() int            { return s.ids.Capacity() }

// Generation is the number of completed cycles.
func (s *Store) Generation() uint64 { return s.buf.Generation() }

// Dirty is the number of records written this cycle.
func (s *Store) Dirty() int { return len(s.journal) }

func (s *Store) SetOwner(id ecs.EntityID, owner ecs.OwnerID) bool {
	idx, ok := s.indexForWrite(id, "owner")
	if !ok {
		return false
	}
	w := s.buf.Write()
	old := w[idx].Owner
	if old == owner {
		return false
	}
	w[idx].Owner = owner
	s.markDirty(idx)
	event.Emit(s.bus, event.OwnershipChanged{
		Entity: id, Old: old, New: owner, Development: w[idx].Development,
	})
	return true
}

func (s *Store) SetController(id ecs.EntityID, controller ecs.OwnerID) bool {
	idx, ok := s.indexForWrite(id, "controller")
	if !ok {
		return false
	}
	w := s.buf.Write()
	old := w[idx].Controller
	if old == controller {
		return false
	}
	w[idx].Controller = controller
	s.markDirty(idx)
	event.Emit(s.bus, event.ControllerChanged{
		Entity: id, Old: old, New: controller, Development: w[idx].Development,
	})
	return true
}

func (s *Store) SetTerrain(id ecs.EntityID, terrain ecs.TerrainID) bool {
	idx, ok := s.indexForWrite(id, "terrain")
	if !ok {
		return false
	}
	w := s.buf.Write()
	old := w[idx].Terrain
	if old == terrain {
		return false
	}
	w[idx].Terrain = terrain
	s.markDirty(idx)
	event.Emit(s.bus, event.TerrainChanged{Entity: id, Old: old, New: terrain})
	return true
}

func (s *Store) SetFlags(id ecs.EntityID, flags uint8) bool {
	idx, ok := s.indexForWrite(id, "flags")
	if !ok {
		return false
	}
	w := s.buf.Write()
	old := w[idx].Flags
	if old == flags {
		return false
	}
	w[idx].Flags = flags
	s.markDirty(idx)
	event.Emit(s.bus, event.FlagsChanged{Entity: id, Old: old, New: flags})
	return true
}

func (s *Store) SetDevelopment(id ecs.EntityID, development uint16) bool {
	idx, ok := s.indexForWrite(id, "development")
	if !ok {
		return false
	}
	w := s.buf.Write()
	old := w[idx].Development
	if old == development {
		return false
	}
	w[idx].Development = development
	s.markDirty(idx)
	event.Emit(s.bus, event.DevelopmentChanged{Entity: id, Old: old, New: development})
	return true
}

// Swap publishes the current cycle to readers. The buffer flip is O(1); the
// records written this cycle are then carried into the new write buffer so
// it starts from the state readers now see, and the ID mapping changes of
// the cycle become visible to View. Cost follows the number of changed
// records and IDs, never the capacity.
func (s *Store) Swap() {
	s.buf.Swap()
	r := s.buf.Read()
	w := s.buf.Write()
	for _, idx := range s.journal {
		w[idx] = r.At(int(idx))
		s.dirty[idx>>6] &^= 1 << (uint(idx) & 63)
	}
	s.journal = s.journal[:0]
	s.ids.Publish()
	s.ids.Recycle()
}

// AppendIDs appends every active ID to dst.
func (s *Store) AppendIDs(dst []ecs.EntityID) []ecs.EntityID {
	return append(dst, s.ids.Active()...)
}

// AppendIDsWhere appends the active IDs whose current record satisfies pred.
func (s *Store) AppendIDsWhere(dst []ecs.EntityID, pred func(ecs.EntityID, HotRecord) bool) []ecs.EntityID {
	w := s.buf.Write()
	for _, id := range s.ids.Active() {
		idx, _ := s.ids.Index(id)
		if pred(id, w[idx]) {
			dst = append(dst, id)
		}
	}
	return dst
}

// Each visits active entities until fn returns false. fn must not register
// or remove entities.
func (s *Store) Each(fn func(ecs.EntityID, HotRecord) bool) {
	w := s.buf.Write()
	for _, id := range s.ids.Active() {
		idx, _ := s.ids.Index(id)
		if !fn(id, w[idx]) {
			return
		}
	}
}

// View returns the read-only view of the last completed cycle.
func (s *Store) View() View {
	return View{ids: s.ids, r: s.buf.Read()}
}

func (s *Store) indexForWrite(id ecs.EntityID, field string) (int, bool) {
	idx, ok := s.ids.Index(id)
	if !ok {
		s.log.Warn("write to unregistered entity",
			zap.Uint16("entity", uint16(id)),
			zap.String("field", field))
	}
	return idx, ok
}

func (s *Store) write(idx int, rec HotRecord) {
	s.buf.Write()[idx] = rec
	s.markDirty(idx)
}

func (s *Store) markDirty(idx int) {
	word, bit := idx>>6, uint64(1)<<(uint(idx)&63)
	if s.dirty[word]&bit != 0 {
		return
	}
	s.dirty[word] |= bit
	s.journal = append(s.journal, int32(idx))
}
