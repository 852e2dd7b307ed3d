package state

import (
	"fmt"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/archon/statecore/internal/core/ecs"
	"github.com/archon/statecore/internal/core/event"
)

func newTestStore(t *testing.T, capacity int) (*Store, *event.Bus, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)
	bus := event.NewBus(log)
	return NewStore(capacity, bus, log), bus, logs
}

func TestHotRecord_IsEightBytes(t *testing.T) {
	assert.Equal(t, uintptr(RecordSize), unsafe.Sizeof(HotRecord{}))
	assert.Len(t, HotRecord{}.AppendBinary(nil), RecordSize)
}

func TestScenario_OwnerChangeDrainSwap(t *testing.T) {
	// GIVEN entity 7 registered with default fields
	s, bus, _ := newTestStore(t, 16)
	_, err := s.Register(7)
	require.NoError(t, err)
	bus.DrainAll() // discard EntityRegistered

	var got []event.OwnershipChanged
	event.Subscribe(bus, func(e event.OwnershipChanged) { got = append(got, e) })

	// WHEN owner is set to 3
	require.True(t, s.SetOwner(7, 3))

	// THEN an ownership-changed event (0 -> 3) is queued
	assert.Equal(t, 1, event.Pending[event.OwnershipChanged](bus))

	// AND drain delivers exactly that event
	bus.DrainAll()
	require.Len(t, got, 1)
	assert.Equal(t, event.OwnershipChanged{Entity: 7, Old: 0, New: 3}, got[0])

	// AND after swap readers see the new owner
	s.Swap()
	assert.Equal(t, ecs.OwnerID(3), s.View().Get(7).Owner)
}

func TestSetOwner_EventCarriesDevelopmentAtChange(t *testing.T) {
	s, bus, _ := newTestStore(t, 4)
	_, _ = s.Register(1)
	s.SetDevelopment(1, 12)
	bus.DrainAll()

	var owners []event.OwnershipChanged
	var controllers []event.ControllerChanged
	event.Subscribe(bus, func(e event.OwnershipChanged) { owners = append(owners, e) })
	event.Subscribe(bus, func(e event.ControllerChanged) { controllers = append(controllers, e) })

	s.SetOwner(1, 3)
	s.SetDevelopment(1, 40)
	s.SetController(1, 3)
	bus.DrainAll()

	require.Len(t, owners, 1)
	require.Len(t, controllers, 1)
	assert.Equal(t, uint16(12), owners[0].Development)
	assert.Equal(t, uint16(40), controllers[0].Development)
}

func TestSetters_EqualValueIsNoOp(t *testing.T) {
	s, bus, _ := newTestStore(t, 4)
	_, _ = s.Register(1)
	bus.DrainAll()

	assert.False(t, s.SetOwner(1, 0))
	assert.False(t, s.SetController(1, 0))
	assert.False(t, s.SetTerrain(1, 0))
	assert.False(t, s.SetFlags(1, 0))
	assert.False(t, s.SetDevelopment(1, 0))
	assert.Equal(t, 0, bus.PendingTotal())
}

func TestSetters_EmitTypedEvents(t *testing.T) {
	s, bus, _ := newTestStore(t, 4)
	_, _ = s.Register(1)
	bus.DrainAll()

	s.SetController(1, 4)
	s.SetTerrain(1, 5)
	s.SetFlags(1, FlagCoastal)
	s.SetDevelopment(1, 12)

	assert.Equal(t, 1, event.Pending[event.ControllerChanged](bus))
	assert.Equal(t, 1, event.Pending[event.TerrainChanged](bus))
	assert.Equal(t, 1, event.Pending[event.FlagsChanged](bus))
	assert.Equal(t, 1, event.Pending[event.DevelopmentChanged](bus))
	assert.Equal(t, 0, event.Pending[event.OwnershipChanged](bus))
}

func TestRecordStability_LastValueWinsAndNeighboursUntouched(t *testing.T) {
	s, _, _ := newTestStore(t, 8)
	for id := ecs.EntityID(0); id < 8; id++ {
		_, err := s.RegisterWith(id, HotRecord{Owner: 100, Development: 1})
		require.NoError(t, err)
	}

	for i := 0; i < 50; i++ {
		s.SetOwner(3, ecs.OwnerID(i))
		s.SetDevelopment(3, uint16(i*3))
		s.SetFlags(3, uint8(i))
	}

	assert.Equal(t, HotRecord{Owner: 49, Development: 147, Flags: 49}, s.Get(3))
	for id := ecs.EntityID(0); id < 8; id++ {
		if id == 3 {
			continue
		}
		assert.Equal(t, HotRecord{Owner: 100, Development: 1}, s.Get(id), "entity %d", id)
	}
}

func TestGet_UnknownIDReturnsDefault(t *testing.T) {
	s, _, _ := newTestStore(t, 4)
	assert.Equal(t, DefaultRecord, s.Get(999))
	assert.Equal(t, DefaultRecord, s.View().Get(999))
}

func TestSet_UnregisteredIDLogsAndNoOps(t *testing.T) {
	s, bus, logs := newTestStore(t, 4)
	assert.False(t, s.SetOwner(42, 1))
	assert.Equal(t, 0, bus.PendingTotal())
	assert.Equal(t, 1, logs.FilterMessage("write to unregistered entity").Len())
}

func TestRegister_DuplicateIsLoggedNoOp(t *testing.T) {
	s, _, logs := newTestStore(t, 4)
	_, err := s.RegisterWith(1, HotRecord{Owner: 9})
	require.NoError(t, err)

	_, err = s.Register(1)
	assert.ErrorIs(t, err, ecs.ErrDuplicateID)
	assert.Equal(t, ecs.OwnerID(9), s.Get(1).Owner, "duplicate must not reset the record")
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestRegister_CapacityExceeded(t *testing.T) {
	s, _, _ := newTestStore(t, 2)
	_, _ = s.Register(1)
	_, _ = s.Register(2)
	_, err := s.Register(3)
	assert.ErrorIs(t, err, ecs.ErrCapacityExceeded)
	assert.False(t, s.Has(3))
}

func TestSwap_ReadersLagOneCycle(t *testing.T) {
	// GIVEN cycle n-1 published with owner 1
	s, _, _ := newTestStore(t, 4)
	_, _ = s.Register(0)
	s.SetOwner(0, 1)
	s.Swap()

	// WHEN cycle n writes owner 2
	s.SetOwner(0, 2)

	// THEN readers still see cycle n-1 while the writer sees cycle n
	assert.Equal(t, ecs.OwnerID(1), s.View().Get(0).Owner)
	assert.Equal(t, ecs.OwnerID(2), s.Get(0).Owner)

	s.Swap()
	assert.Equal(t, ecs.OwnerID(2), s.View().Get(0).Owner)
}

func TestSwap_WriteBufferCarriesForward(t *testing.T) {
	// GIVEN a change in cycle 1 and none in cycle 2
	s, _, _ := newTestStore(t, 4)
	_, _ = s.Register(0)
	s.SetDevelopment(0, 10)
	s.Swap()
	s.Swap()

	// THEN the write buffer did not regress to the stale buffer's contents
	assert.Equal(t, uint16(10), s.Get(0).Development)
	assert.Equal(t, uint16(10), s.View().Get(0).Development)
	assert.Equal(t, 0, s.Dirty())
}

// Swap work is the flip plus one copy per journaled record and one publish
// per staged ID. The test pins those counts; BenchmarkStoreSwap shows the
// time staying flat across capacities.
func TestSwap_CostIndependentOfCapacity(t *testing.T) {
	const k = 8
	for _, capacity := range []int{100, 60_000} {
		s, _, _ := newTestStore(t, capacity)
		for id := ecs.EntityID(0); id < k; id++ {
			_, _ = s.Register(id)
		}
		assert.Equal(t, k, s.Dirty(), "capacity %d", capacity)
		assert.Equal(t, k, s.ids.Staged(), "capacity %d", capacity)
		s.Swap()
		assert.Equal(t, 0, s.Dirty())
		assert.Equal(t, 0, s.ids.Staged())

		// k writes, each to a distinct record, journal exactly k entries
		// however often they are rewritten.
		for i := 0; i < 3; i++ {
			for id := ecs.EntityID(0); id < k; id++ {
				s.SetDevelopment(id, uint16(10*i+int(id)+1))
			}
		}
		assert.Equal(t, k, s.Dirty(), "capacity %d", capacity)
		assert.Equal(t, 0, s.ids.Staged(), "setters do not touch the mapping")

		allocs := testing.AllocsPerRun(100, s.Swap)
		assert.Zero(t, allocs, "capacity %d", capacity)
		assert.Equal(t, 0, s.Dirty())
		assert.Equal(t, uint16(28), s.View().Get(7).Development)
	}
}

func BenchmarkStoreSwap(b *testing.B) {
	for _, capacity := range []int{100, 60_000} {
		b.Run(fmt.Sprintf("capacity=%d", capacity), func(b *testing.B) {
			s := NewStore(capacity, event.NewBus(zap.NewNop()), zap.NewNop())
			for id := ecs.EntityID(0); id < 16; id++ {
				_, _ = s.Register(id)
			}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				s.SetDevelopment(ecs.EntityID(i&15), uint16(i))
				s.Swap()
			}
		})
	}
}

func TestView_MembershipChangesWaitForSwap(t *testing.T) {
	// GIVEN entity 5 published with owner 3
	s, _, _ := newTestStore(t, 8)
	_, err := s.RegisterWith(5, HotRecord{Owner: 3, Development: 4})
	require.NoError(t, err)
	s.Swap()
	require.True(t, s.View().Has(5))

	// WHEN cycle n removes 5 and registers 6
	require.True(t, s.Remove(5))
	_, err = s.RegisterWith(6, HotRecord{Owner: 2})
	require.NoError(t, err)

	// THEN the writer sees the change at once
	assert.False(t, s.Has(5))
	assert.True(t, s.Has(6))

	// AND readers still see cycle n-1
	view := s.View()
	assert.True(t, view.Has(5))
	assert.Equal(t, HotRecord{Owner: 3, Development: 4}, view.Get(5))
	assert.False(t, view.Has(6))
	assert.Equal(t, DefaultRecord, view.Get(6))

	// AND after the swap readers see cycle n
	s.Swap()
	view = s.View()
	assert.False(t, view.Has(5))
	assert.Equal(t, DefaultRecord, view.Get(5))
	assert.True(t, view.Has(6))
	assert.Equal(t, ecs.OwnerID(2), view.Get(6).Owner)
}

func TestView_RegisterThenRemoveInOneCycleStaysHidden(t *testing.T) {
	s, _, _ := newTestStore(t, 4)
	_, _ = s.Register(9)
	require.True(t, s.Remove(9))
	assert.False(t, s.View().Has(9))
	s.Swap()
	assert.False(t, s.View().Has(9))
	assert.Equal(t, DefaultRecord, s.View().Get(9))
}

func TestRemove_FreesAndQuarantinesIndex(t *testing.T) {
	s, bus, _ := newTestStore(t, 2)
	_, _ = s.RegisterWith(1, HotRecord{Owner: 5})
	_, _ = s.Register(2)
	s.Swap()
	bus.DrainAll()

	var removed []event.EntityRemoved
	event.Subscribe(bus, func(e event.EntityRemoved) { removed = append(removed, e) })

	require.True(t, s.Remove(1))
	assert.False(t, s.Has(1))
	assert.Equal(t, DefaultRecord, s.Get(1))

	// the freed index is not reusable until the cycle is published
	_, err := s.Register(3)
	assert.ErrorIs(t, err, ecs.ErrCapacityExceeded)

	bus.DrainAll()
	assert.Equal(t, []event.EntityRemoved{{Entity: 1, LastOwner: 5}}, removed)

	s.Swap()
	_, err = s.Register(3)
	require.NoError(t, err)
	assert.Equal(t, HotRecord{}, s.Get(3))
	s.Swap()
	assert.Equal(t, HotRecord{}, s.View().Get(3), "reused slot must not leak the removed record")
}

func TestRemove_UnknownReturnsFalse(t *testing.T) {
	s, _, _ := newTestStore(t, 2)
	assert.False(t, s.Remove(5))
}

func TestIteration_CallerBufferDoesNotAllocate(t *testing.T) {
	s, _, _ := newTestStore(t, 64)
	for id := ecs.EntityID(0); id < 64; id++ {
		_, _ = s.RegisterWith(id, HotRecord{Owner: ecs.OwnerID(id % 4)})
	}
	buf := make([]ecs.EntityID, 0, 64)
	owned := func(_ ecs.EntityID, r HotRecord) bool { return r.Owner == 2 }

	allocs := testing.AllocsPerRun(100, func() {
		buf = s.AppendIDs(buf[:0])
		buf = s.AppendIDsWhere(buf[:0], owned)
	})
	assert.Zero(t, allocs)
	assert.Len(t, buf, 16)

	count := 0
	s.Each(func(ecs.EntityID, HotRecord) bool { count++; return count < 10 })
	assert.Equal(t, 10, count)
}

func TestChecksum_Deterministic(t *testing.T) {
	run := func() ([32]byte, [32]byte) {
		s, bus, _ := newTestStore(t, 128)
		for id := ecs.EntityID(0); id < 100; id++ {
			_, _ = s.Register(id)
		}
		for cycle := 0; cycle < 20; cycle++ {
			for id := ecs.EntityID(0); id < 100; id++ {
				s.SetOwner(id, ecs.OwnerID((int(id)*7+cycle)%11))
			}
			s.Remove(ecs.EntityID(cycle))
			bus.DrainAll()
			s.Swap()
		}
		return s.Checksum(), s.View().Checksum()
	}
	a1, b1 := run()
	a2, b2 := run()
	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)
}

func TestChecksum_ChangesWithState(t *testing.T) {
	s, _, _ := newTestStore(t, 4)
	_, _ = s.Register(0)
	before := s.Checksum()
	s.SetOwner(0, 1)
	assert.NotEqual(t, before, s.Checksum())
}
