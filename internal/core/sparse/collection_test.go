package sparse

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type entityID uint16

type building uint16

func newObserved(t *testing.T) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func TestAdd_GetPreservesInsertionOrder(t *testing.T) {
	c := New[entityID, building]("buildings", 16, zap.NewNop())
	c.Add(1, 10)
	c.Add(1, 20)
	c.Add(2, 99)
	c.Add(1, 30)

	assert.Equal(t, []building{10, 20, 30}, c.Get(1, nil))
	assert.Equal(t, []building{99}, c.Get(2, nil))
	assert.Empty(t, c.Get(3, nil))
	assert.Equal(t, 4, c.Len())
	assert.Equal(t, 2, c.KeyCount())
}

func TestGet_AppendsToCallerBuffer(t *testing.T) {
	c := New[entityID, building]("buildings", 4, zap.NewNop())
	c.Add(1, 5)
	dst := []building{1}
	dst = c.Get(1, dst)
	assert.Equal(t, []building{1, 5}, dst)
}

func TestHas_HasAny(t *testing.T) {
	c := New[entityID, building]("buildings", 4, zap.NewNop())
	assert.False(t, c.HasAny(1))
	c.Add(1, 7)
	assert.True(t, c.HasAny(1))
	assert.True(t, c.Has(1, 7))
	assert.False(t, c.Has(1, 8))
	assert.False(t, c.Has(2, 7))
}

func TestAdd_AllowsDuplicates_RemoveTakesOne(t *testing.T) {
	c := New[entityID, building]("buildings", 4, zap.NewNop())
	c.Add(1, 7)
	c.Add(1, 7)
	assert.Equal(t, 2, c.Count(1))

	assert.True(t, c.Remove(1, 7))
	assert.Equal(t, 1, c.Count(1))
	assert.True(t, c.Has(1, 7))

	assert.True(t, c.Remove(1, 7))
	assert.False(t, c.HasAny(1))
	assert.False(t, c.Remove(1, 7))
}

func TestRemove_MiddleHeadTail(t *testing.T) {
	c := New[entityID, building]("buildings", 8, zap.NewNop())
	for _, b := range []building{1, 2, 3, 4, 5} {
		c.Add(9, b)
	}
	require.True(t, c.Remove(9, 3)) // middle
	require.True(t, c.Remove(9, 1)) // head
	require.True(t, c.Remove(9, 5)) // tail
	assert.Equal(t, []building{2, 4}, c.Get(9, nil))

	// appends after a tail removal link correctly
	c.Add(9, 6)
	assert.Equal(t, []building{2, 4, 6}, c.Get(9, nil))
}

func TestRemoveAll(t *testing.T) {
	c := New[entityID, building]("buildings", 8, zap.NewNop())
	c.Add(1, 1)
	c.Add(1, 2)
	c.Add(2, 3)
	assert.Equal(t, 2, c.RemoveAll(1))
	assert.Equal(t, 0, c.RemoveAll(1))
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, []building{3}, c.Get(2, nil))
}

func TestForEach_StopsEarly(t *testing.T) {
	c := New[entityID, building]("buildings", 8, zap.NewNop())
	for b := building(0); b < 5; b++ {
		c.Add(1, b)
	}
	var seen []building
	c.ForEach(1, func(b building) bool {
		seen = append(seen, b)
		return b < 2
	})
	assert.Equal(t, []building{0, 1, 2}, seen)
}

func TestForEach_DoesNotAllocate(t *testing.T) {
	c := New[entityID, building]("buildings", 8, zap.NewNop())
	c.Add(1, 1)
	c.Add(1, 2)
	sum := 0
	fn := func(b building) bool { sum += int(b); return true }
	allocs := testing.AllocsPerRun(100, func() { c.ForEach(1, fn) })
	assert.Zero(t, allocs)
}

func TestSteadyState_AddRemoveReusesArena(t *testing.T) {
	// GIVEN a collection warmed to its working size
	c := New[entityID, building]("modifiers", 64, zap.NewNop())
	for i := 0; i < 32; i++ {
		c.Add(entityID(i), building(i))
	}
	churn := func() {
		for i := 0; i < 32; i++ {
			c.Remove(entityID(i), building(i))
			c.Add(entityID(i), building(i))
		}
	}
	churn()

	// THEN churn through freed nodes allocates nothing
	assert.Zero(t, testing.AllocsPerRun(50, churn))
	assert.Equal(t, 32, c.Len())
}

func TestCapacityUsage_ScenarioEstimate100(t *testing.T) {
	// GIVEN an estimate of 100
	log, logs := newObserved(t)
	c := New[entityID, building]("buildings", 100, log)

	// WHEN 100 pairs are inserted
	for i := 0; i < 100; i++ {
		c.Add(entityID(i/5), building(i%5))
	}

	// THEN usage is 1.0 and each threshold warning was logged exactly once
	assert.InDelta(t, 1.0, c.CapacityUsage(), 1e-9)
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len(), "95%% warning")
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len(), "80%% warning")
}

func TestCapacityUsage_OverflowGrowsInsteadOfFailing(t *testing.T) {
	c := New[entityID, building]("buildings", 10, zap.NewNop())
	for i := 0; i < 25; i++ {
		c.Add(1, building(i))
	}
	assert.Equal(t, 25, c.Len())
	assert.InDelta(t, 2.5, c.CapacityUsage(), 1e-9)
}

func TestPressure_ReArmsAfterDroppingBelowThreshold(t *testing.T) {
	log, logs := newObserved(t)
	c := New[entityID, building]("buildings", 10, log)
	for i := 0; i < 8; i++ {
		c.Add(1, building(i))
	}
	require.Equal(t, 1, logs.Len())
	c.RemoveAll(1)
	for i := 0; i < 8; i++ {
		c.Add(1, building(i))
	}
	assert.Equal(t, 2, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestAppendKeys_Sorted(t *testing.T) {
	c := New[entityID, building]("buildings", 10, zap.NewNop())
	for _, k := range []entityID{9, 3, 7, 1} {
		c.Add(k, 0)
	}
	assert.Equal(t, []entityID{1, 3, 7, 9}, c.AppendKeys(nil))
}

func TestClear(t *testing.T) {
	c := New[entityID, building]("buildings", 10, zap.NewNop())
	c.Add(1, 1)
	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.False(t, c.HasAny(1))
	c.Add(2, 2)
	assert.Equal(t, []building{2}, c.Get(2, nil))
}

// Defining many more attribute kinds must not change per-entity storage:
// storage follows attached pairs only.
func TestGrowthIndependence_KindsDoNotCostStorage(t *testing.T) {
	const entities, perEntity = 2000, 5
	build := func(kinds int) (int64, int) {
		runtime.GC()
		var before runtime.MemStats
		runtime.ReadMemStats(&before)

		c := New[entityID, building]("buildings", entities*perEntity, zap.NewNop())
		for e := 0; e < entities; e++ {
			for j := 0; j < perEntity; j++ {
				c.Add(entityID(e), building((e*7+j)%kinds))
			}
		}

		runtime.GC()
		var after runtime.MemStats
		runtime.ReadMemStats(&after)
		runtime.KeepAlive(c)
		// signed: a collection between the two reads can shrink the heap
		return int64(after.HeapAlloc) - int64(before.HeapAlloc), c.Len()
	}
	few, fewPairs := build(30)
	many, manyPairs := build(500)
	require.Equal(t, entities*perEntity, fewPairs)
	require.Equal(t, fewPairs, manyPairs)

	// identical pair counts; allow GC noise of 10% with a 64 KiB floor
	tolerance := max(few/10, 64<<10)
	assert.InDelta(t, float64(few), float64(many), float64(tolerance))
}
