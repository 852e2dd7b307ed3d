package ecs

import (
	"errors"
	"sync/atomic"
)

// EntityID is the stable, externally meaningful identifier of a simulated
// entity (a map province). It is never reused while the entity is alive.
type EntityID uint16

// MaxEntities is the size of the EntityID space.
const MaxEntities = 1 << 16

// OwnerID identifies a country. Zero is "unowned".
type OwnerID uint16

const Unowned OwnerID = 0

// TerrainID indexes the terrain category table. Zero is ocean.
type TerrainID uint8

const TerrainOcean TerrainID = 0

var (
	ErrDuplicateID      = errors.New("entity id already registered")
	ErrCapacityExceeded = errors.New("entity capacity exceeded")
)

// IndexMap translates EntityIDs to positions in a dense array and keeps the
// ordered list of active IDs. Freed dense indices go through a quarantine
// list and only become reusable after Recycle, which the owner calls once
// both buffers of a snapshot pair are known to hold zeroes there.
//
// The writer's mapping (Index, Has) changes immediately. Readers use the
// published mapping (PublishedIndex, PublishedHas), which only catches up
// on Publish, so a registration or removal stays invisible to them until
// the cycle that made it is swapped in.
//
// The Published* methods may be called from reader goroutines concurrently
// with the single writer; every other method is writer-only.
type IndexMap struct {
	slots      []atomic.Int32 // id -> dense index+1, 0 = absent
	published  []atomic.Int32 // slots as of the last Publish
	changed    []EntityID     // ids whose slot moved since the last Publish
	changedSet []uint64       // bitset over ids in changed
	activePos  []int32        // id -> position in active
	active     []EntityID
	freeList   []int32
	quarantine []int32
	nextIndex  int32
	capacity   int32
	highWater  atomic.Int32
}

// NewIndexMap sizes every internal list once; Register never allocates.
func NewIndexMap(capacity int) *IndexMap {
	if capacity > MaxEntities {
		capacity = MaxEntities
	}
	return &IndexMap{
		slots:      make([]atomic.Int32, MaxEntities),
		published:  make([]atomic.Int32, MaxEntities),
		changed:    make([]EntityID, 0, capacity),
		changedSet: make([]uint64, MaxEntities/64),
		activePos:  make([]int32, MaxEntities),
		active:     make([]EntityID, 0, capacity),
		freeList:   make([]int32, 0, capacity),
		quarantine: make([]int32, 0, capacity),
		capacity:   int32(capacity),
	}
}

// Register assigns a dense index to id.
func (m *IndexMap) Register(id EntityID) (int, error) {
	if m.slots[id].Load() != 0 {
		return 0, ErrDuplicateID
	}
	var idx int32
	if n := len(m.freeList); n > 0 {
		idx = m.freeList[n-1]
		m.freeList = m.freeList[:n-1]
	} else {
		if m.nextIndex >= m.capacity {
			return 0, ErrCapacityExceeded
		}
		idx = m.nextIndex
		m.nextIndex++
		m.highWater.Store(m.nextIndex)
	}
	m.activePos[id] = int32(len(m.active))
	m.active = append(m.active, id)
	m.slots[id].Store(idx + 1)
	m.stage(id)
	return int(idx), nil
}

// Remove drops id and returns the dense index it held. The index is
// quarantined, not immediately reusable.
func (m *IndexMap) Remove(id EntityID) (int, bool) {
	slot := m.slots[id].Load()
	if slot == 0 {
		return 0, false
	}
	idx := slot - 1
	m.slots[id].Store(0)
	m.stage(id)

	pos := m.activePos[id]
	last := len(m.active) - 1
	moved := m.active[last]
	m.active[pos] = moved
	m.activePos[moved] = pos
	m.active = m.active[:last]

	m.quarantine = append(m.quarantine, idx)
	return int(idx), true
}

// Recycle releases quarantined indices to the free list.
func (m *IndexMap) Recycle() {
	if len(m.quarantine) == 0 {
		return
	}
	m.freeList = append(m.freeList, m.quarantine...)
	m.quarantine = m.quarantine[:0]
}

// Publish makes every registration and removal since the last call visible
// to readers. Cost follows the number of ids touched.
func (m *IndexMap) Publish() {
	for _, id := range m.changed {
		m.published[id].Store(m.slots[id].Load())
		m.changedSet[id>>6] &^= 1 << (id & 63)
	}
	m.changed = m.changed[:0]
}

// Staged is the number of ids whose mapping readers have not seen yet.
func (m *IndexMap) Staged() int { return len(m.changed) }

func (m *IndexMap) stage(id EntityID) {
	word, bit := id>>6, uint64(1)<<(id&63)
	if m.changedSet[word]&bit != 0 {
		return
	}
	m.changedSet[word] |= bit
	m.changed = append(m.changed, id)
}

// Index returns the writer's dense index for id.
func (m *IndexMap) Index(id EntityID) (int, bool) {
	slot := m.slots[id].Load()
	if slot == 0 {
		return 0, false
	}
	return int(slot - 1), true
}

func (m *IndexMap) Has(id EntityID) bool { return m.slots[id].Load() != 0 }

// PublishedIndex is Index as of the last Publish. Safe for concurrent readers.
func (m *IndexMap) PublishedIndex(id EntityID) (int, bool) {
	slot := m.published[id].Load()
	if slot == 0 {
		return 0, false
	}
	return int(slot - 1), true
}

func (m *IndexMap) PublishedHas(id EntityID) bool { return m.published[id].Load() != 0 }

// Active returns the live ID list. The slice is owned by the map and is only
// valid until the next Register or Remove.
func (m *IndexMap) Active() []EntityID { return m.active }

func (m *IndexMap) Len() int      { return len(m.active) }
func (m *IndexMap) Capacity() int { return int(m.capacity) }

// HighWater is one past the largest dense index ever handed out. Safe for
// concurrent readers.
func (m *IndexMap) HighWater() int { return int(m.highWater.Load()) }
