package system

import (
	"math/bits"

	"github.com/archon/statecore/internal/core/ecs"
	"github.com/archon/statecore/internal/core/event"
	"github.com/archon/statecore/internal/core/fixed"
	"github.com/archon/statecore/internal/core/history"
	"github.com/archon/statecore/internal/world"
)

// HistoryRecorder turns state-change events into history records and keeps
// the claims collection (every owner that ever held an entity). It has no
// phase of its own: it runs inside the dispatch drain.
type HistoryRecorder struct {
	world    *world.State
	recorded uint64
}

func NewHistoryRecorder(ws *world.State) *HistoryRecorder {
	h := &HistoryRecorder{world: ws}
	bus := ws.Bus()
	event.Subscribe(bus, h.onOwnership)
	event.Subscribe(bus, h.onController)
	event.Subscribe(bus, h.onDevelopment)
	event.Subscribe(bus, h.onTerrain)
	event.Subscribe(bus, h.onFlags)
	return h
}

// Recorded is the number of history records written.
func (h *HistoryRecorder) Recorded() uint64 { return h.recorded }

func (h *HistoryRecorder) record(id ecs.EntityID, rec history.Record) {
	// Events for an entity removed later in the same cycle arrive after its
	// history was dropped.
	if !h.world.Store().Has(id) {
		return
	}
	rec.Year = h.world.Year()
	h.world.History().RecordEvent(id, rec)
	h.recorded++
}

func (h *HistoryRecorder) onOwnership(e event.OwnershipChanged) {
	h.record(e.Entity, history.Record{
		Kind:      history.KindOwnership,
		Actor:     uint16(e.New),
		Before:    int32(e.Old),
		After:     int32(e.New),
		Magnitude: fixed.FromInt(int(e.Development)),
	})
	claims := h.world.Claims()
	if e.New != ecs.Unowned && h.world.Store().Has(e.Entity) && !claims.Has(e.Entity, e.New) {
		claims.Add(e.Entity, e.New)
	}
}

func (h *HistoryRecorder) onController(e event.ControllerChanged) {
	h.record(e.Entity, history.Record{
		Kind:      history.KindController,
		Actor:     uint16(e.New),
		Before:    int32(e.Old),
		After:     int32(e.New),
		Magnitude: fixed.FromInt(int(e.Development)),
	})
}

func (h *HistoryRecorder) onDevelopment(e event.DevelopmentChanged) {
	delta := int(e.New) - int(e.Old)
	if delta < 0 {
		delta = -delta
	}
	h.record(e.Entity, history.Record{
		Kind:      history.KindDevelopment,
		Before:    int32(e.Old),
		After:     int32(e.New),
		Magnitude: fixed.FromInt(delta),
	})
}

func (h *HistoryRecorder) onTerrain(e event.TerrainChanged) {
	h.record(e.Entity, history.Record{
		Kind:      history.KindTerrain,
		Before:    int32(e.Old),
		After:     int32(e.New),
		Magnitude: fixed.One,
	})
}

func (h *HistoryRecorder) onFlags(e event.FlagsChanged) {
	h.record(e.Entity, history.Record{
		Kind:      history.KindFlags,
		Before:    int32(e.Old),
		After:     int32(e.New),
		Magnitude: fixed.FromInt(bits.OnesCount8(e.Old ^ e.New)),
	})
}
