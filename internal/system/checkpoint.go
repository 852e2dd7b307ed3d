package system

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/archon/statecore/internal/config"
	"github.com/archon/statecore/internal/core/ecs"
	"github.com/archon/statecore/internal/core/state"
	coresys "github.com/archon/statecore/internal/core/system"
	"github.com/archon/statecore/internal/data"
	"github.com/archon/statecore/internal/persist"
	"github.com/archon/statecore/internal/world"
)

// CheckpointSystem periodically hands a full snapshot of the completed cycle
// to a checkpoint sink. Phase 4 (Persist), before the swap, so the write
// buffer already holds exactly the state readers get after it.
//
// Checkpoint.Cycle counts completed cycles, whether the save happens in the
// Persist phase or at shutdown, so the same number always names the same
// state. A checkpoint left by an earlier run becomes a baseline: when this
// run completes the same cycle the checksums are compared.
type CheckpointSystem struct {
	world     *world.State
	sink      persist.CheckpointSink
	log       *zap.Logger
	tickCount int
	interval  int // checkpoint every N cycles
	timeout   time.Duration
	keep      int
	saved     int
	lastSaved uint64
	hasSaved  bool

	baseline        []byte
	baselineCycle   uint64
	baselinePending bool
	verified        bool
	matched         bool
}

func NewCheckpointSystem(ws *world.State, sink persist.CheckpointSink, log *zap.Logger, cfg config.CheckpointConfig) *CheckpointSystem {
	return &CheckpointSystem{
		world:    ws,
		sink:     sink,
		log:      log,
		interval: cfg.IntervalCycles,
		timeout:  cfg.Timeout,
		keep:     cfg.Keep,
	}
}

func (s *CheckpointSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *CheckpointSystem) Update(_ time.Duration) {
	completed := s.world.Cycle() + 1
	if s.baselinePending && completed == s.baselineCycle {
		s.verify()
	}
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	s.save(completed)
}

// SaveNow writes a checkpoint of the last completed cycle. Called on
// shutdown; a cycle that was already saved is not written twice.
func (s *CheckpointSystem) SaveNow() {
	s.save(s.world.Cycle())
}

func (s *CheckpointSystem) save(completed uint64) {
	if s.hasSaved && s.lastSaved == completed {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	cp := BuildCheckpoint(s.world, completed)
	id, err := s.sink.SaveCheckpoint(ctx, cp)
	if err != nil {
		s.log.Error("checkpoint failed", zap.Uint64("cycle", cp.Cycle), zap.Error(err))
		return
	}
	s.saved++
	s.lastSaved, s.hasSaved = completed, true
	s.log.Info("checkpoint saved",
		zap.Int64("id", id),
		zap.Uint64("cycle", cp.Cycle),
		zap.Int("entities", len(cp.Entities)),
		zap.Int("attributes", len(cp.Attributes)),
		zap.Int("histories", len(cp.History)))

	if s.keep <= 0 {
		return
	}
	pruned, err := s.sink.Prune(ctx, s.keep)
	if err != nil {
		s.log.Error("checkpoint prune failed", zap.Int("keep", s.keep), zap.Error(err))
		return
	}
	if pruned > 0 {
		s.log.Debug("checkpoints pruned", zap.Int64("pruned", pruned), zap.Int("keep", s.keep))
	}
}

// LoadBaseline fetches the newest stored checkpoint so this run can be
// checked against it. A baseline at cycle 0 is compared with the seeded
// state right away.
func (s *CheckpointSystem) LoadBaseline(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sum, cycle, err := s.sink.LatestChecksum(ctx)
	if errors.Is(err, persist.ErrNoCheckpoint) {
		s.log.Info("no stored checkpoint, nothing to verify against")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load checkpoint baseline: %w", err)
	}
	s.baseline, s.baselineCycle, s.baselinePending = sum, cycle, true
	s.log.Info("checkpoint baseline loaded", zap.Uint64("cycle", cycle))
	if cycle == s.world.Cycle() {
		s.verify()
	}
	return nil
}

func (s *CheckpointSystem) verify() {
	sum := s.world.Store().Checksum()
	s.baselinePending = false
	s.verified = true
	s.matched = bytes.Equal(sum[:], s.baseline)
	if s.matched {
		s.log.Info("state matches stored checkpoint", zap.Uint64("cycle", s.baselineCycle))
		return
	}
	s.log.Warn("state diverged from stored checkpoint",
		zap.Uint64("cycle", s.baselineCycle),
		zap.String("stored", hex.EncodeToString(s.baseline)),
		zap.String("current", hex.EncodeToString(sum[:])))
}

// Verified reports whether the baseline cycle was reached and, if so,
// whether this run reproduced it.
func (s *CheckpointSystem) Verified() (checked, matched bool) { return s.verified, s.matched }

// Saved is the number of successful checkpoints.
func (s *CheckpointSystem) Saved() int { return s.saved }

// BuildCheckpoint snapshots the write buffer as the state after completed
// cycles. Row order is deterministic: entities in dense order, attributes by
// collection name then entity ID, history by entity ID.
func BuildCheckpoint(ws *world.State, completed uint64) *persist.Checkpoint {
	store := ws.Store()
	sum := store.Checksum()
	year := ws.YearAt(0)
	if completed > 0 {
		year = ws.YearAt(completed - 1)
	}
	cp := &persist.Checkpoint{
		Cycle:    completed,
		Year:     year,
		Checksum: sum[:],
		Entities: make([]persist.EntityRow, 0, store.Len()),
	}
	store.Each(func(id ecs.EntityID, r state.HotRecord) bool {
		cp.Entities = append(cp.Entities, persist.EntityRow{
			Entity:      uint16(id),
			Owner:       uint16(r.Owner),
			Controller:  uint16(r.Controller),
			Terrain:     uint8(r.Terrain),
			Flags:       r.Flags,
			Development: r.Development,
		})
		return true
	})

	var keys []ecs.EntityID
	for _, u := range ws.Sparse().Usage() {
		if kc, ok := ws.KindCollection(u.Name); ok {
			keys = kc.AppendKeys(keys[:0])
			for _, id := range keys {
				kc.ForEach(id, func(v data.KindID) bool {
					cp.Attributes = append(cp.Attributes, persist.AttributeRow{Collection: u.Name, Entity: uint16(id), Value: uint16(v)})
					return true
				})
			}
			continue
		}
		if u.Name == world.Claims {
			claims := ws.Claims()
			keys = claims.AppendKeys(keys[:0])
			for _, id := range keys {
				claims.ForEach(id, func(o ecs.OwnerID) bool {
					cp.Attributes = append(cp.Attributes, persist.AttributeRow{Collection: u.Name, Entity: uint16(id), Value: uint16(o)})
					return true
				})
			}
		}
	}

	hist := ws.History()
	keys = hist.AppendIDs(keys[:0])
	cp.History = make([]persist.HistoryRow, 0, len(keys))
	for _, id := range keys {
		sm := hist.Summary(id)
		cp.History = append(cp.History, persist.HistoryRow{
			Entity:       uint16(id),
			Tier:         uint8(sm.Tier),
			Total:        sm.Total,
			FirstYear:    sm.FirstYear,
			LastYear:     sm.LastYear,
			AvgMagnitude: int64(sm.AvgMagnitude),
		})
	}
	return cp
}
