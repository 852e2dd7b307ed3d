// Package history keeps a bounded, tiered record of what happened to each
// entity. Recent events are kept in full; as they age they are compressed,
// then reduced to statistics, so an entity simulated for four centuries uses
// the same memory as one simulated for four years.
package history

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/archon/statecore/internal/core/ecs"
	"github.com/archon/statecore/internal/core/fixed"
)

type Config struct {
	RecentCap int
	MediumCap int
}

func (c Config) Validate() error {
	if c.RecentCap < 1 {
		return fmt.Errorf("history recent_cap must be >= 1, got %d", c.RecentCap)
	}
	if c.MediumCap < 1 {
		return fmt.Errorf("history medium_cap must be >= 1, got %d", c.MediumCap)
	}
	return nil
}

type entityHistory struct {
	tier      Tier
	firstYear int32
	lastYear  int32

	recent      []Record // ring, len == RecentCap
	recentHead  int      // next write slot
	recentCount int

	medium      []Compressed // ring, len == MediumCap
	mediumHead  int          // oldest
	mediumCount int
	mediumKinds [MaxKinds]uint32
	evicted     uint64
	avgMag      fixed.Fixed

	long LongTerm
}

// Store owns every entity's history. Single-writer: record from the
// simulation loop (typically from event subscribers); readers on other
// goroutines need their own synchronization.
type Store struct {
	cfg      Config
	entities map[ecs.EntityID]*entityHistory
	pool     []*entityHistory
	log      *zap.Logger
}

func New(cfg Config, log *zap.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		cfg:      cfg,
		entities: make(map[ecs.EntityID]*entityHistory, 1024),
		log:      log,
	}, nil
}

func (s *Store) Config() Config { return s.cfg }

// Len is the number of entities with any history.
func (s *Store) Len() int { return len(s.entities) }

// RecordEvent appends rec to id's Recent tier, aging older records as needed.
func (s *Store) RecordEvent(id ecs.EntityID, rec Record) {
	if int(rec.Kind) >= MaxKinds {
		s.log.Debug("history kind out of range", zap.Uint8("kind", uint8(rec.Kind)))
		rec.Kind = KindOther
	}
	h := s.entities[id]
	if h == nil {
		h = s.acquire()
		h.firstYear = rec.Year
		h.tier = TierRecent
		s.entities[id] = h
	}
	h.lastYear = rec.Year

	if h.recentCount == len(h.recent) {
		s.evict(h, h.recent[h.recentHead])
	} else {
		h.recentCount++
	}
	h.recent[h.recentHead] = rec
	h.recentHead = (h.recentHead + 1) % len(h.recent)
}

// evict folds the oldest Recent record into Medium.
func (s *Store) evict(h *entityHistory, old Record) {
	h.evicted++
	h.avgMag = fixed.RunningMean(h.avgMag, old.Magnitude, h.evicted)
	if h.tier < TierMedium {
		h.tier = TierMedium
	}

	if h.mediumCount == len(h.medium) {
		s.fold(h, h.medium[h.mediumHead])
		h.mediumHead = (h.mediumHead + 1) % len(h.medium)
		h.mediumCount--
	}
	tail := (h.mediumHead + h.mediumCount) % len(h.medium)
	h.medium[tail] = compress(old)
	h.mediumCount++
	h.mediumKinds[old.Kind]++
}

// fold reduces the oldest Medium record to Long-term statistics.
func (s *Store) fold(h *entityHistory, c Compressed) {
	h.mediumKinds[c.Kind]--
	lt := &h.long
	lt.Count++
	lt.ByKind[c.Kind]++
	lt.AvgResult = fixed.RunningMean(lt.AvgResult, fixed.FromInt64(int64(c.Result)), lt.Count)
	if lt.Count == 1 {
		lt.FirstYear = c.Year
	}
	lt.LastYear = c.Year
	h.tier = TierLongTerm
}

// GetRecent appends up to max full-detail records for id to dst, newest
// first.
func (s *Store) GetRecent(id ecs.EntityID, max int, dst []Record) []Record {
	h := s.entities[id]
	if h == nil {
		return dst
	}
	n := min(max, h.recentCount)
	size := len(h.recent)
	for i := 1; i <= n; i++ {
		dst = append(dst, h.recent[(h.recentHead-i+size)%size])
	}
	return dst
}

// AppendMedium appends id's compressed records to dst, oldest first.
func (s *Store) AppendMedium(id ecs.EntityID, dst []Compressed) []Compressed {
	h := s.entities[id]
	if h == nil {
		return dst
	}
	for i := 0; i < h.mediumCount; i++ {
		dst = append(dst, h.medium[(h.mediumHead+i)%len(h.medium)])
	}
	return dst
}

// Tier reports how far id's history has aged.
func (s *Store) Tier(id ecs.EntityID) Tier {
	if h := s.entities[id]; h != nil {
		return h.tier
	}
	return TierEmpty
}

// Summary combines all tiers. Cost is bounded by RecentCap.
func (s *Store) Summary(id ecs.EntityID) Summary {
	h := s.entities[id]
	if h == nil {
		return Summary{}
	}
	sum := Summary{
		Tier:         h.tier,
		Recent:       h.recentCount,
		Medium:       h.mediumCount,
		AvgMagnitude: h.avgMag,
		LongTerm:     h.long,
		FirstYear:    h.firstYear,
		LastYear:     h.lastYear,
	}
	sum.Total = uint64(h.recentCount) + uint64(h.mediumCount) + h.long.Count
	for i := 0; i < h.recentCount; i++ {
		sum.ByKind[h.recent[i].Kind]++
	}
	for k := 0; k < MaxKinds; k++ {
		sum.ByKind[k] += uint64(h.mediumKinds[k]) + uint64(h.long.ByKind[k])
	}
	return sum
}

// AppendIDs appends every entity with history to dst in ascending order.
func (s *Store) AppendIDs(dst []ecs.EntityID) []ecs.EntityID {
	start := len(dst)
	for id := range s.entities {
		dst = append(dst, id)
	}
	slices.Sort(dst[start:])
	return dst
}

// Remove forgets id's history; its buffers are kept for the next entity.
func (s *Store) Remove(id ecs.EntityID) {
	h := s.entities[id]
	if h == nil {
		return
	}
	delete(s.entities, id)
	s.pool = append(s.pool, h)
}

// Close drops all history.
func (s *Store) Close() {
	clear(s.entities)
	s.pool = nil
}

func (s *Store) acquire() *entityHistory {
	if n := len(s.pool); n > 0 {
		h := s.pool[n-1]
		s.pool = s.pool[:n-1]
		recent, medium := h.recent, h.medium
		clear(recent)
		clear(medium)
		*h = entityHistory{recent: recent, medium: medium}
		return h
	}
	return &entityHistory{
		recent: make([]Record, s.cfg.RecentCap),
		medium: make([]Compressed, s.cfg.MediumCap),
	}
}
