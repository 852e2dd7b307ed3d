package history

import "github.com/archon/statecore/internal/core/fixed"

// Kind tags what happened. Values at or above MaxKinds are recorded as
// KindOther.
type Kind uint8

const (
	KindOwnership Kind = iota
	KindController
	KindDevelopment
	KindTerrain
	KindFlags
	KindBuilding
	KindModifier
	KindScripted
	KindOther Kind = MaxKinds - 1
)

const MaxKinds = 16

var kindNames = [MaxKinds]string{
	KindOwnership:   "ownership",
	KindController:  "controller",
	KindDevelopment: "development",
	KindTerrain:     "terrain",
	KindFlags:       "flags",
	KindBuilding:    "building",
	KindModifier:    "modifier",
	KindScripted:    "scripted",
	KindOther:       "other",
}

func (k Kind) String() string {
	if int(k) < MaxKinds && kindNames[k] != "" {
		return kindNames[k]
	}
	return "other"
}

// Record is one full-detail event in the Recent tier.
type Record struct {
	Year      int32
	Kind      Kind
	Actor     uint16
	Before    int32
	After     int32
	Magnitude fixed.Fixed
}

// Compressed is what a Record becomes in the Medium tier: the outcome only.
type Compressed struct {
	Year   int32
	Kind   Kind
	Result int32
}

func compress(r Record) Compressed {
	return Compressed{Year: r.Year, Kind: r.Kind, Result: r.After}
}

// LongTerm is pure statistics over every record folded out of Medium.
type LongTerm struct {
	Count     uint64
	ByKind    [MaxKinds]uint32
	AvgResult fixed.Fixed
	FirstYear int32
	LastYear  int32
}

// Tier is how far an entity's history has aged. It only moves forward.
type Tier uint8

const (
	TierEmpty Tier = iota
	TierRecent
	TierMedium
	TierLongTerm
)

func (t Tier) String() string {
	switch t {
	case TierEmpty:
		return "empty"
	case TierRecent:
		return "recent"
	case TierMedium:
		return "recent+medium"
	case TierLongTerm:
		return "recent+medium+longterm"
	}
	return "unknown"
}

// Summary aggregates all three tiers.
type Summary struct {
	Tier Tier

	Total  uint64
	Recent int
	Medium int
	ByKind [MaxKinds]uint64

	// AvgMagnitude covers every record ever evicted from Recent.
	AvgMagnitude fixed.Fixed
	LongTerm     LongTerm

	FirstYear int32
	LastYear  int32
}
