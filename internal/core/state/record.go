package state

import (
	"encoding/binary"

	"github.com/archon/statecore/internal/core/ecs"
)

// HotRecord is the per-entity state touched every cycle or every frame. It is
// exactly 8 bytes and holds no pointers, so whole buffers can be copied,
// zeroed and hashed as plain memory.
type HotRecord struct {
	Owner       ecs.OwnerID
	Controller  ecs.OwnerID
	Terrain     ecs.TerrainID
	Flags       uint8
	Development uint16
}

// RecordSize is the encoded size used by checksums and checkpoints.
const RecordSize = 8

// Flag bits.
const (
	FlagCoastal uint8 = 1 << iota
	FlagCapital
	FlagOccupied
	FlagImpassable
	FlagUnrest
)

// DefaultRecord is what reads return for unknown IDs: unowned ocean.
var DefaultRecord = HotRecord{Owner: ecs.Unowned, Controller: ecs.Unowned, Terrain: ecs.TerrainOcean}

func (r HotRecord) Has(flag uint8) bool { return r.Flags&flag != 0 }

// Occupied reports whether someone other than the owner controls the entity.
func (r HotRecord) Occupied() bool {
	return r.Owner != ecs.Unowned && r.Controller != r.Owner
}

// AppendBinary appends the little-endian encoding of r.
func (r HotRecord) AppendBinary(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, uint16(r.Owner))
	dst = binary.LittleEndian.AppendUint16(dst, uint16(r.Controller))
	dst = append(dst, byte(r.Terrain), r.Flags)
	return binary.LittleEndian.AppendUint16(dst, r.Development)
}
