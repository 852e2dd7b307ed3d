package state

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"

	"github.com/archon/statecore/internal/core/ecs"
	"github.com/archon/statecore/internal/core/snapshot"
)

// View is the reader's handle on the last completed cycle. Any number of
// goroutines may use a View concurrently with the simulation loop's writes,
// as long as nobody holds it across a Swap. Fetch a fresh one per frame.
type View struct {
	ids *ecs.IndexMap
	r   snapshot.ReadOnly[HotRecord]
}

// Get never faults: IDs unknown to the last completed cycle read as
// DefaultRecord. An entity removed during the current cycle still reads as
// its last published record.
func (v View) Get(id ecs.EntityID) HotRecord {
	idx, ok := v.ids.PublishedIndex(id)
	if !ok || idx >= v.r.Len() {
		return DefaultRecord
	}
	return v.r.At(idx)
}

// Has reports membership as of the last completed cycle.
func (v View) Has(id ecs.EntityID) bool { return v.ids.PublishedHas(id) }

// Len is the number of dense slots ever used.
func (v View) Len() int { return v.ids.HighWater() }

// Checksum hashes the dense prefix of the read buffer. Two runs fed the same
// inputs produce the same sum after the same number of cycles.
func (v View) Checksum() [blake2b.Size256]byte {
	h, _ := blake2b.New256(nil)
	var scratch [RecordSize]byte
	v.r.Range(0, v.Len(), func(_ int, rec HotRecord) bool {
		h.Write(rec.AppendBinary(scratch[:0]))
		return true
	})
	var sum [blake2b.Size256]byte
	h.Sum(sum[:0])
	return sum
}

// Checksum hashes the active IDs and their current-cycle records in dense
// order.
func (s *Store) Checksum() [blake2b.Size256]byte {
	h, _ := blake2b.New256(nil)
	var scratch [2 + RecordSize]byte
	w := s.buf.Write()
	for _, id := range s.ids.Active() {
		idx, _ := s.ids.Index(id)
		b := binary.LittleEndian.AppendUint16(scratch[:0], uint16(id))
		h.Write(w[idx].AppendBinary(b))
	}
	var sum [blake2b.Size256]byte
	h.Sum(sum[:0])
	return sum
}
