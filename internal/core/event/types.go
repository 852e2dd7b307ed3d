package event

import "github.com/archon/statecore/internal/core/ecs"

// State-change events emitted by the entity state store. All are plain
// values; none may carry pointers or slices.

type EntityRegistered struct {
	Entity ecs.EntityID
}

type EntityRemoved struct {
	Entity    ecs.EntityID
	LastOwner ecs.OwnerID
}

type OwnershipChanged struct {
	Entity      ecs.EntityID
	Old         ecs.OwnerID
	New         ecs.OwnerID
	Development uint16 // at the time of the change
}

type ControllerChanged struct {
	Entity      ecs.EntityID
	Old         ecs.OwnerID
	New         ecs.OwnerID
	Development uint16 // at the time of the change
}

type TerrainChanged struct {
	Entity ecs.EntityID
	Old    ecs.TerrainID
	New    ecs.TerrainID
}

type FlagsChanged struct {
	Entity ecs.EntityID
	Old    uint8
	New    uint8
}

type DevelopmentChanged struct {
	Entity ecs.EntityID
	Old    uint16
	New    uint16
}
