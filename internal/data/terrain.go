package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/archon/statecore/internal/core/ecs"
)

// TerrainEntry is one terrain category. The hot record stores only the ID.
type TerrainEntry struct {
	ID           ecs.TerrainID `yaml:"id"`
	Name         string        `yaml:"name"`
	Color        [3]uint8      `yaml:"color"`
	Water        bool          `yaml:"water"`
	MovementCost int           `yaml:"movement_cost"`
}

// TerrainTable provides lookup by ID and by name.
type TerrainTable struct {
	byID   map[ecs.TerrainID]*TerrainEntry
	byName map[string]*TerrainEntry
}

// LoadTerrainTable loads terrain.yaml.
func LoadTerrainTable(path string) (*TerrainTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read terrain list: %w", err)
	}
	var entries []TerrainEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse terrain list: %w", err)
	}
	t := &TerrainTable{
		byID:   make(map[ecs.TerrainID]*TerrainEntry, len(entries)),
		byName: make(map[string]*TerrainEntry, len(entries)),
	}
	for i := range entries {
		e := &entries[i]
		if _, dup := t.byID[e.ID]; dup {
			return nil, fmt.Errorf("terrain list: duplicate id %d", e.ID)
		}
		if _, dup := t.byName[e.Name]; dup {
			return nil, fmt.Errorf("terrain list: duplicate name %q", e.Name)
		}
		t.byID[e.ID] = e
		t.byName[e.Name] = e
	}
	if ocean, ok := t.byID[ecs.TerrainOcean]; ok && !ocean.Water {
		return nil, fmt.Errorf("terrain list: id %d must be water", ecs.TerrainOcean)
	}
	return t, nil
}

// Get returns the terrain with the given ID, or nil.
func (t *TerrainTable) Get(id ecs.TerrainID) *TerrainEntry {
	return t.byID[id]
}

// ByName returns the terrain with the given name, or nil.
func (t *TerrainTable) ByName(name string) *TerrainEntry {
	return t.byName[name]
}

// IsWater reports whether id is a water terrain. Unknown IDs are land.
func (t *TerrainTable) IsWater(id ecs.TerrainID) bool {
	e := t.byID[id]
	return e != nil && e.Water
}

func (t *TerrainTable) Count() int {
	return len(t.byID)
}
