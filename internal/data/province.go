package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/archon/statecore/internal/core/ecs"
	"github.com/archon/statecore/internal/core/state"
)

// ProvinceEntry is one row of provinces.yaml. Owner and controller are
// country tags; an empty controller means the owner controls it.
type ProvinceEntry struct {
	ID          ecs.EntityID `yaml:"id"`
	Name        string       `yaml:"name"`
	Owner       string       `yaml:"owner"`
	Controller  string       `yaml:"controller"`
	Terrain     string       `yaml:"terrain"`
	Development uint16       `yaml:"development"`
	Flags       []string     `yaml:"flags"`
	Buildings   []string     `yaml:"buildings"`
}

// ProvinceSeed is a resolved province ready for registration.
type ProvinceSeed struct {
	ID        ecs.EntityID
	Name      string
	Record    state.HotRecord
	Buildings []KindID
}

var flagNames = map[string]uint8{
	"coastal":    state.FlagCoastal,
	"capital":    state.FlagCapital,
	"occupied":   state.FlagOccupied,
	"impassable": state.FlagImpassable,
	"unrest":     state.FlagUnrest,
}

// LoadProvinceSeeds loads provinces.yaml and resolves every symbolic field.
func LoadProvinceSeeds(path string, terrain *TerrainTable, countries *CountryTable, kinds *KindTable) ([]ProvinceSeed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read province list: %w", err)
	}
	var entries []ProvinceEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse province list: %w", err)
	}
	seeds := make([]ProvinceSeed, 0, len(entries))
	seen := make(map[ecs.EntityID]struct{}, len(entries))
	for i := range entries {
		e := &entries[i]
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("province list: duplicate id %d", e.ID)
		}
		seen[e.ID] = struct{}{}
		seed, err := resolveProvince(e, terrain, countries, kinds)
		if err != nil {
			return nil, fmt.Errorf("province %d (%s): %w", e.ID, e.Name, err)
		}
		seeds = append(seeds, seed)
	}
	return seeds, nil
}

func resolveProvince(e *ProvinceEntry, terrain *TerrainTable, countries *CountryTable, kinds *KindTable) (ProvinceSeed, error) {
	owner, ok := countries.Resolve(e.Owner)
	if !ok {
		return ProvinceSeed{}, fmt.Errorf("unknown owner tag %q", e.Owner)
	}
	controller := owner
	if e.Controller != "" {
		if controller, ok = countries.Resolve(e.Controller); !ok {
			return ProvinceSeed{}, fmt.Errorf("unknown controller tag %q", e.Controller)
		}
	}
	tid := ecs.TerrainOcean
	if e.Terrain != "" {
		t := terrain.ByName(e.Terrain)
		if t == nil {
			return ProvinceSeed{}, fmt.Errorf("unknown terrain %q", e.Terrain)
		}
		tid = t.ID
	}
	var flags uint8
	for _, name := range e.Flags {
		bit, ok := flagNames[name]
		if !ok {
			return ProvinceSeed{}, fmt.Errorf("unknown flag %q", name)
		}
		flags |= bit
	}
	if owner != controller {
		flags |= state.FlagOccupied
	}
	var buildings []KindID
	for _, name := range e.Buildings {
		k := kinds.Building(name)
		if k == nil {
			return ProvinceSeed{}, fmt.Errorf("unknown building %q", name)
		}
		buildings = append(buildings, k.ID)
	}
	return ProvinceSeed{
		ID:   e.ID,
		Name: e.Name,
		Record: state.HotRecord{
			Owner:       owner,
			Controller:  controller,
			Terrain:     tid,
			Flags:       flags,
			Development: e.Development,
		},
		Buildings: buildings,
	}, nil
}
