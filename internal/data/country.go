package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/archon/statecore/internal/core/ecs"
)

// CountryEntry maps a three-letter tag to the numeric owner ID used in hot
// records.
type CountryEntry struct {
	ID    ecs.OwnerID `yaml:"id"`
	Tag   string      `yaml:"tag"`
	Name  string      `yaml:"name"`
	Color [3]uint8    `yaml:"color"`
}

type CountryTable struct {
	byTag map[string]*CountryEntry
	byID  map[ecs.OwnerID]*CountryEntry
}

// LoadCountryTable loads countries.yaml. ID 0 is reserved for "unowned".
func LoadCountryTable(path string) (*CountryTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read country list: %w", err)
	}
	var entries []CountryEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse country list: %w", err)
	}
	t := &CountryTable{
		byTag: make(map[string]*CountryEntry, len(entries)),
		byID:  make(map[ecs.OwnerID]*CountryEntry, len(entries)),
	}
	for i := range entries {
		e := &entries[i]
		if e.ID == ecs.Unowned {
			return nil, fmt.Errorf("country list: %s uses reserved id 0", e.Tag)
		}
		if len(e.Tag) != 3 {
			return nil, fmt.Errorf("country list: tag %q must be three characters", e.Tag)
		}
		if _, dup := t.byTag[e.Tag]; dup {
			return nil, fmt.Errorf("country list: duplicate tag %s", e.Tag)
		}
		if _, dup := t.byID[e.ID]; dup {
			return nil, fmt.Errorf("country list: duplicate id %d", e.ID)
		}
		t.byTag[e.Tag] = e
		t.byID[e.ID] = e
	}
	return t, nil
}

// Resolve returns the owner ID for a tag. The empty tag is Unowned.
func (t *CountryTable) Resolve(tag string) (ecs.OwnerID, bool) {
	if tag == "" {
		return ecs.Unowned, true
	}
	e, ok := t.byTag[tag]
	if !ok {
		return ecs.Unowned, false
	}
	return e.ID, true
}

// Get returns the country with the given ID, or nil.
func (t *CountryTable) Get(id ecs.OwnerID) *CountryEntry {
	return t.byID[id]
}

// Tag returns the tag for id, or "---" for unowned/unknown.
func (t *CountryTable) Tag(id ecs.OwnerID) string {
	if e := t.byID[id]; e != nil {
		return e.Tag
	}
	return "---"
}

func (t *CountryTable) Count() int {
	return len(t.byID)
}
