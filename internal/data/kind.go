package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// KindID identifies an attribute kind (a building type, a modifier type).
// Only attached kinds cost per-entity storage; the table of definitions can
// grow freely with content.
type KindID uint16

type KindEntry struct {
	ID   KindID `yaml:"id"`
	Name string `yaml:"name"`
	Cost int    `yaml:"cost"`
}

type kindFile struct {
	Buildings []KindEntry `yaml:"buildings"`
	Modifiers []KindEntry `yaml:"modifiers"`
}

type KindTable struct {
	buildings map[string]*KindEntry
	modifiers map[string]*KindEntry
	byID      map[KindID]*KindEntry
}

// LoadKindTable loads attributes.yaml. Building and modifier IDs share one
// space so a KindID is unambiguous.
func LoadKindTable(path string) (*KindTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read attribute kinds: %w", err)
	}
	var f kindFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse attribute kinds: %w", err)
	}
	t := &KindTable{
		buildings: make(map[string]*KindEntry, len(f.Buildings)),
		modifiers: make(map[string]*KindEntry, len(f.Modifiers)),
		byID:      make(map[KindID]*KindEntry, len(f.Buildings)+len(f.Modifiers)),
	}
	if err := t.add(f.Buildings, t.buildings); err != nil {
		return nil, err
	}
	if err := t.add(f.Modifiers, t.modifiers); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *KindTable) add(entries []KindEntry, into map[string]*KindEntry) error {
	for i := range entries {
		e := &entries[i]
		if _, dup := t.byID[e.ID]; dup {
			return fmt.Errorf("attribute kinds: duplicate id %d", e.ID)
		}
		if _, dup := into[e.Name]; dup {
			return fmt.Errorf("attribute kinds: duplicate name %q", e.Name)
		}
		t.byID[e.ID] = e
		into[e.Name] = e
	}
	return nil
}

// Building returns the building kind with the given name, or nil.
func (t *KindTable) Building(name string) *KindEntry { return t.buildings[name] }

// Modifier returns the modifier kind with the given name, or nil.
func (t *KindTable) Modifier(name string) *KindEntry { return t.modifiers[name] }

// Get returns the kind with the given ID, or nil.
func (t *KindTable) Get(id KindID) *KindEntry { return t.byID[id] }

func (t *KindTable) Count() int { return len(t.byID) }
