package data

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archon/statecore/internal/core/ecs"
	"github.com/archon/statecore/internal/core/state"
)

const terrainYAML = `
- {id: 0, name: ocean, water: true, color: [20, 60, 140]}
- {id: 1, name: inland_ocean, water: true}
- {id: 2, name: grasslands, movement_cost: 1}
- {id: 3, name: hills, movement_cost: 2}
- {id: 4, name: mountain, movement_cost: 3}
`

const countryYAML = `
- {id: 1, tag: FRA, name: France, color: [20, 50, 210]}
- {id: 2, tag: ENG, name: England}
- {id: 3, tag: CAS, name: Castile}
`

const kindYAML = `
buildings:
  - {id: 1, name: temple, cost: 100}
  - {id: 2, name: marketplace, cost: 100}
modifiers:
  - {id: 100, name: plague, cost: 5}
`

const provinceYAML = `
- id: 7
  name: Paris
  owner: FRA
  terrain: grasslands
  development: 30
  flags: [capital]
  buildings: [temple, marketplace]
- id: 8
  name: Calais
  owner: FRA
  controller: ENG
  terrain: grasslands
  development: 9
  flags: [coastal]
- id: 1200
  name: North Sea
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func loadTables(t *testing.T) (*TerrainTable, *CountryTable, *KindTable) {
	t.Helper()
	terrain, err := LoadTerrainTable(writeFile(t, "terrain.yaml", terrainYAML))
	require.NoError(t, err)
	countries, err := LoadCountryTable(writeFile(t, "countries.yaml", countryYAML))
	require.NoError(t, err)
	kinds, err := LoadKindTable(writeFile(t, "attributes.yaml", kindYAML))
	require.NoError(t, err)
	return terrain, countries, kinds
}

func TestTerrainTable(t *testing.T) {
	terrain, _, _ := loadTables(t)
	assert.Equal(t, 5, terrain.Count())
	assert.True(t, terrain.IsWater(ecs.TerrainOcean))
	assert.True(t, terrain.IsWater(1))
	assert.False(t, terrain.IsWater(3))
	assert.False(t, terrain.IsWater(99), "unknown terrain is land")
	require.NotNil(t, terrain.ByName("hills"))
	assert.Equal(t, ecs.TerrainID(3), terrain.ByName("hills").ID)
	assert.Equal(t, [3]uint8{20, 60, 140}, terrain.Get(0).Color)
}

func TestTerrainTable_OceanMustBeWater(t *testing.T) {
	_, err := LoadTerrainTable(writeFile(t, "terrain.yaml", `- {id: 0, name: ocean}`))
	assert.Error(t, err)
}

func TestTerrainTable_Duplicates(t *testing.T) {
	_, err := LoadTerrainTable(writeFile(t, "terrain.yaml", `
- {id: 2, name: hills}
- {id: 2, name: plains}
`))
	assert.ErrorContains(t, err, "duplicate id")
}

func TestCountryTable(t *testing.T) {
	_, countries, _ := loadTables(t)
	id, ok := countries.Resolve("ENG")
	require.True(t, ok)
	assert.Equal(t, ecs.OwnerID(2), id)

	id, ok = countries.Resolve("")
	assert.True(t, ok)
	assert.Equal(t, ecs.Unowned, id)

	_, ok = countries.Resolve("XXX")
	assert.False(t, ok)

	assert.Equal(t, "CAS", countries.Tag(3))
	assert.Equal(t, "---", countries.Tag(ecs.Unowned))
}

func TestCountryTable_Rejects(t *testing.T) {
	for name, body := range map[string]string{
		"reserved id":   `- {id: 0, tag: FRA}`,
		"short tag":     `- {id: 1, tag: FR}`,
		"duplicate tag": "- {id: 1, tag: FRA}\n- {id: 2, tag: FRA}",
		"duplicate id":  "- {id: 1, tag: FRA}\n- {id: 1, tag: ENG}",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadCountryTable(writeFile(t, "countries.yaml", body))
			assert.Error(t, err)
		})
	}
}

func TestKindTable(t *testing.T) {
	_, _, kinds := loadTables(t)
	assert.Equal(t, 3, kinds.Count())
	require.NotNil(t, kinds.Building("temple"))
	assert.Nil(t, kinds.Building("plague"), "modifiers are not buildings")
	require.NotNil(t, kinds.Modifier("plague"))
	assert.Equal(t, 5, kinds.Get(100).Cost)
}

func TestKindTable_SharedIDSpace(t *testing.T) {
	_, err := LoadKindTable(writeFile(t, "attributes.yaml", `
buildings:
  - {id: 1, name: temple}
modifiers:
  - {id: 1, name: plague}
`))
	assert.ErrorContains(t, err, "duplicate id")
}

func TestLoadProvinceSeeds(t *testing.T) {
	terrain, countries, kinds := loadTables(t)
	seeds, err := LoadProvinceSeeds(writeFile(t, "provinces.yaml", provinceYAML), terrain, countries, kinds)
	require.NoError(t, err)
	require.Len(t, seeds, 3)

	paris := seeds[0]
	assert.Equal(t, ecs.EntityID(7), paris.ID)
	assert.Equal(t, ecs.OwnerID(1), paris.Record.Owner)
	assert.Equal(t, ecs.OwnerID(1), paris.Record.Controller, "controller defaults to owner")
	assert.Equal(t, ecs.TerrainID(2), paris.Record.Terrain)
	assert.Equal(t, uint16(30), paris.Record.Development)
	assert.True(t, paris.Record.Has(state.FlagCapital))
	assert.False(t, paris.Record.Occupied())
	assert.Equal(t, []KindID{1, 2}, paris.Buildings)

	calais := seeds[1]
	assert.Equal(t, ecs.OwnerID(2), calais.Record.Controller)
	assert.True(t, calais.Record.Occupied(), "foreign controller implies occupation")
	assert.True(t, calais.Record.Has(state.FlagCoastal))

	sea := seeds[2]
	assert.Equal(t, ecs.Unowned, sea.Record.Owner)
	assert.Equal(t, ecs.TerrainOcean, sea.Record.Terrain)
}

func TestLoadProvinceSeeds_Rejects(t *testing.T) {
	terrain, countries, kinds := loadTables(t)
	for name, body := range map[string]string{
		"unknown owner":    `- {id: 1, owner: XXX}`,
		"unknown terrain":  `- {id: 1, terrain: swamp}`,
		"unknown flag":     `- {id: 1, flags: [haunted]}`,
		"unknown building": `- {id: 1, buildings: [castle]}`,
		"duplicate id":     "- {id: 1}\n- {id: 1}",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadProvinceSeeds(writeFile(t, "provinces.yaml", body), terrain, countries, kinds)
			assert.Error(t, err)
		})
	}
}
