package scripting

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/archon/statecore/internal/core/ecs"
	"github.com/archon/statecore/internal/core/fixed"
	"github.com/archon/statecore/internal/core/history"
	"github.com/archon/statecore/internal/core/sparse"
	"github.com/archon/statecore/internal/data"
	"github.com/archon/statecore/internal/world"
)

// Tables are the read-only lookups scripts resolve names against.
type Tables struct {
	Countries *data.CountryTable
	Terrain   *data.TerrainTable
	Kinds     *data.KindTable
}

type kindCollection = *sparse.Collection[ecs.EntityID, data.KindID]

// Engine wraps a single gopher-lua VM running the domain logic. Scripts
// mutate the core only through the `core` table.
// Single-goroutine access only (cycle loop).
type Engine struct {
	vm     *lua.LState
	ws     *world.State
	tables Tables
	rng    *rand.Rand
	log    *zap.Logger

	ids []ecs.EntityID // scratch for core.ids
}

// NewEngine creates a VM with the core API installed. The RNG exposed to
// scripts (core.random and math.random) is seeded from seed so runs replay.
func NewEngine(ws *world.State, tables Tables, seed int64, log *zap.Logger) *Engine {
	vm := lua.NewState(lua.Options{SkipOpenLibs: false})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{
		vm:     vm,
		ws:     ws,
		tables: tables,
		rng:    rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)),
		log:    log,
		ids:    make([]ecs.EntityID, 0, 256),
	}
	core := vm.NewTable()
	vm.SetFuncs(core, e.api())
	vm.SetGlobal("core", core)

	// math.random would otherwise draw from the process-wide source.
	if m, ok := vm.GetGlobal("math").(*lua.LTable); ok {
		m.RawSetString("random", vm.NewFunction(e.luaRandom))
		m.RawSetString("randomseed", vm.NewFunction(func(*lua.LState) int { return 0 }))
	}
	return e
}

// LoadDir loads all .lua files in dir in name order. A missing dir is not an
// error: the core runs without domain logic.
func (e *Engine) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	n := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return n, fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
		n++
	}
	return n, nil
}

// DoString runs a chunk of Lua in the engine's VM.
func (e *Engine) DoString(src string) error {
	return e.vm.DoString(src)
}

// OnInit calls the optional on_init() hook once after loading.
func (e *Engine) OnInit() error {
	return e.callHook("on_init")
}

// OnCycle calls the optional on_cycle(cycle, year) hook.
func (e *Engine) OnCycle(cycle uint64, year int32) error {
	return e.callHook("on_cycle", lua.LNumber(cycle), lua.LNumber(year))
}

func (e *Engine) callHook(name string, args ...lua.LValue) error {
	fn := e.vm.GetGlobal(name)
	if fn == lua.LNil {
		return nil
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, args...); err != nil {
		return fmt.Errorf("lua %s: %w", name, err)
	}
	return nil
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}

// --- core API ---

func (e *Engine) api() map[string]lua.LGFunction {
	return map[string]lua.LGFunction{
		"ids":             e.luaIDs,
		"count":           e.luaCount,
		"has":             e.luaHas,
		"name":            e.luaName,
		"owner":           e.luaOwner,
		"controller":      e.luaController,
		"terrain":         e.luaTerrain,
		"flags":           e.luaFlags,
		"development":     e.luaDevelopment,
		"set_owner":       e.luaSetOwner,
		"set_controller":  e.luaSetController,
		"set_terrain":     e.luaSetTerrain,
		"set_flags":       e.luaSetFlags,
		"set_development": e.luaSetDevelopment,
		"country":         e.luaCountry,
		"tag":             e.luaTag,
		"is_water":        e.luaIsWater,
		"add_attr":        e.luaAddAttr,
		"remove_attr":     e.luaRemoveAttr,
		"has_attr":        e.luaHasAttr,
		"attr_count":      e.luaAttrCount,
		"claims":          e.luaClaims,
		"record":          e.luaRecord,
		"remove":          e.luaRemove,
		"year":            e.luaYear,
		"cycle":           e.luaCycle,
		"random":          e.luaRandom,
		"log":             e.luaLog,
	}
}

func checkEntity(L *lua.LState, n int) ecs.EntityID {
	v := L.CheckInt(n)
	if v < 0 || v >= ecs.MaxEntities {
		L.ArgError(n, "entity id out of range")
	}
	return ecs.EntityID(v)
}

func checkUint16(L *lua.LState, n int) uint16 {
	v := L.CheckInt(n)
	if v < 0 || v > 0xFFFF {
		L.ArgError(n, "value out of range")
	}
	return uint16(v)
}

// core.ids() -> {id, ...} in dense order
func (e *Engine) luaIDs(L *lua.LState) int {
	e.ids = e.ws.Store().AppendIDs(e.ids[:0])
	t := L.CreateTable(len(e.ids), 0)
	for _, id := range e.ids {
		t.Append(lua.LNumber(id))
	}
	L.Push(t)
	return 1
}

func (e *Engine) luaCount(L *lua.LState) int {
	L.Push(lua.LNumber(e.ws.Store().Len()))
	return 1
}

func (e *Engine) luaHas(L *lua.LState) int {
	L.Push(lua.LBool(e.ws.Store().Has(checkEntity(L, 1))))
	return 1
}

func (e *Engine) luaName(L *lua.LState) int {
	name, _ := e.ws.Names().Get(checkEntity(L, 1))
	L.Push(lua.LString(name))
	return 1
}

func (e *Engine) luaOwner(L *lua.LState) int {
	L.Push(lua.LNumber(e.ws.Store().Get(checkEntity(L, 1)).Owner))
	return 1
}

func (e *Engine) luaController(L *lua.LState) int {
	L.Push(lua.LNumber(e.ws.Store().Get(checkEntity(L, 1)).Controller))
	return 1
}

func (e *Engine) luaTerrain(L *lua.LState) int {
	L.Push(lua.LNumber(e.ws.Store().Get(checkEntity(L, 1)).Terrain))
	return 1
}

func (e *Engine) luaFlags(L *lua.LState) int {
	L.Push(lua.LNumber(e.ws.Store().Get(checkEntity(L, 1)).Flags))
	return 1
}

func (e *Engine) luaDevelopment(L *lua.LState) int {
	L.Push(lua.LNumber(e.ws.Store().Get(checkEntity(L, 1)).Development))
	return 1
}

// core.set_owner(id, owner) -> changed
func (e *Engine) luaSetOwner(L *lua.LState) int {
	L.Push(lua.LBool(e.ws.Store().SetOwner(checkEntity(L, 1), ecs.OwnerID(checkUint16(L, 2)))))
	return 1
}

func (e *Engine) luaSetController(L *lua.LState) int {
	L.Push(lua.LBool(e.ws.Store().SetController(checkEntity(L, 1), ecs.OwnerID(checkUint16(L, 2)))))
	return 1
}

func (e *Engine) luaSetTerrain(L *lua.LState) int {
	v := L.CheckInt(2)
	if v < 0 || v > 0xFF {
		L.ArgError(2, "terrain out of range")
	}
	L.Push(lua.LBool(e.ws.Store().SetTerrain(checkEntity(L, 1), ecs.TerrainID(v))))
	return 1
}

func (e *Engine) luaSetFlags(L *lua.LState) int {
	v := L.CheckInt(2)
	if v < 0 || v > 0xFF {
		L.ArgError(2, "flags out of range")
	}
	L.Push(lua.LBool(e.ws.Store().SetFlags(checkEntity(L, 1), uint8(v))))
	return 1
}

func (e *Engine) luaSetDevelopment(L *lua.LState) int {
	L.Push(lua.LBool(e.ws.Store().SetDevelopment(checkEntity(L, 1), checkUint16(L, 2))))
	return 1
}

// core.country(tag) -> owner id, or nil for an unknown tag
func (e *Engine) luaCountry(L *lua.LState) int {
	if e.tables.Countries == nil {
		L.Push(lua.LNil)
		return 1
	}
	id, ok := e.tables.Countries.Resolve(L.CheckString(1))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LNumber(id))
	return 1
}

// core.tag(owner) -> "FRA", or "---"
func (e *Engine) luaTag(L *lua.LState) int {
	owner := ecs.OwnerID(checkUint16(L, 1))
	if e.tables.Countries == nil {
		L.Push(lua.LString("---"))
		return 1
	}
	L.Push(lua.LString(e.tables.Countries.Tag(owner)))
	return 1
}

func (e *Engine) luaIsWater(L *lua.LState) int {
	t := e.ws.Store().Get(checkEntity(L, 1)).Terrain
	if e.tables.Terrain == nil {
		L.Push(lua.LBool(t == ecs.TerrainOcean))
		return 1
	}
	L.Push(lua.LBool(e.tables.Terrain.IsWater(t)))
	return 1
}

// resolveKind accepts a KindID or a building/modifier name.
func (e *Engine) resolveKind(L *lua.LState, n int) data.KindID {
	switch v := L.Get(n).(type) {
	case lua.LNumber:
		if v < 0 || v > 0xFFFF {
			L.ArgError(n, "kind id out of range")
		}
		return data.KindID(v)
	case lua.LString:
		if e.tables.Kinds != nil {
			if k := e.tables.Kinds.Building(string(v)); k != nil {
				return k.ID
			}
			if k := e.tables.Kinds.Modifier(string(v)); k != nil {
				return k.ID
			}
		}
		L.ArgError(n, fmt.Sprintf("unknown kind %q", string(v)))
	default:
		L.TypeError(n, lua.LTString)
	}
	return 0
}

func (e *Engine) collection(L *lua.LState, n int) kindCollection {
	name := L.CheckString(n)
	c, ok := e.ws.KindCollection(name)
	if !ok {
		L.ArgError(n, fmt.Sprintf("unknown collection %q", name))
	}
	return c
}

// core.add_attr(collection, id, kind)
func (e *Engine) luaAddAttr(L *lua.LState) int {
	c := e.collection(L, 1)
	id := checkEntity(L, 2)
	kind := e.resolveKind(L, 3)
	if !e.ws.Store().Has(id) {
		e.log.Warn("attribute on unregistered entity",
			zap.String("collection", c.Name()), zap.Uint16("entity", uint16(id)))
		return 0
	}
	c.Add(id, kind)
	return 0
}

// core.remove_attr(collection, id, kind) -> removed
func (e *Engine) luaRemoveAttr(L *lua.LState) int {
	c := e.collection(L, 1)
	L.Push(lua.LBool(c.Remove(checkEntity(L, 2), e.resolveKind(L, 3))))
	return 1
}

// core.has_attr(collection, id [, kind])
func (e *Engine) luaHasAttr(L *lua.LState) int {
	c := e.collection(L, 1)
	id := checkEntity(L, 2)
	if L.GetTop() < 3 {
		L.Push(lua.LBool(c.HasAny(id)))
		return 1
	}
	L.Push(lua.LBool(c.Has(id, e.resolveKind(L, 3))))
	return 1
}

func (e *Engine) luaAttrCount(L *lua.LState) int {
	c := e.collection(L, 1)
	L.Push(lua.LNumber(c.Count(checkEntity(L, 2))))
	return 1
}

// core.claims(id) -> {owner, ...}
func (e *Engine) luaClaims(L *lua.LState) int {
	id := checkEntity(L, 1)
	t := L.NewTable()
	e.ws.Claims().ForEach(id, func(o ecs.OwnerID) bool {
		t.Append(lua.LNumber(o))
		return true
	})
	L.Push(t)
	return 1
}

// core.record(id, before, after [, actor]) writes a scripted history entry.
func (e *Engine) luaRecord(L *lua.LState) int {
	id := checkEntity(L, 1)
	before, after := int32(L.CheckInt(2)), int32(L.CheckInt(3))
	actor := uint16(L.OptInt(4, 0))
	if !e.ws.Store().Has(id) {
		e.log.Warn("history record for unregistered entity", zap.Uint16("entity", uint16(id)))
		return 0
	}
	mag := int64(after) - int64(before)
	if mag < 0 {
		mag = -mag
	}
	e.ws.History().RecordEvent(id, history.Record{
		Year:      e.ws.Year(),
		Kind:      history.KindScripted,
		Actor:     actor,
		Before:    before,
		After:     after,
		Magnitude: fixed.FromInt64(mag),
	})
	return 0
}

// core.remove(id) queues id for removal at the end of the update phase.
func (e *Engine) luaRemove(L *lua.LState) int {
	e.ws.MarkForRemoval(checkEntity(L, 1))
	return 0
}

func (e *Engine) luaYear(L *lua.LState) int {
	L.Push(lua.LNumber(e.ws.Year()))
	return 1
}

func (e *Engine) luaCycle(L *lua.LState) int {
	L.Push(lua.LNumber(e.ws.Cycle()))
	return 1
}

// luaRandom follows math.random: () -> [0,1), (m) -> [1,m], (m, n) -> [m,n].
func (e *Engine) luaRandom(L *lua.LState) int {
	switch L.GetTop() {
	case 0:
		L.Push(lua.LNumber(e.rng.Float64()))
	case 1:
		m := L.CheckInt(1)
		if m < 1 {
			L.ArgError(1, "interval is empty")
		}
		L.Push(lua.LNumber(1 + e.rng.IntN(m)))
	default:
		lo, hi := L.CheckInt(1), L.CheckInt(2)
		if lo > hi {
			L.ArgError(2, "interval is empty")
		}
		L.Push(lua.LNumber(lo + e.rng.IntN(hi-lo+1)))
	}
	return 1
}

func (e *Engine) luaLog(L *lua.LState) int {
	e.log.Info("lua", zap.String("msg", L.CheckString(1)), zap.Uint64("cycle", e.ws.Cycle()))
	return 0
}
