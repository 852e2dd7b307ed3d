package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/archon/statecore/internal/config"
	coresys "github.com/archon/statecore/internal/core/system"
	"github.com/archon/statecore/internal/data"
	"github.com/archon/statecore/internal/persist"
	"github.com/archon/statecore/internal/scripting"
	"github.com/archon/statecore/internal/system"
	"github.com/archon/statecore/internal/world"
)

// simulation is one fully wired core: data, world, scripts and systems.
type simulation struct {
	cfg *config.Config
	log *zap.Logger

	tables   scripting.Tables
	seeds    int
	scripts  int
	ws       *world.State
	engine   *scripting.Engine
	runner   *coresys.Runner
	dispatch *system.DispatchSystem
	recorder *system.HistoryRecorder
	ckpt     *system.CheckpointSystem // nil without a database
	db       *persist.DB
}

type simOptions struct {
	checkpoints bool // connect the database sink when a DSN is set
}

func loadTables(dir string) (scripting.Tables, []data.ProvinceSeed, error) {
	terrain, err := data.LoadTerrainTable(filepath.Join(dir, "terrain.yaml"))
	if err != nil {
		return scripting.Tables{}, nil, err
	}
	countries, err := data.LoadCountryTable(filepath.Join(dir, "countries.yaml"))
	if err != nil {
		return scripting.Tables{}, nil, err
	}
	kinds, err := data.LoadKindTable(filepath.Join(dir, "attributes.yaml"))
	if err != nil {
		return scripting.Tables{}, nil, err
	}
	seeds, err := data.LoadProvinceSeeds(filepath.Join(dir, "provinces.yaml"), terrain, countries, kinds)
	if err != nil {
		return scripting.Tables{}, nil, err
	}
	return scripting.Tables{Countries: countries, Terrain: terrain, Kinds: kinds}, seeds, nil
}

func newSimulation(ctx context.Context, cfg *config.Config, log *zap.Logger, opts simOptions) (*simulation, error) {
	tables, seeds, err := loadTables(cfg.Simulation.DataDir)
	if err != nil {
		return nil, fmt.Errorf("load data: %w", err)
	}

	ws, err := world.New(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("init world: %w", err)
	}
	s := &simulation{cfg: cfg, log: log, tables: tables, seeds: len(seeds), ws: ws}
	if err := ws.Seed(seeds); err != nil {
		s.close()
		return nil, err
	}
	// Seeding is cycle zero's input; readers see it once that cycle ends.

	s.engine = scripting.NewEngine(ws, tables, cfg.Simulation.Seed, log)
	if s.scripts, err = s.engine.LoadDir(cfg.Simulation.ScriptsDir); err != nil {
		s.close()
		return nil, fmt.Errorf("load scripts: %w", err)
	}
	if err := s.engine.OnInit(); err != nil {
		s.close()
		return nil, err
	}

	s.runner = coresys.NewRunner()
	s.recorder = system.NewHistoryRecorder(ws)
	s.dispatch = system.NewDispatchSystem(ws)
	s.runner.Register(system.NewScriptSystem(ws, s.engine, log))
	s.runner.Register(system.NewCleanupSystem(ws, log))
	s.runner.Register(s.dispatch)
	s.runner.Register(system.NewSwapSystem(ws))

	if opts.checkpoints && cfg.Database.DSN != "" {
		db, err := persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("connect checkpoint db: %w", err)
		}
		s.db = db
		if _, err := persist.RunMigrations(ctx, db.Pool, log); err != nil {
			s.close()
			return nil, err
		}
		s.ckpt = system.NewCheckpointSystem(ws, persist.NewCheckpointRepo(db), log, cfg.Checkpoint)
		if err := s.ckpt.LoadBaseline(ctx); err != nil {
			s.close()
			return nil, err
		}
		s.runner.Register(s.ckpt)
	}
	if err := s.runner.Validate(); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

// run drives n cycles (0 = until ctx is done). A zero tick rate runs cycles
// back to back.
func (s *simulation) run(ctx context.Context, n int, tickRate time.Duration) int {
	var tick <-chan time.Time
	if tickRate > 0 {
		ticker := time.NewTicker(tickRate)
		defer ticker.Stop()
		tick = ticker.C
	}
	done := 0
	for n == 0 || done < n {
		if tick != nil {
			select {
			case <-ctx.Done():
				return done
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return done
		}
		s.runner.Tick(tickRate)
		done++
	}
	return done
}

func (s *simulation) close() {
	if s.ckpt != nil {
		s.ckpt.SaveNow()
	}
	if s.engine != nil {
		s.engine.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	s.ws.Close()
}
