package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"fieldsync/internal/api"
	"fieldsync/internal/catalog"
	"fieldsync/internal/config"
	"fieldsync/internal/dsl"
	"fieldsync/internal/installer"
	"fieldsync/internal/logging"
	"fieldsync/internal/pg"
	"fieldsync/internal/plugin"
	"fieldsync/internal/repo"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// app — всё, что собирается из конфига: схема, хранилище, каталог, плагин
type app struct {
	cfg      config.Config
	entities map[string]*dsl.Entity
	catalog  catalog.Catalog
	repos    repo.Set
	pgStore  *pg.Store
	registry *prometheus.Registry
	plugin   *plugin.Plugin
	closers  []func() error
}

func loadSchema(cfg config.Config) (map[string]*dsl.Entity, error) {
	if strings.TrimSpace(cfg.SchemaDir) != "" {
		return dsl.LoadAllEntities(cfg.SchemaDir)
	}
	return dsl.LoadVariant(cfg.SchemaVariant)
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	log := logging.Package("main")

	entities, err := loadSchema(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "load schema")
	}
	log.Info().Int("entities", len(entities)).Str("variant", cfg.SchemaVariant).Msg("schema loaded")

	cat, err := catalog.LoadPath(cfg.CatalogPath)
	if err != nil {
		return nil, errors.Wrap(err, "load catalog")
	}
	log.Info().Int("sets", cat.Len()).Msg("catalog loaded")

	a := &app{cfg: cfg, entities: entities, catalog: cat}
	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	in := installer.New(a.repos, installer.WithMetrics(installer.NewMetrics(a.registry)))
	a.plugin = plugin.New(in, cat)
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	log := logging.Package("main")
	switch a.cfg.Driver {
	case config.DriverPostgres:
		db, err := pg.Open(ctx, a.cfg.DBURL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, db.Close)
		st, err := pg.NewStore(db, a.entities)
		if err != nil {
			return err
		}
		a.pgStore = st
		if a.cfg.AutoMigrate {
			if err := st.Migrate(ctx, logging.Package("pg")); err != nil {
				return errors.Wrap(err, "auto-migrate")
			}
		}
		a.repos = st.Repositories()

	case config.DriverBunt:
		if p := strings.TrimSpace(a.cfg.BuntPath); p != "" && p != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
				return errors.Wrap(err, "create bunt dir")
			}
		}
		st, err := repo.OpenBuntStore(a.cfg.BuntPath, a.entities)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, st.Close)
		a.repos = st.Repositories()

	default:
		st, err := repo.NewMemoryStore(a.entities)
		if err != nil {
			return err
		}
		a.repos = st.Repositories()
	}
	log.Info().Str("driver", a.cfg.Driver).Msg("store opened")
	return nil
}

func (a *app) storage() *api.Storage {
	s := api.NewStorage(a.entities, a.repos, a.plugin)
	s.Gatherer = a.registry
	return s
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}
