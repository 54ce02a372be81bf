package api

import (
	"sync"

	"fieldsync/internal/catalog"
	"fieldsync/internal/dsl"
	"fieldsync/internal/plugin"
	"fieldsync/internal/repo"

	"github.com/prometheus/client_golang/prometheus"
)

// Storage — то, с чем работают хендлеры: схемы коллекций, репозитории и плагин.
type Storage struct {
	mu      sync.RWMutex
	Schemas map[string]*dsl.Entity // FQN ("module.name") -> схема
	Repos   repo.Set
	plugin  *plugin.Plugin

	// источник /metrics (nil → prometheus.DefaultGatherer)
	Gatherer prometheus.Gatherer
}

func NewStorage(entities map[string]*dsl.Entity, repos repo.Set, p *plugin.Plugin) *Storage {
	return &Storage{
		Schemas: entities,
		Repos:   repos,
		plugin:  p,
	}
}

// Plugin — текущий плагин (каталог может быть перезагружен)
func (s *Storage) Plugin() *plugin.Plugin {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plugin
}

func (s *Storage) Catalog() catalog.Catalog { return s.Plugin().Catalog() }

// SwapCatalog подменяет каталог; установщик переиспользуется
func (s *Storage) SwapCatalog(cat catalog.Catalog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plugin = plugin.New(s.plugin.Installer(), cat)
}

func (s *Storage) gatherer() prometheus.Gatherer {
	if s.Gatherer != nil {
		return s.Gatherer
	}
	return prometheus.DefaultGatherer
}
