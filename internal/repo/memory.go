package repo

import (
	"context"
	"sync"
	"time"

	"fieldsync/internal/dsl"

	"github.com/cockroachdb/errors"
)

// MemoryStore — in-memory хранилище всех коллекций под одним RWMutex
type MemoryStore struct {
	mu       sync.RWMutex
	Mappings map[string]*Mapping           // коллекция -> схема
	data     map[string]map[string]*Record // коллекция -> id -> запись
	order    map[string][]string           // порядок вставки (для "первой" записи)
}

// NewMemoryStore наполняет схемы и готов к работе
func NewMemoryStore(entities map[string]*dsl.Entity) (*MemoryStore, error) {
	mappings, err := Mappings(entities)
	if err != nil {
		return nil, err
	}
	s := &MemoryStore{
		Mappings: mappings,
		data:     make(map[string]map[string]*Record),
		order:    make(map[string][]string),
	}
	for name := range mappings {
		s.data[name] = make(map[string]*Record)
	}
	return s, nil
}

// Repositories возвращает репозитории трёх коллекций
func (s *MemoryStore) Repositories() Set {
	return Set{
		Sets:      &memoryCollection{store: s, mapping: s.Mappings[CollectionSets]},
		Relations: &memoryCollection{store: s, mapping: s.Mappings[CollectionRelations]},
		Fields:    &memoryCollection{store: s, mapping: s.Mappings[CollectionFields]},
	}
}

// Count — число записей в коллекции
func (s *MemoryStore) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[collection])
}

// Snapshot — копия всех записей коллекции в порядке вставки
func (s *MemoryStore) Snapshot(collection string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.order[collection]))
	for _, id := range s.order[collection] {
		rec := *s.data[collection][id]
		rec.Data = cloneMap(rec.Data)
		out = append(out, rec)
	}
	return out
}

type memoryCollection struct {
	store   *MemoryStore
	mapping *Mapping
}

var _ Repository = (*memoryCollection)(nil)

func (c *memoryCollection) Collection() string { return c.mapping.Collection() }

func (c *memoryCollection) Search(_ context.Context, cr Criteria) (*Record, error) {
	if err := c.mapping.CheckCriteria(cr); err != nil {
		return nil, err
	}
	s := c.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	name := c.Collection()
	for _, id := range s.order[name] {
		rec := s.data[name][id]
		if matches(rec, cr) {
			out := *rec
			out.Data = cloneMap(rec.Data)
			return &out, nil
		}
	}
	return nil, nil
}

func (c *memoryCollection) SearchIDs(_ context.Context, cr Criteria) ([]string, error) {
	if err := c.mapping.CheckCriteria(cr); err != nil {
		return nil, err
	}
	s := c.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	name := c.Collection()
	var ids []string
	for _, id := range s.order[name] {
		if matches(s.data[name][id], cr) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (c *memoryCollection) Upsert(_ context.Context, payloads []Payload) error {
	return c.write(payloads, true)
}

func (c *memoryCollection) Create(_ context.Context, payloads []Payload) error {
	return c.write(payloads, false)
}

// write — вся пачка валидируется до записи, чтобы не оставлять половину
func (c *memoryCollection) write(payloads []Payload, upsert bool) error {
	s := c.store
	name := c.Collection()

	s.mu.Lock()
	defer s.mu.Unlock()

	exists := func(id string) bool { _, ok := s.data[name][id]; return ok }
	if err := c.mapping.CheckPayloads(payloads, exists); err != nil {
		return err
	}

	docs := make([]map[string]any, len(payloads))
	seen := make(map[string]struct{}, len(payloads))
	for i, p := range payloads {
		if !upsert {
			if _, dup := seen[p.ID()]; dup || exists(p.ID()) {
				return errors.Wrapf(ErrDuplicateID, "%s %s", name, p.ID())
			}
			seen[p.ID()] = struct{}{}
		}
		doc, err := normalize(p)
		if err != nil {
			return err
		}
		docs[i] = doc
	}

	now := time.Now().UTC()
	for i, p := range payloads {
		id := p.ID()
		if rec, ok := s.data[name][id]; ok {
			for k, v := range docs[i] {
				rec.Data[k] = v
			}
			rec.Version++
			rec.UpdatedAt = now
			continue
		}
		s.data[name][id] = &Record{
			ID:        id,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
			Data:      docs[i],
		}
		s.order[name] = append(s.order[name], id)
	}
	return nil
}

func (c *memoryCollection) Delete(_ context.Context, ids []string) error {
	s := c.store
	name := c.Collection()

	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := s.data[name][id]; ok {
			delete(s.data[name], id)
			drop[id] = struct{}{}
		}
	}
	if len(drop) == 0 {
		return nil
	}
	kept := s.order[name][:0]
	for _, id := range s.order[name] {
		if _, gone := drop[id]; !gone {
			kept = append(kept, id)
		}
	}
	s.order[name] = kept
	return nil
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}
