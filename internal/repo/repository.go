// Package repo описывает обобщённый CRUD-контракт над коллекцией записей
// (custom_field_set, custom_field_set_relation, custom_field) и его реализации.
package repo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Имена коллекций
const (
	CollectionSets      = "custom_field_set"
	CollectionRelations = "custom_field_set_relation"
	CollectionFields    = "custom_field"
)

// Collections в порядке зависимостей (сначала родитель)
var Collections = []string{CollectionSets, CollectionRelations, CollectionFields}

// IDField — суррогатный ключ, всегда замаплен
const IDField = "id"

var (
	ErrDuplicateID = errors.New("record already exists")
	ErrMissingID   = errors.New("payload has no id")
)

type Record struct {
	ID        string         `json:"id"`
	Version   int64          `json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Data      map[string]any `json:"data"`
}

// String возвращает строковое значение атрибута ("" если нет)
func (r *Record) String(field string) string {
	if r == nil {
		return ""
	}
	if field == IDField {
		return r.ID
	}
	v, ok := r.Data[field]
	if !ok || v == nil {
		return ""
	}
	return stringify(v)
}

// Payload — запись на запись: {"id": ..., атрибуты...}
type Payload map[string]any

func (p Payload) ID() string {
	s, _ := p[IDField].(string)
	return strings.TrimSpace(s)
}

// Keys — атрибуты в стабильном порядке (без id)
func (p Payload) Keys() []string {
	out := make([]string, 0, len(p))
	for k := range p {
		if k != IDField {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Clone — поверхностная копия
func (p Payload) Clone() Payload {
	out := make(Payload, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Equals — фильтр равенства по атрибуту
type Equals struct {
	Field string
	Value any
}

// Criteria — набор фильтров, объединяемых через AND
type Criteria struct {
	Filters []Equals
}

func Where(field string, value any) Criteria {
	return Criteria{Filters: []Equals{{Field: field, Value: value}}}
}

func (c Criteria) And(field string, value any) Criteria {
	out := Criteria{Filters: make([]Equals, 0, len(c.Filters)+1)}
	out.Filters = append(out.Filters, c.Filters...)
	out.Filters = append(out.Filters, Equals{Field: field, Value: value})
	return out
}

func (c Criteria) String() string {
	parts := make([]string, 0, len(c.Filters))
	for _, f := range c.Filters {
		parts = append(parts, fmt.Sprintf("%s=%v", f.Field, f.Value))
	}
	return strings.Join(parts, " and ")
}

// Repository — доступ к одной коллекции
type Repository interface {
	// Collection — имя коллекции
	Collection() string
	// Search возвращает первую запись под фильтр или nil.
	// Первая — самая ранняя по created_at, при равенстве меньший id.
	Search(ctx context.Context, c Criteria) (*Record, error)
	SearchIDs(ctx context.Context, c Criteria) ([]string, error)
	// Upsert вставляет или обновляет по id (атрибуты из payload мержатся поверх)
	Upsert(ctx context.Context, payloads []Payload) error
	// Create только вставляет; существующий id → ErrDuplicateID
	Create(ctx context.Context, payloads []Payload) error
	Delete(ctx context.Context, ids []string) error
}

// Set — три коллекции, с которыми работает установщик
type Set struct {
	Sets      Repository
	Relations Repository
	Fields    Repository
}

// ByCollection возвращает репозиторий по имени коллекции
func (s Set) ByCollection(name string) (Repository, bool) {
	switch name {
	case CollectionSets:
		return s.Sets, s.Sets != nil
	case CollectionRelations:
		return s.Relations, s.Relations != nil
	case CollectionFields:
		return s.Fields, s.Fields != nil
	}
	return nil, false
}

func (s Set) Validate() error {
	if s.Sets == nil || s.Relations == nil || s.Fields == nil {
		return errors.New("repository set is incomplete")
	}
	return nil
}
