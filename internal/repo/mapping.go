package repo

import (
	"encoding/json"
	"fmt"
	"strings"

	"fieldsync/internal/dsl"

	"github.com/cockroachdb/errors"
)

// Mapping знает, какие атрибуты принимает коллекция (по DSL-сущности).
type Mapping struct {
	entity *dsl.Entity
	fields map[string]dsl.Field
}

func NewMapping(e *dsl.Entity) *Mapping {
	m := &Mapping{entity: e, fields: make(map[string]dsl.Field, len(e.Fields))}
	for _, f := range e.Fields {
		m.fields[f.Name] = f
	}
	return m
}

func (m *Mapping) Collection() string  { return m.entity.Name }
func (m *Mapping) Entity() *dsl.Entity { return m.entity }

func (m *Mapping) Field(name string) (dsl.Field, bool) {
	f, ok := m.fields[name]
	return f, ok
}

// Attributes — имена атрибутов в порядке объявления
func (m *Mapping) Attributes() []string {
	out := make([]string, 0, len(m.entity.Fields))
	for _, f := range m.entity.Fields {
		out = append(out, f.Name)
	}
	return out
}

// AttributeForColumn — обратное отображение колонки в атрибут
func (m *Mapping) AttributeForColumn(col string) (string, bool) {
	col = strings.ToLower(col)
	if col == IDField {
		return IDField, true
	}
	for _, f := range m.entity.Fields {
		if f.Column() == col {
			return f.Name, true
		}
	}
	return "", false
}

// Check возвращает UnmappedFieldError для первого неизвестного атрибута
func (m *Mapping) Check(attrs ...string) error {
	for _, a := range attrs {
		if a == IDField {
			continue
		}
		if _, ok := m.fields[a]; !ok {
			return &UnmappedFieldError{Collection: m.Collection(), Field: a}
		}
	}
	return nil
}

func (m *Mapping) CheckCriteria(c Criteria) error {
	for _, f := range c.Filters {
		if err := m.Check(f.Field); err != nil {
			return err
		}
	}
	return nil
}

// CheckPayloads проверяет атрибуты и наличие id; required — только для новых записей.
func (m *Mapping) CheckPayloads(payloads []Payload, exists func(id string) bool) error {
	for _, p := range payloads {
		if p.ID() == "" {
			return errors.Wrapf(ErrMissingID, "%s", m.Collection())
		}
		if err := m.Check(p.Keys()...); err != nil {
			return err
		}
		if exists != nil && exists(p.ID()) {
			continue
		}
		for _, f := range m.entity.Fields {
			if !f.Required() {
				continue
			}
			if v, ok := p[f.Name]; !ok || v == nil {
				return errors.Newf("%s: required field %q missing for %s", m.Collection(), f.Name, p.ID())
			}
		}
	}
	return nil
}

// Mappings строит маппинги для трёх коллекций custom field
func Mappings(entities map[string]*dsl.Entity) (map[string]*Mapping, error) {
	out := make(map[string]*Mapping, len(Collections))
	for _, name := range Collections {
		e, ok := dsl.ByName(entities, name)
		if !ok {
			return nil, errors.Newf("schema has no entity %q", name)
		}
		out[name] = NewMapping(e)
	}
	return out, nil
}

// ==== общие утилиты для in-process хранилищ ====

// normalize приводит payload к JSON-совместимому виду (вложенные map/slice копируются)
func normalize(p Payload) (map[string]any, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, errors.Wrap(err, "encode payload")
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, errors.Wrap(err, "decode payload")
	}
	delete(out, IDField)
	return out, nil
}

func matches(rec *Record, c Criteria) bool {
	for _, f := range c.Filters {
		var v any
		var ok bool
		if f.Field == IDField {
			v, ok = rec.ID, true
		} else {
			v, ok = rec.Data[f.Field]
		}
		if !ok || v == nil {
			if f.Value != nil {
				return false
			}
			continue
		}
		if stringify(v) != stringify(f.Value) {
			return false
		}
	}
	return true
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}
