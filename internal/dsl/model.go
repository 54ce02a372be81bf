package dsl

import (
	"strings"
	"unicode"
)

// Entity описывает одну коллекцию (таблицу) из DSL
type Entity struct {
	Module string
	Name   string
	Fields []Field
}

// Field описывает атрибут коллекции
type Field struct {
	Name      string
	Type      string            // string, int, bool, json, ref
	RefTarget string            // имя целевой сущности для ref[...]
	Options   map[string]string // required, unique, column, on_delete
}

// FQN возвращает "module.name"
func (e *Entity) FQN() string { return e.Module + "." + e.Name }

// Field ищет атрибут по имени (регистр важен: это имя свойства, не колонки).
func (e *Entity) Field(name string) (Field, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func (f Field) Required() bool { return f.flag("required") }
func (f Field) Unique() bool   { return f.flag("unique") }

func (f Field) flag(k string) bool {
	if f.Options == nil {
		return false
	}
	v, ok := f.Options[k]
	return ok && (v == "true" || v == "1" || v == "yes")
}

// Column — имя колонки в БД: опция column=..., иначе snake_case от имени свойства.
func (f Field) Column() string {
	if f.Options != nil {
		if c := strings.TrimSpace(f.Options["column"]); c != "" {
			return strings.ToLower(c)
		}
	}
	return SnakeCase(f.Name)
}

// SnakeCase: customFieldSetId -> custom_field_set_id
func SnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
