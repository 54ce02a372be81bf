// Package catalog — декларативное описание наборов custom field, которые
// должен поддерживать установщик. Значение Catalog неизменяемо: его строят
// один раз при старте и передают явно.
package catalog

// LanguageSystem — id системного языка по умолчанию (Defaults::LANGUAGE_SYSTEM хоста)
const LanguageSystem = "2fbb5fe2e29a4d70aa5854ce7ce3e20b"

// Типы полей, которые понимает админка хоста
const (
	TypeText        = "text"
	TypeHTML        = "html"
	TypeInt         = "int"
	TypeFloat       = "float"
	TypeBool        = "bool"
	TypeDatetime    = "datetime"
	TypeSelect      = "select"
	TypeCheckbox    = "checkbox"
	TypeSwitch      = "switch"
	TypeColorpicker = "colorpicker"
	TypeMedia       = "media"
	TypePrice       = "price"
	TypeEntity      = "entity"
	TypeJSON        = "json"
)

var knownTypes = map[string]struct{}{
	TypeText: {}, TypeHTML: {}, TypeInt: {}, TypeFloat: {}, TypeBool: {},
	TypeDatetime: {}, TypeSelect: {}, TypeCheckbox: {}, TypeSwitch: {},
	TypeColorpicker: {}, TypeMedia: {}, TypePrice: {}, TypeEntity: {}, TypeJSON: {},
}

// KnownType сообщает, поддерживается ли тип поля
func KnownType(t string) bool { _, ok := knownTypes[t]; return ok }

// Label: локаль -> текст. Ключ LanguageSystem — значение по умолчанию.
type Label map[string]string

// Resolve возвращает текст для локали, иначе системный по умолчанию
func (l Label) Resolve(locale string) string {
	if v, ok := l[locale]; ok && v != "" {
		return v
	}
	return l[LanguageSystem]
}

func (l Label) clone() Label {
	if l == nil {
		return nil
	}
	out := make(Label, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// Option — вариант выбора для полей типа select
type Option struct {
	Value string `yaml:"value" json:"value"`
	Label Label  `yaml:"label" json:"label"`
}

type Field struct {
	Name     string   `yaml:"name" json:"name"`
	Type     string   `yaml:"type" json:"type"`
	Position int      `yaml:"position,omitempty" json:"position"`
	Label    Label    `yaml:"label" json:"label"`
	Options  []Option `yaml:"options,omitempty" json:"options,omitempty"`
}

// FieldSet — набор полей, привязанный к сущности хоста
type FieldSet struct {
	Name   string  `yaml:"name" json:"name"`
	Entity string  `yaml:"entity" json:"entity"`
	Label  Label   `yaml:"label" json:"label"`
	Fields []Field `yaml:"fields" json:"fields"`
}

type Catalog struct {
	sets []FieldSet
}

// New копирует объявления; дальнейшие изменения входного среза не влияют на каталог.
func New(sets ...FieldSet) Catalog {
	return Catalog{sets: cloneSets(sets)}
}

// Sets возвращает копию объявлений в порядке объявления
func (c Catalog) Sets() []FieldSet { return cloneSets(c.sets) }

func (c Catalog) Len() int { return len(c.sets) }

// Set ищет набор по имени
func (c Catalog) Set(name string) (FieldSet, bool) {
	for _, s := range c.sets {
		if s.Name == name {
			return cloneSets([]FieldSet{s})[0], true
		}
	}
	return FieldSet{}, false
}

func cloneSets(in []FieldSet) []FieldSet {
	out := make([]FieldSet, len(in))
	for i, s := range in {
		s.Label = s.Label.clone()
		fields := make([]Field, len(s.Fields))
		for j, f := range s.Fields {
			f.Label = f.Label.clone()
			if f.Options != nil {
				opts := make([]Option, len(f.Options))
				for k, o := range f.Options {
					o.Label = o.Label.clone()
					opts[k] = o
				}
				f.Options = opts
			}
			fields[j] = f
		}
		s.Fields = fields
		out[i] = s
	}
	return out
}
