package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SystemAlias — короткий ключ для системной локали в YAML
const SystemAlias = "system"

type document struct {
	Sets []FieldSet `yaml:"sets"`
}

// Load читает каталог из YAML-файла
func Load(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, err
	}
	c, err := Parse(data)
	if err != nil {
		return Catalog{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, nil
}

// Parse разбирает YAML. position по умолчанию = 1, ключ "system" в метках → LanguageSystem.
func Parse(data []byte) (Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Catalog{}, err
	}
	for i := range doc.Sets {
		s := &doc.Sets[i]
		s.Name = strings.TrimSpace(s.Name)
		s.Entity = strings.TrimSpace(s.Entity)
		s.Label = normalizeLabel(s.Label)
		for j := range s.Fields {
			f := &s.Fields[j]
			f.Name = strings.TrimSpace(f.Name)
			f.Type = strings.ToLower(strings.TrimSpace(f.Type))
			if f.Position == 0 {
				f.Position = 1
			}
			f.Label = normalizeLabel(f.Label)
			for k := range f.Options {
				f.Options[k].Label = normalizeLabel(f.Options[k].Label)
			}
		}
	}
	return New(doc.Sets...), nil
}

func normalizeLabel(l Label) Label {
	v, ok := l[SystemAlias]
	if !ok {
		return l
	}
	delete(l, SystemAlias)
	if _, exists := l[LanguageSystem]; !exists {
		l[LanguageSystem] = v
	}
	return l
}

// MarshalJSON — {"sets": [...]}
func (c Catalog) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Sets []FieldSet `json:"sets"`
	}{Sets: c.sets})
}

// MarshalYAML — тот же формат, что читает Parse
func (c Catalog) MarshalYAML() (any, error) {
	return document{Sets: c.sets}, nil
}
