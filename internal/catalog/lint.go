package catalog

import "fmt"

type Issue struct {
	Set     string `json:"set"`
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Field != "" {
		return fmt.Sprintf("%s.%s: %s", i.Set, i.Field, i.Message)
	}
	return fmt.Sprintf("%s: %s", i.Set, i.Message)
}

// Validate проверяет каталог на блокирующие противоречия.
// Глобальная уникальность имён полей — соглашение: установщик её не проверяет,
// поэтому дубликаты внутри каталога поднимаем здесь.
func (c Catalog) Validate() []Issue {
	var issues []Issue
	seenSets := map[string]struct{}{}
	seenFields := map[string]string{} // поле -> набор

	for i, s := range c.sets {
		setName := s.Name
		if setName == "" {
			setName = fmt.Sprintf("#%d", i)
			issues = append(issues, Issue{Set: setName, Code: "set_name_empty", Message: "field set has no name"})
		} else if _, dup := seenSets[s.Name]; dup {
			issues = append(issues, Issue{Set: setName, Code: "set_duplicate", Message: "field set declared twice"})
		}
		seenSets[s.Name] = struct{}{}

		if s.Entity == "" {
			issues = append(issues, Issue{Set: setName, Code: "entity_empty", Message: "field set has no target entity"})
		}
		if s.Label[LanguageSystem] == "" {
			issues = append(issues, Issue{Set: setName, Code: "label_default_missing", Message: "label has no system-default locale entry"})
		}

		for j, f := range s.Fields {
			fieldName := f.Name
			if fieldName == "" {
				fieldName = fmt.Sprintf("#%d", j)
				issues = append(issues, Issue{Set: setName, Field: fieldName, Code: "field_name_empty", Message: "field has no name"})
			} else if other, dup := seenFields[f.Name]; dup {
				issues = append(issues, Issue{
					Set: setName, Field: fieldName, Code: "field_duplicate",
					Message: fmt.Sprintf("field name already used in set %q (names are global)", other),
				})
			} else {
				seenFields[f.Name] = setName
			}
			if !KnownType(f.Type) {
				issues = append(issues, Issue{Set: setName, Field: fieldName, Code: "field_type_unknown", Message: fmt.Sprintf("unknown field type %q", f.Type)})
			}
			if f.Label[LanguageSystem] == "" {
				issues = append(issues, Issue{Set: setName, Field: fieldName, Code: "label_default_missing", Message: "label has no system-default locale entry"})
			}
			if f.Type == TypeSelect && len(f.Options) == 0 {
				issues = append(issues, Issue{Set: setName, Field: fieldName, Code: "select_without_options", Message: "select field declares no options"})
			}
		}
	}
	return issues
}
