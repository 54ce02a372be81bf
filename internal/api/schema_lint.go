// api/schema_lint.go
package api

import (
	"fmt"
	"sort"
	"strings"

	"fieldsync/internal/repo"
)

type SchemaIssue struct {
	Entity  string `json:"entity"` // FQN: module.Entity
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SchemaLint проверяет базовые противоречия в DSL коллекций.
func (s *Storage) SchemaLint() []SchemaIssue {
	var issues []SchemaIssue

	keys := make([]string, 0, len(s.Schemas))
	for fqn := range s.Schemas {
		keys = append(keys, fqn)
	}
	sort.Strings(keys)

	for _, fqn := range keys {
		e := s.Schemas[fqn]
		for _, f := range e.Fields {
			// валидность on_delete
			if od := strings.TrimSpace(strings.ToLower(f.Options["on_delete"])); od != "" {
				switch od {
				case "restrict", "set_null", "cascade":
				default:
					issues = append(issues, SchemaIssue{
						Entity:  fqn,
						Field:   f.Name,
						Code:    "on_delete_unknown",
						Message: fmt.Sprintf("unknown on_delete policy %q (allowed: restrict|set_null|cascade)", od),
					})
				}
			}

			// required ref + set_null — конфликт
			if strings.EqualFold(f.Type, "ref") {
				od := strings.TrimSpace(strings.ToLower(f.Options["on_delete"]))
				if f.Required() && od == "set_null" {
					issues = append(issues, SchemaIssue{
						Entity:  fqn,
						Field:   f.Name,
						Code:    "required_conflicts_on_delete",
						Message: "required ref cannot have on_delete=set_null; use restrict (or make field optional)",
					})
				}
			}
		}
	}

	// установщику нужны все три коллекции
	for _, name := range repo.Collections {
		if _, ok := s.NormalizeEntityName(name); !ok {
			issues = append(issues, SchemaIssue{
				Entity:  name,
				Code:    "collection_missing",
				Message: fmt.Sprintf("schema has no unique entity %q", name),
			})
		}
	}
	return issues
}
