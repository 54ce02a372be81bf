// api/names.go
package api

import (
	"strings"

	"fieldsync/internal/repo"
)

// NormalizeEntityName возвращает FQN ("module.name") по имени коллекции.
// Принимает "custom_field" или "system.custom_field", регистр не важен.
func (s *Storage) NormalizeEntityName(name string) (string, bool) {
	nl := strings.ToLower(strings.TrimSpace(name))
	if nl == "" {
		return "", false
	}
	if _, ok := s.Schemas[name]; ok {
		return name, true
	}

	// без модуля — имя должно быть уникальным среди всех модулей
	var found string
	for fqn, e := range s.Schemas {
		if strings.ToLower(fqn) == nl {
			return fqn, true
		}
		if strings.ToLower(e.Name) == nl {
			if found != "" {
				return "", false
			}
			found = fqn
		}
	}
	return found, found != ""
}

// repository находит репозиторий коллекции по имени из URL
func (s *Storage) repository(name string) (repo.Repository, bool) {
	fqn, ok := s.NormalizeEntityName(name)
	if !ok {
		return nil, false
	}
	return s.Repos.ByCollection(s.Schemas[fqn].Name)
}
