package installer

import (
	"fieldsync/internal/repo"
)

// Schema знает, как называется внешний ключ набора у полей и связей.
type Schema interface {
	Name() string
	SetKey() string
}

type fkSchema struct {
	name string
	key  string
}

func (s fkSchema) Name() string   { return s.name }
func (s fkSchema) SetKey() string { return s.key }

var (
	// Standard — customFieldSetId
	Standard Schema = fkSchema{name: "standard", key: "customFieldSetId"}
	// Legacy — setId (старые/отличающиеся маппинги)
	Legacy Schema = fkSchema{name: "legacy", key: "setId"}
)

// Schemas — порядок попыток по умолчанию
var Schemas = []Schema{Standard, Legacy}

type outcome int

const (
	outcomeOK outcome = iota
	outcomeUnmapped
	outcomeFailed
)

// result — явный итог операции: ok, unmapped (с именем атрибута) или прочая ошибка
type result struct {
	outcome outcome
	field   string
	err     error
}

func classify(err error) result {
	if err == nil {
		return result{outcome: outcomeOK}
	}
	if field, ok := repo.IsUnmapped(err); ok {
		return result{outcome: outcomeUnmapped, field: field, err: err}
	}
	return result{outcome: outcomeFailed, err: err}
}
