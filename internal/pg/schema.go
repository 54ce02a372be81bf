package pg

import (
	"fmt"
	"sort"
	"strings"

	"fieldsync/internal/dsl"
)

type OnDeletePolicy string

const (
	OnDeleteRestrict OnDeletePolicy = "RESTRICT"
	OnDeleteSetNull  OnDeletePolicy = "SET NULL"
	OnDeleteCascade  OnDeletePolicy = "CASCADE"
)

var reserved = map[string]struct{}{
	"user": {}, "select": {}, "table": {}, "insert": {}, "update": {}, "delete": {},
	"where": {}, "join": {}, "group": {}, "order": {}, "limit": {}, "offset": {},
	"primary": {}, "foreign": {}, "key": {}, "constraint": {}, "default": {},
	"from": {}, "into": {}, "values": {}, "unique": {}, "index": {}, "create": {},
	"drop": {}, "alter": {}, "schema": {}, "grant": {}, "revoke": {},
}

// системные колонки, которые DSL не может переопределить
var systemColumns = map[string]struct{}{"id": {}, "version": {}, "created_at": {}, "updated_at": {}}

func isReserved(s string) bool { _, ok := reserved[strings.ToLower(s)]; return ok }

// элементарная плюрализация (custom_fields, custom_field_sets, ...)
func plural(s string) string {
	s = strings.ToLower(s)
	if strings.HasSuffix(s, "s") {
		return s
	}
	return s + "s"
}

// schema = module (lower), table = plural(entity) с защитой keyword'ов
func safeSchema(module string) string { return strings.ToLower(module) }

func safeTable(entity string) string {
	t := plural(entity)
	if isReserved(t) {
		t = "e_" + t
	}
	return t
}

func sqlIdent(s string) string { return `"` + strings.ToLower(s) + `"` }

// QualifiedTable — "schema"."table" для сущности
func QualifiedTable(e *dsl.Entity) string {
	return sqlIdent(safeSchema(e.Module)) + "." + sqlIdent(safeTable(e.Name))
}

func mapType(f dsl.Field) (string, error) {
	switch strings.ToLower(f.Type) {
	case "string":
		return "text", nil
	case "int":
		return "bigint", nil
	case "bool":
		return "boolean", nil
	case "json":
		return "jsonb", nil
	case "ref":
		return "text", nil // id целевой записи
	default:
		return "", fmt.Errorf("unknown type: %s", f.Type)
	}
}

func onDeletePolicy(f dsl.Field) OnDeletePolicy {
	if f.Options == nil {
		return OnDeleteRestrict
	}
	switch strings.ToLower(strings.TrimSpace(f.Options["on_delete"])) {
	case "set_null":
		return OnDeleteSetNull
	case "cascade":
		return OnDeleteCascade
	default:
		return OnDeleteRestrict
	}
}

// GenerateDDL возвращает карту key -> SQL DDL. Ключи задают порядок в ApplyDDL:
// сначала схемы и таблицы, потом внешние ключи (каждый отдельно, чтобы повтор не рвал остальные).
func GenerateDDL(entities map[string]*dsl.Entity) (map[string]string, error) {
	out := make(map[string]string, len(entities)+2)

	keys := make([]string, 0, len(entities))
	for k := range entities {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var phaseA strings.Builder
	seenSchemas := map[string]struct{}{}

	for _, fqnKey := range keys {
		e := entities[fqnKey]
		mod := safeSchema(e.Module)

		if _, ok := seenSchemas[mod]; !ok {
			fmt.Fprintf(&phaseA, "create schema if not exists %s;\n", sqlIdent(mod))
			seenSchemas[mod] = struct{}{}
		}

		cols := []string{
			`"id" text primary key`,
			`"version" bigint not null default 1`,
			`"created_at" timestamp with time zone not null default now()`,
			`"updated_at" timestamp with time zone not null default now()`,
		}
		seen := map[string]string{}
		for c := range systemColumns {
			seen[c] = c
		}

		for _, f := range e.Fields {
			col := f.Column()
			if prev, exists := seen[col]; exists {
				return nil, fmt.Errorf("%s: field %q maps to column %q already used by %q", fqnKey, f.Name, col, prev)
			}
			seen[col] = f.Name

			typ, err := mapType(f)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", fqnKey, f.Name, err)
			}
			null := "null"
			if f.Required() {
				null = "not null"
			}
			cols = append(cols, fmt.Sprintf("%s %s %s", sqlIdent(col), typ, null))
		}

		fmt.Fprintf(&phaseA, "create table if not exists %s (\n  %s\n);\n",
			QualifiedTable(e), strings.Join(cols, ",\n  "))

		for _, f := range e.Fields {
			if f.Unique() {
				fmt.Fprintf(&phaseA, "create unique index if not exists %s_%s_uq on %s(%s);\n",
					strings.ToLower(e.Name), f.Column(), QualifiedTable(e), sqlIdent(f.Column()))
			}
		}

		// FK — отдельными шагами после всех таблиц
		for _, f := range e.Fields {
			if f.Type != "ref" || f.RefTarget == "" {
				continue
			}
			target, ok := dsl.Resolve(entities, e.Module, f.RefTarget)
			if !ok {
				return nil, fmt.Errorf("%s.%s: ref target %q not found", fqnKey, f.Name, f.RefTarget)
			}
			name := strings.ToLower(e.Name + "_" + f.Column() + "_fk")
			out["200_fk_"+name] = fmt.Sprintf(
				"alter table %s add constraint %s foreign key (%s) references %s(id) on delete %s;",
				QualifiedTable(e), name, sqlIdent(f.Column()), QualifiedTable(target), onDeletePolicy(f),
			)
		}
	}

	out["000_schemas_and_tables"] = phaseA.String()
	return out, nil
}
