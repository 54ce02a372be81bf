package dsl

import (
	"bufio"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"
)

//go:embed schemas
var embedded embed.FS

// Встроенные варианты схемы коллекций custom field
const (
	VariantStandard = "standard"
	VariantLegacy   = "legacy"
)

var (
	entityRe = regexp.MustCompile(`^entity\s+(\w+):`)
	fieldRe  = regexp.MustCompile(`^\s*([\w_]+):\s*([^\s#]+)(.*)$`)
	refRe    = regexp.MustCompile(`^ref\[([A-Za-z0-9_.]+)\]$`)
	moduleRe = regexp.MustCompile(`^\s*module\s+([A-Za-z0-9_.-]+)\s*$`)
)

var knownTypes = map[string]struct{}{
	"string": {}, "int": {}, "bool": {}, "json": {}, "ref": {},
}

// parse: options tokenizer — делит "k=v k2='v 2'" на токены, не рвёт по пробелам внутри кавычек
func splitOptionTokens(s string) []string {
	var out []string
	var buf []rune
	inSingle, inDouble := false, false

	flush := func() {
		if len(buf) > 0 {
			out = append(out, string(buf))
			buf = buf[:0]
		}
	}

	for _, r := range s {
		switch r {
		case '\'':
			if !inDouble {
				inSingle = !inSingle
			}
			buf = append(buf, r)
		case '"':
			if !inSingle {
				inDouble = !inDouble
			}
			buf = append(buf, r)
		default:
			if (r == ' ' || r == '\t') && !inSingle && !inDouble {
				flush()
				continue
			}
			buf = append(buf, r)
		}
	}
	flush()
	return out
}

// ParseEntities читает DSL из r. source используется только в сообщениях об ошибках.
func ParseEntities(r io.Reader, source string) ([]*Entity, error) {
	var entities []*Entity
	var current *Entity
	currentModule := ""
	lineNo := 0

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if m := moduleRe.FindStringSubmatch(line); m != nil {
			currentModule = m[1]
			continue
		}

		if m := entityRe.FindStringSubmatch(line); m != nil {
			if current != nil {
				entities = append(entities, current)
			}
			current = &Entity{Name: m[1], Module: currentModule}
			continue
		}
		if current == nil {
			// игнорируем всё вне сущности
			continue
		}

		m := fieldRe.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("%s:%d: cannot parse %q", source, lineNo, line)
		}
		name, rawType, tail := m[1], m[2], m[3]

		f := Field{Name: name, Type: strings.ToLower(rawType), Options: map[string]string{}}
		if mm := refRe.FindStringSubmatch(rawType); mm != nil {
			f.Type = "ref"
			f.RefTarget = strings.TrimSpace(mm[1])
		}
		if _, ok := knownTypes[f.Type]; !ok {
			return nil, fmt.Errorf("%s:%d: field %q has unknown type %q", source, lineNo, name, rawType)
		}

		optsRaw := strings.TrimSpace(tail)
		// срезать комментарий
		if i := strings.IndexByte(optsRaw, '#'); i >= 0 {
			optsRaw = strings.TrimSpace(optsRaw[:i])
		}
		optsRaw = strings.ReplaceAll(optsRaw, ",", " ")

		for _, tok := range splitOptionTokens(optsRaw) {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			// флаг без значения → "true"
			if !strings.Contains(tok, "=") {
				f.Options[strings.ToLower(tok)] = "true"
				continue
			}
			kv := strings.SplitN(tok, "=", 2)
			k := strings.ToLower(strings.TrimSpace(kv[0]))
			v := strings.TrimSpace(kv[1])
			if len(v) >= 2 {
				if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
					v = v[1 : len(v)-1]
				}
			}
			if k != "" {
				f.Options[k] = v
			}
		}

		if _, dup := current.Field(f.Name); dup {
			return nil, fmt.Errorf("%s:%d: duplicate field %q in entity %q", source, lineNo, f.Name, current.Name)
		}
		current.Fields = append(current.Fields, f)
	}

	if current != nil {
		entities = append(entities, current)
	}
	return entities, scanner.Err()
}

// LoadEntities читает один *.dsl файл
func LoadEntities(p string) ([]*Entity, error) {
	file, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ParseEntities(file, p)
}

// LoadAllEntities обходит каталог и собирает все сущности по FQN
func LoadAllEntities(root string) (map[string]*Entity, error) {
	return loadFS(os.DirFS(root), ".")
}

// LoadVariant загружает встроенную схему (standard | legacy)
func LoadVariant(name string) (map[string]*Entity, error) {
	if name == "" {
		name = VariantStandard
	}
	root := path.Join("schemas", name)
	if _, err := fs.Stat(embedded, root); err != nil {
		return nil, fmt.Errorf("unknown schema variant %q", name)
	}
	return loadFS(embedded, root)
}

// Variants перечисляет встроенные варианты схемы
func Variants() []string {
	entries, _ := fs.ReadDir(embedded, "schemas")
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out
}

func loadFS(fsys fs.FS, root string) (map[string]*Entity, error) {
	result := make(map[string]*Entity)

	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.EqualFold(path.Ext(d.Name()), ".dsl") {
			return nil
		}

		f, err := fsys.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()

		ents, err := ParseEntities(f, p)
		if err != nil {
			return fmt.Errorf("parse %s: %w", p, err)
		}

		for _, e := range ents {
			if e.Name == "" {
				return fmt.Errorf("empty entity name in %s", p)
			}
			if e.Module == "" {
				return fmt.Errorf("entity %q in %s has no module — add `module <name>` at the top", e.Name, p)
			}
			if _, exists := result[e.FQN()]; exists {
				return fmt.Errorf("duplicate entity %q in module %q (file: %s)", e.Name, e.Module, p)
			}
			result[e.FQN()] = e
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := Lint(result); err != nil {
		return nil, err
	}
	return result, nil
}

// Lint проверяет, что все ref[...] указывают на существующие сущности.
func Lint(entities map[string]*Entity) error {
	keys := make([]string, 0, len(entities))
	for k := range entities {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		e := entities[k]
		for _, f := range e.Fields {
			if f.Type != "ref" {
				continue
			}
			if _, ok := Resolve(entities, e.Module, f.RefTarget); !ok {
				return fmt.Errorf("%s.%s: ref target %q not found", k, f.Name, f.RefTarget)
			}
		}
	}
	return nil
}

// Resolve находит сущность по имени: "module.name" или просто "name" в модуле mod.
func Resolve(entities map[string]*Entity, mod, name string) (*Entity, bool) {
	if strings.Contains(name, ".") {
		e, ok := entities[name]
		return e, ok
	}
	e, ok := entities[mod+"."+name]
	return e, ok
}

// ByName ищет сущность по короткому имени среди всех модулей (первое совпадение по FQN).
func ByName(entities map[string]*Entity, name string) (*Entity, bool) {
	keys := make([]string, 0, len(entities))
	for k := range entities {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if entities[k].Name == name {
			return entities[k], true
		}
	}
	return nil, false
}
