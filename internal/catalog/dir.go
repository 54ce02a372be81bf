package catalog

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LoadDir читает все *.yaml/*.yml из папки (по имени файла) и объединяет наборы.
func LoadDir(dir string) (Catalog, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return Catalog{}, err
	}
	names := make([]string, 0, len(files))
	for _, file := range files {
		if !file.IsDir() && (strings.HasSuffix(file.Name(), ".yaml") || strings.HasSuffix(file.Name(), ".yml")) {
			names = append(names, file.Name())
		}
	}
	sort.Strings(names)

	var sets []FieldSet
	for _, name := range names {
		c, err := Load(filepath.Join(dir, name))
		if err != nil {
			return Catalog{}, err
		}
		sets = append(sets, c.sets...)
	}
	return New(sets...), nil
}

// LoadPath: пусто → Default(), папка → LoadDir, иначе файл
func LoadPath(path string) (Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default(), nil
	}
	st, err := os.Stat(path)
	if err != nil {
		return Catalog{}, err
	}
	if st.IsDir() {
		return LoadDir(path)
	}
	return Load(path)
}
