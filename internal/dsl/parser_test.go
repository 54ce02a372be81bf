package dsl

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntities(t *testing.T) {
	src := `
# comment
module shop

entity item:
  title: string required unique
  meta: json   # trailing comment
  parentId: ref[item] column=parent on_delete='set_null'
`
	ents, err := ParseEntities(strings.NewReader(src), "inline")
	require.NoError(t, err)
	require.Len(t, ents, 1)

	e := ents[0]
	assert.Equal(t, "shop", e.Module)
	assert.Equal(t, "item", e.Name)
	assert.Equal(t, "shop.item", e.FQN())
	require.Len(t, e.Fields, 3)

	title, ok := e.Field("title")
	require.True(t, ok)
	assert.True(t, title.Required())
	assert.True(t, title.Unique())
	assert.Equal(t, "title", title.Column())

	meta, _ := e.Field("meta")
	assert.Equal(t, "json", meta.Type)
	assert.False(t, meta.Required())

	parent, _ := e.Field("parentId")
	assert.Equal(t, "ref", parent.Type)
	assert.Equal(t, "item", parent.RefTarget)
	assert.Equal(t, "parent", parent.Column())
	assert.Equal(t, "set_null", parent.Options["on_delete"])
}

func TestParseEntitiesErrors(t *testing.T) {
	_, err := ParseEntities(strings.NewReader("module m\nentity a:\n  x: decimal\n"), "bad")
	assert.ErrorContains(t, err, "unknown type")

	_, err = ParseEntities(strings.NewReader("module m\nentity a:\n  x: string\n  x: int\n"), "dup")
	assert.ErrorContains(t, err, "duplicate field")
}

func TestSnakeCase(t *testing.T) {
	assert.Equal(t, "custom_field_set_id", SnakeCase("customFieldSetId"))
	assert.Equal(t, "set_id", SnakeCase("setId"))
	assert.Equal(t, "name", SnakeCase("name"))
}

func TestLoadVariant(t *testing.T) {
	assert.Equal(t, []string{VariantLegacy, VariantStandard}, Variants())

	std, err := LoadVariant(VariantStandard)
	require.NoError(t, err)
	require.Len(t, std, 3)
	field, ok := std["system.custom_field"].Field("customFieldSetId")
	require.True(t, ok)
	assert.Equal(t, "set_id", field.Column())
	_, ok = std["system.custom_field"].Field("setId")
	assert.False(t, ok)

	legacy, err := LoadVariant(VariantLegacy)
	require.NoError(t, err)
	rel, ok := ByName(legacy, "custom_field_set_relation")
	require.True(t, ok)
	field, ok = rel.Field("setId")
	require.True(t, ok)
	assert.Equal(t, "set_id", field.Column())

	_, err = LoadVariant("nope")
	assert.ErrorContains(t, err, "unknown schema variant")
}

func TestLoadAllEntities(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.dsl"), []byte("module m\nentity a:\n  b: ref[b]\n"), 0o644))

	_, err := LoadAllEntities(dir)
	assert.ErrorContains(t, err, `ref target "b" not found`)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.dsl"), []byte("module m\nentity b:\n  name: string\n"), 0o644))
	ents, err := LoadAllEntities(dir)
	require.NoError(t, err)
	assert.Len(t, ents, 2)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.dsl"), []byte("entity c:\n  name: string\n"), 0o644))
	_, err = LoadAllEntities(dir)
	assert.ErrorContains(t, err, "has no module")
}
