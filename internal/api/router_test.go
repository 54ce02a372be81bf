package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fieldsync/internal/catalog"
	"fieldsync/internal/dsl"
	"fieldsync/internal/installer"
	"fieldsync/internal/plugin"
	"fieldsync/internal/repo"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type env struct {
	router *gin.Engine
	store  *repo.MemoryStore
	stor   *Storage
}

func newEnv(t *testing.T, variant string) env {
	t.Helper()
	ents, err := dsl.LoadVariant(variant)
	require.NoError(t, err)
	st, err := repo.NewMemoryStore(ents)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	in := installer.New(st.Repositories(),
		installer.WithLogger(zerolog.Nop()),
		installer.WithMetrics(installer.NewMetrics(reg)))
	s := NewStorage(ents, st.Repositories(), plugin.New(in, catalog.Default()))
	s.Gatherer = reg
	return env{router: NewRouter(s), store: st, stor: s}
}

func (e env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t, dsl.VariantStandard)

	w := e.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodPost, "/api/lifecycle/install", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `fieldsync_runs_total{operation="install",status="ok"} 1`)
}

func TestLifecycleEndpoints(t *testing.T) {
	e := newEnv(t, dsl.VariantLegacy)

	w := e.do(t, http.MethodPost, "/api/lifecycle/install", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rep := decode[installer.Report](t, w)
	assert.Equal(t, 1, rep.SetsCreated)
	assert.Equal(t, 2, rep.FieldsCreated)
	assert.Equal(t, "legacy", rep.Schemas[repo.CollectionFields])

	w = e.do(t, http.MethodPost, "/api/lifecycle/deactivate", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodPost, "/api/lifecycle/uninstall?keepUserData=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[installer.Report](t, w).KeptUserData)
	assert.Equal(t, 2, e.store.Count(repo.CollectionFields))

	w = e.do(t, http.MethodPost, "/api/lifecycle/uninstall?keepUserData=nope", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/api/lifecycle/uninstall", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[installer.Report](t, w).SetsDeleted)
	assert.Equal(t, 0, e.store.Count(repo.CollectionSets))

	w = e.do(t, http.MethodPost, "/api/lifecycle/explode", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListAndGet(t *testing.T) {
	e := newEnv(t, dsl.VariantStandard)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/lifecycle/install", nil).Code)

	w := e.do(t, http.MethodGet, "/api/custom_field", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-Total-Count"))
	items := decode[[]map[string]any](t, w)
	require.Len(t, items, 2)

	w = e.do(t, http.MethodGet, "/api/system.custom_field?name=nw_product_subtitle", nil)
	require.Equal(t, http.StatusOK, w.Code)
	items = decode[[]map[string]any](t, w)
	require.Len(t, items, 1)
	id := items[0]["id"].(string)

	w = e.do(t, http.MethodGet, "/api/custom_field?limit=1&offset=1", nil)
	assert.Len(t, decode[[]map[string]any](t, w), 1)

	w = e.do(t, http.MethodGet, "/api/custom_field/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `"1"`, w.Header().Get("ETag"))
	assert.Equal(t, "nw_product_subtitle", decode[map[string]any](t, w)["name"])

	w = e.do(t, http.MethodGet, "/api/custom_field/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// setId не замаплен в standard
	w = e.do(t, http.MethodGet, "/api/custom_field?setId=x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "setId", decode[map[string]any](t, w)["field"])

	w = e.do(t, http.MethodGet, "/api/orders", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetaAndCatalog(t *testing.T) {
	e := newEnv(t, dsl.VariantLegacy)

	w := e.do(t, http.MethodGet, "/api/meta", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]metaEntity](t, w), 3)

	w = e.do(t, http.MethodGet, "/api/meta/custom_field_set_relation", nil)
	require.Equal(t, http.StatusOK, w.Code)
	meta := decode[metaEntity](t, w)
	var fk *metaField
	for i := range meta.Fields {
		if meta.Fields[i].Type == "ref" {
			fk = &meta.Fields[i]
		}
	}
	require.NotNil(t, fk)
	assert.Equal(t, "setId", fk.Name)
	assert.Equal(t, "set_id", fk.Column)
	assert.Equal(t, "system.custom_field_set", fk.RefFQN)

	w = e.do(t, http.MethodGet, "/api/meta/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodGet, "/api/catalog", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "nw_product_subtitle"))

	w = e.do(t, http.MethodGet, "/api/catalog/lint", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode[map[string]any](t, w)["ok"])
}

func TestAdminReload(t *testing.T) {
	e := newEnv(t, dsl.VariantStandard)
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`
sets:
  - name: nw_x
    entity: product
    label: {system: X}
    fields:
      - {name: nw_x_a, type: nonsense, label: {system: A}}
`), 0o644))
	w := e.do(t, http.MethodPost, "/api/admin/reload", reloadReq{CatalogPath: bad})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 1, e.stor.Catalog().Len())

	w = e.do(t, http.MethodPost, "/api/admin/reload", reloadReq{
		CatalogPath: filepath.Join("..", "..", "catalog", "custom_fields.yaml"),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2, e.stor.Catalog().Len())

	w = e.do(t, http.MethodPost, "/api/lifecycle/install", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, e.store.Count(repo.CollectionSets))

	w = e.do(t, http.MethodPost, "/api/admin/reload", reloadReq{CatalogPath: filepath.Join(dir, "none.yaml")})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSchemaLint(t *testing.T) {
	ents := map[string]*dsl.Entity{
		"system.custom_field_set": {Module: "system", Name: "custom_field_set"},
		"system.custom_field": {Module: "system", Name: "custom_field", Fields: []dsl.Field{{
			Name: "setId", Type: "ref", RefTarget: "custom_field_set",
			Options: map[string]string{"required": "true", "on_delete": "set_null"},
		}, {
			Name: "kind", Type: "string", Options: map[string]string{"on_delete": "explode"},
		}}},
	}
	s := NewStorage(ents, repo.Set{}, nil)
	codes := map[string]int{}
	for _, is := range s.SchemaLint() {
		codes[is.Code]++
	}
	assert.Equal(t, map[string]int{
		"required_conflicts_on_delete": 1,
		"on_delete_unknown":            1,
		"collection_missing":           1,
	}, codes)
}
