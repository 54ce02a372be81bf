package api

import (
	"fmt"
	"net/http"
	"strconv"

	"fieldsync/internal/plugin"
	"fieldsync/internal/repo"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
)

// POST /api/lifecycle/:hook[?keepUserData=true]
func LifecycleHandler(storage *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		hook := c.Param("hook")
		keep := false
		if v := c.Query("keepUserData"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "keepUserData must be a boolean"})
				return
			}
			keep = b
		}

		rep, err := storage.Plugin().Run(c.Request.Context(), hook, keep)
		if err != nil {
			var unknown *plugin.UnknownHookError
			if errors.As(err, &unknown) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			// отчёт с частичным прогрессом — тоже полезен
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "report": rep})
			return
		}
		if rep == nil {
			c.JSON(http.StatusOK, gin.H{"hook": hook, "ok": true})
			return
		}
		c.JSON(http.StatusOK, rep)
	}
}

// GET /api/catalog
func CatalogHandler(storage *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, storage.Catalog())
	}
}

// GET /api/catalog/lint
func CatalogLintHandler(storage *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		issues := storage.Catalog().Validate()
		schema := storage.SchemaLint()
		c.JSON(http.StatusOK, gin.H{
			"ok":     len(issues) == 0 && len(schema) == 0,
			"issues": issues,
			"schema": schema,
		})
	}
}

// GET /api/:collection?limit=&offset=&<attr>=<value>
func ListHandler(storage *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		r, ok := storage.repository(c.Param("collection"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Entity not found"})
			return
		}
		ctx := c.Request.Context()
		lp := parseListParams(c.Request.URL.Query())

		ids, err := r.SearchIDs(ctx, lp.Criteria())
		if err != nil {
			writeError(c, err)
			return
		}

		page := lp.page(ids)
		out := make([]map[string]any, 0, len(page))
		for _, id := range page {
			rec, err := r.Search(ctx, repo.Where(repo.IDField, id))
			if err != nil {
				writeError(c, err)
				return
			}
			if rec == nil {
				// удалена между запросами
				continue
			}
			out = append(out, flatten(rec))
		}
		c.Header("X-Total-Count", strconv.Itoa(len(ids)))
		c.JSON(http.StatusOK, out)
	}
}

// GET /api/:collection/:id
func GetOneHandler(storage *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		r, ok := storage.repository(c.Param("collection"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Entity not found"})
			return
		}
		rec, err := r.Search(c.Request.Context(), repo.Where(repo.IDField, c.Param("id")))
		if err != nil {
			writeError(c, err)
			return
		}
		if rec == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
			return
		}
		c.Header("ETag", fmt.Sprintf(`"%d"`, rec.Version))
		c.JSON(http.StatusOK, flatten(rec))
	}
}

func HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
