package api

import (
	"net/http"
	"strings"

	"fieldsync/internal/catalog"

	"github.com/gin-gonic/gin"
)

type reloadReq struct {
	CatalogPath string `json:"catalog_path"` // YAML или папка с YAML; пусто = встроенный
}

// POST /api/admin/reload — перечитать каталог, применить только без блокирующих проблем
func AdminReloadHandler(storage *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reloadReq
		if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
			return
		}

		// 1) читаем новый каталог
		path := strings.TrimSpace(req.CatalogPath)
		cat, err := catalog.LoadPath(path)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Catalog load error", "details": err.Error()})
			return
		}

		// 2) линтер
		if issues := cat.Validate(); len(issues) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":       "catalog has blocking issues",
				"issues":      issues,
				"hint":        "fix catalog and retry",
				"catalogPath": path,
			})
			return
		}

		// 3) атомарная замена
		storage.SwapCatalog(cat)

		c.JSON(http.StatusOK, gin.H{
			"ok":          true,
			"catalogPath": path,
			"sets":        cat.Len(),
		})
	}
}
