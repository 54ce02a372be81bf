package api

import (
	"net/http"
	"time"

	"fieldsync/internal/repo"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
)

func flatten(rec *repo.Record) map[string]interface{} {
	out := map[string]interface{}{
		"id":         rec.ID,
		"version":    rec.Version,
		"created_at": rec.CreatedAt.Format(time.RFC3339),
		"updated_at": rec.UpdatedAt.Format(time.RFC3339),
	}
	for k, v := range rec.Data {
		// атрибуты коллекции не перетирают служебные, если вдруг совпадут
		if _, clash := out[k]; clash {
			out["data."+k] = v
			continue
		}
		out[k] = v
	}
	return out
}

// writeError: незамапленный атрибут → 400, дубликат → 409, прочее → 500
func writeError(c *gin.Context, err error) {
	if field, ok := repo.IsUnmapped(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown attribute", "field": field, "details": err.Error()})
		return
	}
	if errors.Is(err, repo.ErrDuplicateID) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
