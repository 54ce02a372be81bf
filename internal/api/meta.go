package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
)

// ===== META HANDLERS =====

type metaField struct {
	Name     string            `json:"name"`
	Type     string            `json:"type"`
	Column   string            `json:"column"`
	Required bool              `json:"required,omitempty"`
	Ref      string            `json:"ref,omitempty"`
	RefFQN   string            `json:"refFQN,omitempty"`
	Options  map[string]string `json:"options,omitempty"`
}

type metaEntity struct {
	Module string      `json:"module"`
	Entity string      `json:"entity"`
	Fields []metaField `json:"fields"`
}

func (s *Storage) describe(fqn string) metaEntity {
	schema := s.Schemas[fqn]
	fields := make([]metaField, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		var opts map[string]string
		if len(f.Options) > 0 {
			opts = make(map[string]string, len(f.Options))
			for k, v := range f.Options {
				opts[k] = v
			}
		}

		refFQN := ""
		if strings.EqualFold(f.Type, "ref") && f.RefTarget != "" {
			target := f.RefTarget
			if !strings.Contains(target, ".") {
				target = schema.Module + "." + target
			}
			if full, ok := s.NormalizeEntityName(target); ok {
				refFQN = full
			}
		}

		fields = append(fields, metaField{
			Name:     f.Name,
			Type:     strings.ToLower(f.Type),
			Column:   f.Column(),
			Required: f.Required(),
			Ref:      f.RefTarget,
			RefFQN:   refFQN,
			Options:  opts,
		})
	}
	return metaEntity{Module: schema.Module, Entity: schema.Name, Fields: fields}
}

// GET /api/meta — коллекции и их атрибуты
func MetaListHandler(storage *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		keys := make([]string, 0, len(storage.Schemas))
		for fqn := range storage.Schemas {
			keys = append(keys, fqn)
		}
		sort.Strings(keys)

		out := make([]metaEntity, 0, len(keys))
		for _, fqn := range keys {
			out = append(out, storage.describe(fqn))
		}
		c.JSON(http.StatusOK, out)
	}
}

// GET /api/meta/:collection
func MetaEntityHandler(storage *Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		fqn, ok := storage.NormalizeEntityName(c.Param("collection"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Entity not found"})
			return
		}
		c.JSON(http.StatusOK, storage.describe(fqn))
	}
}
