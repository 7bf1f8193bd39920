package router

import (
	"os"
	"path/filepath"

	"provider-messaging/backend/pkg/validator"
)

// AddOpenAPIValidation validates requests against the schema and serves the
// schema under /api/docs. A missing schema only disables validation.
func (r *Router) AddOpenAPIValidation(schemaPath string) {
	if _, err := os.Stat(schemaPath); os.IsNotExist(err) {
		r.Logger.Warn("OpenAPI schema file not found, skipping validation", "path", schemaPath)
		return
	}

	v, err := validator.NewOpenAPIValidator(schemaPath)
	if err != nil {
		r.Logger.Error("Failed to initialize OpenAPI validator", "error", err.Error())
		return
	}

	r.Engine.Use(v.Middleware())
	r.Engine.StaticFile("/api/docs/openapi.yaml", schemaPath)
	r.Logger.Info("OpenAPI validation enabled", "schema", filepath.Clean(schemaPath))
}
