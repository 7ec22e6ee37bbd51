//go:build swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

// openAPIDoc describes the local endpoints. Forwarded /v1 routes belong to
// llama-server and are documented there.
const openAPIDoc = `{
  "swagger": "2.0",
  "info": {"title": "llamagate API", "version": "1.0",
    "description": "Gateway in front of a supervised llama-server."},
  "basePath": "/",
  "paths": {
    "/ping": {"get": {"summary": "Health snapshot", "produces": ["application/json"],
      "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.HealthSnapshot"}}}}},
    "/metrics": {"get": {"summary": "Prometheus metrics", "produces": ["text/plain"],
      "responses": {"200": {"description": "OK"}}}}
  },
  "definitions": {
    "types.ErrorResponse": {"type": "object", "properties": {
      "error": {"type": "string"}, "code": {"type": "integer"}}},
    "types.HealthSnapshot": {"type": "object", "properties": {
      "status": {"type": "string", "example": "healthy"},
      "timestamp": {"type": "string", "format": "date-time"},
      "uptime_seconds": {"type": "number"},
      "server": {"type": "object"},
      "system": {"type": "object"},
      "gpu": {"type": "object"},
      "statistics": {"type": "object"}}}
  }
}`

type swaggerDoc struct{}

func (swaggerDoc) ReadDoc() string { return openAPIDoc }

func init() {
	swag.Register(swag.Name, swaggerDoc{})
}

// MountSwagger serves the swagger UI under /swagger/.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}
