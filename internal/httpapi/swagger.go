//go:build swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/training/jobs": {
            "get": {"tags": ["training"], "summary": "List training jobs, newest first"},
            "post": {"tags": ["training"], "summary": "Create a training job"}
        },
        "/training/jobs/{id}": {"get": {"tags": ["training"], "summary": "Get a training job with its progress"}},
        "/training/jobs/{id}/cancel": {"post": {"tags": ["training"], "summary": "Cancel a PENDING or RUNNING job"}},
        "/training/jobs/{id}/logs": {"get": {"tags": ["training"], "summary": "Most recent log lines of a job"}},
        "/inference/{model_id}": {"post": {"tags": ["inference"], "summary": "Run a cached model on column-oriented input"}},
        "/cache/stats": {"get": {"tags": ["cache"], "summary": "Cache counters"}},
        "/cache/models/{model_id}": {"delete": {"tags": ["cache"], "summary": "Drop one model from the cache"}},
        "/cache": {"delete": {"tags": ["cache"], "summary": "Drop every cached model"}},
        "/models": {"get": {"tags": ["models"], "summary": "Trained model artifacts in the storage root"}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "iotml API",
	Description:      "Model cache, training jobs and inference for IoT telemetry models.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// MountSwagger serves the API documentation under /swagger/.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}
