//go:build swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
	"github.com/swaggo/swag"
	httpSwagger "github.com/swaggo/http-swagger"
)

// docTemplate is a hand-maintained outline of the routes. Regenerate with swag
// init for full schemas.
const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "{{.Title}}",
        "description": "{{escape .Description}}",
        "version": "{{.Version}}"
    },
    "basePath": "{{.BasePath}}",
    "schemes": {{ marshal .Schemes }},
    "paths": {
        "/models": {"get": {"summary": "List catalog models", "responses": {"200": {"description": "OK"}}}},
        "/status": {"get": {"summary": "Lifecycle status", "responses": {"200": {"description": "OK"}}}},
        "/generate": {"post": {"summary": "Generate a reply", "responses": {"200": {"description": "OK"}, "429": {"description": "Queue full"}, "503": {"description": "Not ready"}}}},
        "/initialize": {"post": {"summary": "Initialize the selected model", "responses": {"202": {"description": "Accepted"}}}},
        "/download": {"post": {"summary": "Download with consent", "responses": {"202": {"description": "Accepted"}}}},
        "/switch": {"post": {"summary": "Switch model", "responses": {"202": {"description": "Accepted"}, "404": {"description": "Unknown model"}}}},
        "/unload": {"post": {"summary": "Unload the active model", "responses": {"200": {"description": "OK"}}}},
        "/reload": {"post": {"summary": "Reload if nothing is installed", "responses": {"202": {"description": "Accepted"}}}},
        "/progress": {"get": {"summary": "Server-sent lifecycle events", "responses": {"200": {"description": "Event stream"}}}},
        "/remote/models": {"get": {"summary": "Models on the remote endpoint", "responses": {"200": {"description": "OK"}}}}
    }
}`

// SwaggerInfo holds exported doc metadata.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "inferd API",
	Description:      "HTTP API for on-device inference with interchangeable engines.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// MountSwagger serves the API docs under /swagger/.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}
