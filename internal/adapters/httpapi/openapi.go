package httpapi

import (
	"net/http"

	"github.com/Guilhem-Bonnet/ruv-dl/internal/buildinfo"
	"github.com/Guilhem-Bonnet/ruv-dl/internal/httpjson"
)

// handleOpenAPI renvoie une description OpenAPI minimale de l'API.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	jsonOK := func(schemaRef string) map[string]any {
		return map[string]any{
			"description": "OK",
			"content": map[string]any{
				"application/json": map[string]any{
					"schema": map[string]any{"$ref": schemaRef},
				},
			},
		}
	}
	jsonBody := func(schemaRef string) map[string]any {
		return map[string]any{
			"required": true,
			"content": map[string]any{
				"application/json": map[string]any{
					"schema": map[string]any{"$ref": schemaRef},
				},
			},
		}
	}

	jsonErr := map[string]any{
		"description": "Error",
		"content": map[string]any{
			"application/json": map[string]any{
				"schema": map[string]any{"$ref": "#/components/schemas/Error"},
			},
		},
	}

	str := map[string]any{"type": "string"}
	episode := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id":           str,
			"programId":    str,
			"programTitle": str,
			"foreignTitle": str,
			"title":        str,
			"firstAirDate": str,
			"quality":      str,
			"manifestUrl":  str,
			"subtitleUrl":  str,
		},
		"required": []any{"id", "programTitle", "title"},
	}

	spec := map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "ruv-dl API",
			"version": buildinfo.Current().Version,
		},
		"components": map[string]any{
			"schemas": map[string]any{
				"OpenAPIDocument": map[string]any{
					"type":                 "object",
					"additionalProperties": true,
				},
				"Error": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"error": str,
					},
					"required": []any{"error"},
				},
				"Settings": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"maxParallelDownloads": map[string]any{"type": "integer", "minimum": 1},
					},
					"required": []any{"maxParallelDownloads"},
				},
				"Program": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":               str,
						"title":            str,
						"foreignTitle":     str,
						"shortDescription": str,
						"episodes":         map[string]any{"type": "integer"},
					},
					"required": []any{"id", "title", "episodes"},
				},
				"ProgramList": map[string]any{
					"type":  "array",
					"items": map[string]any{"$ref": "#/components/schemas/Program"},
				},
				"Completion": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":           str,
						"programId":    str,
						"programTitle": str,
						"title":        str,
						"foreignTitle": str,
						"quality":      str,
						"firstAirDate": str,
					},
					"required": []any{"id", "programTitle", "title"},
				},
				"CompletionList": map[string]any{
					"type":  "array",
					"items": map[string]any{"$ref": "#/components/schemas/Completion"},
				},
				"Episode": episode,
				"StartDownloadRequest": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"programIds": map[string]any{"type": "array", "items": str, "minItems": 1},
						"quality":    map[string]any{"type": "string", "example": "1080p"},
					},
					"required": []any{"programIds"},
				},
				"RunStatus": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"runId":      str,
						"programIds": map[string]any{"type": "array", "items": str},
						"quality":    str,
						"running":    map[string]any{"type": "boolean"},
						"startedAt":  map[string]any{"type": "string", "format": "date-time"},
						"finishedAt": map[string]any{"type": "string", "format": "date-time"},
						"error":      str,
						"result": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"runId":       str,
								"downloaded":  map[string]any{"type": "array", "items": map[string]any{"$ref": "#/components/schemas/Episode"}},
								"skipped":     map[string]any{"type": "array", "items": map[string]any{"$ref": "#/components/schemas/Episode"}},
								"failed":      map[string]any{"type": "array", "items": map[string]any{"type": "object", "additionalProperties": true}},
								"interrupted": map[string]any{"type": "boolean"},
							},
						},
					},
					"required": []any{"runId", "running", "startedAt"},
				},
			},
		},
		"paths": map[string]any{
			"/api/v1/health": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": map[string]any{"description": "status, version, runActive, runId, activeDownloads"}}},
			},
			"/api/v1/version": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": map[string]any{"description": "OK"}}},
			},
			"/api/v1/openapi.json": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": jsonOK("#/components/schemas/OpenAPIDocument")}},
			},
			"/api/v1/events": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": map[string]any{"description": "SSE: run.*, episode.*"}}},
			},
			"/api/v1/programs": map[string]any{
				"get": map[string]any{
					"parameters": []any{
						map[string]any{"name": "q", "in": "query", "schema": str},
						map[string]any{"name": "ignoreCase", "in": "query", "schema": map[string]any{"type": "boolean"}},
						map[string]any{"name": "force", "in": "query", "schema": map[string]any{"type": "boolean"}},
					},
					"responses": map[string]any{
						"200": jsonOK("#/components/schemas/ProgramList"),
						"502": jsonErr,
					},
				},
			},
			"/api/v1/completions": map[string]any{
				"get": map[string]any{
					"responses": map[string]any{
						"200": jsonOK("#/components/schemas/CompletionList"),
						"500": jsonErr,
					},
				},
			},
			"/api/v1/downloads": map[string]any{
				"post": map[string]any{
					"requestBody": jsonBody("#/components/schemas/StartDownloadRequest"),
					"responses": map[string]any{
						"202": jsonOK("#/components/schemas/RunStatus"),
						"400": jsonErr,
						"409": jsonErr,
					},
				},
			},
			"/api/v1/downloads/current": map[string]any{
				"get": map[string]any{
					"responses": map[string]any{
						"200": jsonOK("#/components/schemas/RunStatus"),
						"404": jsonErr,
					},
				},
			},
			"/api/v1/settings": map[string]any{
				"get": map[string]any{
					"responses": map[string]any{
						"200": jsonOK("#/components/schemas/Settings"),
					},
				},
				"patch": map[string]any{
					"requestBody": jsonBody("#/components/schemas/Settings"),
					"responses": map[string]any{
						"200": jsonOK("#/components/schemas/Settings"),
						"400": jsonErr,
					},
				},
			},
		},
	}

	httpjson.Write(w, http.StatusOK, spec)
}
