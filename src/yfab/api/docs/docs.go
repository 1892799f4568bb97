// Package docs holds the OpenAPI document served under /swagger.
//
// Regenerate with: swag init -g src/yfab/docs.go -o src/yfab/api/docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/v1/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["System"],
                "summary": "Health check",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/api.HealthResponse"}}}
            }
        },
        "/v1/version": {
            "get": {
                "produces": ["application/json"],
                "tags": ["System"],
                "summary": "Version information",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/api.VersionResponse"}}}
            }
        },
        "/v1/session": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Session"],
                "summary": "Current session",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/workspace.Snapshot"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/v1/drives": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Flash"],
                "summary": "Removable drives",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.DriveListResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/v1/events": {
            "get": {
                "description": "Server-sent events: started, line, overwrite, progress and finished. EventSource clients pass the token as ?token=.",
                "produces": ["text/event-stream"],
                "tags": ["Operations"],
                "summary": "Operation event stream",
                "responses": {"200": {"description": "event stream", "schema": {"type": "string"}}}
            }
        },
        "/v1/operations": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Operations"],
                "summary": "Operation history",
                "parameters": [
                    {"type": "string", "description": "Filter by kind (build, flash, deploy)", "name": "kind", "in": "query"},
                    {"type": "integer", "description": "Maximum number of records", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.OperationListResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/v1/operations/active": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Operations"],
                "summary": "Running operations",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/api.ActiveResponse"}}}
            }
        },
        "/v1/operations/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Operations"],
                "summary": "Get an operation",
                "parameters": [{"type": "string", "description": "Operation ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/db.OperationRecord"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/v1/build": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Configures the tree, fetches missing layers and runs bitbake. Answers 409 while a build-class operation runs.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Operations"],
                "summary": "Start a build",
                "parameters": [{"description": "Build target", "name": "body", "in": "body", "schema": {"$ref": "#/definitions/api.BuildRequest"}}],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/api.OperationResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/errors.Response"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/v1/clean": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Operations"],
                "summary": "Clean the session image",
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/api.OperationResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/errors.Response"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/v1/flash": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Operations"],
                "summary": "Flash an image",
                "parameters": [{"description": "Device and optional image", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/api.FlashRequest"}}],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/api.OperationResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.Response"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/errors.Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.Response"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/v1/deploy": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Operations"],
                "summary": "Deploy an update bundle",
                "parameters": [{"description": "Optional bundle and password override", "name": "body", "in": "body", "schema": {"$ref": "#/definitions/api.DeployRequest"}}],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/api.OperationResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.Response"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/errors.Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.Response"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        }
    },
    "definitions": {
        "api.HealthResponse": {
            "type": "object",
            "properties": {"status": {"type": "string"}, "timestamp": {"type": "string"}}
        },
        "api.VersionResponse": {
            "type": "object",
            "properties": {
                "version": {"type": "string"},
                "release_name": {"type": "string"},
                "release_version": {"type": "string"},
                "build_date": {"type": "string"},
                "git_commit": {"type": "string"},
                "go_version": {"type": "string"}
            }
        },
        "api.BuildRequest": {"type": "object", "properties": {"target": {"type": "string"}}},
        "api.FlashRequest": {
            "type": "object",
            "properties": {"device": {"type": "string"}, "image": {"type": "string"}}
        },
        "api.DeployRequest": {
            "type": "object",
            "properties": {"bundle": {"type": "string"}, "password": {"type": "string"}}
        },
        "api.OperationResponse": {
            "type": "object",
            "properties": {"id": {"type": "string"}, "kind": {"type": "string"}, "target": {"type": "string"}}
        },
        "api.OperationListResponse": {
            "type": "object",
            "properties": {
                "count": {"type": "integer"},
                "operations": {"type": "array", "items": {"$ref": "#/definitions/db.OperationRecord"}}
            }
        },
        "api.ActiveResponse": {
            "type": "object",
            "properties": {"operations": {"type": "array", "items": {"type": "object"}}}
        },
        "api.DriveListResponse": {
            "type": "object",
            "properties": {
                "count": {"type": "integer"},
                "drives": {"type": "array", "items": {"type": "object"}}
            }
        },
        "db.OperationRecord": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "kind": {"type": "string"},
                "target": {"type": "string"},
                "status": {"type": "string"},
                "exit_code": {"type": "integer"},
                "error_message": {"type": "string"},
                "started_at": {"type": "string"},
                "finished_at": {"type": "string"}
            }
        },
        "workspace.Snapshot": {
            "type": "object",
            "properties": {
                "poky_dir": {"type": "string"},
                "build_dir": {"type": "string"},
                "provider": {"type": "string"},
                "settings": {"type": "array", "items": {"type": "object"}}
            }
        },
        "errors.Response": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "message": {"type": "string"},
                "details": {"type": "object"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Bearer token authentication. Mint one with ` + "`yfab token`" + `.",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8765",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "yfab API",
	Description:      "Drive Yocto image builds, flashing and OTA deploys over HTTP.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
