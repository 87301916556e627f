// Package docs registers the OpenAPI document served under /swagger/.
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
        "/tournaments/{tournamentID}/bracket": {
            "get": {
                "produces": ["application/json"],
                "tags": ["brackets"],
                "summary": "Get the bracket of a tournament",
                "parameters": [{"type": "integer", "description": "Tournament ID", "name": "tournamentID", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.BracketView"}},
                    "404": {"description": "Tournament not found", "schema": {"$ref": "#/definitions/handlers.errorEnvelope"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["brackets"],
                "summary": "Generate the bracket of a tournament",
                "parameters": [
                    {"type": "integer", "description": "Tournament ID", "name": "tournamentID", "in": "path", "required": true},
                    {"description": "Format and optional number of Swiss rounds", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/services.GenerateBracketInput"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/services.BracketView"}},
                    "400": {"description": "Unsupported format or not enough teams", "schema": {"$ref": "#/definitions/handlers.errorEnvelope"}},
                    "409": {"description": "Tournament closed", "schema": {"$ref": "#/definitions/handlers.errorEnvelope"}}
                }
            }
        },
        "/tournaments/{tournamentID}/bracket/swiss/next-round": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["brackets"],
                "summary": "Pair the next Swiss round",
                "parameters": [{"type": "integer", "description": "Tournament ID", "name": "tournamentID", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.BracketView"}},
                    "409": {"description": "Round incomplete or all rounds paired", "schema": {"$ref": "#/definitions/handlers.errorEnvelope"}}
                }
            }
        },
        "/tournaments/{tournamentID}/standings": {
            "get": {
                "produces": ["application/json"],
                "tags": ["brackets"],
                "summary": "Get tournament standings",
                "parameters": [{"type": "integer", "description": "Tournament ID", "name": "tournamentID", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/tournaments/{tournamentID}/matches": {
            "get": {
                "produces": ["application/json"],
                "tags": ["matches"],
                "summary": "List the matches of a tournament",
                "parameters": [
                    {"type": "integer", "description": "Tournament ID", "name": "tournamentID", "in": "path", "required": true},
                    {"type": "integer", "description": "Only matches of this bracket", "name": "bracket_id", "in": "query"},
                    {"type": "integer", "description": "Only matches of this round", "name": "round", "in": "query"},
                    {"enum": ["SCHEDULED", "IN_PROGRESS", "COMPLETED", "CANCELLED"], "type": "string", "description": "Only matches in this status", "name": "status", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/matches/{matchID}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["matches"],
                "summary": "Get a match",
                "parameters": [{"type": "integer", "description": "Match ID", "name": "matchID", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/models.Match"}}}
            }
        },
        "/matches/{matchID}/result": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["matches"],
                "summary": "Record a match result",
                "parameters": [
                    {"type": "integer", "description": "Match ID", "name": "matchID", "in": "path", "required": true},
                    {"description": "Scores", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/services.RecordResultInput"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/services.RecordedResult"}},
                    "409": {"description": "Match already completed or advancement conflict", "schema": {"$ref": "#/definitions/handlers.errorEnvelope"}}
                }
            }
        },
        "/matches/{matchID}/result/confirm": {
            "patch": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["matches"],
                "summary": "Confirm the latest result of a match",
                "parameters": [{"type": "integer", "description": "Match ID", "name": "matchID", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/matches/{matchID}/status": {
            "patch": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["matches"],
                "summary": "Change the status of a match",
                "parameters": [
                    {"type": "integer", "description": "Match ID", "name": "matchID", "in": "path", "required": true},
                    {"description": "New status", "name": "body", "in": "body", "required": true, "schema": {"type": "object", "properties": {"status": {"type": "string"}}}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/models.Match"}}}
            }
        },
        "/matches/{matchID}/bye": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["matches"],
                "summary": "Advance the only team of a bye match",
                "parameters": [{"type": "integer", "description": "Match ID", "name": "matchID", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/services.RecordedResult"}}}
            }
        }
    },
    "definitions": {
        "handlers.errorEnvelope": {
            "type": "object",
            "properties": {"error": {"type": "string"}}
        },
        "models.Match": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "tournament_id": {"type": "integer"},
                "bracket_id": {"type": "integer"},
                "round": {"type": "integer"},
                "position": {"type": "integer"},
                "team1_id": {"type": "integer"},
                "team2_id": {"type": "integer"},
                "status": {"type": "string", "enum": ["SCHEDULED", "IN_PROGRESS", "COMPLETED", "CANCELLED"]},
                "is_bye": {"type": "boolean"},
                "started_at": {"type": "string"},
                "ended_at": {"type": "string"}
            }
        },
        "services.GenerateBracketInput": {
            "type": "object",
            "properties": {
                "format": {"type": "string", "enum": ["SINGLE_ELIMINATION", "DOUBLE_ELIMINATION", "ROUND_ROBIN", "SWISS"]},
                "swiss_rounds": {"type": "integer"}
            }
        },
        "services.RecordResultInput": {
            "type": "object",
            "properties": {
                "team1_score": {"type": "integer"},
                "team2_score": {"type": "integer"},
                "details": {"type": "string"}
            }
        },
        "services.RecordedResult": {
            "type": "object",
            "properties": {
                "match": {"$ref": "#/definitions/models.Match"},
                "result": {"type": "object"},
                "advanced": {"type": "array", "items": {"$ref": "#/definitions/models.Match"}}
            }
        },
        "services.BracketView": {
            "type": "object",
            "properties": {
                "tournament": {"type": "object"},
                "brackets": {"type": "array", "items": {"type": "object"}},
                "teams": {"type": "array", "items": {"type": "object"}},
                "stats": {"type": "object"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Tournament Brackets API",
	Description:      "Bracket generation, result recording and winner advancement for tournaments.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
