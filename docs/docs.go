// Package docs регистрирует описание API billing-gate для Swagger UI (/docs/*).
// Описание соответствует аннотациям godoc у HTTP-обработчиков.
package docs

import "github.com/swaggo/swag"

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
        "/register": {
            "post": {
                "tags": ["Auth"],
                "summary": "Регистрация арендатора",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/models.SignupRequest"}}],
                "responses": {
                    "201": {"description": "Компания создана", "schema": {"$ref": "#/definitions/response.Response"}},
                    "400": {"description": "Некорректный JSON", "schema": {"$ref": "#/definitions/response.ErrorResponse"}},
                    "409": {"description": "Email уже зарегистрирован", "schema": {"$ref": "#/definitions/response.ErrorResponse"}},
                    "422": {"description": "Ошибка валидации", "schema": {"$ref": "#/definitions/response.ErrorResponse"}}
                }
            }
        },
        "/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Вход пользователя",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/models.LoginRequest"}}],
                "responses": {
                    "200": {"description": "Токен и вызывающий", "schema": {"$ref": "#/definitions/response.Response"}},
                    "401": {"description": "Неверные учетные данные", "schema": {"$ref": "#/definitions/response.ErrorResponse"}}
                }
            }
        },
        "/billing/webhook": {
            "post": {
                "tags": ["Billing"],
                "summary": "Вебхук платёжного провайдера",
                "parameters": [{"in": "header", "name": "Stripe-Signature", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "Событие принято"},
                    "400": {"description": "Нет подписи или тело не разбирается"},
                    "413": {"description": "Слишком большое тело"}
                }
            }
        },
        "/billing/finalize": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Billing"],
                "summary": "Финализация checkout-сессии",
                "parameters": [{"in": "query", "name": "session_id", "type": "string", "required": true}],
                "responses": {"303": {"description": "Перенаправление на success_url или error_url?error=<код>"}}
            }
        },
        "/billing/checkout": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["Billing"],
                "summary": "Создать checkout-сессию",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "Идентификатор и адрес сессии", "schema": {"$ref": "#/definitions/response.Response"}},
                    "403": {"description": "Вызывающий не владелец", "schema": {"$ref": "#/definitions/response.ErrorResponse"}},
                    "502": {"description": "Провайдер недоступен", "schema": {"$ref": "#/definitions/response.ErrorResponse"}}
                }
            }
        },
        "/billing/status": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Billing"],
                "summary": "Биллинговый статус компании",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "Статус", "schema": {"$ref": "#/definitions/billing.StatusView"}},
                    "404": {"description": "У пользователя нет компании", "schema": {"$ref": "#/definitions/response.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "models.SignupRequest": {
            "type": "object",
            "required": ["company_name", "username", "email", "password"],
            "properties": {
                "company_name": {"type": "string"},
                "username": {"type": "string"},
                "email": {"type": "string"},
                "password": {"type": "string", "minLength": 8}
            }
        },
        "models.LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "billing.StatusView": {
            "type": "object",
            "properties": {
                "companyId": {"type": "string"},
                "trial_started_at": {"type": "string", "format": "date-time"},
                "trial_ends_at": {"type": "string", "format": "date-time"},
                "subscription_status": {"type": "string", "enum": ["none", "trialing", "active", "past_due", "canceled", "unpaid"]},
                "status": {"type": "string", "enum": ["trial", "active", "expired"]},
                "trial_days_remaining": {"type": "integer"},
                "is_active": {"type": "boolean"}
            }
        },
        "response.Response": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "OK"},
                "error": {"type": "string"},
                "data": {}
            }
        },
        "response.ErrorResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "Error"},
                "error": {"type": "string", "example": "invalid request body"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Type \"Bearer\" followed by a space and JWT token.",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Billing Gate API",
	Description:      "Подписки компаний, вебхуки платёжного провайдера и шлюз доступа.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
