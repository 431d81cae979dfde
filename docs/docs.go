// Package docs holds the OpenAPI document served under /swagger. Regenerate
// it with `swag init -g cmd/server/main.go` after changing route annotations.
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
        "/dependents/{id}/accounts": {
            "post": {
                "tags": [
                    "accounts"
                ],
                "summary": "Onboard a dependent",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "201": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.Response"
                        }
                    },
                    "default": {
                        "description": "Problem",
                        "schema": {
                            "$ref": "#/definitions/common.ProblemDetails"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Dependent ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "type": "object"
                        }
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            },
            "get": {
                "tags": [
                    "accounts"
                ],
                "summary": "List a dependent's accounts",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.Response"
                        }
                    },
                    "default": {
                        "description": "Problem",
                        "schema": {
                            "$ref": "#/definitions/common.ProblemDetails"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Dependent ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/accounts/{id}/status": {
            "patch": {
                "tags": [
                    "accounts"
                ],
                "summary": "Change account status",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.Response"
                        }
                    },
                    "default": {
                        "description": "Problem",
                        "schema": {
                            "$ref": "#/definitions/common.ProblemDetails"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Account ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "type": "object"
                        }
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/dependents/{id}/allocation": {
            "get": {
                "tags": [
                    "allocation"
                ],
                "summary": "Read allocation rules",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.Response"
                        }
                    },
                    "default": {
                        "description": "Problem",
                        "schema": {
                            "$ref": "#/definitions/common.ProblemDetails"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Dependent ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            },
            "put": {
                "tags": [
                    "allocation"
                ],
                "summary": "Replace allocation rules",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.Response"
                        }
                    },
                    "default": {
                        "description": "Problem",
                        "schema": {
                            "$ref": "#/definitions/common.ProblemDetails"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Dependent ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "type": "object"
                        }
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/funders/{funderId}/dependents/{id}": {
            "post": {
                "tags": [
                    "funders"
                ],
                "summary": "Link a funder",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "201": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.Response"
                        }
                    },
                    "default": {
                        "description": "Problem",
                        "schema": {
                            "$ref": "#/definitions/common.ProblemDetails"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Funder ID",
                        "name": "funderId",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "Dependent ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            },
            "delete": {
                "tags": [
                    "funders"
                ],
                "summary": "Unlink a funder",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.Response"
                        }
                    },
                    "default": {
                        "description": "Problem",
                        "schema": {
                            "$ref": "#/definitions/common.ProblemDetails"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Funder ID",
                        "name": "funderId",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "Dependent ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/deposits/confirm": {
            "post": {
                "tags": [
                    "deposits"
                ],
                "summary": "Confirm a deposit",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "201": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.Response"
                        }
                    },
                    "default": {
                        "description": "Problem",
                        "schema": {
                            "$ref": "#/definitions/common.ProblemDetails"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "type": "object"
                        }
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/deposits/{reference}": {
            "get": {
                "tags": [
                    "deposits"
                ],
                "summary": "Read a deposit confirmation",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.Response"
                        }
                    },
                    "default": {
                        "description": "Problem",
                        "schema": {
                            "$ref": "#/definitions/common.ProblemDetails"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Payment reference",
                        "name": "reference",
                        "in": "path",
                        "required": true
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/deposits/{reference}/rejections": {
            "get": {
                "tags": [
                    "deposits"
                ],
                "summary": "List rejected attempts for a payment reference",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.Response"
                        }
                    },
                    "default": {
                        "description": "Problem",
                        "schema": {
                            "$ref": "#/definitions/common.ProblemDetails"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Payment reference",
                        "name": "reference",
                        "in": "path",
                        "required": true
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/deposits/{reference}/distribution/retry": {
            "post": {
                "tags": [
                    "deposits"
                ],
                "summary": "Retry a deposit's distribution",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.Response"
                        }
                    },
                    "default": {
                        "description": "Problem",
                        "schema": {
                            "$ref": "#/definitions/common.ProblemDetails"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Payment reference",
                        "name": "reference",
                        "in": "path",
                        "required": true
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/stripe/webhooks": {
            "post": {
                "tags": [
                    "deposits"
                ],
                "summary": "Stripe webhook",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.Response"
                        }
                    },
                    "default": {
                        "description": "Problem",
                        "schema": {
                            "$ref": "#/definitions/common.ProblemDetails"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "name": "Stripe-Signature",
                        "in": "header",
                        "required": true
                    }
                ]
            }
        },
        "/transfers": {
            "post": {
                "tags": [
                    "transfers"
                ],
                "summary": "Transfer between categories",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "201": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.Response"
                        }
                    },
                    "default": {
                        "description": "Problem",
                        "schema": {
                            "$ref": "#/definitions/common.ProblemDetails"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "name": "Idempotency-Key",
                        "in": "header"
                    },
                    {
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "type": "object"
                        }
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/transfers/{reference}/reverse": {
            "post": {
                "tags": [
                    "transfers"
                ],
                "summary": "Reverse a transfer",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "201": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.Response"
                        }
                    },
                    "default": {
                        "description": "Problem",
                        "schema": {
                            "$ref": "#/definitions/common.ProblemDetails"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Transfer reference",
                        "name": "reference",
                        "in": "path",
                        "required": true
                    },
                    {
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "type": "object"
                        }
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/payouts": {
            "post": {
                "tags": [
                    "payouts"
                ],
                "summary": "Pay out from a category",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "201": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.Response"
                        }
                    },
                    "default": {
                        "description": "Problem",
                        "schema": {
                            "$ref": "#/definitions/common.ProblemDetails"
                        }
                    }
                },
                "parameters": [
                    {
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "type": "object"
                        }
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/dependents/{id}/balances": {
            "get": {
                "tags": [
                    "reports"
                ],
                "summary": "Category balances",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.Response"
                        }
                    },
                    "default": {
                        "description": "Problem",
                        "schema": {
                            "$ref": "#/definitions/common.ProblemDetails"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Dependent ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/accounts/{id}/history": {
            "get": {
                "tags": [
                    "reports"
                ],
                "summary": "Account history",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.Response"
                        }
                    },
                    "default": {
                        "description": "Problem",
                        "schema": {
                            "$ref": "#/definitions/common.ProblemDetails"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Account ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "string",
                        "name": "from",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "name": "to",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "name": "category",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "name": "type",
                        "in": "query"
                    },
                    {
                        "type": "integer",
                        "name": "page",
                        "in": "query"
                    },
                    {
                        "type": "integer",
                        "name": "pageSize",
                        "in": "query"
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/dependents/{id}/summary": {
            "get": {
                "tags": [
                    "reports"
                ],
                "summary": "Spending summary",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.Response"
                        }
                    },
                    "default": {
                        "description": "Problem",
                        "schema": {
                            "$ref": "#/definitions/common.ProblemDetails"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Dependent ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "string",
                        "name": "from",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "name": "to",
                        "in": "query"
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/dependents/{id}/reports/monthly": {
            "get": {
                "tags": [
                    "reports"
                ],
                "summary": "Monthly report",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.Response"
                        }
                    },
                    "default": {
                        "description": "Problem",
                        "schema": {
                            "$ref": "#/definitions/common.ProblemDetails"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Dependent ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "integer",
                        "name": "year",
                        "in": "query"
                    },
                    {
                        "type": "integer",
                        "name": "month",
                        "in": "query"
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/dependents/{id}/audit": {
            "get": {
                "tags": [
                    "reports"
                ],
                "summary": "Ledger audit",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.Response"
                        }
                    },
                    "default": {
                        "description": "Problem",
                        "schema": {
                            "$ref": "#/definitions/common.ProblemDetails"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Dependent ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        }
    },
    "definitions": {
        "common.Response": {
            "type": "object",
            "properties": {
                "status": {
                    "type": "integer"
                },
                "message": {
                    "type": "string"
                },
                "data": {}
            }
        },
        "common.ProblemDetails": {
            "type": "object",
            "properties": {
                "type": {
                    "type": "string"
                },
                "title": {
                    "type": "string"
                },
                "status": {
                    "type": "integer"
                },
                "detail": {
                    "type": "string"
                },
                "instance": {
                    "type": "string"
                },
                "errors": {}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Enter your Bearer token in the format: ` + "`" + `Bearer {token}` + "`" + `",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:3000",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "CareFund API",
	Description:      "Guardian-managed, category-budgeted ledger",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
