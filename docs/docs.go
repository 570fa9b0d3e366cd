// Package docs Swagger 文档，由 swag init -g cmd/api-gateway/main.go 重新生成
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
        "/api/v1/pricing/plans": {
            "get": {
                "produces": ["application/json"],
                "tags": ["定价"],
                "summary": "套餐列表",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/referrals/track": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["推广"],
                "summary": "记录推广链接访问",
                "responses": {"200": {"description": "OK"}, "429": {"description": "Too Many Requests"}}
            }
        },
        "/api/v1/signups": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["学校报名"],
                "summary": "创建学校报名",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/payments/paystack/webhook": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["支付"],
                "summary": "Paystack 回调",
                "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}}
            }
        },
        "/api/v1/affiliate/withdrawals": {
            "post": {
                "security": [{"Bearer": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["推广员"],
                "summary": "申请提现",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/admin/withdrawals/{id}/pay": {
            "post": {
                "security": [{"Bearer": []}],
                "produces": ["application/json"],
                "tags": ["管理-提现"],
                "summary": "确认打款",
                "parameters": [{"type": "integer", "description": "提现申请ID", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden"}}
            }
        }
    },
    "securityDefinitions": {
        "Bearer": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "School Portal API",
	Description:      "学校 SaaS 门户后端：推广归因、佣金账本、提现与支付",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
