package server

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"

	msconfig "devgateway/config"
	appinfo "devgateway/pkg/appinfo"
)

var pathParamRegex = regexp.MustCompile(`{([a-zA-Z0-9_]+)}`)

// setMap safely sets a key-value pair in a map if the map is non-nil.
func setMap(m map[string]interface{}, key string, value interface{}) {
	if m != nil {
		m[key] = value
	}
}

func replacePathParams(path string) string {
	// The engine's {name} pattern syntax is already OpenAPI-compatible;
	// only the "**"/"*" wildcard segments need stripping since they have no
	// OpenAPI equivalent.
	return strings.ReplaceAll(strings.ReplaceAll(path, "/**", ""), "*", "")
}

func buildParameters(h msconfig.HandlerConfig) []map[string]interface{} {
	var params []map[string]interface{}
	for _, name := range pathParamRegex.FindAllStringSubmatch(h.Pattern, -1) {
		params = append(params, map[string]interface{}{
			"name":     name[1],
			"in":       "path",
			"required": true,
			"schema":   map[string]interface{}{"type": "string"},
		})
	}
	return params
}

func buildRequestBody(h msconfig.HandlerConfig) map[string]interface{} {
	return map[string]interface{}{
		"required": true,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": h.BodySchema,
			},
		},
	}
}

func buildResponses(h msconfig.HandlerConfig) map[string]interface{} {
	responses := map[string]interface{}{}

	for _, cs := range h.Cases {
		statusCode := fmt.Sprintf("%d", cs.Then.Status)
		responses[statusCode] = map[string]interface{}{
			"description": fmt.Sprintf("Case response for condition: %s", cs.When),
			"content": map[string]interface{}{
				"application/json": map[string]interface{}{
					"example": cs.Then.Body,
				},
			},
		}
	}

	if h.Stateful != nil {
		switch h.Stateful.Action {
		case "list":
			responses["200"] = jsonResponseExample("List items", []interface{}{})
		case "create":
			responses["201"] = jsonResponseExample("Item created", map[string]interface{}{})
		case "get":
			responses["200"] = jsonResponseExample("Item found", map[string]interface{}{})
			responses["404"] = errorResponse("Not found", "Ensure the item exists or create it first")
		case "update":
			responses["200"] = jsonResponseExample("Item updated", map[string]interface{}{})
			responses["404"] = errorResponse("Not found", "Ensure the item exists before updating")
		case "delete":
			responses["200"] = jsonResponseExample("Item deleted", map[string]interface{}{"success": true})
			responses["404"] = errorResponse("Not found", "Ensure the item exists before deleting")
		}
	}

	if h.Mock != nil {
		status := h.Mock.Status
		if status == 0 {
			status = 200
		}
		responses[fmt.Sprintf("%d", status)] = map[string]interface{}{
			"description": "Successful response",
			"content": map[string]interface{}{
				"application/json": map[string]interface{}{"example": h.Mock.Body},
			},
		}
	}

	if h.Mode == "filesystem" {
		responses["200"] = jsonResponseExample("Filesystem-backed resource", map[string]interface{}{})
		responses["404"] = errorResponse("Not found", "No matching file under fs_dir")
	}

	return responses
}

func jsonResponseExample(desc string, example interface{}) map[string]interface{} {
	return map[string]interface{}{
		"description": desc,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"example": example,
			},
		},
	}
}

func errorResponse(msg, hint string) map[string]interface{} {
	return map[string]interface{}{
		"description": msg,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"example": map[string]interface{}{
					"error": msg,
					"hint":  hint,
				},
			},
		},
	}
}

// applyAuthToOperation marks an operation as requiring the shared
// BearerAuth security scheme when the handler declares its own auth.
func applyAuthToOperation(op map[string]interface{}, auth *msconfig.AuthConfig) {
	if auth == nil || !auth.Enabled {
		return
	}
	setMap(op, "security", []map[string][]string{{"BearerAuth": {}}})
}

// generateOpenAPISpec generates an OpenAPI 3 document from the gateway's
// declarative handlers: path parameters, body schemas, case/mock/stateful
// response shapes, and per-handler bearer-auth security requirements.
func generateOpenAPISpec(cfg *msconfig.GatewayConfig) map[string]interface{} {
	paths := make(map[string]interface{})
	securitySchemes := map[string]interface{}{
		"BearerAuth": map[string]interface{}{
			"type": "http", "scheme": "bearer", "bearerFormat": "JWT",
		},
	}

	prefix := ""
	if len(cfg.EndpointPrefix) > 0 {
		prefix = cfg.EndpointPrefix[0]
	}

	for _, h := range cfg.Handlers {
		if h.Disabled {
			continue
		}
		fullPath := prefix + replacePathParams(h.Pattern)
		method := strings.ToLower(h.Method)
		if method == "" || method == "all" {
			method = "get"
		}

		description := h.Description
		if description == "" {
			description = fmt.Sprintf("Auto-generated route for %s", h.Name)
		}

		operation := map[string]interface{}{
			"summary":     h.Name,
			"description": description,
			"responses":   buildResponses(h),
		}

		parameters := buildParameters(h)
		applyAuthToOperation(operation, h.Auth)

		if len(parameters) > 0 {
			operation["parameters"] = parameters
		}
		if h.BodySchema != nil {
			operation["requestBody"] = buildRequestBody(h)
		}

		if paths[fullPath] == nil {
			paths[fullPath] = make(map[string]interface{})
		}
		paths[fullPath].(map[string]interface{})[method] = operation
	}

	spec := map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":   "Devgateway API",
			"version": appinfo.Version,
		},
		"paths":      paths,
		"components": map[string]interface{}{"securitySchemes": securitySchemes},
	}

	return spec
}

// swaggerUIHandler serves a Swagger UI shell backed by /openapi.json.
func swaggerUIHandler(c *fiber.Ctx) error {
	const swaggerHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8" />
<title>Devgateway API Docs</title>
<link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist/swagger-ui-bundle.js"></script>
<script>
window.onload = () => {
  SwaggerUIBundle({
    url: "/openapi.json",
    dom_id: '#swagger-ui',
    presets: [SwaggerUIBundle.presets.apis],
    layout: "BaseLayout",
    persistAuthorization: true
  })
}
</script>
</body>
</html>`
	return c.Type("html").SendString(swaggerHTML)
}
