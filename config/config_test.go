package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAndApplyDefaults(t *testing.T) {
	cfg := &GatewayConfig{}
	err := validateAndApplyDefaults(cfg, "")
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, []string{"/"}, cfg.EndpointPrefix)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "404", cfg.UnmatchedAction)
	assert.Equal(t, "application/json", cfg.DefaultHeaders["Content-Type"])
	assert.Equal(t, "/docs", cfg.SwaggerUIPath)
	require.NotNil(t, cfg.Console)
	assert.True(t, cfg.Console.Enabled)
	require.NotNil(t, cfg.Console.Auth)
	assert.Equal(t, "admin", cfg.Console.Auth.Username)
}

func TestValidateAndApplyDefaults_InvalidLogLevel(t *testing.T) {
	cfg := &GatewayConfig{LogLevel: "verbose"}
	err := validateAndApplyDefaults(cfg, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
}

func TestValidateAndApplyDefaults_InvalidEndpointPrefix(t *testing.T) {
	cfg := &GatewayConfig{EndpointPrefix: []string{"no-leading-slash"}}
	err := validateAndApplyDefaults(cfg, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint_prefix")
}

func TestValidateHandler_InvalidMethod(t *testing.T) {
	h := &HandlerConfig{Method: "TRACE", Pattern: "/a", Mode: "filesystem"}
	err := validateHandler(h)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid method")
}

func TestValidateHandler_InvalidPattern(t *testing.T) {
	h := &HandlerConfig{Method: "GET", Pattern: "no-leading-slash", Mode: "filesystem"}
	err := validateHandler(h)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid pattern")
}

func TestValidateHandler_MockRequiresBodyOrCases(t *testing.T) {
	h := &HandlerConfig{Method: "GET", Pattern: "/mock", Mode: "mock"}
	err := validateHandler(h)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must define")
}

func TestValidateHandler_StatefulWriteRequiresBodySchema(t *testing.T) {
	h := &HandlerConfig{
		Method:  "POST",
		Pattern: "/todos",
		Mode:    "mock",
		Mock:    &MockConfig{Status: 201},
		Stateful: &StatefulConfig{
			Collection: "todos",
			Action:     "create",
			IDField:    "id",
		},
	}
	err := validateHandler(h)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "body_schema")
}

func TestValidateHandler_ValidMockWithCases(t *testing.T) {
	h := &HandlerConfig{
		Method:  "GET",
		Pattern: "/status",
		Mode:    "mock",
		Cases: []CaseConfig{
			{When: "query.fail == \"true\"", Then: CResponse{Status: 500}},
		},
	}
	assert.NoError(t, validateHandler(h))
}

func TestValidateCondition_RejectsForbiddenChars(t *testing.T) {
	err := validateConditionExpression("body.name == `whoami`")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forbidden characters")
}

func TestValidateCondition_RequiresKnownRoot(t *testing.T) {
	err := validateConditionExpression("1 == 1")
	require.Error(t, err)
}

func TestValidateWSHandler_WindowBitsRange(t *testing.T) {
	h := &WSHandlerConfig{
		Pattern: "/ws",
		Deflate: &DeflateConfigYAML{Enabled: true, ServerMaxWindowBits: 20},
	}
	err := validateWSHandler(h)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "window bits")
}
