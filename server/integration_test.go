package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"testing/fstest"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	msconfig "devgateway/config"
)

// testAssets is a minimal in-memory filesystem standing in for the real
// embedded www/ tree: just enough for favicon.New to find its file. Console
// routes stay disabled in these tests, so no login/index pages are needed.
func testAssets() fstest.MapFS {
	return fstest.MapFS{
		"favicon.ico": {Data: []byte{0}},
	}
}

func baseConfig() *msconfig.GatewayConfig {
	cfg := &msconfig.GatewayConfig{
		Port:           5000,
		EndpointPrefix: []string{"/v1"},
		Console:        &msconfig.ConsoleConfig{Enabled: false},
		Debug:          &msconfig.DebugConfig{Enabled: false, Path: "/__debug"},
		CORS:           &msconfig.CORSConfig{Enabled: false},
		SwaggerUIPath:  "/docs",
	}
	return cfg
}

func makeRequest(method, url string, body interface{}, headers map[string]string) *http.Request {
	var bodyReader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, url, bodyReader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func startTestServer(t *testing.T, cfg *msconfig.GatewayConfig) *fiberAppUnderTest {
	t.Helper()
	app, err := StartServer(cfg, NewStores(), testAssets(), testAssets())
	require.NoError(t, err)
	return &fiberAppUnderTest{app}
}

func TestIntegration_SimpleMock(t *testing.T) {
	cfg := baseConfig()
	cfg.Handlers = []msconfig.HandlerConfig{
		{
			Name:    "hello",
			Method:  "GET",
			Pattern: "/hello",
			Mode:    "mock",
			Mock: &msconfig.MockConfig{
				Status: 200,
				Body:   map[string]interface{}{"message": "world"},
			},
		},
	}

	app := startTestServer(t, cfg)

	resp := app.test(t, makeRequest("GET", "/v1/hello", nil, nil))
	assert.Equal(t, 200, resp.StatusCode)
	assert.JSONEq(t, `{"message": "world"}`, app.body(t, resp))
}

func TestIntegration_LogicCases(t *testing.T) {
	cfg := baseConfig()
	cfg.EndpointPrefix = []string{"/api"}
	cfg.Handlers = []msconfig.HandlerConfig{
		{
			Name:    "price",
			Method:  "POST",
			Pattern: "/price",
			Mode:    "mock",
			Cases: []msconfig.CaseConfig{
				{
					When: "request.body.type == 'vip'",
					Then: msconfig.CResponse{Status: 200, Body: map[string]interface{}{"price": 50}},
				},
			},
			Mock: &msconfig.MockConfig{Status: 200, Body: map[string]interface{}{"price": 100}},
		},
	}

	app := startTestServer(t, cfg)

	respVIP := app.test(t, makeRequest("POST", "/api/price", map[string]string{"type": "vip"}, nil))
	assert.Equal(t, 200, respVIP.StatusCode)
	assert.JSONEq(t, `{"price": 50}`, app.body(t, respVIP))

	respNorm := app.test(t, makeRequest("POST", "/api/price", map[string]string{"type": "normal"}, nil))
	assert.JSONEq(t, `{"price": 100}`, app.body(t, respNorm))
}

func TestIntegration_StatefulFlow(t *testing.T) {
	cfg := baseConfig()
	schema := &msconfig.JSONSchema{
		Type: "object",
		Properties: map[string]*msconfig.JSONSchema{
			"id":   {Type: "integer"},
			"name": {Type: "string"},
		},
	}
	cfg.Handlers = []msconfig.HandlerConfig{
		{
			Name:       "create-user",
			Method:     "POST",
			Pattern:    "/users",
			Mode:       "mock",
			Stateful:   &msconfig.StatefulConfig{Collection: "users", Action: "create", IDField: "id"},
			BodySchema: schema,
			Mock:       &msconfig.MockConfig{Status: 200, Body: "{{state.created}}"},
		},
		{
			Name:     "get-user",
			Method:   "GET",
			Pattern:  "/users/{id}",
			Mode:     "mock",
			Stateful: &msconfig.StatefulConfig{Collection: "users", Action: "get", IDField: "id"},
			Mock:     &msconfig.MockConfig{Status: 200, Body: "{{state.item}}"},
		},
	}

	app := startTestServer(t, cfg)

	respCreate := app.test(t, makeRequest("POST", "/v1/users", map[string]interface{}{"id": 123, "name": "CTO"}, nil))
	assert.Equal(t, 200, respCreate.StatusCode)

	respGet := app.test(t, makeRequest("GET", "/v1/users/123", nil, nil))
	assert.Equal(t, 200, respGet.StatusCode)
	assert.Contains(t, app.body(t, respGet), "CTO")
}

func TestIntegration_Auth(t *testing.T) {
	cfg := baseConfig()
	cfg.EndpointPrefix = []string{"/secure"}
	cfg.Handlers = []msconfig.HandlerConfig{
		{
			Name:    "secret",
			Method:  "GET",
			Pattern: "/data",
			Mode:    "mock",
			Mock:    &msconfig.MockConfig{Status: 200, Body: "Success"},
			Auth:    &msconfig.AuthConfig{Enabled: true, Secret: "super-secret-key"},
		},
	}

	app := startTestServer(t, cfg)

	respFail := app.test(t, makeRequest("GET", "/secure/data", nil, nil))
	assert.Equal(t, 401, respFail.StatusCode)
}

// fiberAppUnderTest wraps *fiber.App with the small request/response helpers
// these tests share.
type fiberAppUnderTest struct {
	app *fiber.App
}

func (f *fiberAppUnderTest) test(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	resp, err := f.app.Test(req, 5000)
	require.NoError(t, err)
	return resp
}

func (f *fiberAppUnderTest) body(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}
