package config

import (
	mslogger "devgateway/logger"
)

// CORSConfig holds the subset of gofiber/fiber/v2's cors middleware options
// that server/main.go passes on (list fields comma-joined). When Enabled is
// false, server/main.go installs the cors middleware with fiber's defaults.
type CORSConfig struct {
	Enabled          bool     `json:"enabled" yaml:"enabled"`
	AllowOrigins     []string `json:"allow_origins" yaml:"allow_origins"`
	AllowMethods     []string `json:"allow_methods" yaml:"allow_methods"`
	AllowHeaders     []string `json:"allow_headers" yaml:"allow_headers"`
	AllowCredentials bool     `json:"allow_credentials" yaml:"allow_credentials"`
}

type DebugConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

type ConsoleAuthConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

type ConsoleConfig struct {
	Enabled bool               `json:"enabled" yaml:"enabled"`
	Path    string             `json:"path" yaml:"path"`
	Auth    *ConsoleAuthConfig `json:"auth" yaml:"auth"`
}

// JSONSchema is a Draft-7-ish recursive schema, used to validate request
// bodies of declarative "mock" handlers (§4.3 has no schema step of its own;
// this is a supplemented feature carried over from the teacher's body
// validation, see server/utils/schema_validator.go).
type JSONSchema struct {
	Type                 string                 `yaml:"type,omitempty" json:"type,omitempty"`
	Description          string                 `yaml:"description,omitempty" json:"description,omitempty"`
	Required             []string               `yaml:"required,omitempty" json:"required,omitempty"`
	Properties           map[string]*JSONSchema `yaml:"properties,omitempty" json:"properties,omitempty"`
	Items                *JSONSchema            `yaml:"items,omitempty" json:"items,omitempty"`
	Enum                 []interface{}          `yaml:"enum,omitempty" json:"enum,omitempty"`
	Minimum              *float64               `yaml:"minimum,omitempty" json:"minimum,omitempty"`
	Maximum              *float64               `yaml:"maximum,omitempty" json:"maximum,omitempty"`
	MinLength            *int                   `yaml:"minLength,omitempty" json:"minLength,omitempty"`
	MaxLength            *int                   `yaml:"maxLength,omitempty" json:"maxLength,omitempty"`
	Pattern              string                 `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	AdditionalProperties bool                   `yaml:"additional_properties,omitempty" json:"additionalProperties,omitempty"`
}

// CResponse is one static/conditional response body (reused by MockConfig's
// default response and by each CaseConfig.Then).
type CResponse struct {
	Status  int               `json:"status" yaml:"status"`
	Body    interface{}       `json:"body,omitempty" yaml:"body,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	DelayMs int               `json:"delay_ms,omitempty" yaml:"delay_ms,omitempty"`
}

// StatefulConfig turns a declarative handler into a CRUD view over an
// in-process collection (server/utils/state_engine.go), independent of the
// filesystem-delegate engine's own on-disk persistence.
type StatefulConfig struct {
	Collection string `json:"collection" yaml:"collection"`
	Action     string `json:"action" yaml:"action"` // create|get|update|delete|list
	IDField    string `json:"id_field" yaml:"id_field"`
}

// CaseConfig is one "when/then" rule of a declarative handler's ordered
// case list; the first whose When evaluates true wins (server/utils/evaluator.go).
type CaseConfig struct {
	When string    `json:"when" yaml:"when"`
	Then CResponse `json:"then" yaml:"then"`
}

// MockConfig is the body of a declarative ("mock") custom-function handler:
// a default response, optionally preceded by Cases, optionally backed by
// Stateful for CRUD semantics. Bodies support {{...}} templating
// (gofakeit placeholders + {{request.*}}/{{state.*}} substitutions), see
// server/utils/template_process.go.
type MockConfig struct {
	Body    interface{}       `json:"body,omitempty" yaml:"body,omitempty"`
	Status  int               `json:"status" yaml:"status"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	DelayMs int               `json:"delay_ms,omitempty" yaml:"delay_ms,omitempty"`
}

// PaginationConfigYAML/FilterConfigYAML carry the fields of
// engine.PaginationConfig / engine.FilterConfig; server/build.go's
// toEnginePagination/toEngineFilter convert them into the engine types
// before they reach engine.ResolvePagination/ResolveFilters.
type PaginationConfigYAML struct {
	Source     string `json:"source,omitempty" yaml:"source,omitempty"` // "query" | "body"
	Root       string `json:"root,omitempty" yaml:"root,omitempty"`
	LimitField string `json:"limit_field,omitempty" yaml:"limit_field,omitempty"`
	SkipField  string `json:"skip_field,omitempty" yaml:"skip_field,omitempty"`
	SortField  string `json:"sort_field,omitempty" yaml:"sort_field,omitempty"`
	OrderField string `json:"order_field,omitempty" yaml:"order_field,omitempty"`
}

type FilterRuleYAML struct {
	Key        string `json:"key" yaml:"key"`
	Type       string `json:"type" yaml:"type"` // string|number|boolean|date|string[]|number[]|boolean[]|date[]
	Comparison string `json:"cmp" yaml:"cmp"`   // eq|ne|lt|lte|gt|gte|in|nin|regex
	RegexFlags string `json:"regex_flags,omitempty" yaml:"regex_flags,omitempty"`
}

type FilterConfigYAML struct {
	Source string           `json:"source,omitempty" yaml:"source,omitempty"`
	Root   string            `json:"root,omitempty" yaml:"root,omitempty"`
	Rules  []FilterRuleYAML `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// PreTransformConfig is a declarative string-replace pre-transform (the
// function-valued alternative from engine.PreTransform has no config-file
// representation and can only be attached programmatically).
type PreTransformConfig struct {
	Search  string `json:"search" yaml:"search"`
	Replace string `json:"replace" yaml:"replace"`
}

// HandlerConfig is one entry of the top-level `handlers` list (§6), mapping
// onto engine.Handler. Mode selects which of Mock/nothing drives the
// execution: "filesystem" (default, zero value) delegates to the C8
// filesystem engine; "mock" builds a declarative CustomFunc from Mock/Cases/
// Stateful, generalizing the teacher's RouteConfig.
type HandlerConfig struct {
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	Method  string `json:"method" yaml:"method"`
	Pattern string `json:"pattern" yaml:"pattern"`
	Mode    string `json:"mode,omitempty" yaml:"mode,omitempty"` // "filesystem" | "mock"
	Disabled bool  `json:"disabled,omitempty" yaml:"disabled,omitempty"`

	DelayMs int `json:"delay_ms,omitempty" yaml:"delay_ms,omitempty"`

	PreTransform  []PreTransformConfig `json:"pre_transform,omitempty" yaml:"pre_transform,omitempty"`
	BodySchema    *JSONSchema          `json:"body_schema,omitempty" yaml:"body_schema,omitempty"`

	Mock     *MockConfig     `json:"mock,omitempty" yaml:"mock,omitempty"`
	Cases    []CaseConfig    `json:"cases,omitempty" yaml:"cases,omitempty"`
	Stateful *StatefulConfig `json:"stateful,omitempty" yaml:"stateful,omitempty"`

	Pagination     *PaginationConfigYAML `json:"pagination,omitempty" yaml:"pagination,omitempty"`
	PaginationMode string                `json:"pagination_mode,omitempty" yaml:"pagination_mode,omitempty"`
	Filter         *FilterConfigYAML     `json:"filter,omitempty" yaml:"filter,omitempty"`
	FilterMode     string                `json:"filter_mode,omitempty" yaml:"filter_mode,omitempty"`

	Auth *AuthConfig `json:"auth,omitempty" yaml:"auth,omitempty"`
}

type AuthConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Secret  string `json:"secret,omitempty" yaml:"secret,omitempty"`
}

// WSResponseConfig is one entry of a WS handler's ordered response rules: if
// Match (a simple equality test against the decoded text/JSON field) hits,
// Body is sent back, optionally broadcast to Room.
type WSResponseConfig struct {
	MatchText  string      `json:"match_text,omitempty" yaml:"match_text,omitempty"`
	MatchField string      `json:"match_field,omitempty" yaml:"match_field,omitempty"`
	MatchValue interface{} `json:"match_value,omitempty" yaml:"match_value,omitempty"`
	Body       interface{} `json:"body" yaml:"body"`
	Broadcast  bool        `json:"broadcast,omitempty" yaml:"broadcast,omitempty"`
	Room       string      `json:"room,omitempty" yaml:"room,omitempty"`
}

type DeflateConfigYAML struct {
	Enabled                 bool `json:"enabled" yaml:"enabled"`
	ServerNoContextTakeover bool `json:"server_no_context_takeover,omitempty" yaml:"server_no_context_takeover,omitempty"`
	ClientNoContextTakeover bool `json:"client_no_context_takeover,omitempty" yaml:"client_no_context_takeover,omitempty"`
	ServerMaxWindowBits     int  `json:"server_max_window_bits,omitempty" yaml:"server_max_window_bits,omitempty"`
	ClientMaxWindowBits     int  `json:"client_max_window_bits,omitempty" yaml:"client_max_window_bits,omitempty"`
	Strict                  bool `json:"strict,omitempty" yaml:"strict,omitempty"`
}

// WSHandlerConfig is one entry of the top-level `ws_handlers` list (§6's
// `wsHandlers`), mapping onto ws.Handler.
type WSHandlerConfig struct {
	Name              string             `json:"name,omitempty" yaml:"name,omitempty"`
	Pattern           string             `json:"pattern" yaml:"pattern"`
	Subprotocols      []string           `json:"subprotocols,omitempty" yaml:"subprotocols,omitempty"`
	Deflate           *DeflateConfigYAML `json:"deflate,omitempty" yaml:"deflate,omitempty"`
	DelayMs           int                `json:"delay_ms,omitempty" yaml:"delay_ms,omitempty"`
	HeartbeatMs       int                `json:"heartbeat_ms,omitempty" yaml:"heartbeat_ms,omitempty"`
	InactivityMs      int                `json:"inactivity_ms,omitempty" yaml:"inactivity_ms,omitempty"`
	Auth              *AuthConfig        `json:"auth,omitempty" yaml:"auth,omitempty"`
	Responses         []WSResponseConfig `json:"responses,omitempty" yaml:"responses,omitempty"`
}

// ParserConfig implements §6's `parser` (true | false | {parser, transform}):
// Disabled=true turns off body parsing entirely. Transform is accepted in the
// config document but BuildOptions does not read it; no templating pass runs
// on parsed bodies.
type ParserConfig struct {
	Disabled  bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	Transform bool `json:"transform,omitempty" yaml:"transform,omitempty"`
}

// GatewayConfig is the top-level configuration document (§6's enumerated
// Options, plus the ambient server/console/debug/CORS block the teacher's
// ServerConfig already carried).
type GatewayConfig struct {
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	Disable  bool   `json:"disable,omitempty" yaml:"disable,omitempty"`
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`

	Port           int      `json:"port" yaml:"port"`
	EndpointPrefix []string `json:"endpoint_prefix" yaml:"endpoint_prefix"`
	FSDir          string   `json:"fs_dir,omitempty" yaml:"fs_dir,omitempty"`
	EnableWS       bool     `json:"enable_ws,omitempty" yaml:"enable_ws,omitempty"`

	DelayMs            int    `json:"delay_ms,omitempty" yaml:"delay_ms,omitempty"`
	GatewayTimeoutMs   int    `json:"gateway_timeout_ms,omitempty" yaml:"gateway_timeout_ms,omitempty"`
	UnmatchedAction    string `json:"no_handled_rest_fs_requests_action,omitempty" yaml:"no_handled_rest_fs_requests_action,omitempty"`

	Parser *ParserConfig `json:"parser,omitempty" yaml:"parser,omitempty"`

	HandlerMiddlewares []string `json:"handler_middlewares,omitempty" yaml:"handler_middlewares,omitempty"`
	ErrorMiddlewares   []string `json:"error_middlewares,omitempty" yaml:"error_middlewares,omitempty"`

	Handlers   []HandlerConfig   `json:"handlers,omitempty" yaml:"handlers,omitempty"`
	WSHandlers []WSHandlerConfig `json:"ws_handlers,omitempty" yaml:"ws_handlers,omitempty"`

	Pagination map[string]PaginationConfigYAML `json:"pagination,omitempty" yaml:"pagination,omitempty"`
	Filters    map[string]FilterConfigYAML     `json:"filters,omitempty" yaml:"filters,omitempty"`

	Console *ConsoleConfig `json:"console,omitempty" yaml:"console,omitempty"`
	Debug   *DebugConfig   `json:"debug,omitempty" yaml:"debug,omitempty"`
	CORS    *CORSConfig    `json:"cors,omitempty" yaml:"cors,omitempty"`

	DefaultHeaders map[string]string `json:"default_headers,omitempty" yaml:"default_headers,omitempty"`
	SwaggerUIPath  string            `json:"swagger_ui_path,omitempty" yaml:"swagger_ui_path,omitempty"`
}

// ApplyServerDefaults fills in the same conservative defaults the teacher's
// ServerConfig.ApplyServerDefaults used, adapted to the new field set.
func (c *GatewayConfig) ApplyServerDefaults() {
	if c.Port == 0 {
		c.Port = 5000
		mslogger.LogWarn("Config: port not set → using default 5000")
	}

	if len(c.EndpointPrefix) == 0 {
		c.EndpointPrefix = []string{"/"}
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.UnmatchedAction == "" {
		c.UnmatchedAction = "404"
	}

	if c.DefaultHeaders == nil {
		c.DefaultHeaders = map[string]string{"Content-Type": "application/json"}
	}

	if c.SwaggerUIPath == "" {
		c.SwaggerUIPath = "/docs"
	}

	if c.Debug == nil {
		c.Debug = &DebugConfig{}
	}
	if c.Debug.Path == "" {
		c.Debug.Path = "/__debug"
	}

	if c.Console == nil {
		c.Console = &ConsoleConfig{Enabled: true}
	}
	if c.Console.Path == "" {
		c.Console.Path = "/console"
	}
	if c.Console.Enabled && c.Console.Auth == nil {
		c.Console.Auth = &ConsoleAuthConfig{Enabled: true, Username: "admin", Password: "123"}
		mslogger.LogWarn("Console auth default credentials are in use (admin/1**)")
	}

	if c.CORS == nil {
		c.CORS = &CORSConfig{}
	}
	if c.CORS.Enabled {
		if len(c.CORS.AllowOrigins) == 0 {
			c.CORS.AllowOrigins = []string{"*"}
		}
		if len(c.CORS.AllowMethods) == 0 {
			c.CORS.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}
		}
		if len(c.CORS.AllowHeaders) == 0 {
			c.CORS.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
		}
	}

	for i := range c.Handlers {
		if c.Handlers[i].Mode == "" {
			c.Handlers[i].Mode = "filesystem"
		}
		if c.Handlers[i].PaginationMode == "" {
			c.Handlers[i].PaginationMode = "none"
		}
		if c.Handlers[i].FilterMode == "" {
			c.Handlers[i].FilterMode = "none"
		}
	}
}
