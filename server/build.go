package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"devgateway/engine"
	mslogger "devgateway/logger"
	server_utils "devgateway/server/utils"
	"devgateway/ws"
)

import (
	msconfig "devgateway/config"
)

// Stores bundles the in-process state owned by a running gateway instance —
// today just the one stateful-handler collection store, but kept as its own
// type so StartServer has a single thing to pass around and a single thing
// to recreate on a config hot-reload.
type Stores struct {
	State *server_utils.StateStore
}

func NewStores() *Stores {
	return &Stores{State: server_utils.NewStateStore()}
}

// BuildOptions turns a validated GatewayConfig into the engine's immutable
// Options, generalizing the teacher's per-route createRouteHandler wiring
// (server/handlers.go) into the C7 dispatcher's declarative Handler list.
func BuildOptions(cfg *msconfig.GatewayConfig, stores *Stores) (*engine.Options, error) {
	opts := &engine.Options{
		Prefixes:         engine.NormalizePrefixes(cfg.EndpointPrefix),
		FSRoot:           cfg.FSDir,
		GlobalDelay:      time.Duration(cfg.DelayMs) * time.Millisecond,
		GatewayTimeout:   time.Duration(cfg.GatewayTimeoutMs) * time.Millisecond,
		UnmatchedAction:  engine.UnmatchedAction(cfg.UnmatchedAction),
		GlobalPagination: buildPaginationMap(cfg.Pagination),
		GlobalFilters:    buildFilterMap(cfg.Filters),
	}

	if cfg.Parser != nil {
		opts.ParserDisabled = cfg.Parser.Disabled
	}

	opts.GlobalMiddlewares = resolveMiddlewares(cfg.HandlerMiddlewares)
	opts.GlobalErrorMiddlewares = resolveErrorMiddlewares(cfg.ErrorMiddlewares)

	handlers := make([]*engine.Handler, 0, len(cfg.Handlers))
	for i := range cfg.Handlers {
		h, err := buildHandler(&cfg.Handlers[i], stores, opts.GlobalPagination, opts.GlobalFilters, cfg.FSDir, opts.Prefixes)
		if err != nil {
			return nil, fmt.Errorf("handlers[%d] '%s': %w", i, cfg.Handlers[i].Pattern, err)
		}
		handlers = append(handlers, h)
	}
	opts.Handlers = handlers

	return opts, nil
}

func buildPaginationMap(m map[string]msconfig.PaginationConfigYAML) map[string]*engine.PaginationConfig {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]*engine.PaginationConfig, len(m))
	for method, p := range m {
		out[strings.ToUpper(method)] = toEnginePagination(&p)
	}
	return out
}

func buildFilterMap(m map[string]msconfig.FilterConfigYAML) map[string]*engine.FilterConfig {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]*engine.FilterConfig, len(m))
	for method, f := range m {
		out[strings.ToUpper(method)] = toEngineFilter(&f)
	}
	return out
}

func toEnginePagination(p *msconfig.PaginationConfigYAML) *engine.PaginationConfig {
	if p == nil {
		return nil
	}
	return &engine.PaginationConfig{
		Source:     engine.ParamSource(orString(p.Source, "query")),
		Root:       p.Root,
		LimitField: p.LimitField,
		SkipField:  p.SkipField,
		SortField:  p.SortField,
		OrderField: p.OrderField,
	}
}

func toEngineFilter(f *msconfig.FilterConfigYAML) *engine.FilterConfig {
	if f == nil {
		return nil
	}
	rules := make([]engine.FilterRule, 0, len(f.Rules))
	for _, r := range f.Rules {
		rules = append(rules, engine.FilterRule{
			Key:        r.Key,
			ValueType:  engine.FilterValueType(r.Type),
			Comparison: engine.Comparison(r.Comparison),
			RegexFlags: r.RegexFlags,
		})
	}
	return &engine.FilterConfig{
		Source: engine.ParamSource(orString(f.Source, "query")),
		Root:   f.Root,
		Rules:  rules,
	}
}

func orString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// lookupGlobal/lookupGlobalFilter mirror engine.Options' own unexported
// paginationFor/filterFor method-or-ALL precedence, for the one place
// (an authenticated filesystem-delegate handler) that must resolve the
// pagination/filter axis outside the dispatcher itself.
func lookupGlobal(m map[string]*engine.PaginationConfig, method string) *engine.PaginationConfig {
	if m == nil {
		return nil
	}
	if p, ok := m[method]; ok {
		return p
	}
	return m[engine.MethodAll]
}

func lookupGlobalFilter(m map[string]*engine.FilterConfig, method string) *engine.FilterConfig {
	if m == nil {
		return nil
	}
	if f, ok := m[method]; ok {
		return f
	}
	return m[engine.MethodAll]
}

// buildHandler compiles one HandlerConfig into an engine.Handler. A plain
// "filesystem" handler is handed straight to the dispatcher's own
// filesystem-delegate branch (so it gets the dispatcher's global
// pagination/filter merge for free); a "mock" handler, or any handler that
// declares its own auth, becomes a custom-function handler instead.
func buildHandler(h *msconfig.HandlerConfig, stores *Stores, globalPag map[string]*engine.PaginationConfig, globalFilt map[string]*engine.FilterConfig, fsRoot string, prefixes []string) (*engine.Handler, error) {
	method := strings.ToUpper(h.Method)

	mode := engine.ModeFilesystem
	if h.Mode == "mock" {
		mode = engine.ModeCustomFunction
	}

	eh := engine.NewHandler(h.Pattern, method, mode)
	eh.Disabled = h.Disabled
	eh.Delay = time.Duration(h.DelayMs) * time.Millisecond
	eh.Pagination = toEnginePagination(h.Pagination)
	eh.PaginationMode = engine.Mode(orString(h.PaginationMode, "none"))
	eh.Filter = toEngineFilter(h.Filter)
	eh.FilterMode = engine.Mode(orString(h.FilterMode, "none"))

	if len(h.PreTransform) > 0 {
		reps := make([]engine.StringReplace, 0, len(h.PreTransform))
		for _, t := range h.PreTransform {
			reps = append(reps, engine.StringReplace{Search: t.Search, Replace: t.Replace})
		}
		eh.PreTransform = &engine.PreTransform{Replacements: reps}
	}

	var hook engine.AuthHook
	if h.Auth != nil && h.Auth.Enabled {
		if h.Auth.Secret == "" {
			return nil, fmt.Errorf("auth.enabled requires a non-empty secret")
		}
		hook = engine.JWTAuthHook([]byte(h.Auth.Secret))
	}

	switch {
	case mode == engine.ModeCustomFunction:
		mockFn := buildMockFunc(h, stores)
		if hook == nil {
			eh.CustomFunc = mockFn
			return eh, nil
		}
		eh.CustomFunc = withAuthGuard(hook, mockFn)
		return eh, nil

	case hook != nil:
		// Filesystem-delegate handler with its own auth: re-express it as a
		// custom function that replays the dispatcher's filesystem branch
		// after the auth check, since Handler has no separate "guard" slot.
		// Pagination/filter axis resolution is duplicated here (instead of
		// left to the dispatcher) because ModeCustomFunction bypasses it.
		pagMode := eh.PaginationMode
		filtMode := eh.FilterMode
		handlerPag := eh.Pagination
		handlerFilt := eh.Filter
		preTransform := eh.PreTransform
		method := eh.Method
		eh.Mode = engine.ModeCustomFunction
		eh.CustomFunc = withAuthGuard(hook, func(req *engine.Request, res engine.ResponseWriter, next engine.NextFunc) {
			if fsRoot == "" {
				next(engine.Internal("filesystem root not configured for filesystem-delegate handler", nil))
				return
			}
			pag := engine.ResolvePagination(handlerPag, pagMode, lookupGlobal(globalPag, method))
			filt := engine.ResolveFilters(handlerFilt, filtMode, lookupGlobalFilter(globalFilt, method))
			prefix, ok := engine.MatchesEndpointPrefix(req.Path, prefixes)
			if !ok {
				next(engine.NewError(engine.KindNoHandler, 404, "Not Found"))
				return
			}
			path := strings.TrimPrefix(req.Path, prefix)
			if path == "" {
				path = "/"
			}
			if preTransform != nil {
				path = preTransform.Apply(path)
			}
			fsCtx := &engine.FSContext{Root: fsRoot, Pagination: pag, Filter: filt}
			if err := engine.HandleFilesystemRequest(fsCtx, req, res, path); err != nil {
				next(err)
				return
			}
			next(nil)
		})
		return eh, nil

	default:
		return eh, nil
	}
}

// withAuthGuard runs hook before inner, failing the request with 401/500
// instead of invoking inner when the hook rejects it or errors.
func withAuthGuard(hook engine.AuthHook, inner engine.CustomHandlerFunc) engine.CustomHandlerFunc {
	return func(req *engine.Request, res engine.ResponseWriter, next engine.NextFunc) {
		ok, err := hook(req)
		if err != nil {
			next(engine.Internal("authentication hook failed", err))
			return
		}
		if !ok {
			next(engine.NewError(engine.KindClientError, 401, "Unauthorized"))
			return
		}
		inner(req, res, next)
	}
}

// buildEContext adapts an engine.Request into the server_utils.EContext the
// condition evaluator, template processor, and stateful engine all share —
// the same packaging step the teacher's createRouteHandler did from
// *fiber.Ctx (server/handlers.go).
func buildEContext(req *engine.Request) server_utils.EContext {
	ctx := server_utils.EContext{
		Body:    map[string]interface{}{},
		Query:   map[string]string{},
		Headers: map[string]string{},
		Path:    map[string]string{},
	}
	if obj, ok := req.Body.Value().(map[string]interface{}); ok {
		ctx.Body = obj
	}
	for _, k := range req.QueryParams.Keys() {
		if v, ok := req.QueryParams.Get(k); ok {
			ctx.Query[k] = v
		}
	}
	for _, k := range req.Headers.Keys() {
		ctx.Headers[k] = req.Headers.Get(k)
	}
	for k, v := range req.PathParams {
		ctx.Path[k] = v
	}
	return ctx
}

var writeMethods = map[string]bool{"POST": true, "PUT": true, "PATCH": true}

// buildMockFunc generalizes the teacher's createRouteHandler pipeline
// (stateful → cases → base mock) onto the engine's transport-agnostic
// Request/ResponseWriter, reusing server_utils wholesale.
func buildMockFunc(h *msconfig.HandlerConfig, stores *Stores) engine.CustomHandlerFunc {
	return func(req *engine.Request, res engine.ResponseWriter, next engine.NextFunc) {
		ctx := buildEContext(req)

		if h.Stateful != nil {
			err := server_utils.ApplyStateful(stores.State, h.Stateful.Collection, h.Stateful.Action, h.Stateful.IDField, &ctx)
			if err != nil {
				writeStateError(res, req.Path, err, h.Stateful, ctx)
				return
			}
		}

		if h.BodySchema != nil && writeMethods[strings.ToUpper(req.Method)] {
			if err := server_utils.ValidateJSONSchema(h.BodySchema, ctx.Body, "body"); err != nil {
				engine.WriteErrorEnvelope(res, req.Path, engine.BadRequest(err.Error()))
				return
			}
		}

		for _, cs := range h.Cases {
			match, err := server_utils.EvaluateCondition(cs.When, ctx)
			if err != nil {
				engine.WriteErrorEnvelope(res, req.Path, engine.Internal("case evaluation failed", err))
				return
			}
			if match {
				writeCResponse(res, cs.Then, ctx)
				return
			}
		}

		if h.Mock != nil {
			status := h.Mock.Status
			if status == 0 {
				status = 200
			}
			writeCResponse(res, msconfig.CResponse{
				Status:  status,
				Body:    h.Mock.Body,
				Headers: h.Mock.Headers,
				DelayMs: h.Mock.DelayMs,
			}, ctx)
			return
		}

		// Nothing matched: leave the response unended so the dispatcher's
		// buildFinal reports MANUALLY_HANDLED, same as the engine does for
		// any custom handler that forgets to answer.
	}
}

func writeCResponse(res engine.ResponseWriter, r msconfig.CResponse, ctx server_utils.EContext) {
	if r.DelayMs > 0 {
		time.Sleep(time.Duration(r.DelayMs) * time.Millisecond)
	}
	for k, v := range r.Headers {
		res.SetHeader(k, v)
	}
	processed, err := server_utils.ProcessTemplateJSON(r.Body, ctx)
	if err != nil {
		engine.WriteErrorEnvelope(res, "", engine.Internal("template processing failed", err))
		return
	}
	status := r.Status
	if status == 0 {
		status = 200
	}
	_ = engine.WriteJSON(res, status, processed)
}

// writeStateError maps ApplyStateful's sentinel errors to the same
// structured 404/409 hints the teacher's handleStateError produced
// (server/handlers.go), generalized off engine.ResponseWriter.
func writeStateError(res engine.ResponseWriter, path string, err error, stateful *msconfig.StatefulConfig, ctx server_utils.EContext) {
	switch err {
	case server_utils.StateErrNotFound:
		_ = engine.WriteJSON(res, 404, map[string]interface{}{
			"error": map[string]interface{}{
				"code":       "STATE_NOT_FOUND",
				"message":    "Item not found in collection",
				"collection": stateful.Collection,
				"id":         ctx.Path[stateful.IDField],
			},
		})
	case server_utils.StateErrConflict:
		_ = engine.WriteJSON(res, 409, map[string]interface{}{
			"error": map[string]interface{}{
				"code":       "STATE_CONFLICT",
				"message":    "Item already exists",
				"collection": stateful.Collection,
				"id":         ctx.Body[stateful.IDField],
			},
		})
	case server_utils.StateErrBadInput:
		engine.WriteErrorEnvelope(res, path, engine.BadRequest("missing or invalid identity field '"+stateful.IDField+"'"))
	default:
		engine.WriteErrorEnvelope(res, path, engine.Internal("stateful handler failed", err))
	}
}

// builtinMiddlewares is the name → factory registry handler_middlewares and
// error_middlewares entries are resolved against; unknown names are skipped
// with a warning rather than failing config load, mirroring the teacher's
// tolerance for optional/unregistered route features.
var builtinMiddlewares = map[string]engine.MiddlewareFunc{
	"request-id": requestIDMiddleware,
}

var builtinErrorMiddlewares = map[string]engine.ErrorMiddlewareFunc{
	"error-logger": errorLoggerMiddleware,
}

func resolveMiddlewares(names []string) []engine.MiddlewareFunc {
	out := make([]engine.MiddlewareFunc, 0, len(names))
	for _, n := range names {
		mw, ok := builtinMiddlewares[n]
		if !ok {
			mslogger.LogWarn(fmt.Sprintf("handler_middlewares: unknown middleware '%s', skipping", n))
			continue
		}
		out = append(out, mw)
	}
	return out
}

func resolveErrorMiddlewares(names []string) []engine.ErrorMiddlewareFunc {
	out := make([]engine.ErrorMiddlewareFunc, 0, len(names))
	for _, n := range names {
		mw, ok := builtinErrorMiddlewares[n]
		if !ok {
			mslogger.LogWarn(fmt.Sprintf("error_middlewares: unknown middleware '%s', skipping", n))
			continue
		}
		out = append(out, mw)
	}
	return out
}

func requestIDMiddleware(req *engine.Request, res engine.ResponseWriter, next engine.NextFunc) {
	if _, ok := req.GetLocal("requestId"); !ok {
		req.SetLocal("requestId", uuid.NewString())
	}
	next(nil)
}

func errorLoggerMiddleware(err error, req *engine.Request, res engine.ResponseWriter, next engine.NextFunc) {
	mslogger.LogError(fmt.Sprintf("%s %s: %v", req.Method, req.Path, err))
	next(err)
}

// BuildWSRegistry turns the ws_handlers config section into a ws.Registry,
// mapping WSHandlerConfig/WSResponseConfig/DeflateConfigYAML onto their
// engine counterparts the way BuildOptions maps HandlerConfig onto
// engine.Handler.
func BuildWSRegistry(cfg *msconfig.GatewayConfig) (*ws.Registry, error) {
	registry := ws.NewRegistry()
	if !cfg.EnableWS {
		return registry, nil
	}
	for i := range cfg.WSHandlers {
		wh := &cfg.WSHandlers[i]
		handler := ws.NewHandler(wh.Pattern)
		handler.Subprotocols = wh.Subprotocols
		handler.Delay = time.Duration(wh.DelayMs) * time.Millisecond
		handler.HeartbeatInterval = time.Duration(wh.HeartbeatMs) * time.Millisecond
		handler.InactivityTimeout = time.Duration(wh.InactivityMs) * time.Millisecond

		if wh.Deflate != nil {
			handler.Deflate = &ws.DeflateConfig{
				Enabled:                 wh.Deflate.Enabled,
				ServerNoContextTakeover: wh.Deflate.ServerNoContextTakeover,
				ClientNoContextTakeover: wh.Deflate.ClientNoContextTakeover,
				ServerMaxWindowBits:     wh.Deflate.ServerMaxWindowBits,
				ClientMaxWindowBits:     wh.Deflate.ClientMaxWindowBits,
				Strict:                  wh.Deflate.Strict,
			}
		}

		if wh.Auth != nil && wh.Auth.Enabled {
			if wh.Auth.Secret == "" {
				return nil, fmt.Errorf("ws_handlers[%d] '%s': auth.enabled requires a non-empty secret", i, wh.Pattern)
			}
			handler.Authenticate = engine.JWTAuthHook([]byte(wh.Auth.Secret))
		}

		handler.Responses = buildWSResponseRules(wh.Responses)

		registry.Register(handler)
	}
	return registry, nil
}

// buildWSResponseRules adapts each declarative WSResponseConfig into a
// ws.ResponseRule pair of closures, mirroring the handler-side Cases
// evaluation style (first match wins) in the WS world's Match/Response
// shape (ws/dispatch.go).
func buildWSResponseRules(rules []msconfig.WSResponseConfig) []ws.ResponseRule {
	out := make([]ws.ResponseRule, 0, len(rules))
	for _, r := range rules {
		r := r
		out = append(out, ws.ResponseRule{
			Match: func(conn *ws.Connection, msg ws.Message) bool {
				if r.MatchText != "" {
					return msg.Text == r.MatchText
				}
				if r.MatchField != "" {
					obj, ok := msg.JSON.(map[string]interface{})
					if !ok {
						return false
					}
					return fmt.Sprint(obj[r.MatchField]) == fmt.Sprint(r.MatchValue)
				}
				return true
			},
			Response: func(conn *ws.Connection, msg ws.Message) (interface{}, error) {
				return r.Body, nil
			},
			Broadcast: r.Broadcast,
			Room:      r.Room,
		})
	}
	return out
}
