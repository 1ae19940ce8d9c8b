package server

import (
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/favicon"
	"github.com/gofiber/fiber/v2/middleware/recover"

	msconfig "devgateway/config"
	"devgateway/engine"
	mslogger "devgateway/logger"
	appinfo "devgateway/pkg/appinfo"
	msServerHandlers "devgateway/server/handlers"
)

// StartServer builds the Fiber app around the engine's REST dispatcher and
// the WS registry, wires the admin console/OpenAPI/debug surfaces, and
// returns the app ready to Listen.
//
// It orchestrates the same bootstrap order the teacher's StartServer did:
//  1. Global middleware (favicon, recover, request logging, CORS)
//  2. Console UI, OpenAPI/Swagger, debug endpoints
//  3. The single engine-backed catch-all (REST) plus the WS upgrade handler
func StartServer(cfg *msconfig.GatewayConfig, stores *Stores, embedFS fs.FS, faviconFS fs.FS) (*fiber.App, error) {
	mslogger.SetLevel(cfg.LogLevel)
	msServerHandlers.StartLogAggregator()

	opts, err := BuildOptions(cfg, stores)
	if err != nil {
		return nil, fmt.Errorf("building engine options: %w", err)
	}
	dispatcher := engine.NewDispatcher(opts)
	dispatcher.Logger = func(format string, args ...interface{}) {
		mslogger.LogDebug(fmt.Sprintf(format, args...))
	}

	wsRegistry, err := BuildWSRegistry(cfg)
	if err != nil {
		return nil, fmt.Errorf("building ws registry: %w", err)
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          buildErrorHandler(),
	})

	setupMiddleware(app, cfg, faviconFS)

	SetupConsoleRoutes(app, cfg, embedFS)

	app.Get("/openapi.json", func(c *fiber.Ctx) error {
		return c.JSON(generateOpenAPISpec(cfg))
	})
	app.Get(cfg.SwaggerUIPath, swaggerUIHandler)

	if cfg.Debug != nil && cfg.Debug.Enabled {
		setupDebugRoutes(app, cfg)
	}

	if cfg.EnableWS {
		app.Use(wsUpgradeHandler(wsRegistry, opts.Prefixes))
	}
	app.Use(Handle(dispatcher))

	return app, nil
}

// buildErrorHandler maps engine.Error (and any Fiber-native error escaping
// a middleware) onto the same Envelope shape the dispatcher itself writes,
// so a panic-recovered or routing-level failure looks identical to a
// handler-level one on the wire.
func buildErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		eerr := engine.AsEngineError(err)
		if fe, ok := err.(*fiber.Error); ok {
			eerr = engine.NewError(engine.KindClientError, fe.Code, fe.Message)
		}
		envelope := engine.NewEnvelope(eerr.Status, eerr.Message, c.OriginalURL())
		return c.Status(eerr.Status).JSON(envelope)
	}
}

// setupMiddleware attaches global middleware to the Fiber app, mirroring the
// teacher's ordering: favicon, panic recovery, request logging, then CORS.
func setupMiddleware(app *fiber.App, cfg *msconfig.GatewayConfig, faviconFS fs.FS) {
	app.Use(favicon.New(favicon.Config{
		FileSystem: http.FS(faviconFS),
		File:       "favicon.ico",
		URL:        "/favicon.ico",
	}))

	app.Use(recover.New())

	app.Use(msServerHandlers.RequestLoggerMiddleware(cfg.Debug.Path))

	if cfg.CORS != nil && cfg.CORS.Enabled {
		app.Use(cors.New(cors.Config{
			AllowOrigins:     strings.Join(cfg.CORS.AllowOrigins, ","),
			AllowMethods:     strings.Join(cfg.CORS.AllowMethods, ","),
			AllowHeaders:     strings.Join(cfg.CORS.AllowHeaders, ","),
			AllowCredentials: cfg.CORS.AllowCredentials,
		}))
	} else {
		app.Use(cors.New())
	}

	consolePath := ""
	if cfg.Console != nil {
		consolePath = cfg.Console.Path
	}
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		duration := time.Since(start)

		if (consolePath != "" && strings.HasPrefix(c.Path(), consolePath)) ||
			(cfg.Debug != nil && strings.HasPrefix(c.Path(), cfg.Debug.Path)) {
			return nil
		}
		mslogger.LogRoute(c.Method(), c.Path(), c.IP(), c.Response().StatusCode(), duration, "    ")
		return err
	})
}

// setupDebugRoutes mounts the /__debug/requests and /__debug/health
// introspection endpoints (never through the REST dispatcher itself, since
// they report on the dispatcher rather than being handled by it).
func setupDebugRoutes(app *fiber.App, cfg *msconfig.GatewayConfig) {
	debugRequestPath := cfg.Debug.Path + "/requests"
	debugHealthPath := cfg.Debug.Path + "/health"

	app.Get(debugRequestPath, withRouteMeta(msServerHandlers.RouteTypeInternal, "debug_requests", msServerHandlers.DebugRequestsHandler))

	handlerCount, mockCount, fsCount := handlerStats(cfg)
	app.Get(debugHealthPath, withRouteMeta(msServerHandlers.RouteTypeInternal, "debug_health",
		msServerHandlers.HealthHandler(handlerCount, mockCount, fsCount, appinfo.Version)))
}

// withRouteMeta tags a Fiber handler's context with route-type/name locals
// so RequestLoggerMiddleware's ring buffer can classify internal traffic.
func withRouteMeta(routeType, name string, h fiber.Handler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(msServerHandlers.CtxRouteType, routeType)
		c.Locals(msServerHandlers.CtxRouteName, name)
		return h(c)
	}
}

func handlerStats(cfg *msconfig.GatewayConfig) (handlerCount, mockCount, fsCount int) {
	handlerCount = len(cfg.Handlers)
	for _, h := range cfg.Handlers {
		if h.Mode == "mock" {
			mockCount++
		} else {
			fsCount++
		}
	}
	return
}
