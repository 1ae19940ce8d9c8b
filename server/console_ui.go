package server

import (
	"io/fs"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"

	msconfig "devgateway/config"
	mslogger "devgateway/logger"
)

// SetupConsoleRoutes mounts the admin console UI (login, static assets, and
// the config/health JSON endpoints it consumes) when cfg.Console.Enabled.
func SetupConsoleRoutes(app *fiber.App, cfg *msconfig.GatewayConfig, embedFS fs.FS) {
	initJWTSecret(cfg)

	if cfg.Console == nil || !cfg.Console.Enabled {
		return
	}

	consoleCfg := cfg.Console
	cPath := strings.TrimRight(consoleCfg.Path, "/")

	appFS, err := fs.Sub(embedFS, "www")
	if err != nil {
		mslogger.LogWarn("console assets unavailable, disabling admin console: " + err.Error())
		return
	}

	publicFS, _ := fs.Sub(appFS, "public")
	app.Use("/public", filesystem.New(filesystem.Config{
		Root:   http.FS(publicFS),
		Browse: false,
	}))

	app.Get(cPath+"/login", func(c *fiber.Ctx) error {
		token := c.Cookies(JWTCookieName)
		if token != "" {
			if _, err := validateToken(token); err == nil {
				return c.Redirect(cPath)
			}
		}
		content, _ := fs.ReadFile(appFS, "login.html")
		c.Set("Content-Type", "text/html")
		return c.Send(content)
	})

	app.Post(cPath+"/login", ConsoleLoginHandler(cfg))

	consoleGroup := app.Group(cPath, ConsoleAuthMiddleware(cfg))

	consoleAssets := consoleGroup.Group("/", ConsoleAssetGuard(consoleCfg))
	jsFS, _ := fs.Sub(appFS, "js")
	consoleAssets.Group("/js").Use("/", filesystem.New(filesystem.Config{
		Root:   http.FS(jsFS),
		Browse: false,
	}))
	cssFS, _ := fs.Sub(appFS, "css")
	consoleAssets.Group("/css").Use("/", filesystem.New(filesystem.Config{
		Root:   http.FS(cssFS),
		Browse: false,
	}))

	consoleGroup.Get("/", func(c *fiber.Ctx) error {
		c.Set("Content-Type", "text/html")
		content, err := fs.ReadFile(appFS, "index.html")
		if err != nil {
			return c.Status(500).SendString("System Error: Index missing")
		}
		return c.Send(content)
	})

	consoleGroup.Get("/me", ConsoleMeHandler)
	consoleGroup.Get("/devgateway.json", SafeConfigHandler(cfg))
	consoleGroup.Get("/logout", ConsoleLogoutHandler(cfg))
}
