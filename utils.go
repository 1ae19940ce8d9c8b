package main

import (
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"

	msconfig "devgateway/config"
	mslogger "devgateway/logger"
	msServer "devgateway/server"
)

// consoleAssets/faviconAssets expose the embedded www/ tree rooted the way
// favicon.New and SetupConsoleRoutes each expect it.
func consoleAssets() fs.FS {
	return embeddedConsole
}

func faviconAssets() fs.FS {
	sub, err := fs.Sub(embeddedFavicon, "www")
	if err != nil {
		return embeddedFavicon
	}
	return sub
}

// mustLoadAndStart loads config and starts server, exiting the process on
// any unrecoverable bootstrap failure.
func mustLoadAndStart(configPath string) (*fiber.App, *msconfig.GatewayConfig, *msServer.Stores) {
	cfg, err := msconfig.LoadConfig(configPath)
	if err != nil {
		fatalExit(fmt.Sprintf("Failed to load config: %v", err))
	}

	stores := msServer.NewStores()
	app, err := msServer.StartServer(cfg, stores, consoleAssets(), faviconAssets())
	if err != nil {
		fatalExit(fmt.Sprintf("Failed to build server: %v", err))
	}
	return app, cfg, stores
}

// listenApp starts the Fiber server.
func listenApp(app *fiber.App, addr string) {
	if err := app.Listen(addr); err != nil {
		mslogger.LogError(fmt.Sprintf("Server stopped unexpectedly: %v", err))
	}
}

// reloadServer reloads config and restarts the server, swapping the
// listening app under rt.Mu so watchConfigFile's signal handler always sees
// a consistent pair.
func reloadServer(rt *Runtime, configFile string) {
	mslogger.LogWarn("Config file changed. Reloading server...")

	rt.Mu.Lock()
	oldApp := rt.App
	rt.Mu.Unlock()

	_ = oldApp.Shutdown()
	time.Sleep(200 * time.Millisecond) // let the old listener release the port

	newCfg, err := msconfig.LoadConfig(configFile)
	if err != nil {
		mslogger.LogError(fmt.Sprintf("Failed to reload config: %v", err))
		return
	}

	stores := msServer.NewStores()
	newApp, err := msServer.StartServer(newCfg, stores, consoleAssets(), faviconAssets())
	if err != nil {
		mslogger.LogError(fmt.Sprintf("Failed to rebuild server: %v", err))
		return
	}

	newAddr := fmt.Sprintf(":%d", newCfg.Port)
	go listenApp(newApp, newAddr)
	mslogger.LogSuccess(fmt.Sprintf("Server reloaded successfully and listening on %s", mslogger.GetServerHost(newAddr)), 1)

	rt.Mu.Lock()
	rt.App = newApp
	rt.Cfg = newCfg
	rt.Stores = stores
	rt.Mu.Unlock()
}

// fatalExit logs error and exits.
func fatalExit(msg string) {
	mslogger.LogError(msg)
	os.Exit(1)
}
