package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	mslogger "devgateway/logger"
)

const (
	// Version is the devgateway binary's release version.
	Version = "1.0.0"

	// debounceDelay coalesces a burst of config-file writes into a single reload.
	debounceDelay = 500 * time.Millisecond
)

var configFile string

func main() {
	mslogger.StartupMessage(Version)
	mslogger.LoggerConfig.ShowTimestamp = false

	rootCmd := &cobra.Command{
		Use:   "devgateway",
		Short: "devgateway CLI",
	}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the gateway server",
		Run: func(cmd *cobra.Command, args []string) {
			if configFile == "" {
				fmt.Println("Config file is required. Example: devgateway start --config devgateway.json")
				os.Exit(1)
			}
			startApp(configFile)
		},
	}
	startCmd.Flags().StringVarP(&configFile, "config", "c", "devgateway.json", "Path to config file")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the devgateway version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(Version)
		},
	}

	rootCmd.AddCommand(startCmd, versionCmd, convertCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func startApp(configFile string) {
	absConfigPath, err := filepath.Abs(configFile)
	if err != nil {
		fmt.Printf("[ERROR] Failed to resolve config path: %v\n", err)
		os.Exit(1)
	}

	app, cfg, stores := mustLoadAndStart(absConfigPath)
	rt := &Runtime{App: app, Cfg: cfg, Stores: stores}

	addr := fmt.Sprintf(":%d", cfg.Port)
	go listenApp(app, addr)
	mslogger.LogServerStart(addr)

	watchConfigFile(configFile, rt)
}

// watchConfigFile sets up an fsnotify watcher on the config file and
// debounces reloadServer calls, the way the teacher's CLI hot-reload did.
func watchConfigFile(configFile string, rt *Runtime) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fatalExit(fmt.Sprintf("Failed to start config watcher: %v", err))
	}
	defer watcher.Close()

	if err := watcher.Add(configFile); err != nil {
		fatalExit(fmt.Sprintf("Failed to watch config file: %v", err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var reloadTimer *time.Timer
	var mu sync.Mutex

	for {
		select {
		case event := <-watcher.Events:
			if event.Op&fsnotify.Write == fsnotify.Write {
				mu.Lock()
				if reloadTimer != nil {
					reloadTimer.Stop()
				}
				reloadTimer = time.AfterFunc(debounceDelay, func() {
					reloadServer(rt, configFile)
				})
				mu.Unlock()
			}

		case err := <-watcher.Errors:
			mslogger.LogError(fmt.Sprintf("Config watcher error: %v", err))

		case sig := <-sigChan:
			rt.Mu.Lock()
			app := rt.App
			rt.Mu.Unlock()
			handleSignal(sig, app)
			return
		}
	}
}

func handleSignal(sig os.Signal, app *fiber.App) {
	mslogger.LogWarn(fmt.Sprintf("Signal received (%s), shutting down gracefully...", sig))
	_ = app.Shutdown()
	mslogger.LogInfo("devgateway stopped. Goodbye!")
}
