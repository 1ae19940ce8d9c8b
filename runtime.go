package main

import (
	"sync"

	"github.com/gofiber/fiber/v2"

	msconfig "devgateway/config"
	msServer "devgateway/server"
)

// Runtime holds the currently-listening app, its config, and the in-process
// state stores, guarded so a config hot-reload can swap all three
// atomically under Mu.
type Runtime struct {
	App    *fiber.App
	Cfg    *msconfig.GatewayConfig
	Stores *msServer.Stores
	Mu     sync.Mutex
}
