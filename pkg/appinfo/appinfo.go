package appinfo

import (
	"time"
)

var (
	Name        = "devgateway"
	Title       = "DevGateway"
	Description = "Configurable mock API gateway with filesystem, stateful, and WebSocket handlers."

	// Application version
	Version = "1.0.0"

	// BuildDate is overridden at link time via -ldflags by scripts/builder.go.
	BuildDate = "dev"

	StartTime = time.Now()
)
