package main

import "embed"

// embeddedConsole carries the admin console's static assets (login page,
// index shell, js/css, public assets, favicon) straight into the binary so
// devgateway ships as a single executable.
//
//go:embed www
var embeddedConsole embed.FS

//go:embed www/favicon.ico
var embeddedFavicon embed.FS
