package server_handlers

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gofiber/fiber/v2"
)

type RequestLog struct {
	ID         string    `json:"id"`
	Time       time.Time `json:"time"`
	DurationMs int64     `json:"duration_ms"`

	Request struct {
		Method string            `json:"method"`
		Path   string            `json:"path"`
		Query  map[string]string `json:"query,omitempty"`
		IP     string            `json:"ip"`
		UA     string            `json:"user_agent,omitempty"`
	} `json:"request"`

	Response struct {
		Status int `json:"status"`
	} `json:"response"`

	Route struct {
		Name string `json:"name,omitempty"`
		Type string `json:"type"` // mock | filesystem | internal
	} `json:"route"`
}

var (
	requestLogs   = make([]RequestLog, 0, 100)
	logChannel    = make(chan RequestLog, 100)
	getLogsChan   = make(chan chan []RequestLog)
	maxLogRecords = 100
)

// StartLogAggregator runs the single goroutine owning the in-memory ring
// buffer of recent requests, queried by DebugRequestsHandler.
func StartLogAggregator() {
	go func() {
		for {
			select {
			case entry := <-logChannel:
				if len(requestLogs) >= maxLogRecords {
					requestLogs = requestLogs[1:]
				}
				requestLogs = append(requestLogs, entry)

			case respChan := <-getLogsChan:
				filteredLogs := make([]RequestLog, 0, len(requestLogs))
				for _, log := range requestLogs {
					if log.Route.Type != RouteTypeInternal {
						filteredLogs = append(filteredLogs, log)
					}
				}
				respChan <- filteredLogs
			}
		}
	}()
}

func getClientIP(c *fiber.Ctx) string {
	if ip := c.Get("X-Forwarded-For"); ip != "" {
		return strings.Split(ip, ",")[0]
	}
	return c.IP()
}

// RequestLoggerMiddleware records one ring-buffer entry per request,
// consulted by the debug /requests endpoint. debugPath requests are never
// logged to avoid the aggregator observing its own traffic.
func RequestLoggerMiddleware(debugPath string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		reqID := uuid.NewString()
		c.Locals(CtxRequestID, reqID)

		err := c.Next()

		if debugPath != "" && strings.HasPrefix(c.Path(), debugPath) {
			return err
		}

		entry := RequestLog{
			ID:         reqID,
			Time:       start,
			DurationMs: time.Since(start).Milliseconds(),
		}

		entry.Request.Method = c.Method()
		entry.Request.Path = c.OriginalURL()

		originalQueries := c.Queries()
		safeQueries := make(map[string]string, len(originalQueries))
		for k, v := range originalQueries {
			safeQueries[k] = v
		}
		entry.Request.Query = safeQueries

		entry.Request.IP = getClientIP(c)
		entry.Request.UA = c.Get("User-Agent")
		entry.Response.Status = c.Response().StatusCode()

		if v := c.Locals(CtxRouteType); v != nil {
			entry.Route.Type = v.(string)
		}
		if v := c.Locals(CtxRouteName); v != nil {
			entry.Route.Name = v.(string)
		}

		select {
		case logChannel <- entry:
		default:
		}

		return err
	}
}

func DebugRequestsHandler(c *fiber.Ctx) error {
	respChan := make(chan []RequestLog)
	getLogsChan <- respChan
	logs := <-respChan
	return c.JSON(logs)
}
