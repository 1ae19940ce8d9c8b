package server

import (
	"bytes"
	"net"
	"strings"

	"github.com/gofiber/fiber/v2"

	"devgateway/engine"
	"devgateway/ws"
)

// fiberResponseWriter adapts *fiber.Ctx to engine.ResponseWriter. Mirrors
// engine.BufferResponseWriter's ended semantics: a bare WriteHeader doesn't
// flip Ended, only Write/End does — callers that set a status and then bail
// without a body (the dispatcher's own "didn't send a response" check) still
// see Ended()==false.
type fiberResponseWriter struct {
	c      *fiber.Ctx
	status int
	ended  bool
}

func newFiberResponseWriter(c *fiber.Ctx) *fiberResponseWriter {
	return &fiberResponseWriter{c: c}
}

func (w *fiberResponseWriter) SetHeader(key, value string) {
	if w.ended {
		return
	}
	w.c.Set(key, value)
}

func (w *fiberResponseWriter) DelHeader(key string) {
	w.c.Response().Header.Del(key)
}

func (w *fiberResponseWriter) Header(key string) string {
	return string(w.c.Response().Header.Peek(key))
}

func (w *fiberResponseWriter) HeaderKeys() []string {
	var keys []string
	w.c.Response().Header.VisitAll(func(k, _ []byte) {
		keys = append(keys, string(k))
	})
	return keys
}

func (w *fiberResponseWriter) WriteHeader(status int) {
	if w.ended {
		return
	}
	w.status = status
}

func (w *fiberResponseWriter) Write(b []byte) (int, error) {
	if w.ended {
		return 0, nil
	}
	if w.status == 0 {
		w.status = fiber.StatusOK
	}
	w.ended = true
	w.c.Status(w.status)
	return w.c.Write(b)
}

func (w *fiberResponseWriter) StatusCode() int {
	if w.status == 0 {
		return fiber.StatusOK
	}
	return w.status
}

func (w *fiberResponseWriter) Ended() bool { return w.ended }

func (w *fiberResponseWriter) End() {
	if w.status == 0 {
		w.status = fiber.StatusOK
	}
	w.ended = true
	w.c.Status(w.status)
}

// buildEngineRequest copies the headers/query/path the dispatcher needs off
// c before the handler chain runs, leaving the body to be parsed lazily from
// RawBody (the dispatcher's own C3 step, per engine/dispatch.go).
func buildEngineRequest(c *fiber.Ctx) *engine.Request {
	req := engine.NewRequest(c.Method(), c.OriginalURL(), string(c.Request().URI().Path()))

	c.Request().Header.VisitAll(func(k, v []byte) {
		req.Headers.Add(string(k), string(v))
	})

	c.Context().QueryArgs().VisitAll(func(k, v []byte) {
		req.QueryParams.Add(string(k), string(v))
	})

	if body := c.Body(); len(body) > 0 {
		req.RawBody = bytes.NewReader(body)
	}

	return req
}

// Handle is the single Fiber catch-all wired for every configured prefix: it
// builds the transport-agnostic Request/ResponseWriter pair and hands them
// to the REST dispatcher, falling back to c.Next() when the dispatcher asks
// to forward (UnmatchedAction == "forward").
func Handle(dispatcher *engine.Dispatcher) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req := buildEngineRequest(c)
		res := newFiberResponseWriter(c)

		forwarded := false
		hostNext := func() { forwarded = true }

		if err := dispatcher.Dispatch(c.Context(), req, res, hostNext); err != nil {
			return err
		}
		if forwarded {
			return c.Next()
		}
		return nil
	}
}

// wsUpgradeHandler performs the RFC 6455 handshake over Fiber's hijacked
// fasthttp connection and, on success, runs the frame-read loop against the
// matched ws.Handler for the lifetime of the socket.
func wsUpgradeHandler(registry *ws.Registry, prefixes []string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := string(c.Request().URI().Path())
		prefix, ok := engine.MatchesEndpointPrefix(path, prefixes)
		if !ok {
			return c.Next()
		}
		relPath := strings.TrimPrefix(path, prefix)
		if relPath == "" {
			relPath = "/"
		}

		isUpgrade := strings.EqualFold(c.Get("Upgrade"), "websocket")

		handler, manager, params, ok := registry.Match(relPath)
		if !ok {
			if isUpgrade {
				return c.Status(fiber.StatusNotFound).JSON(engine.NewEnvelope(fiber.StatusNotFound, "Not Found", path))
			}
			return c.Next()
		}

		if !isUpgrade {
			return c.Next()
		}

		if handler.Authenticate != nil {
			authReq := buildEngineRequest(c)
			for k, v := range params {
				authReq.PathParams[k] = v
			}
			ok, err := handler.Authenticate(authReq)
			if err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(engine.NewEnvelope(500, "authentication hook failed", path))
			}
			if !ok {
				return c.Status(fiber.StatusUnauthorized).JSON(engine.NewEnvelope(401, "Unauthorized", path))
			}
		}

		handshakeResp, err := ws.Negotiate(ws.HandshakeRequest{
			Key:        c.Get("Sec-WebSocket-Key"),
			Protocols:  splitCommaHeader(c.Get("Sec-WebSocket-Protocol")),
			Extensions: c.Get("Sec-WebSocket-Extensions"),
		}, handler)
		if err != nil {
			if he, ok := err.(*ws.HandshakeError); ok {
				return c.Status(he.Status).SendString(he.Message)
			}
			return c.Status(fiber.StatusBadRequest).SendString(err.Error())
		}

		c.Set("Upgrade", "websocket")
		c.Set("Connection", "Upgrade")
		c.Set("Sec-WebSocket-Accept", handshakeResp.Accept)
		if handshakeResp.Protocol != "" {
			c.Set("Sec-WebSocket-Protocol", handshakeResp.Protocol)
		}
		if handshakeResp.Extensions != "" {
			c.Set("Sec-WebSocket-Extensions", handshakeResp.Extensions)
		}
		c.Status(fiber.StatusSwitchingProtocols)

		c.Context().Hijack(func(raw net.Conn) {
			runWSConnection(raw, handler, manager, relPath, handshakeResp)
		})
		return nil
	}
}

// runWSConnection owns one upgraded socket for its entire lifetime: it wraps
// the hijacked net.Conn, arms the heartbeat/inactivity timers, and feeds
// every inbound chunk through the stateful frame parser and dispatcher,
// exactly mirroring spec.md §4.14's per-connection read loop.
func runWSConnection(raw net.Conn, handler *ws.Handler, manager *ws.Manager, path string, handshake *ws.HandshakeResponse) {
	var codec *ws.DeflateCodec
	if handshake.Extensions != "" {
		codec = ws.NewDeflateCodec(handler.Deflate.ServerNoContextTakeover, handler.Deflate.ClientNoContextTakeover)
	}

	conn := ws.NewConnection(path, raw, handshake.Protocol, codec)
	manager.Add(conn)
	dispatcher := ws.NewDispatcher(handler, manager)

	if handler.OnOpen != nil {
		handler.OnOpen(conn)
	}
	conn.StartHeartbeat(handler.HeartbeatInterval, func() {})
	conn.StartInactivity(handler.InactivityTimeout, func() {})

	parser := &ws.FrameParser{}
	buf := make([]byte, 4096)
	hadError := false

	for {
		n, err := raw.Read(buf)
		if n > 0 {
			frames, perr := parser.Feed(buf[:n])
			for _, f := range frames {
				dispatcher.ProcessFrame(conn, f)
			}
			if perr != nil {
				hadError = true
				break
			}
		}
		if err != nil {
			if err.Error() != "EOF" {
				hadError = true
			}
			break
		}
		if !conn.Open() {
			break
		}
	}

	dispatcher.OnSocketClosed(conn, hadError)
}

func splitCommaHeader(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}
