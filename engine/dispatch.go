package engine

import (
	"context"
	"strings"
	"time"
)

// DebugLogger receives low-volume diagnostic events (a disabled handler
// being skipped, ...). Nil is a valid Dispatcher field and means "don't
// log".
type DebugLogger func(format string, args ...interface{})

// Dispatcher is the REST dispatcher (C7): it owns the immutable Options and
// turns one incoming request into a chain.Run over the matched handler, or
// the pure-filesystem fallback, or the unmatched-request action.
type Dispatcher struct {
	opts   *Options
	Logger DebugLogger
}

func NewDispatcher(opts *Options) *Dispatcher {
	return &Dispatcher{opts: opts}
}

// Dispatch implements §4.7. hostNext is invoked when the unmatched action is
// "forward" — it hands control back to the embedding host's own pipeline,
// per §6's handleHttp(req, res, next) contract.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request, res ResponseWriter, hostNext func()) error {
	prefix, ok := MatchesEndpointPrefix(req.Path, d.opts.Prefixes)
	if !ok {
		return d.unmatched(req, res, hostNext)
	}

	relPath := strings.TrimPrefix(req.Path, prefix)
	if relPath == "" {
		relPath = "/"
	}

	handler, params := d.selectHandler(relPath, req.Method)
	if handler == nil {
		return d.fallbackFilesystem(ctx, req, res, hostNext, relPath)
	}

	for k, v := range params {
		req.PathParams[k] = v
	}

	parser := handler.Parser
	if parser == nil {
		parser = d.opts.parser()
	}
	if parser != nil && req.RawBody != nil {
		body, files, err := parser.Parse(req.RawBody, req.Headers.Get("Content-Type"))
		if err != nil {
			WriteErrorEnvelope(res, req.Path, err)
			return nil
		}
		req.Body = body
		req.Files = files
		req.RawBody = nil
	}

	delay := d.opts.GlobalDelay + handler.Delay
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			WriteErrorEnvelope(res, req.Path, NewError(KindTimeout, 504, "Gateway Timeout"))
			return nil
		}
	}

	final := d.buildFinal(handler, relPath)
	chain := NewChain(d.opts.GlobalMiddlewares, d.opts.GlobalErrorMiddlewares, final)
	d.runWithTimeout(ctx, req, res, func(req *Request, res ResponseWriter) {
		chain.Run(req, res)
	})
	return nil
}

// runWithTimeout races work (middlewares + handler + filesystem work) against
// opts.GatewayTimeout, per §5. work runs against a buffered writer so a late
// finish can never leak bytes onto the real connection after the 504 was
// already sent; on normal completion the buffered response is copied onto
// res. Returns true when the gateway timeout won the race.
func (d *Dispatcher) runWithTimeout(ctx context.Context, req *Request, res ResponseWriter, work func(req *Request, res ResponseWriter)) bool {
	if d.opts.GatewayTimeout <= 0 {
		work(req, res)
		return false
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, d.opts.GatewayTimeout)
	defer cancel()

	buf := NewBufferResponseWriter()
	done := make(chan struct{})
	go func() {
		work(req, buf)
		close(done)
	}()

	select {
	case <-done:
		copyBufferedResponse(res, buf)
		return false
	case <-timeoutCtx.Done():
		WriteErrorEnvelope(res, req.Path, NewError(KindTimeout, 504, "Gateway Timeout"))
		buf.Discard()
		return true
	}
}

// copyBufferedResponse replays a completed BufferResponseWriter onto the real
// ResponseWriter. A no-op if res was already finalised (the gateway timeout
// branch already claimed it).
func copyBufferedResponse(res ResponseWriter, buf *BufferResponseWriter) {
	if res.Ended() {
		return
	}
	for k, v := range buf.Headers() {
		res.SetHeader(k, v)
	}
	if !buf.Ended() {
		return
	}
	res.WriteHeader(buf.StatusCode())
	if body := buf.Body(); len(body) > 0 {
		_, _ = res.Write(body)
		return
	}
	res.End()
}

// selectHandler scans handlers in declaration order. A pattern match with
// the wrong method does not short-circuit the scan (§4.7 step 2).
func (d *Dispatcher) selectHandler(relPath, method string) (*Handler, map[string]string) {
	for _, h := range d.opts.Handlers {
		if h.Disabled {
			if d.Logger != nil {
				d.Logger("skipping disabled handler %s %s", h.Method, h.RawPattern)
			}
			continue
		}
		params, ok := h.Pattern.Match(relPath)
		if !ok {
			continue
		}
		if h.Method != method {
			continue
		}
		return h, params
	}
	return nil, nil
}

func (d *Dispatcher) buildFinal(handler *Handler, relPath string) MiddlewareFunc {
	switch handler.Mode {
	case ModeCustomFunction:
		return func(req *Request, res ResponseWriter, next NextFunc) {
			handler.CustomFunc(req, res, next)
			if !res.Ended() {
				next(NewError(KindManual, 500, "Custom handler did not send any response"))
			}
		}
	default: // ModeFilesystem
		return func(req *Request, res ResponseWriter, next NextFunc) {
			if d.opts.FSRoot == "" {
				next(Internal("filesystem root not configured for filesystem-delegate handler", nil))
				return
			}
			pag := ResolvePagination(handler.Pagination, handler.PaginationMode, d.opts.paginationFor(handler.Method))
			filt := ResolveFilters(handler.Filter, handler.FilterMode, d.opts.filterFor(handler.Method))
			path := relPath
			if handler.PreTransform != nil {
				path = handler.PreTransform.Apply(path)
			}
			fsCtx := &FSContext{
				Root:          d.opts.FSRoot,
				Pagination:    pag,
				Filter:        filt,
				PostTransform: handler.PostTransform,
			}
			if err := HandleFilesystemRequest(fsCtx, req, res, path); err != nil {
				next(err)
				return
			}
			next(nil)
		}
	}
}

// fallbackFilesystem is §4.7 step 4: no handler matched, try the bare
// filesystem tree with no handler-level pagination/filter override, using
// only the method-global configs.
func (d *Dispatcher) fallbackFilesystem(ctx context.Context, req *Request, res ResponseWriter, hostNext func(), relPath string) error {
	if d.opts.FSRoot == "" {
		return d.unmatched(req, res, hostNext)
	}

	if req.RawBody != nil {
		parser := d.opts.parser()
		if parser != nil {
			body, files, err := parser.Parse(req.RawBody, req.Headers.Get("Content-Type"))
			if err != nil {
				WriteErrorEnvelope(res, req.Path, err)
				return nil
			}
			req.Body = body
			req.Files = files
			req.RawBody = nil
		}
	}

	fsCtx := &FSContext{
		Root:       d.opts.FSRoot,
		Pagination: d.opts.paginationFor(req.Method),
		Filter:     d.opts.filterFor(req.Method),
	}

	var fsErr error
	timedOut := d.runWithTimeout(ctx, req, res, func(req *Request, res ResponseWriter) {
		fsErr = HandleFilesystemRequest(fsCtx, req, res, relPath)
	})
	if timedOut {
		return nil
	}
	if fsErr == nil {
		return nil
	}
	if e, ok := fsErr.(*Error); ok && e.Kind == KindNotFound {
		return d.unmatched(req, res, hostNext)
	}
	WriteErrorEnvelope(res, req.Path, fsErr)
	return nil
}

func (d *Dispatcher) unmatched(req *Request, res ResponseWriter, hostNext func()) error {
	if d.opts.UnmatchedAction == ActionForward {
		if hostNext != nil {
			hostNext()
		}
		return nil
	}
	WriteErrorEnvelope(res, req.Path, NewError(KindNoHandler, 404, "Not Found"))
	return nil
}
