package engine

import "fmt"

// NextFunc is how a middleware hands control back to the chain. Passing a
// non-nil err switches the chain into its error track for the remainder of
// the request, exactly like Express/Fiber's next(err).
type NextFunc func(err error)

// MiddlewareFunc is a normal-track middleware or the terminal handler.
type MiddlewareFunc func(req *Request, res ResponseWriter, next NextFunc)

// ErrorMiddlewareFunc is an error-track middleware, consulted only once the
// chain has switched tracks.
type ErrorMiddlewareFunc func(err error, req *Request, res ResponseWriter, next NextFunc)

// Chain is an explicit middleware pipeline: a list of normal-track
// middlewares run in order, a terminal handler, and a list of error-track
// middlewares run only after something calls next(err). Modeled as a cursor
// state machine (not a recursive callback stack or goroutine pipe) so the
// "where are we" question has a single observable answer at any point:
// (inError, idx) — the same shape the teacher's Fiber app uses internally,
// generalized past Fiber's own opaque *fiber.Ctx cursor.
type Chain struct {
	normal  []MiddlewareFunc
	errorMw []ErrorMiddlewareFunc
	final   MiddlewareFunc
}

// NewChain builds a chain from its three pieces. final may be nil, in which
// case reaching the end of the normal track is a no-op (caller already wrote
// a response, or intends a 404 default).
func NewChain(normal []MiddlewareFunc, errorMw []ErrorMiddlewareFunc, final MiddlewareFunc) *Chain {
	return &Chain{normal: normal, errorMw: errorMw, final: final}
}

// chainState is the single mutable cursor driving a Run. It is not safe for
// concurrent use — a request is handled by exactly one goroutine end-to-end.
type chainState struct {
	chain   *Chain
	req     *Request
	res     ResponseWriter
	idx     int
	errIdx  int
	inError bool
}

// Run drives req/res through the chain to completion. It returns once either
// the terminal handler (or the last error middleware) returns without
// calling next, or the response has already ended.
func (c *Chain) Run(req *Request, res ResponseWriter) {
	st := &chainState{chain: c, req: req, res: res}
	st.dispatch(nil)
}

func (st *chainState) dispatch(err error) {
	if st.res.Ended() {
		return
	}
	if err != nil && !st.inError {
		st.inError = true
		st.errIdx = 0
	}

	if st.inError {
		if st.errIdx >= len(st.chain.errorMw) {
			WriteErrorEnvelope(st.res, st.req.Path, err)
			return
		}
		mw := st.chain.errorMw[st.errIdx]
		st.errIdx++
		st.runErrorMiddleware(mw, err)
		return
	}

	if st.idx >= len(st.chain.normal) {
		if st.chain.final != nil {
			st.runMiddleware(st.chain.final)
		}
		return
	}
	mw := st.chain.normal[st.idx]
	st.idx++
	st.runMiddleware(mw)
}

// runMiddleware invokes a normal-track middleware (or the terminal handler),
// converting a panic into next(err) per spec.md §4.6.
func (st *chainState) runMiddleware(mw MiddlewareFunc) {
	defer func() {
		if r := recover(); r != nil {
			st.dispatch(panicToMiddlewareError(r))
		}
	}()
	mw(st.req, st.res, st.dispatch)
}

// runErrorMiddleware invokes an error-track middleware, converting a panic
// into next(err) with the new error per spec.md §4.6.
func (st *chainState) runErrorMiddleware(mw ErrorMiddlewareFunc, err error) {
	defer func() {
		if r := recover(); r != nil {
			st.dispatch(panicToMiddlewareError(r))
		}
	}()
	mw(err, st.req, st.res, st.dispatch)
}

func panicToMiddlewareError(r interface{}) error {
	if e, ok := r.(error); ok {
		return Wrap(KindMiddleware, 500, "middleware panicked", e)
	}
	return NewError(KindMiddleware, 500, fmt.Sprintf("middleware panicked: %v", r))
}
