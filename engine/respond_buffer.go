package engine

import "bytes"

// BufferResponseWriter is an in-memory ResponseWriter, used by unit tests and
// by any host that wants to buffer a response before flushing it (the
// gateway-timeout race in §5 needs exactly this: the loser's writes must be
// discardable).
type BufferResponseWriter struct {
	headers map[string]string
	status  int
	body    bytes.Buffer
	ended   bool
}

func NewBufferResponseWriter() *BufferResponseWriter {
	return &BufferResponseWriter{headers: map[string]string{}}
}

func (w *BufferResponseWriter) SetHeader(key, value string) {
	if w.ended {
		return
	}
	w.headers[key] = value
}

func (w *BufferResponseWriter) DelHeader(key string) {
	delete(w.headers, key)
}

func (w *BufferResponseWriter) Header(key string) string { return w.headers[key] }

func (w *BufferResponseWriter) HeaderKeys() []string {
	keys := make([]string, 0, len(w.headers))
	for k := range w.headers {
		keys = append(keys, k)
	}
	return keys
}

func (w *BufferResponseWriter) WriteHeader(status int) {
	if w.ended {
		return
	}
	w.status = status
}

func (w *BufferResponseWriter) Write(b []byte) (int, error) {
	if w.ended {
		return 0, nil
	}
	if w.status == 0 {
		w.status = 200
	}
	w.ended = true
	return w.body.Write(b)
}

func (w *BufferResponseWriter) StatusCode() int {
	if w.status == 0 {
		return 200
	}
	return w.status
}

func (w *BufferResponseWriter) Ended() bool { return w.ended }

func (w *BufferResponseWriter) Body() []byte { return w.body.Bytes() }

func (w *BufferResponseWriter) Headers() map[string]string { return w.headers }

// Discard marks the writer as ended without having produced output — used by
// the gateway timeout to prevent a late handler from writing after the 504
// was already sent.
func (w *BufferResponseWriter) Discard() { w.ended = true }

// End commits the response without a body (HEAD, 204, 3xx redirects) so that
// later middlewares correctly observe writable.ended == true.
func (w *BufferResponseWriter) End() {
	if w.status == 0 {
		w.status = 200
	}
	w.ended = true
}
