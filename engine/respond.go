package engine

import (
	"encoding/json"
	"io"
)

// ResponseWriter is the transport-agnostic sink the dispatcher, filesystem
// engine and middleware chain write to. A concrete adapter (see
// server/fiberhost.go) binds it to the real HTTP response; tests bind it to
// BufferResponseWriter.
//
// Ended() flips to true once a body byte has been written or End has been
// called; a bare WriteHeader does not flip it. Every later writer in the pipeline
// consults it before writing, per the "writable.ended" guard in spec.md §4.6
// and §5 (gateway timeout races).
type ResponseWriter interface {
	SetHeader(key, value string)
	DelHeader(key string)
	Header(key string) string
	HeaderKeys() []string
	WriteHeader(status int)
	Write(b []byte) (int, error)
	StatusCode() int
	Ended() bool
	End()
}

// resetHeaders clears every header previously set on w, per spec.md §4.9: a
// middleware that set X-Custom before calling next(err) must not leak it into
// the error envelope response.
func resetHeaders(w ResponseWriter) {
	for _, k := range w.HeaderKeys() {
		w.DelHeader(k)
	}
}

// WriteJSON marshals v and writes it with a Content-Type of application/json
// and the given status.
func WriteJSON(w ResponseWriter, status int, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.SetHeader("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(b)
	return err
}

// WritePretty marshals v with 2-space indentation — used when the engine
// itself persists JSON to disk (spec.md §6 "stored pretty-printed").
func WritePretty(v interface{}) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// WriteErrorEnvelope materialises an *Error (or any error, normalised via
// AsEngineError) into the canonical JSON error envelope. Per spec.md §4.9 it
// strips any headers the upstream pipeline had already set before emitting
// the envelope, so callers need not clear them first.
func WriteErrorEnvelope(w ResponseWriter, path string, err error) {
	e := AsEngineError(err)
	env := NewEnvelope(e.Status, e.Message, path)
	resetHeaders(w)
	_ = WriteJSON(w, e.Status, env)
}

// StreamFile copies r to w, switching the response to a 500 "Failed to send
// stream data" if a read/write error occurs before anything was committed.
func StreamFile(w ResponseWriter, path string, contentType string, r io.Reader) error {
	w.SetHeader("Content-Type", contentType)
	buf := make([]byte, 32*1024)
	started := false
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if !started {
				w.WriteHeader(200)
				started = true
			}
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			if !started {
				WriteErrorEnvelope(w, path, Internal("Failed to send stream data", rerr))
				return rerr
			}
			return rerr
		}
	}
}
