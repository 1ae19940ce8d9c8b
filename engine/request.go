package engine

import (
	"io"
	"net/textproto"
)

// BodyKind tags the shape of a parsed request body, per the Data Model's
// "null | scalar | object | array | raw bytes" variant.
type BodyKind int

const (
	BodyNil BodyKind = iota
	BodyScalar
	BodyObject
	BodyArray
	BodyRaw
)

// Body is the decoded request (or file-on-disk) payload. Exactly one of the
// typed accessors is meaningful, selected by Kind.
type Body struct {
	Kind   BodyKind
	Scalar interface{}
	Object map[string]interface{}
	Array  []interface{}
	Raw    []byte
}

// IsEmpty reports whether no payload was present at all.
func (b Body) IsEmpty() bool {
	return b.Kind == BodyNil
}

// Value returns the body in the shape `encoding/json` would have produced
// from a single Unmarshal into interface{} — used by the pagination/filter
// and patch engines, which operate on generic JSON values.
func (b Body) Value() interface{} {
	switch b.Kind {
	case BodyScalar:
		return b.Scalar
	case BodyObject:
		return mapToIface(b.Object)
	case BodyArray:
		return b.Array
	default:
		return nil
	}
}

func mapToIface(m map[string]interface{}) interface{} { return m }

// NewBodyFromValue builds a Body from a decoded interface{}, e.g. the result
// of json.Unmarshal(data, &v).
func NewBodyFromValue(v interface{}) Body {
	switch t := v.(type) {
	case nil:
		return Body{Kind: BodyNil}
	case map[string]interface{}:
		return Body{Kind: BodyObject, Object: t}
	case []interface{}:
		return Body{Kind: BodyArray, Array: t}
	default:
		return Body{Kind: BodyScalar, Scalar: t}
	}
}

// File is a single multipart file part, per the Data Model's ordered file list.
type File struct {
	Name        string
	ContentType string
	Content     []byte
}

// Header is a case-insensitive multi-value header map, backed by
// textproto.MIMEHeader (the same canonicalisation net/http itself uses).
type Header struct {
	h textproto.MIMEHeader
}

func NewHeader() Header { return Header{h: textproto.MIMEHeader{}} }

func (h *Header) Set(key, value string) {
	if h.h == nil {
		h.h = textproto.MIMEHeader{}
	}
	h.h.Set(key, value)
}

func (h *Header) Add(key, value string) {
	if h.h == nil {
		h.h = textproto.MIMEHeader{}
	}
	h.h.Add(key, value)
}

func (h Header) Get(key string) string {
	if h.h == nil {
		return ""
	}
	return h.h.Get(key)
}

func (h Header) Values(key string) []string {
	if h.h == nil {
		return nil
	}
	return h.h.Values(key)
}

func (h Header) Del(key string) {
	if h.h != nil {
		h.h.Del(key)
	}
}

// Keys returns the canonical form of every header name present, for callers
// (condition evaluators, template processors) that need to enumerate headers
// rather than look one up by name.
func (h Header) Keys() []string {
	if h.h == nil {
		return nil
	}
	out := make([]string, 0, len(h.h))
	for k := range h.h {
		out = append(out, k)
	}
	return out
}

func (h Header) Clone() Header {
	out := NewHeader()
	for k, vs := range h.h {
		for _, v := range vs {
			out.h.Add(k, v)
		}
	}
	return out
}

// Query is an ordered multi-map of query parameters, preserving the client's
// original ordering for deterministic filter/sort-field iteration.
type Query struct {
	keys   []string
	values map[string][]string
}

func NewQuery() *Query {
	return &Query{values: map[string][]string{}}
}

func (q *Query) Add(key, value string) {
	if _, ok := q.values[key]; !ok {
		q.keys = append(q.keys, key)
	}
	q.values[key] = append(q.values[key], value)
}

// Get returns the first value for key, or "" with ok=false if absent or empty.
func (q *Query) Get(key string) (string, bool) {
	vs, ok := q.values[key]
	if !ok || len(vs) == 0 || vs[0] == "" {
		return "", false
	}
	return vs[0], true
}

func (q *Query) All(key string) []string { return q.values[key] }

func (q *Query) Keys() []string { return q.keys }

// Request is the spec's data model "R": method, URL, headers, path params,
// query params, parsed body and files. It is constructed once per incoming
// HTTP request and mutated only by the body parser and middleware chain.
type Request struct {
	Method      string
	URL         string // full request-target, including query string
	Path        string // URL path only
	Headers     Header
	PathParams  map[string]string
	QueryParams *Query
	Body        Body
	Files       []File

	// RawBody is the unparsed request stream, consulted once by the
	// dispatcher's body-parsing step (C3) and nil afterwards. Host adapters
	// populate it; tests that construct an already-decoded Body can leave it
	// nil.
	RawBody io.Reader

	// Locals lets middlewares and handlers stash request-scoped values (auth
	// claims, request ids, ...), mirroring Fiber's c.Locals.
	Locals map[string]interface{}
}

func NewRequest(method, url, path string) *Request {
	return &Request{
		Method:      method,
		URL:         url,
		Path:        path,
		Headers:     NewHeader(),
		PathParams:  map[string]string{},
		QueryParams: NewQuery(),
		Locals:      map[string]interface{}{},
	}
}

func (r *Request) SetLocal(key string, v interface{}) {
	if r.Locals == nil {
		r.Locals = map[string]interface{}{}
	}
	r.Locals[key] = v
}

func (r *Request) GetLocal(key string) (interface{}, bool) {
	v, ok := r.Locals[key]
	return v, ok
}
