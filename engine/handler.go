package engine

import "time"

// ExecutionMode tags whether a Handler runs user code or delegates to the
// filesystem request engine — the spec's {Filesystem{pre, post}, Custom{fn}}
// tagged variant (§9 "Polymorphic handler `handle`").
type ExecutionMode string

const (
	ModeCustomFunction ExecutionMode = "custom-function"
	ModeFilesystem     ExecutionMode = "filesystem-delegate"
)

// CustomHandlerFunc is a user-supplied REST handler. It is considered
// successful iff it writes a response (sets res.Ended()) before returning;
// the dispatcher treats a non-ended response as MANUALLY_HANDLED.
type CustomHandlerFunc func(req *Request, res ResponseWriter, next NextFunc)

// StringReplace is one literal {search, replace} pair of a pre-transform.
type StringReplace struct {
	Search  string
	Replace string
}

// PreTransform rewrites the URL path before filesystem resolution. Exactly
// one of Replacements or Func should be set; Func takes precedence if both
// are (callers should only populate one).
type PreTransform struct {
	Replacements []StringReplace
	Func         func(path string) string
}

// Apply runs the configured transform, returning the path unchanged if
// neither field is set.
func (t *PreTransform) Apply(path string) string {
	if t == nil {
		return path
	}
	if t.Func != nil {
		return t.Func(path)
	}
	out := path
	for _, r := range t.Replacements {
		out = replaceAll(out, r.Search, r.Replace)
	}
	return out
}

func replaceAll(s, old, new string) string {
	if old == "" {
		return s
	}
	var b []byte
	for {
		idx := indexOf(s, old)
		if idx < 0 {
			b = append(b, s...)
			break
		}
		b = append(b, s[:idx]...)
		b = append(b, new...)
		s = s[idx+len(old):]
	}
	return string(b)
}

func indexOf(s, substr string) int {
	n, m := len(s), len(substr)
	if m == 0 || m > n {
		return -1
	}
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == substr {
			return i
		}
	}
	return -1
}

// PostTransformFunc inspects the resolved file (fileBytes is nil when no
// file was found) and must write the full response itself; the dispatcher
// treats a non-ended response afterwards as MANUALLY_HANDLED. When set,
// automatic pagination/filtering is disabled (the hook owns the shape).
type PostTransformFunc func(req *Request, res ResponseWriter, fileBytes []byte, isJSON bool) error

// Handler is the spec's data model "H": immutable after startup.
type Handler struct {
	RawPattern string
	Pattern    *Pattern
	Method     string
	Disabled   bool
	Mode       ExecutionMode

	Delay  time.Duration
	Parser Parser // nil means "use the options-level / default parser"

	PreTransform  *PreTransform
	PostTransform PostTransformFunc
	CustomFunc    CustomHandlerFunc

	Pagination     *PaginationConfig
	PaginationMode Mode
	Filter         *FilterConfig
	FilterMode     Mode
}

// NewHandler compiles pattern and fills in defaults shared by every mode.
func NewHandler(pattern, method string, mode ExecutionMode) *Handler {
	return &Handler{
		RawPattern: pattern,
		Pattern:    CompilePattern(pattern),
		Method:     method,
		Mode:       mode,
	}
}
