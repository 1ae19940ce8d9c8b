package engine

import "strings"

// Pattern is a compiled ant-style path pattern: /literal, {name}, *, **.
// Grounded on the teacher's OpenAPI-path-to-regex compiler
// (compilePathRegex in server/handlers.go) but reimplemented as a segment
// matcher instead of a regex, since `**` (zero-or-more segments) has no
// clean single-regex translation when it can appear anywhere in the pattern.
type Pattern struct {
	raw      string
	segments []segment
}

type segKind int

const (
	segLiteral segKind = iota
	segParam
	segStar
	segDoubleStar
)

type segment struct {
	kind    segKind
	literal string
	name    string
}

// CompilePattern parses a pattern string into a Pattern. Patterns are
// slash-separated; a leading slash is required and stripped for matching
// purposes (mirrors how prefixes are consumed before pattern matching in
// dispatch.go).
func CompilePattern(pattern string) *Pattern {
	p := &Pattern{raw: pattern}
	trimmed := strings.Trim(pattern, "/")
	if trimmed == "" {
		return p
	}
	for _, part := range strings.Split(trimmed, "/") {
		switch {
		case part == "**":
			p.segments = append(p.segments, segment{kind: segDoubleStar})
		case part == "*":
			p.segments = append(p.segments, segment{kind: segStar})
		case len(part) >= 2 && part[0] == '{' && part[len(part)-1] == '}':
			p.segments = append(p.segments, segment{kind: segParam, name: part[1 : len(part)-1]})
		default:
			p.segments = append(p.segments, segment{kind: segLiteral, literal: part})
		}
	}
	return p
}

func (p *Pattern) String() string { return p.raw }

// Match anchors the pattern against path (both ends), returning the
// extracted named parameters on success.
func (p *Pattern) Match(path string) (map[string]string, bool) {
	trimmed := strings.Trim(path, "/")
	var pathSegs []string
	if trimmed != "" {
		pathSegs = strings.Split(trimmed, "/")
	}
	params := map[string]string{}
	if matchSegments(p.segments, pathSegs, params) {
		return params, true
	}
	return nil, false
}

func matchSegments(pat []segment, path []string, params map[string]string) bool {
	if len(pat) == 0 {
		return len(path) == 0
	}

	head := pat[0]
	switch head.kind {
	case segDoubleStar:
		// Try consuming 0..len(path) segments with **, backtracking.
		for n := 0; n <= len(path); n++ {
			if matchSegments(pat[1:], path[n:], params) {
				return true
			}
		}
		return false
	default:
		if len(path) == 0 {
			return false
		}
		switch head.kind {
		case segLiteral:
			if path[0] != head.literal {
				return false
			}
		case segStar:
			// matches exactly one segment, uncaptured
		case segParam:
			params[head.name] = path[0]
		}
		return matchSegments(pat[1:], path[1:], params)
	}
}

// Build reconstructs a concrete path from the pattern given a parameter set,
// used by the "path parameter extraction" round-trip property in spec.md §8.
// It fails (returns ok=false) if the pattern contains `*`/`**` wildcards,
// which carry no recoverable value.
func (p *Pattern) Build(params map[string]string) (string, bool) {
	var b strings.Builder
	for _, seg := range p.segments {
		b.WriteByte('/')
		switch seg.kind {
		case segLiteral:
			b.WriteString(seg.literal)
		case segParam:
			v, ok := params[seg.name]
			if !ok {
				return "", false
			}
			b.WriteString(v)
		default:
			return "", false
		}
	}
	if b.Len() == 0 {
		return "/", true
	}
	return b.String(), true
}

// MatchesEndpointPrefix implements the "prefix matching" property from
// spec.md §8: url == p, or url starts with p+"/".
func MatchesEndpointPrefix(url string, prefixes []string) (string, bool) {
	for _, p := range prefixes {
		if url == p || strings.HasPrefix(url, p+"/") {
			return p, true
		}
	}
	return "", false
}
