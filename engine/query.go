package engine

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Mode is the pagination/filter resolution mode from spec.md §3/§4.4.
type Mode string

const (
	ModeExclusive Mode = "exclusive"
	ModeInclusive Mode = "inclusive"
	ModeNone      Mode = "none"
)

// ParamSource selects whether pagination/filter values come from the query
// string or from the parsed request body.
type ParamSource string

const (
	SourceQuery ParamSource = "query"
	SourceBody  ParamSource = "body"
)

// PaginationConfig is the spec's data model "P".
type PaginationConfig struct {
	Source     ParamSource
	Root       string // dot path into the body, only meaningful when Source == SourceBody
	LimitField string
	SkipField  string
	SortField  string
	OrderField string
}

func defaultPaginationFields(p *PaginationConfig) {
	if p.LimitField == "" {
		p.LimitField = "limit"
	}
	if p.SkipField == "" {
		p.SkipField = "skip"
	}
	if p.SortField == "" {
		p.SortField = "sort"
	}
	if p.OrderField == "" {
		p.OrderField = "order"
	}
}

// FilterValueType is the spec's §3 Filter config valueType enum.
type FilterValueType string

const (
	TypeString    FilterValueType = "string"
	TypeNumber    FilterValueType = "number"
	TypeBoolean   FilterValueType = "boolean"
	TypeDate      FilterValueType = "date"
	TypeStringArr FilterValueType = "string[]"
	TypeNumberArr FilterValueType = "number[]"
	TypeBoolArr   FilterValueType = "boolean[]"
	TypeDateArr   FilterValueType = "date[]"
	TypeFunction  FilterValueType = "function"
)

// Comparison is the spec's §3 Filter config comparison enum.
type Comparison string

const (
	CmpEq    Comparison = "eq"
	CmpNe    Comparison = "ne"
	CmpLt    Comparison = "lt"
	CmpLte   Comparison = "lte"
	CmpGt    Comparison = "gt"
	CmpGte   Comparison = "gte"
	CmpIn    Comparison = "in"
	CmpNin   Comparison = "nin"
	CmpRegex Comparison = "regex"
)

// FilterFunc lets a handler register a "function" valueType filter, since
// that variant cannot be expressed declaratively.
type FilterFunc func(element interface{}) bool

// FilterRule is a single entry of the spec's §3 Filter config rule list.
type FilterRule struct {
	Key         string
	ValueType   FilterValueType
	Comparison  Comparison
	RegexFlags  string
	CustomMatch FilterFunc // only consulted when ValueType == TypeFunction
}

// FilterConfig is the spec's data model "F".
type FilterConfig struct {
	Source ParamSource
	Root   string
	Rules  []FilterRule
}

// ResolvePagination implements §4.4's exclusive/inclusive/none precedence
// for the pagination axis.
func ResolvePagination(handler *PaginationConfig, mode Mode, global *PaginationConfig) *PaginationConfig {
	if mode == ModeNone {
		return nil
	}
	if mode == ModeExclusive || global == nil {
		if handler != nil {
			c := *handler
			defaultPaginationFields(&c)
			return &c
		}
		return nil
	}
	// inclusive: handler fields take precedence, falling back to global.
	merged := PaginationConfig{}
	if global != nil {
		merged = *global
	}
	if handler != nil {
		if handler.Source != "" {
			merged.Source = handler.Source
		}
		if handler.Root != "" {
			merged.Root = handler.Root
		}
		if handler.LimitField != "" {
			merged.LimitField = handler.LimitField
		}
		if handler.SkipField != "" {
			merged.SkipField = handler.SkipField
		}
		if handler.SortField != "" {
			merged.SortField = handler.SortField
		}
		if handler.OrderField != "" {
			merged.OrderField = handler.OrderField
		}
	}
	defaultPaginationFields(&merged)
	return &merged
}

// ResolveFilters implements §4.4's precedence for the filter axis: exclusive
// takes only the handler rules, inclusive concatenates handler then global.
func ResolveFilters(handler *FilterConfig, mode Mode, global *FilterConfig) *FilterConfig {
	if mode == ModeNone {
		return nil
	}
	if mode == ModeExclusive || global == nil {
		return handler
	}
	if handler == nil {
		return global
	}
	merged := FilterConfig{Source: handler.Source, Root: handler.Root}
	if merged.Source == "" {
		merged.Source = global.Source
	}
	if merged.Root == "" {
		merged.Root = global.Root
	}
	merged.Rules = append(append([]FilterRule{}, handler.Rules...), global.Rules...)
	return &merged
}

// paramLookup abstracts over query-string vs. body-rooted value sources.
type paramLookup struct {
	q    *Query
	body Body
}

// get returns the present string form of `field`, honoring source+root. A
// value is "present" only if non-empty, per spec.md §4.4.
func (pl paramLookup) get(source ParamSource, root, field string) (string, bool) {
	if source == SourceBody {
		base := pl.body.Value()
		if root != "" {
			v, ok := resolveDotPath(base, root)
			if !ok {
				return "", false
			}
			base = v
		}
		obj, ok := base.(map[string]interface{})
		if !ok {
			return "", false
		}
		v, ok := obj[field]
		if !ok {
			return "", false
		}
		s := fmt.Sprintf("%v", v)
		return s, s != ""
	}
	v, ok := pl.q.Get(field)
	return v, ok && v != ""
}

// getRaw returns the raw query values (for array filter splitting) or the
// single body-sourced string form.
func (pl paramLookup) getRaw(source ParamSource, root, field string) ([]string, bool) {
	if source == SourceBody {
		v, ok := pl.get(source, root, field)
		if !ok {
			return nil, false
		}
		return []string{v}, true
	}
	vs := pl.q.All(field)
	if len(vs) == 0 {
		return nil, false
	}
	return vs, true
}

func resolveDotPath(v interface{}, path string) (interface{}, bool) {
	if path == "" {
		return v, true
	}
	cur := v
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		next, ok := obj[part]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Paginate applies filters, then stable sort, then skip/limit to elements —
// the order mandated by spec.md §4.4. Either cfg may be nil to skip that
// axis. The returned slice is always a fresh slice (pagination is idempotent
// per spec.md §8: re-applying with the same already-sliced input and the
// same skip/limit is a no-op once skip/limit exceed the remainder, which
// holds because Paginate never re-derives skip/limit from the output).
func Paginate(elements []interface{}, pag *PaginationConfig, filt *FilterConfig, q *Query, body Body) ([]interface{}, error) {
	pl := paramLookup{q: q, body: body}
	out := elements

	if filt != nil {
		filtered, err := applyFilters(out, filt, pl)
		if err != nil {
			return nil, err
		}
		out = filtered
	}

	if pag != nil {
		sorted, err := applySort(out, pag, pl)
		if err != nil {
			return nil, err
		}
		out, err = applySkipLimit(sorted, pag, pl)
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

func applyFilters(elements []interface{}, filt *FilterConfig, pl paramLookup) ([]interface{}, error) {
	out := elements
	for _, rule := range filt.Rules {
		raw, ok := pl.getRaw(filt.Source, filt.Root, rule.Key)
		if !ok {
			continue
		}
		matcher, err := buildMatcher(rule, raw)
		if err != nil {
			return nil, err
		}
		next := make([]interface{}, 0, len(out))
		for _, el := range out {
			fieldVal, present := resolveDotPath(el, rule.Key)
			if matcher(fieldVal, present) {
				next = append(next, el)
			}
		}
		out = next
	}
	return out, nil
}

func buildMatcher(rule FilterRule, raw []string) (func(fieldVal interface{}, present bool) bool, error) {
	if rule.ValueType == TypeFunction {
		if rule.CustomMatch == nil {
			return nil, Internal("filter rule declared valueType=function with no CustomMatch registered", nil)
		}
		return func(fieldVal interface{}, present bool) bool {
			return rule.CustomMatch(fieldVal)
		}, nil
	}

	isArrayType := strings.HasSuffix(string(rule.ValueType), "[]")
	rawValue := raw[0]
	var values []string
	if isArrayType {
		values = strings.Split(rawValue, ",")
	} else {
		values = []string{rawValue}
	}

	coerced := make([]interface{}, 0, len(values))
	for _, v := range values {
		cv, err := coerceValue(strings.TrimSpace(v), baseType(rule.ValueType))
		if err != nil {
			return nil, BadRequest(fmt.Sprintf("invalid filter value for %q: %v", rule.Key, err))
		}
		coerced = append(coerced, cv)
	}

	var rx *regexp.Regexp
	if rule.Comparison == CmpRegex {
		pattern := rawValue
		if rule.RegexFlags != "" {
			pattern = "(?" + goRegexFlags(rule.RegexFlags) + ")" + pattern
		}
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return nil, BadRequest(fmt.Sprintf("invalid regex for %q: %v", rule.Key, err))
		}
		rx = compiled
	}

	return func(fieldVal interface{}, present bool) bool {
		switch rule.Comparison {
		case CmpEq:
			return present && valuesEqual(fieldVal, coerced[0])
		case CmpNe:
			return !present || !valuesEqual(fieldVal, coerced[0])
		case CmpLt, CmpLte, CmpGt, CmpGte:
			if !present {
				return false
			}
			return compareOrdered(fieldVal, coerced[0], rule.Comparison)
		case CmpIn:
			return matchMembership(fieldVal, present, coerced, true)
		case CmpNin:
			return matchMembership(fieldVal, present, coerced, false)
		case CmpRegex:
			if !present {
				return false
			}
			return rx.MatchString(fmt.Sprintf("%v", fieldVal))
		default:
			return false
		}
	}, nil
}

func baseType(t FilterValueType) FilterValueType {
	return FilterValueType(strings.TrimSuffix(string(t), "[]"))
}

func goRegexFlags(flags string) string {
	var b strings.Builder
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's', 'U':
			b.WriteRune(f)
		}
	}
	return b.String()
}

func coerceValue(s string, t FilterValueType) (interface{}, error) {
	switch t {
	case TypeString:
		return s, nil
	case TypeNumber:
		return strconv.ParseFloat(s, 64)
	case TypeBoolean:
		return strconv.ParseBool(s)
	case TypeDate:
		return parseDateEpoch(s)
	default:
		return s, nil
	}
}

func parseDateEpoch(s string) (int64, error) {
	layouts := []string{time.RFC3339, "2006-01-02", "2006-01-02T15:04:05"}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.Unix(), nil
		}
	}
	return 0, fmt.Errorf("unrecognised date format %q", s)
}

func valuesEqual(a, b interface{}) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

func compareOrdered(fieldVal, target interface{}, cmp Comparison) bool {
	af, aok := toFloat(fieldVal)
	bf, bok := toFloat(target)
	var less, greater, equal bool
	if aok && bok {
		less, greater, equal = af < bf, af > bf, af == bf
	} else {
		as := fmt.Sprintf("%v", fieldVal)
		bs := fmt.Sprintf("%v", target)
		less, greater, equal = as < bs, as > bs, as == bs
	}
	switch cmp {
	case CmpLt:
		return less
	case CmpLte:
		return less || equal
	case CmpGt:
		return greater
	case CmpGte:
		return greater || equal
	}
	return false
}

// matchMembership implements in/nin, including the spec's array-vs-array
// "every element of the filter value must appear" semantics when the field
// itself holds an array.
func matchMembership(fieldVal interface{}, present bool, filterValues []interface{}, wantIn bool) bool {
	if !present {
		return !wantIn
	}
	if arr, ok := fieldVal.([]interface{}); ok {
		all := true
		for _, fv := range filterValues {
			found := false
			for _, e := range arr {
				if valuesEqual(e, fv) {
					found = true
					break
				}
			}
			if !found {
				all = false
				break
			}
		}
		if wantIn {
			return all
		}
		return !all
	}

	found := false
	for _, fv := range filterValues {
		if valuesEqual(fieldVal, fv) {
			found = true
			break
		}
	}
	if wantIn {
		return found
	}
	return !found
}

func applySort(elements []interface{}, pag *PaginationConfig, pl paramLookup) ([]interface{}, error) {
	sortField, ok := pl.get(pag.Source, pag.Root, pag.SortField)
	if !ok {
		return elements, nil
	}
	orderRaw, hasOrder := pl.get(pag.Source, pag.Root, pag.OrderField)
	descending := false
	if hasOrder {
		switch orderRaw {
		case "ASC", "1", "true":
			descending = false
		case "DESC", "-1", "false":
			descending = true
		default:
			return nil, BadRequest(fmt.Sprintf("invalid order value %q", orderRaw))
		}
	}

	out := make([]interface{}, len(elements))
	copy(out, elements)
	sort.SliceStable(out, func(i, j int) bool {
		vi, oki := resolveDotPath(out[i], sortField)
		vj, okj := resolveDotPath(out[j], sortField)
		if !oki && !okj {
			return false
		}
		if !oki {
			return false
		}
		if !okj {
			return true
		}
		less := compareOrdered(vi, vj, CmpLt)
		if descending {
			return compareOrdered(vi, vj, CmpGt)
		}
		return less
	})
	return out, nil
}

func applySkipLimit(elements []interface{}, pag *PaginationConfig, pl paramLookup) ([]interface{}, error) {
	skip := 0
	if raw, ok := pl.get(pag.Source, pag.Root, pag.SkipField); ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, BadRequest(fmt.Sprintf("invalid skip value %q", raw))
		}
		skip = n
	}

	limit := -1
	if raw, ok := pl.get(pag.Source, pag.Root, pag.LimitField); ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, BadRequest(fmt.Sprintf("invalid limit value %q", raw))
		}
		limit = n
	}

	if skip >= len(elements) {
		return []interface{}{}, nil
	}
	out := elements[skip:]
	if limit >= 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
