package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleElements() []interface{} {
	return []interface{}{
		map[string]interface{}{"id": "1", "name": "alice", "age": float64(30)},
		map[string]interface{}{"id": "2", "name": "bob", "age": float64(24)},
		map[string]interface{}{"id": "3", "name": "carol", "age": float64(41)},
	}
}

func TestPaginate_SkipLimit(t *testing.T) {
	q := NewQuery()
	q.Add("skip", "1")
	q.Add("limit", "1")

	pag := &PaginationConfig{Source: SourceQuery}
	defaultPaginationFields(pag)

	out, err := Paginate(sampleElements(), pag, nil, q, Body{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "bob", out[0].(map[string]interface{})["name"])
}

func TestPaginate_SortDescending(t *testing.T) {
	q := NewQuery()
	q.Add("sort", "age")
	q.Add("order", "DESC")

	pag := &PaginationConfig{Source: SourceQuery}
	defaultPaginationFields(pag)

	out, err := Paginate(sampleElements(), pag, nil, q, Body{})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "carol", out[0].(map[string]interface{})["name"])
	assert.Equal(t, "bob", out[2].(map[string]interface{})["name"])
}

func TestPaginate_FilterEquals(t *testing.T) {
	q := NewQuery()
	q.Add("name", "bob")

	filt := &FilterConfig{
		Source: SourceQuery,
		Rules: []FilterRule{
			{Key: "name", ValueType: TypeString, Comparison: CmpEq},
		},
	}

	out, err := Paginate(sampleElements(), nil, filt, q, Body{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "bob", out[0].(map[string]interface{})["name"])
}

func TestPaginate_FilterGte(t *testing.T) {
	q := NewQuery()
	q.Add("age", "30")

	filt := &FilterConfig{
		Source: SourceQuery,
		Rules: []FilterRule{
			{Key: "age", ValueType: TypeNumber, Comparison: CmpGte},
		},
	}

	out, err := Paginate(sampleElements(), nil, filt, q, Body{})
	require.NoError(t, err)
	require.Len(t, out, 2)
}

func TestResolvePagination_ModeNone(t *testing.T) {
	assert.Nil(t, ResolvePagination(&PaginationConfig{}, ModeNone, &PaginationConfig{}))
}

func TestResolvePagination_ExclusivePrefersHandler(t *testing.T) {
	handler := &PaginationConfig{LimitField: "take"}
	global := &PaginationConfig{LimitField: "limit"}

	resolved := ResolvePagination(handler, ModeExclusive, global)
	require.NotNil(t, resolved)
	assert.Equal(t, "take", resolved.LimitField)
}

func TestResolveFilters_InclusiveFallsBackToGlobal(t *testing.T) {
	global := &FilterConfig{Rules: []FilterRule{{Key: "status", ValueType: TypeString, Comparison: CmpEq}}}
	resolved := ResolveFilters(nil, ModeInclusive, global)
	require.NotNil(t, resolved)
	assert.Len(t, resolved.Rules, 1)
}
