package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompilePattern_Literal(t *testing.T) {
	p := CompilePattern("/users/active")
	params, ok := p.Match("/users/active")
	assert.True(t, ok)
	assert.Empty(t, params)

	_, ok = p.Match("/users/inactive")
	assert.False(t, ok)
}

func TestCompilePattern_Param(t *testing.T) {
	p := CompilePattern("/users/{id}")
	params, ok := p.Match("/users/42")
	assert.True(t, ok)
	assert.Equal(t, "42", params["id"])

	_, ok = p.Match("/users/42/posts")
	assert.False(t, ok)
}

func TestCompilePattern_Star(t *testing.T) {
	p := CompilePattern("/assets/*")
	_, ok := p.Match("/assets/logo.png")
	assert.True(t, ok)

	_, ok = p.Match("/assets")
	assert.False(t, ok)

	_, ok = p.Match("/assets/sub/logo.png")
	assert.False(t, ok)
}

func TestCompilePattern_DoubleStar(t *testing.T) {
	p := CompilePattern("/static/**")
	_, ok := p.Match("/static")
	assert.True(t, ok)

	_, ok = p.Match("/static/a/b/c.js")
	assert.True(t, ok)
}

func TestPattern_Build(t *testing.T) {
	p := CompilePattern("/users/{id}/posts/{postId}")
	path, ok := p.Build(map[string]string{"id": "1", "postId": "9"})
	assert.True(t, ok)
	assert.Equal(t, "/users/1/posts/9", path)

	_, ok = p.Build(map[string]string{"id": "1"})
	assert.False(t, ok)
}

func TestPattern_Build_RejectsWildcards(t *testing.T) {
	p := CompilePattern("/static/**")
	_, ok := p.Build(nil)
	assert.False(t, ok)
}

func TestMatchesEndpointPrefix(t *testing.T) {
	prefixes := []string{"/v1", "/api"}

	prefix, ok := MatchesEndpointPrefix("/v1/users", prefixes)
	assert.True(t, ok)
	assert.Equal(t, "/v1", prefix)

	prefix, ok = MatchesEndpointPrefix("/api", prefixes)
	assert.True(t, ok)
	assert.Equal(t, "/api", prefix)

	_, ok = MatchesEndpointPrefix("/v1users", prefixes)
	assert.False(t, ok)
}
