package engine

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewError_Accessors(t *testing.T) {
	err := NewError(KindClientError, http.StatusBadRequest, "bad input")
	assert.Equal(t, "CLIENT_ERROR: bad input", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestWrap_IncludesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindInternal, http.StatusInternalServerError, "write failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")
}

func TestBadRequestNotFoundInternal(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, BadRequest("x").Status)
	assert.Equal(t, http.StatusNotFound, NotFound("x").Status)
	assert.Equal(t, http.StatusInternalServerError, Internal("x", nil).Status)
}

func TestAsEngineError(t *testing.T) {
	assert.Nil(t, AsEngineError(nil))

	existing := BadRequest("already typed")
	assert.Same(t, existing, AsEngineError(existing))

	wrapped := AsEngineError(errors.New("boom"))
	assert.Equal(t, KindInternal, wrapped.Kind)
	assert.Equal(t, http.StatusInternalServerError, wrapped.Status)
}

func TestNewEnvelope(t *testing.T) {
	env := NewEnvelope(http.StatusNotFound, "missing", "/users/1")
	assert.Equal(t, http.StatusNotFound, env.Status)
	assert.Equal(t, "Not Found", env.Error)
	assert.Equal(t, "missing", env.Message)
	assert.Equal(t, "/users/1", env.Path)
	assert.NotEmpty(t, env.Timestamp)
}
