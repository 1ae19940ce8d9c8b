package engine

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newGetRequest(path string) *Request {
	req := NewRequest(http.MethodGet, path, path)
	return req
}

func TestHandleFilesystemRequest_GetList(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "users.json", `[{"id":1,"name":"alice"},{"id":2,"name":"bob"}]`)

	ctx := &FSContext{Root: root}
	req := newGetRequest("/users.json")
	res := NewBufferResponseWriter()

	err := HandleFilesystemRequest(ctx, req, res, "/users.json")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode())
	assert.Equal(t, "application/json", res.Header("Content-Type"))
	assert.Equal(t, "2", res.Header("X-Total-Elements"))
	assert.Contains(t, string(res.Body()), "alice")
}

func TestHandleFilesystemRequest_GetMissingIsNotFound(t *testing.T) {
	root := t.TempDir()
	ctx := &FSContext{Root: root}
	req := newGetRequest("/missing.json")
	res := NewBufferResponseWriter()

	err := HandleFilesystemRequest(ctx, req, res, "/missing.json")
	require.Error(t, err)
	eerr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindNotFound, eerr.Kind)
}

func TestHandleFilesystemRequest_PostCreatesFile(t *testing.T) {
	root := t.TempDir()

	ctx := &FSContext{Root: root}
	req := NewRequest(http.MethodPost, "/users.json", "/users.json")
	req.Body = NewBodyFromValue(map[string]interface{}{"id": float64(2), "name": "bob"})
	res := NewBufferResponseWriter()

	err := HandleFilesystemRequest(ctx, req, res, "/users.json")
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, res.StatusCode())

	raw, rerr := os.ReadFile(filepath.Join(root, "users.json"))
	require.NoError(t, rerr)
	assert.Contains(t, string(raw), "bob")
}

func TestHandleFilesystemRequest_PostOnExistingJSONIsConflict(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "users.json", `[{"id":1}]`)

	ctx := &FSContext{Root: root}
	req := NewRequest(http.MethodPost, "/users.json", "/users.json")
	req.Body = NewBodyFromValue(map[string]interface{}{"id": float64(2)})
	res := NewBufferResponseWriter()

	err := HandleFilesystemRequest(ctx, req, res, "/users.json")
	require.Error(t, err)
	eerr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, eerr.Status)
}

func TestHandleFilesystemRequest_PutReplacesFile(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "config.json", `{"version":1}`)

	ctx := &FSContext{Root: root}
	req := NewRequest(http.MethodPut, "/config.json", "/config.json")
	req.Body = NewBodyFromValue(map[string]interface{}{"version": float64(2)})
	res := NewBufferResponseWriter()

	err := HandleFilesystemRequest(ctx, req, res, "/config.json")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode())

	raw, rerr := os.ReadFile(filepath.Join(root, "config.json"))
	require.NoError(t, rerr)
	assert.Contains(t, string(raw), `"version": 2`)
}

func TestHandleFilesystemRequest_PutCreatesFile(t *testing.T) {
	root := t.TempDir()
	ctx := &FSContext{Root: root}
	req := NewRequest(http.MethodPut, "/new.json", "/new.json")
	req.Body = NewBodyFromValue(map[string]interface{}{"a": float64(1)})
	res := NewBufferResponseWriter()

	err := HandleFilesystemRequest(ctx, req, res, "/new.json")
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, res.StatusCode())
}

func TestHandleFilesystemRequest_PatchMergePatch(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "profile.json", `{"name":"alice","age":30}`)

	ctx := &FSContext{Root: root}
	req := NewRequest(http.MethodPatch, "/profile.json", "/profile.json")
	req.Headers.Set("Content-Type", "application/merge-patch+json")
	req.Body = NewBodyFromValue(map[string]interface{}{"age": float64(31)})
	res := NewBufferResponseWriter()

	err := HandleFilesystemRequest(ctx, req, res, "/profile.json")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode())
	assert.Contains(t, string(res.Body()), `"age": 31`)
	assert.Contains(t, string(res.Body()), "alice")
}

func TestHandleFilesystemRequest_PatchJSONPatch(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "profile.json", `{"name":"alice"}`)

	ctx := &FSContext{Root: root}
	req := NewRequest(http.MethodPatch, "/profile.json", "/profile.json")
	req.Headers.Set("Content-Type", "application/json-patch+json")
	req.Body = NewBodyFromValue([]interface{}{
		map[string]interface{}{"op": "add", "path": "/age", "value": float64(30)},
	})
	res := NewBufferResponseWriter()

	err := HandleFilesystemRequest(ctx, req, res, "/profile.json")
	require.NoError(t, err)
	assert.Contains(t, string(res.Body()), `"age": 30`)
}

func TestHandleFilesystemRequest_DeleteWholeFile(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "profile.json", `{"name":"alice"}`)

	ctx := &FSContext{Root: root}
	req := NewRequest(http.MethodDelete, "/profile.json", "/profile.json")
	res := NewBufferResponseWriter()

	err := HandleFilesystemRequest(ctx, req, res, "/profile.json")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, res.StatusCode())

	_, statErr := os.Stat(filepath.Join(root, "profile.json"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestHandleFilesystemRequest_DeleteMissingIsNotFound(t *testing.T) {
	root := t.TempDir()
	ctx := &FSContext{Root: root}
	req := NewRequest(http.MethodDelete, "/missing.json", "/missing.json")
	res := NewBufferResponseWriter()

	err := HandleFilesystemRequest(ctx, req, res, "/missing.json")
	require.Error(t, err)
	eerr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindNotFound, eerr.Kind)
}

func TestHandleFilesystemRequest_MethodNotAllowed(t *testing.T) {
	root := t.TempDir()
	ctx := &FSContext{Root: root}
	req := NewRequest(http.MethodOptions, "/x.json", "/x.json")
	res := NewBufferResponseWriter()

	err := HandleFilesystemRequest(ctx, req, res, "/x.json")
	require.Error(t, err)
	eerr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, http.StatusMethodNotAllowed, eerr.Status)
}
