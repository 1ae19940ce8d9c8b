package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergePatch_Idempotent(t *testing.T) {
	target := map[string]interface{}{
		"name": "alice",
		"age":  float64(30),
		"address": map[string]interface{}{
			"city": "nyc",
			"zip":  "10001",
		},
	}
	patch := map[string]interface{}{
		"age": float64(31),
		"address": map[string]interface{}{
			"zip": nil,
		},
	}

	once := MergePatch(target, patch)
	twice := MergePatch(once, patch)
	assert.Equal(t, once, twice, "applying the same merge patch twice must be a no-op the second time")

	obj := once.(map[string]interface{})
	assert.Equal(t, "alice", obj["name"])
	assert.Equal(t, float64(31), obj["age"])
	addr := obj["address"].(map[string]interface{})
	assert.Equal(t, "nyc", addr["city"])
	_, hasZip := addr["zip"]
	assert.False(t, hasZip, "a null member in the patch deletes the target key")
}

func TestMergePatch_NonObjectPatchReplaces(t *testing.T) {
	assert.Equal(t, "replacement", MergePatch(map[string]interface{}{"a": 1}, "replacement"))
	assert.Equal(t, []interface{}{1, 2}, MergePatch(map[string]interface{}{"a": 1}, []interface{}{1, 2}))
}

func TestMergePatch_NilTargetBecomesObject(t *testing.T) {
	result := MergePatch(nil, map[string]interface{}{"a": float64(1)})
	assert.Equal(t, map[string]interface{}{"a": float64(1)}, result)
}

func TestApplyJSONPatch_AddReplaceRemove(t *testing.T) {
	doc := map[string]interface{}{
		"name": "alice",
		"tags": []interface{}{"x", "y"},
	}

	out, err := ApplyJSONPatch(doc, []JSONPatchOp{
		{Op: "add", Path: "/age", Value: float64(30)},
		{Op: "replace", Path: "/name", Value: "bob"},
		{Op: "remove", Path: "/tags/0"},
	})
	require.NoError(t, err)

	result := out.(map[string]interface{})
	assert.Equal(t, "bob", result["name"])
	assert.Equal(t, float64(30), result["age"])
	assert.Equal(t, []interface{}{"y"}, result["tags"])

	// original must be untouched
	assert.Equal(t, "alice", doc["name"])
}

func TestApplyJSONPatch_MoveAndCopy(t *testing.T) {
	doc := map[string]interface{}{
		"a": map[string]interface{}{"x": float64(1)},
		"b": map[string]interface{}{},
	}

	out, err := ApplyJSONPatch(doc, []JSONPatchOp{
		{Op: "copy", From: "/a/x", Path: "/b/x"},
		{Op: "move", From: "/a/x", Path: "/a/y"},
	})
	require.NoError(t, err)

	result := out.(map[string]interface{})
	a := result["a"].(map[string]interface{})
	b := result["b"].(map[string]interface{})
	assert.Equal(t, float64(1), b["x"])
	assert.Equal(t, float64(1), a["y"])
	_, hasX := a["x"]
	assert.False(t, hasX)
}

func TestApplyJSONPatch_AppendWithDash(t *testing.T) {
	doc := map[string]interface{}{"items": []interface{}{"a"}}

	out, err := ApplyJSONPatch(doc, []JSONPatchOp{
		{Op: "add", Path: "/items/-", Value: "b"},
	})
	require.NoError(t, err)

	result := out.(map[string]interface{})
	assert.Equal(t, []interface{}{"a", "b"}, result["items"])
}

func TestApplyJSONPatch_UnsupportedOpRejected(t *testing.T) {
	doc := map[string]interface{}{"name": "alice"}

	_, err := ApplyJSONPatch(doc, []JSONPatchOp{
		{Op: "test", Path: "/name", Value: "alice"},
	})
	require.Error(t, err)

	eerr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindClientError, eerr.Kind)
	assert.Equal(t, "PATCH operation not supported: test", eerr.Message)
}

func TestApplyJSONPatch_ReplaceMissingMemberFails(t *testing.T) {
	doc := map[string]interface{}{"name": "alice"}

	_, err := ApplyJSONPatch(doc, []JSONPatchOp{
		{Op: "replace", Path: "/missing", Value: "x"},
	})
	require.Error(t, err)
	eerr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindClientError, eerr.Kind)
}

func TestApplyJSONPatch_RemoveRootRejected(t *testing.T) {
	_, err := ApplyJSONPatch(map[string]interface{}{"a": 1}, []JSONPatchOp{
		{Op: "remove", Path: ""},
	})
	require.Error(t, err)
}
