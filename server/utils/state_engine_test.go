package server_utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *StateStore {
	return NewStateStore()
}

// 1. CREATE ACTION TESTS
func TestApplyStateful_Create(t *testing.T) {
	store := newTestStore()

	ctx := &EContext{
		Body: map[string]interface{}{"id": 1, "name": "Ahmet"},
	}

	err := ApplyStateful(store, "users", "create", "id", ctx)
	require.NoError(t, err)
	assert.NotNil(t, ctx.State.Created)
	assert.Equal(t, "Ahmet", ctx.State.Created["name"])
	assert.Len(t, store.collections["users"], 1)

	// Scenario 1: Re-creation with the same ID (Conflict Error)
	ctxConflict := &EContext{
		Body: map[string]interface{}{"id": 1, "name": "Mehmet"},
	}
	errConflict := ApplyStateful(store, "users", "create", "id", ctxConflict)
	assert.Equal(t, StateErrConflict, errConflict)

	// Scenario 2: Missing identity field (Bad Input)
	ctxBad := &EContext{
		Body: map[string]interface{}{"name": "No ID"},
	}
	errBad := ApplyStateful(store, "users", "create", "id", ctxBad)
	assert.Equal(t, StateErrBadInput, errBad)
}

// 2. GET & LIST ACTION TESTS
func TestApplyStateful_GetAndList(t *testing.T) {
	store := newTestStore()
	store.collections["products"] = []map[string]interface{}{
		{"code": "P1", "price": 100},
		{"code": "P2", "price": 200},
	}

	// Scenario 1: Listing
	ctxList := &EContext{}
	err := ApplyStateful(store, "products", "list", "", ctxList)
	require.NoError(t, err)
	assert.Len(t, ctxList.State.List, 2)

	// Scenario 2: Get (Successful)
	ctxGet := &EContext{Path: map[string]string{"code": "P1"}}
	errGet := ApplyStateful(store, "products", "get", "code", ctxGet)
	require.NoError(t, errGet)
	assert.Equal(t, 100, ctxGet.State.Item["price"])

	// Scenario 3: Get (Not found)
	ctxNotFound := &EContext{Path: map[string]string{"code": "P99"}}
	errNotFound := ApplyStateful(store, "products", "get", "code", ctxNotFound)
	assert.Equal(t, StateErrNotFound, errNotFound)
}

// 3. UPDATE ACTION TESTS
func TestApplyStateful_Update(t *testing.T) {
	store := newTestStore()
	store.collections["todos"] = []map[string]interface{}{
		{"id": 10, "title": "Old Title", "done": false},
	}

	// Scenario 1: Successful Update (string path id "10" matches int 10 via fmt.Sprint)
	ctx := &EContext{
		Path: map[string]string{"id": "10"},
		Body: map[string]interface{}{"title": "New Title", "done": true},
	}

	err := ApplyStateful(store, "todos", "update", "id", ctx)
	require.NoError(t, err)
	assert.Equal(t, "New Title", ctx.State.Updated["title"])
	assert.Equal(t, true, ctx.State.Updated["done"])

	updatedItem := store.collections["todos"][0]
	assert.Equal(t, "New Title", updatedItem["title"])

	// Scenario 2: Updating a non-existent ID
	ctxFail := &EContext{
		Path: map[string]string{"id": "999"},
		Body: map[string]interface{}{"title": "Ghost"},
	}
	errFail := ApplyStateful(store, "todos", "update", "id", ctxFail)
	assert.Equal(t, StateErrNotFound, errFail)
}

// 4. DELETE ACTION TESTS
func TestApplyStateful_Delete(t *testing.T) {
	store := newTestStore()
	store.collections["users"] = []map[string]interface{}{
		{"id": 1, "name": "Ali"},
		{"id": 2, "name": "Veli"},
	}

	// Scenario 1: Successful Deletion (ID: 1)
	ctx := &EContext{Path: map[string]string{"id": "1"}}
	err := ApplyStateful(store, "users", "delete", "id", ctx)
	require.NoError(t, err)

	assert.Len(t, store.collections["users"], 1)
	assert.Equal(t, "Veli", store.collections["users"][0]["name"])
	assert.Len(t, ctx.State.List, 1)

	// Scenario 2: Deleting a non-existent ID
	ctxFail := &EContext{Path: map[string]string{"id": "999"}}
	errFail := ApplyStateful(store, "users", "delete", "id", ctxFail)
	assert.Equal(t, StateErrNotFound, errFail)
}
