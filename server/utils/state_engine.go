package server_utils

import "fmt"
import "errors"

var (
	StateErrNotFound = errors.New("state: item not found")
	StateErrConflict = errors.New("state: item already exists")
	StateErrBadInput = errors.New("state: invalid input")
)

// ApplyStateful runs one CRUD step of a declarative handler's in-process
// collection. collection/action/idField come straight off the matching
// config.StatefulConfig fields; kept as plain strings (rather than taking
// the config type itself) so this package never has to import config.
func ApplyStateful(
	store *StateStore,
	collection string,
	action string,
	idField string,
	ctx *EContext,
) error {

	if ctx.State == nil {
		ctx.State = &StateContext{}
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	col := store.collections[collection]
	if col == nil {
		col = []map[string]interface{}{}
	}

	if idField == "" {
		idField = "id"
	}

	switch action {

	case "create":
		item := ctx.Body
		idVal, ok := item[idField]
		if !ok {
			return StateErrBadInput
		}

		// 🔥 CONFLICT CHECK
		for _, existing := range col {
			if fmt.Sprint(existing[idField]) == fmt.Sprint(idVal) {
				return StateErrConflict
			}
		}

		col = append(col, item)
		store.collections[collection] = col

		ctx.State.Created = item
		ctx.State.List = col

	case "list":
		ctx.State.List = col

	case "get":
		id := ctx.Path[idField]
		for _, item := range col {
			if fmt.Sprint(item[idField]) == id {
				ctx.State.Item = item
				return nil
			}
		}
		return StateErrNotFound

	case "update":
		id := ctx.Path[idField]
		for i, item := range col {
			if fmt.Sprint(item[idField]) == id {
				for k, v := range ctx.Body {
					item[k] = v
				}
				col[i] = item
				store.collections[collection] = col

				ctx.State.Updated = item
				return nil
			}
		}
		return StateErrNotFound

	case "delete":
		id := ctx.Path[idField]
		found := false
		newCol := make([]map[string]interface{}, 0, len(col))

		for _, item := range col {
			if fmt.Sprint(item[idField]) == id {
				found = true
				continue
			}
			newCol = append(newCol, item)
		}

		if !found {
			return StateErrNotFound
		}

		store.collections[collection] = newCol
		ctx.State.List = newCol

	default:
		return fmt.Errorf("unknown stateful action: %s", action)
	}

	return nil
}
