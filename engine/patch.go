package engine

import (
	"strconv"
	"strings"
)

// MergePatch applies an RFC 7396 JSON Merge Patch. Both target and patch are
// already-decoded JSON values (map[string]interface{}, []interface{}, or a
// scalar). A nil member value deletes the corresponding target key.
func MergePatch(target, patch interface{}) interface{} {
	patchObj, ok := patch.(map[string]interface{})
	if !ok {
		// Per RFC 7396: a non-object patch simply replaces the target.
		return patch
	}

	targetObj, ok := target.(map[string]interface{})
	if !ok {
		targetObj = map[string]interface{}{}
	} else {
		cloned := make(map[string]interface{}, len(targetObj))
		for k, v := range targetObj {
			cloned[k] = v
		}
		targetObj = cloned
	}

	for k, v := range patchObj {
		if v == nil {
			delete(targetObj, k)
			continue
		}
		targetObj[k] = MergePatch(targetObj[k], v)
	}
	return targetObj
}

// JSONPatchOp is one operation of an RFC 6902 JSON Patch document.
type JSONPatchOp struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	From  string      `json:"from,omitempty"`
	Value interface{} `json:"value,omitempty"`
}

// ApplyJSONPatch applies an ordered list of RFC 6902 operations to target,
// returning the patched document. It operates on a deep-enough copy that the
// caller's original value is left untouched on success; on error the
// returned value is undefined and must be discarded.
func ApplyJSONPatch(target interface{}, ops []JSONPatchOp) (interface{}, error) {
	doc := deepCopyJSON(target)
	for _, op := range ops {
		var err error
		doc, err = applyOne(doc, op)
		if err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func applyOne(doc interface{}, op JSONPatchOp) (interface{}, error) {
	switch op.Op {
	case "add":
		return opSet(doc, op.Path, op.Value, true)
	case "replace":
		return opSet(doc, op.Path, op.Value, false)
	case "remove":
		return opRemove(doc, op.Path)
	case "move":
		v, removed, err := opGetAndRemove(doc, op.From)
		if err != nil {
			return nil, err
		}
		return opSet(removed, op.Path, v, true)
	case "copy":
		v, err := opGet(doc, op.From)
		if err != nil {
			return nil, err
		}
		return opSet(doc, op.Path, deepCopyJSON(v), true)
	default:
		return nil, BadRequest("PATCH operation not supported: " + op.Op)
	}
}

func splitPointer(path string) []string {
	if path == "" || path == "/" {
		return nil
	}
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~1", "/")
		p = strings.ReplaceAll(p, "~0", "~")
		parts[i] = p
	}
	return parts
}

func opGet(doc interface{}, path string) (interface{}, error) {
	parts := splitPointer(path)
	cur := doc
	for _, part := range parts {
		switch node := cur.(type) {
		case map[string]interface{}:
			v, ok := node[part]
			if !ok {
				return nil, BadRequest("PATCH body request malformed: no such member " + path)
			}
			cur = v
		case []interface{}:
			idx, err := arrayIndex(part, len(node), false)
			if err != nil {
				return nil, err
			}
			cur = node[idx]
		default:
			return nil, BadRequest("PATCH body request malformed: cannot descend into scalar at " + path)
		}
	}
	return cur, nil
}

func opGetAndRemove(doc interface{}, path string) (interface{}, interface{}, error) {
	v, err := opGet(doc, path)
	if err != nil {
		return nil, nil, err
	}
	remaining, err := opRemove(doc, path)
	if err != nil {
		return nil, nil, err
	}
	return v, remaining, nil
}

func arrayIndex(part string, length int, forInsert bool) (int, error) {
	if part == "-" {
		if !forInsert {
			return 0, BadRequest("PATCH body request malformed: '-' not valid here")
		}
		return length, nil
	}
	n, err := strconv.Atoi(part)
	if err != nil || n < 0 {
		return 0, BadRequest("PATCH body request malformed: bad array index " + part)
	}
	max := length
	if !forInsert {
		max = length - 1
	}
	if n > max {
		return 0, BadRequest("PATCH body request malformed: array index out of bounds " + part)
	}
	return n, nil
}

// opSet implements both "add" and "replace": insert implies array elements
// shift right / "-" appends, replace requires the target member/index to
// already exist.
func opSet(doc interface{}, path string, value interface{}, insert bool) (interface{}, error) {
	parts := splitPointer(path)
	if len(parts) == 0 {
		return value, nil
	}
	return setRecursive(doc, parts, value, insert)
}

func setRecursive(node interface{}, parts []string, value interface{}, insert bool) (interface{}, error) {
	key := parts[0]
	last := len(parts) == 1

	switch n := node.(type) {
	case map[string]interface{}:
		cloned := make(map[string]interface{}, len(n))
		for k, v := range n {
			cloned[k] = v
		}
		if last {
			if !insert {
				if _, ok := cloned[key]; !ok {
					return nil, BadRequest("PATCH body request malformed: no such member to replace: " + key)
				}
			}
			cloned[key] = value
			return cloned, nil
		}
		child, ok := cloned[key]
		if !ok {
			return nil, BadRequest("PATCH body request malformed: no such member " + key)
		}
		updated, err := setRecursive(child, parts[1:], value, insert)
		if err != nil {
			return nil, err
		}
		cloned[key] = updated
		return cloned, nil

	case []interface{}:
		idx, err := arrayIndex(key, len(n), last && insert)
		if err != nil {
			return nil, err
		}
		cloned := make([]interface{}, len(n))
		copy(cloned, n)
		if last {
			if insert {
				cloned = append(cloned, nil)
				copy(cloned[idx+1:], cloned[idx:])
				cloned[idx] = value
			} else {
				cloned[idx] = value
			}
			return cloned, nil
		}
		updated, err := setRecursive(cloned[idx], parts[1:], value, insert)
		if err != nil {
			return nil, err
		}
		cloned[idx] = updated
		return cloned, nil

	default:
		return nil, BadRequest("PATCH body request malformed: cannot descend into scalar")
	}
}

func opRemove(doc interface{}, path string) (interface{}, error) {
	parts := splitPointer(path)
	if len(parts) == 0 {
		return nil, BadRequest("PATCH body request malformed: cannot remove document root")
	}
	return removeRecursive(doc, parts)
}

func removeRecursive(node interface{}, parts []string) (interface{}, error) {
	key := parts[0]
	last := len(parts) == 1

	switch n := node.(type) {
	case map[string]interface{}:
		cloned := make(map[string]interface{}, len(n))
		for k, v := range n {
			cloned[k] = v
		}
		if last {
			if _, ok := cloned[key]; !ok {
				return nil, BadRequest("PATCH body request malformed: no such member to remove: " + key)
			}
			delete(cloned, key)
			return cloned, nil
		}
		child, ok := cloned[key]
		if !ok {
			return nil, BadRequest("PATCH body request malformed: no such member " + key)
		}
		updated, err := removeRecursive(child, parts[1:])
		if err != nil {
			return nil, err
		}
		cloned[key] = updated
		return cloned, nil

	case []interface{}:
		idx, err := arrayIndex(key, len(n), false)
		if err != nil {
			return nil, err
		}
		if last {
			cloned := make([]interface{}, 0, len(n)-1)
			cloned = append(cloned, n[:idx]...)
			cloned = append(cloned, n[idx+1:]...)
			return cloned, nil
		}
		cloned := make([]interface{}, len(n))
		copy(cloned, n)
		updated, err := removeRecursive(cloned[idx], parts[1:])
		if err != nil {
			return nil, err
		}
		cloned[idx] = updated
		return cloned, nil

	default:
		return nil, BadRequest("PATCH body request malformed: cannot descend into scalar")
	}
}

func deepCopyJSON(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		cp := make(map[string]interface{}, len(t))
		for k, val := range t {
			cp[k] = deepCopyJSON(val)
		}
		return cp
	case []interface{}:
		cp := make([]interface{}, len(t))
		for i, val := range t {
			cp[i] = deepCopyJSON(val)
		}
		return cp
	default:
		return v
	}
}

func jsonDeepEqual(a, b interface{}) bool {
	switch av := a.(type) {
	case map[string]interface{}:
		bv, ok := b.(map[string]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, ok := bv[k]
			if !ok || !jsonDeepEqual(v, bvv) {
				return false
			}
		}
		return true
	case []interface{}:
		bv, ok := b.([]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for i, v := range av {
			if !jsonDeepEqual(v, bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
