package engine

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
)

// FSContext bundles the per-request-resolved configuration the filesystem
// request engine (C8) needs: the handler's (already axis-resolved)
// pagination/filter configs, and its pre/post transforms. Built by the
// dispatcher (C7) from the handler descriptor + global options before
// calling HandleFilesystemRequest.
type FSContext struct {
	Root          string
	Pagination    *PaginationConfig
	Filter        *FilterConfig
	PostTransform PostTransformFunc
}

// HandleFilesystemRequest implements §4.8. urlPath is the request path with
// the matching prefix already stripped and the handler's pre-transform
// already applied.
func HandleFilesystemRequest(ctx *FSContext, req *Request, res ResponseWriter, urlPath string) error {
	if ctx.PostTransform != nil {
		return runPostTransform(ctx, req, res, urlPath)
	}

	switch req.Method {
	case http.MethodHead:
		return handleReadOnly(ctx, req, res, urlPath, false)
	case http.MethodGet:
		return handleReadOnly(ctx, req, res, urlPath, true)
	case http.MethodPost:
		return handlePost(ctx, req, res, urlPath)
	case http.MethodPut:
		return handlePut(ctx, req, res, urlPath)
	case http.MethodPatch:
		return handlePatch(ctx, req, res, urlPath)
	case http.MethodDelete:
		return handleDelete(ctx, req, res, urlPath)
	case http.MethodOptions:
		return NewError(KindClientError, http.StatusMethodNotAllowed, "Method Not Allowed")
	default:
		return NewError(KindClientError, http.StatusMethodNotAllowed, "Method Not Allowed")
	}
}

func runPostTransform(ctx *FSContext, req *Request, res ResponseWriter, urlPath string) error {
	resolved, err := ResolveFile(ctx.Root, urlPath)
	if err != nil {
		return Internal("failed to resolve file", err)
	}
	var data []byte
	isJSON := false
	if resolved != nil {
		data, err = os.ReadFile(resolved.Path)
		if err != nil {
			return Internal("failed to read file", err)
		}
		isJSON = resolved.IsJSON
	}
	if herr := ctx.PostTransform(req, res, data, isJSON); herr != nil {
		return herr
	}
	if !res.Ended() {
		return NewError(KindManual, http.StatusInternalServerError, "FS REST Handle request not send any response")
	}
	return nil
}

func hasRequestBody(req *Request) bool {
	return !req.Body.IsEmpty() || len(req.Files) > 0
}

func handleReadOnly(ctx *FSContext, req *Request, res ResponseWriter, urlPath string, withBody bool) error {
	if hasRequestBody(req) {
		return BadRequest("GET request cannot have a body in [REST ]File System API mode")
	}

	resolved, err := ResolveFile(ctx.Root, urlPath)
	if err != nil {
		return Internal("failed to resolve file", err)
	}
	if resolved == nil {
		return NotFound("resource not found")
	}

	raw, err := os.ReadFile(resolved.Path)
	if err != nil {
		return Internal("failed to read file", err)
	}

	var outBytes []byte
	total := 1
	if resolved.IsJSON {
		var v interface{}
		if uerr := json.Unmarshal(raw, &v); uerr != nil {
			return Internal("stored JSON is malformed", uerr)
		}
		elements, wasArray := toElements(v)
		if ctx.Pagination != nil || ctx.Filter != nil {
			elements, err = Paginate(elements, ctx.Pagination, ctx.Filter, req.QueryParams, req.Body)
			if err != nil {
				return err
			}
		}
		total = len(elements)
		result := fromElements(elements, wasArray)
		outBytes, err = json.Marshal(result)
		if err != nil {
			return Internal("failed to encode response", err)
		}
	} else {
		outBytes = raw
	}

	res.SetHeader("Content-Type", resolved.MimeType)
	res.SetHeader("X-Total-Elements", itoa(total))
	if !withBody {
		res.SetHeader("Content-Length", itoa(len(outBytes)))
		res.WriteHeader(http.StatusOK)
		res.End()
		return nil
	}
	return WriteJSONOrRaw(res, resolved, outBytes)
}

// WriteJSONOrRaw writes outBytes with the correct status, used by GET for
// both JSON (already re-encoded) and raw streamed files.
func WriteJSONOrRaw(res ResponseWriter, resolved *ResolvedFile, outBytes []byte) error {
	res.WriteHeader(http.StatusOK)
	_, err := res.Write(outBytes)
	return err
}

func handlePost(ctx *FSContext, req *Request, res ResponseWriter, urlPath string) error {
	if len(req.Files) > 1 {
		return BadRequest("POST request cannot contain more than one file")
	}
	hasBody := !req.Body.IsEmpty()
	hasFile := len(req.Files) == 1
	if hasBody && hasFile {
		return BadRequest("POST request cannot contain both a body and a file")
	}

	resolved, err := ResolveFile(ctx.Root, urlPath)
	if err != nil {
		return Internal("failed to resolve file", err)
	}

	if resolved != nil {
		if !resolved.IsJSON {
			return BadRequest("POST request for not json file is not allowed, use PUT to replace it")
		}
		if ctx.Pagination != nil || ctx.Filter != nil {
			raw, rerr := os.ReadFile(resolved.Path)
			if rerr != nil {
				return Internal("failed to read file", rerr)
			}
			var v interface{}
			if uerr := json.Unmarshal(raw, &v); uerr != nil {
				return Internal("stored JSON is malformed", uerr)
			}
			elements, wasArray := toElements(v)
			elements, ferr := Paginate(elements, ctx.Pagination, ctx.Filter, req.QueryParams, req.Body)
			if ferr != nil {
				return ferr
			}
			result := fromElements(elements, wasArray)
			out, merr := json.Marshal(result)
			if merr != nil {
				return Internal("failed to encode response", merr)
			}
			res.SetHeader("Content-Type", "application/json")
			res.SetHeader("X-Total-Elements", itoa(len(elements)))
			res.WriteHeader(http.StatusOK)
			_, werr := res.Write(out)
			return werr
		}
		return NewError(KindClientError, http.StatusConflict, "File at "+urlPath+" already exists")
	}

	if !hasBody && !hasFile {
		return BadRequest("No data provided")
	}
	if ctx.Pagination != nil || ctx.Filter != nil {
		return BadRequest("No data to filter or to paginate")
	}

	return writeResource(ctx, req, res, urlPath, http.StatusCreated)
}

func handlePut(ctx *FSContext, req *Request, res ResponseWriter, urlPath string) error {
	if len(req.Files) > 1 {
		return BadRequest("PUT request cannot contain more than one file")
	}
	if req.Body.IsEmpty() && len(req.Files) == 0 {
		return BadRequest("No data provided")
	}

	resolved, err := ResolveFile(ctx.Root, urlPath)
	if err != nil {
		return Internal("failed to resolve file", err)
	}
	status := http.StatusCreated
	if resolved != nil {
		status = http.StatusOK
	}
	return writeResource(ctx, req, res, urlPath, status)
}

func writeResource(ctx *FSContext, req *Request, res ResponseWriter, urlPath string, status int) error {
	var data []byte
	var err error

	if len(req.Files) == 1 {
		data = req.Files[0].Content
	} else {
		data, err = WritePretty(req.Body.Value())
		if err != nil {
			return Internal("failed to encode payload", err)
		}
	}

	contentType := req.Headers.Get("Content-Type")
	dest := DestinationPath(ctx.Root, urlPath, contentType)
	if mkErr := os.MkdirAll(filepath.Dir(dest), 0o755); mkErr != nil {
		return Internal("failed to create directory", mkErr)
	}
	if wErr := os.WriteFile(dest, data, 0o644); wErr != nil {
		return Internal("failed to write file", wErr)
	}

	res.WriteHeader(status)
	res.End()
	return nil
}

func handlePatch(ctx *FSContext, req *Request, res ResponseWriter, urlPath string) error {
	contentType := req.Headers.Get("Content-Type")
	var isMerge bool
	switch contentType {
	case "application/json", "application/merge-patch+json":
		isMerge = true
	case "application/json-patch+json":
		isMerge = false
	default:
		return NewError(KindClientError, http.StatusUnsupportedMediaType, "Content-Type must be one of application/json, application/merge-patch+json, application/json-patch+json")
	}

	resolved, err := ResolveFile(ctx.Root, urlPath)
	if err != nil {
		return Internal("failed to resolve file", err)
	}
	if resolved == nil {
		return NotFound("resource not found")
	}
	if !resolved.IsJSON {
		return BadRequest("PATCH target is not a JSON file")
	}

	raw, err := os.ReadFile(resolved.Path)
	if err != nil {
		return Internal("failed to read file", err)
	}
	var current interface{}
	if uerr := json.Unmarshal(raw, &current); uerr != nil {
		return Internal("stored JSON is malformed", uerr)
	}

	var patched interface{}
	if isMerge {
		patched = MergePatch(current, req.Body.Value())
	} else {
		arr, ok := req.Body.Value().([]interface{})
		if !ok {
			return BadRequest("PATCH body request malformed")
		}
		ops := make([]JSONPatchOp, 0, len(arr))
		for _, raw := range arr {
			obj, ok := raw.(map[string]interface{})
			if !ok {
				return BadRequest("PATCH body request malformed")
			}
			op := JSONPatchOp{}
			if v, ok := obj["op"].(string); ok {
				op.Op = v
			}
			if v, ok := obj["path"].(string); ok {
				op.Path = v
			}
			if v, ok := obj["from"].(string); ok {
				op.From = v
			}
			op.Value = obj["value"]
			ops = append(ops, op)
		}
		patched, err = ApplyJSONPatch(current, ops)
		if err != nil {
			return err
		}
	}

	out, err := WritePretty(patched)
	if err != nil {
		return Internal("failed to encode patched document", err)
	}
	if wErr := os.WriteFile(resolved.Path, out, 0o644); wErr != nil {
		return Internal("failed to write file", wErr)
	}

	res.SetHeader("Content-Type", "application/json")
	res.WriteHeader(http.StatusOK)
	_, werr := res.Write(out)
	return werr
}

func handleDelete(ctx *FSContext, req *Request, res ResponseWriter, urlPath string) error {
	if hasRequestBody(req) {
		return BadRequest("DELETE request cannot have a body")
	}

	resolved, err := ResolveFile(ctx.Root, urlPath)
	if err != nil {
		return Internal("failed to resolve file", err)
	}
	if resolved == nil {
		return NotFound("resource not found")
	}

	if ctx.Pagination == nil && ctx.Filter == nil || !resolved.IsJSON {
		if rmErr := os.Remove(resolved.Path); rmErr != nil {
			return Internal("failed to delete file", rmErr)
		}
		res.SetHeader("X-Deleted-Elements", "1")
		res.WriteHeader(http.StatusNoContent)
		res.End()
		return nil
	}

	raw, err := os.ReadFile(resolved.Path)
	if err != nil {
		return Internal("failed to read file", err)
	}
	var v interface{}
	if uerr := json.Unmarshal(raw, &v); uerr != nil {
		return Internal("stored JSON is malformed", uerr)
	}
	elements, wasArray := toElements(v)

	matched, err := Paginate(elements, nil, ctx.Filter, req.QueryParams, req.Body)
	if err != nil {
		return err
	}
	if len(matched) == 0 {
		return NotFound("Partial resource to delete not found")
	}

	remaining := removeMatching(elements, matched)
	removedCount := len(elements) - len(remaining)

	if len(remaining) == 0 {
		if rmErr := os.Remove(resolved.Path); rmErr != nil {
			return Internal("failed to delete file", rmErr)
		}
	} else {
		result := fromElements(remaining, wasArray)
		out, merr := WritePretty(result)
		if merr != nil {
			return Internal("failed to encode remaining document", merr)
		}
		if wErr := os.WriteFile(resolved.Path, out, 0o644); wErr != nil {
			return Internal("failed to write file", wErr)
		}
	}

	res.SetHeader("X-Deleted-Elements", itoa(removedCount))
	res.WriteHeader(http.StatusNoContent)
	res.End()
	return nil
}

// toElements collapses a decoded JSON value into the uniform sequence view
// pagination/filter operate on: arrays pass through, a single object is
// treated as a one-element sequence, null becomes an empty sequence.
func toElements(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case []interface{}:
		return t, true
	case nil:
		return nil, true
	default:
		return []interface{}{t}, false
	}
}

// fromElements re-collapses a possibly-filtered sequence back to the shape
// the source file had: arrays stay arrays; a single-object source returns
// its element if it survived filtering, else nil (null).
func fromElements(elements []interface{}, wasArray bool) interface{} {
	if wasArray {
		if elements == nil {
			return []interface{}{}
		}
		return elements
	}
	if len(elements) == 0 {
		return nil
	}
	return elements[0]
}

func removeMatching(original, toRemove []interface{}) []interface{} {
	removed := make([]bool, len(original))
	for _, m := range toRemove {
		for i, o := range original {
			if removed[i] {
				continue
			}
			if jsonDeepEqual(o, m) {
				removed[i] = true
				break
			}
		}
	}
	out := make([]interface{}, 0, len(original))
	for i, o := range original {
		if !removed[i] {
			out = append(out, o)
		}
	}
	return out
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
