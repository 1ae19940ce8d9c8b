package engine

import (
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"strings"
)

// Parser is the pluggable body-decoding strategy (C3). The built-in
// implementation is DefaultParser; a handler or the global options may
// supply a replacement that still has to populate Body/Files the same way.
type Parser interface {
	Parse(r io.Reader, contentType string) (Body, []File, error)
}

type defaultParser struct{}

// DefaultParser is the built-in body parser described in spec.md §4.3.
var DefaultParser Parser = defaultParser{}

func (defaultParser) Parse(r io.Reader, contentType string) (Body, []File, error) {
	mediaType, params, _ := mime.ParseMediaType(contentType)
	if mediaType == "" {
		mediaType = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}

	switch {
	case isJSONType(mediaType):
		return parseJSONBody(r)

	case mediaType == "application/x-www-form-urlencoded":
		return parseURLEncodedBody(r)

	case mediaType == "multipart/form-data":
		boundary := params["boundary"]
		if boundary == "" {
			return Body{}, nil, BadRequest("multipart request missing boundary")
		}
		return parseMultipartBody(r, boundary)

	case strings.HasPrefix(mediaType, "text/"):
		data, err := io.ReadAll(r)
		if err != nil {
			return Body{}, nil, Wrap(KindClientError, 400, "PARSE_ERROR", err)
		}
		return Body{Kind: BodyScalar, Scalar: string(data)}, nil, nil

	default:
		// Fallback: attempt JSON, else raw string (spec.md §4.3).
		data, err := io.ReadAll(r)
		if err != nil {
			return Body{}, nil, Wrap(KindClientError, 400, "PARSE_ERROR", err)
		}
		if len(data) == 0 {
			return Body{Kind: BodyNil}, nil, nil
		}
		var v interface{}
		if jerr := json.Unmarshal(data, &v); jerr == nil {
			return NewBodyFromValue(v), nil, nil
		}
		return Body{Kind: BodyScalar, Scalar: string(data)}, nil, nil
	}
}

func isJSONType(mediaType string) bool {
	switch mediaType {
	case "application/json", "application/merge-patch+json", "application/json-patch+json":
		return true
	}
	return false
}

func parseJSONBody(r io.Reader) (Body, []File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Body{}, nil, Wrap(KindClientError, 400, "PARSE_ERROR", err)
	}
	if len(data) == 0 {
		return Body{Kind: BodyNil}, nil, nil
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return Body{}, nil, Wrap(KindClientError, 400, "PARSE_ERROR", err)
	}
	return NewBodyFromValue(v), nil, nil
}

func parseURLEncodedBody(r io.Reader) (Body, []File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Body{}, nil, Wrap(KindClientError, 400, "PARSE_ERROR", err)
	}
	values, err := url.ParseQuery(string(data))
	if err != nil {
		return Body{}, nil, Wrap(KindClientError, 400, "PARSE_ERROR", err)
	}
	obj := map[string]interface{}{}
	for k, vs := range values {
		if len(vs) == 1 {
			obj[k] = vs[0]
		} else {
			arr := make([]interface{}, len(vs))
			for i, v := range vs {
				arr[i] = v
			}
			obj[k] = arr
		}
	}
	if len(obj) == 0 {
		return Body{Kind: BodyNil}, nil, nil
	}
	return Body{Kind: BodyObject, Object: obj}, nil, nil
}

func parseMultipartBody(r io.Reader, boundary string) (Body, []File, error) {
	mr := multipart.NewReader(r, boundary)
	obj := map[string]interface{}{}
	var files []File

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Body{}, nil, Wrap(KindClientError, 400, "PARSE_ERROR", err)
		}

		if part.FileName() != "" {
			content, rerr := io.ReadAll(part)
			part.Close()
			if rerr != nil {
				return Body{}, nil, Wrap(KindClientError, 400, "PARSE_ERROR", rerr)
			}
			ct := part.Header.Get("Content-Type")
			if ct == "" {
				ct = "application/octet-stream"
			}
			files = append(files, File{Name: part.FormName(), ContentType: ct, Content: content})
			continue
		}

		value, rerr := io.ReadAll(part)
		part.Close()
		if rerr != nil {
			return Body{}, nil, Wrap(KindClientError, 400, "PARSE_ERROR", rerr)
		}
		obj[part.FormName()] = string(value)
	}

	var body Body
	if len(obj) == 0 {
		body = Body{Kind: BodyNil}
	} else {
		body = Body{Kind: BodyObject, Object: obj}
	}
	return body, files, nil
}
