package mediawiki

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Response is a decoded API reply.
type Response map[string]any

// Path walks nested objects.
func (r Response) Path(keys ...string) (any, bool) {
	var cur any = map[string]any(r)
	for _, k := range keys {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[k]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Has reports whether the nested key exists.
func (r Response) Has(keys ...string) bool {
	_, ok := r.Path(keys...)
	return ok
}

// String returns the value at keys as text, or "" when absent.
func (r Response) String(keys ...string) string {
	v, ok := r.Path(keys...)
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// Object returns the nested object at keys, or nil.
func (r Response) Object(keys ...string) Response {
	v, ok := r.Path(keys...)
	if !ok {
		return nil
	}
	m, ok := asMap(v)
	if !ok {
		return nil
	}
	return Response(m)
}

// Status returns the HTTP status captured for a failed call. ok is false for
// responses that arrived with a 2xx status.
func (r Response) Status() (code int, text string, ok bool) {
	v, ok := r.Path("status", "code")
	if !ok {
		return 0, "", false
	}
	switch t := v.(type) {
	case int:
		code = t
	case json.Number:
		n, _ := t.Int64()
		code = int(n)
	case float64:
		code = int(t)
	}
	return code, r.String("status", "text"), true
}

// Err returns the API error carried by the response, if any.
func (r Response) Err() *APIError {
	if !r.Has("error") {
		return nil
	}
	return &APIError{Code: r.String("error", "code"), Info: r.String("error", "info")}
}

// APIError is the error object of a MediaWiki reply.
type APIError struct {
	Code string
	Info string
}

func (e *APIError) Error() string {
	switch {
	case e.Info != "" && e.Code != "":
		return fmt.Sprintf("%s (%s)", e.Info, e.Code)
	case e.Info != "":
		return e.Info
	default:
		return e.Code
	}
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Response:
		return m, true
	}
	return nil, false
}
