package dispatch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
)

// RequestDescriptor describes one logical request. The client never mutates
// a descriptor handed to it; every derived value is built on a copy.
type RequestDescriptor struct {
	URL     string
	Method  Method
	Params  any
	Body    any
	Headers map[string]string
	Timeout time.Duration
}

func (d RequestDescriptor) clone() RequestDescriptor {
	out := d
	out.Headers = cloneHeaders(d.Headers)
	out.Method = d.Method.normalize()
	if out.Method == "" {
		out.Method = MethodGet
	}
	return out
}

// RequestOption adjusts a descriptor built by the verb shortcuts.
type RequestOption func(*RequestDescriptor)

// WithRequestHeaders merges headers into the request, replacing equal keys.
func WithRequestHeaders(headers map[string]string) RequestOption {
	return func(d *RequestDescriptor) {
		d.Headers = lo.Assign(d.Headers, headers)
	}
}

// WithRequestHeader sets a single request header.
func WithRequestHeader(key, value string) RequestOption {
	return WithRequestHeaders(map[string]string{key: value})
}

// WithRequestTimeout overrides the configured timeout for one request.
func WithRequestTimeout(d time.Duration) RequestOption {
	return func(desc *RequestDescriptor) {
		desc.Timeout = d
	}
}

// WithRequestParams sets query parameters, e.g. on a POST.
func WithRequestParams(params any) RequestOption {
	return func(d *RequestDescriptor) {
		d.Params = params
	}
}

// WithRequestBody sets the payload, e.g. on a DELETE.
func WithRequestBody(body any) RequestOption {
	return func(d *RequestDescriptor) {
		d.Body = body
	}
}

func newDescriptor(method Method, rawURL string, params, body any, opts []RequestOption) RequestDescriptor {
	desc := RequestDescriptor{
		URL:    rawURL,
		Method: method,
		Params: params,
		Body:   body,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&desc)
		}
	}
	return desc
}

func cloneHeaders(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

func canonicalHeaders(h map[string]string) map[string]string {
	return lo.MapKeys(h, func(_ string, key string) string {
		return http.CanonicalHeaderKey(key)
	})
}

// mergeHeaders layers caller headers over defaults. Keys are canonicalized
// first so "content-type" and "Content-Type" are the same header; on
// conflict the caller's value wins.
func mergeHeaders(defaults, caller map[string]string) map[string]string {
	return lo.Assign(canonicalHeaders(defaults), canonicalHeaders(caller))
}

// resolveURL joins a relative path onto base. Absolute URLs are used as is.
func resolveURL(base, raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", raw, err)
	}
	if u.IsAbs() || base == "" {
		return u, nil
	}
	joined := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(raw, "/")
	out, err := url.Parse(joined)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", joined, err)
	}
	return out, nil
}

// queryValues flattens params into query values. Structs and other
// JSON-marshalable values are flattened through their JSON object form.
func queryValues(params any) (url.Values, error) {
	switch p := params.(type) {
	case nil:
		return url.Values{}, nil
	case url.Values:
		return cloneValues(p), nil
	case map[string][]string:
		return cloneValues(p), nil
	case map[string]string:
		out := url.Values{}
		for k, v := range p {
			out.Set(k, v)
		}
		return out, nil
	case map[string]any:
		out := url.Values{}
		for k, v := range p {
			addQueryValue(out, k, v)
		}
		return out, nil
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	if string(raw) == "null" {
		return url.Values{}, nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("params must encode to an object: %w", err)
	}
	return queryValues(obj)
}

func cloneValues(v map[string][]string) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

func addQueryValue(out url.Values, key string, v any) {
	switch t := v.(type) {
	case nil:
		return
	case string:
		out.Add(key, t)
	case []string:
		for _, s := range t {
			out.Add(key, s)
		}
	case []any:
		for _, item := range t {
			addQueryValue(out, key, item)
		}
	case map[string]any:
		raw, _ := json.Marshal(t)
		out.Add(key, string(raw))
	default:
		out.Add(key, fmt.Sprint(t))
	}
}

// mergeQuery appends extra values after the ones already present in the
// URL, keeping both.
func mergeQuery(existing url.Values, extra url.Values) url.Values {
	out := cloneValues(existing)
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out[k] = append(out[k], extra[k]...)
	}
	return out
}

// encodeBody turns a payload into wire bytes. Raw byte slices and strings
// are sent verbatim; everything else is JSON encoded.
func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	case string:
		return []byte(b), nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	if string(raw) == "null" {
		return nil, nil
	}
	return raw, nil
}
