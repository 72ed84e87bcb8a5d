package dispatch

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/pretty"
)

// absentPayload stands in for missing params or body so that "nothing"
// never collides with a payload that serializes to an empty string.
const absentPayload = "{}"

var canonicalOptions = &pretty.Options{SortKeys: true}

// Fingerprint returns the identity of the logical request described by
// desc: method, URL, params and body. Headers and timeout do not take part.
// Object keys and URL query keys are sorted, so requests that differ only
// in key order share a fingerprint.
func Fingerprint(desc RequestDescriptor) string {
	method := desc.Method.normalize()
	if method == "" {
		method = MethodGet
	}

	var b strings.Builder
	b.WriteString(string(method))
	b.WriteByte(' ')
	b.WriteString(canonicalURL(desc.URL))
	b.WriteByte(' ')
	b.WriteString(canonicalPayload(desc.Params))
	b.WriteByte(' ')
	b.WriteString(canonicalPayload(desc.Body))
	return b.String()
}

// canonicalURL re-encodes the query of raw with sorted keys. URLs that do
// not parse are used as given.
func canonicalURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}
	query, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return raw
	}
	u.RawQuery = query.Encode()
	return u.String()
}

func canonicalPayload(v any) string {
	if v == nil {
		return absentPayload
	}

	var raw []byte
	switch t := v.(type) {
	case json.RawMessage:
		raw = t
	case []byte:
		if !json.Valid(t) {
			// opaque bytes: quote them so they cannot look like JSON
			quoted, _ := json.Marshal(string(t))
			return string(quoted)
		}
		raw = t
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%#v", v)
		}
		raw = encoded
	}

	if !json.Valid(raw) {
		quoted, _ := json.Marshal(string(raw))
		return string(quoted)
	}

	canonical := string(pretty.Ugly(pretty.PrettyOptions(raw, canonicalOptions)))
	if canonical == "null" || canonical == "" {
		return absentPayload
	}
	return canonical
}
