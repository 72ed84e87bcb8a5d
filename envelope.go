package dispatch

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Envelope is the response shape every server endpoint returns.
type Envelope[T any] struct {
	Code    int    `json:"code"`
	Data    T      `json:"data"`
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// OK reports business success: Success is set or Code is 200. Any other
// envelope is a business failure even when the HTTP status was 200.
func (e *Envelope[T]) OK() bool {
	return e != nil && (e.Success || e.Code == 200)
}

// decodeEnvelope reads the envelope fields leniently. A body that is not a
// JSON object yields the zero envelope, which is a business failure.
func decodeEnvelope(body []byte) Envelope[json.RawMessage] {
	var env Envelope[json.RawMessage]
	if !gjson.ValidBytes(body) {
		return env
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return env
	}

	env.Code = int(root.Get("code").Int())
	env.Message = root.Get("message").String()
	env.Success = root.Get("success").Bool()
	if data := root.Get("data"); data.Exists() {
		env.Data = json.RawMessage(data.Raw)
	}
	return env
}

// serverMessage extracts a non-empty "message" field from an error body.
func serverMessage(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}
	msg := gjson.GetBytes(body, "message")
	if msg.Type != gjson.String {
		return ""
	}
	return msg.String()
}

// Decode converts the raw data of env into T.
func Decode[T any](env *Envelope[json.RawMessage]) (*Envelope[T], error) {
	if env == nil {
		return nil, ErrNilEnvelope
	}
	out := &Envelope[T]{
		Code:    env.Code,
		Message: env.Message,
		Success: env.Success,
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(env.Data, &out.Data); err != nil {
		return nil, &RequestError{
			Kind:    KindBusinessFailure,
			Message: "response data does not match the expected shape",
			Cause:   err,
		}
	}
	return out, nil
}
