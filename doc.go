// Package dispatch coordinates outbound JSON API requests for a frontend
// style client:
//
//   - Duplicate suppression: a new request with the same fingerprint
//     (method, URL, params and body) aborts the one still in flight
//   - Global abort via CancelAll, e.g. on navigation or shutdown
//   - A closed error taxonomy (ErrorKind) for transport and HTTP failures
//   - Normalization of {code, data, message, success} envelopes
//   - Bearer token injection, cleared once per 401
//   - Cache-busting nonce on GET requests
//   - Middleware chain, Prometheus metrics and pluggable observability sinks
//
// Typical usage:
//
//	client := dispatch.New(
//	    dispatch.WithBaseURL("http://localhost:8726"),
//	    dispatch.WithTimeout(10*time.Second),
//	    dispatch.WithTokenStore(dispatch.NewMemoryTokenStore(token)),
//	)
//	env, err := client.Get(ctx, "/api/v1/list", map[string]any{"page": 1})
//	if dispatch.IsCancelled(err) {
//	    return // a newer identical request replaced this one
//	}
//
// The last dispatched of several identical requests wins; earlier callers
// receive a *RequestError of KindCancelled. A 2xx response whose envelope
// is neither success nor code 200 is a KindBusinessFailure.
package dispatch
