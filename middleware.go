package dispatch

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/time/rate"
)

// DefaultRequestIDHeader is the header RequestIDMiddleware writes.
const DefaultRequestIDHeader = "X-Request-Id"

// RateLimitMiddleware paces outgoing requests with a token bucket. Waiting
// happens inside the transport call, so a superseded or cancelled request
// stops waiting immediately.
func RateLimitMiddleware(limiter *rate.Limiter) Middleware {
	return func(req *http.Request, next RoundTripper) (*http.Response, error) {
		ctx := req.Context()
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// the wait would outlast the request deadline
			return nil, fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return next.RoundTrip(req)
	}
}

// RequestIDMiddleware copies the request id assigned at dispatch into the
// given header ("" selects DefaultRequestIDHeader) unless already set.
func RequestIDMiddleware(header string) Middleware {
	if header == "" {
		header = DefaultRequestIDHeader
	}
	return func(req *http.Request, next RoundTripper) (*http.Response, error) {
		if id := RequestIDFromContext(req.Context()); id != "" && req.Header.Get(header) == "" {
			req.Header.Set(header, id)
		}
		return next.RoundTrip(req)
	}
}

// RequestIDFromContext returns the id the client assigned to the request
// carrying ctx.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}
