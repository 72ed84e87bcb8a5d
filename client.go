package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/duyl328/argus-dispatch/internal/pending"
)

// Client is the request coordinator. It keeps at most one live request per
// fingerprint, classifies every failure and normalizes responses into an
// Envelope. It is safe for concurrent use.
type Client struct {
	httpClient      *http.Client
	transport       Transport
	config          atomic.Pointer[Snapshot]
	registry        *pending.Registry
	tokens          TokenStore
	sink            Sink
	logger          Logger
	debug           *DebugConfig
	metrics         *MetricsCollector
	middleware      []Middleware
	now             func() time.Time
	validationError error
}

// New constructs a Client using the provided functional options. A best effort
// validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Client {
	httpClient := &http.Client{}
	client := &Client{
		httpClient: httpClient,
		transport:  httpClient,
		registry:   pending.New(),
		tokens:     nil,
		sink:       NopSink{},
		logger:     nil,
		debug:      DefaultDebugConfig(),
		metrics:    nil,
		middleware: []Middleware{},
		now:        time.Now,
	}
	snapshot := DefaultSnapshot()
	client.config.Store(&snapshot)

	for _, option := range options {
		option(client)
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// Request dispatches desc and waits for it to settle. A superseding request
// with the same fingerprint, CancelAll, or cancellation of ctx make it fail
// with KindCancelled. Every error returned is a *RequestError.
func (c *Client) Request(ctx context.Context, desc RequestDescriptor) (*Envelope[json.RawMessage], error) {
	return c.dispatch(ctx, desc, nil)
}

// dispatch runs desc through the pipeline. accept, when set, inspects a
// business-successful envelope before the request counts as a success; a
// non-nil result fails the request like any other classified error.
func (c *Client) dispatch(ctx context.Context, desc RequestDescriptor, accept func(*Envelope[json.RawMessage]) *RequestError) (*Envelope[json.RawMessage], error) {
	if ctx == nil {
		ctx = context.Background()
	}
	desc = desc.clone()
	cl := &call{
		desc:        desc,
		snapshot:    c.Config(),
		fingerprint: Fingerprint(desc),
		requestID:   c.newRequestID(),
		start:       c.now(),
		url:         desc.URL,
		endpoint:    desc.URL,
	}

	if !desc.Method.Valid() {
		return nil, c.fail(cl, &RequestError{
			Kind:    KindBadRequest,
			Message: fmt.Sprintf("unsupported method %q", string(desc.Method)),
			Cause:   ErrInvalidMethod,
		})
	}

	req, release, err := c.prepare(ctx, cl)
	if err != nil {
		return nil, c.fail(cl, &RequestError{Kind: KindBadRequest, Message: err.Error(), Cause: err})
	}

	method := string(desc.Method)
	c.metrics.RecordRequestStart(method, cl.endpoint)
	defer c.metrics.RecordRequestEnd(method, cl.endpoint)

	c.emit(Event{
		Phase:       PhasePre,
		RequestID:   cl.requestID,
		Method:      method,
		URL:         cl.url,
		Fingerprint: cl.fingerprint,
		Params:      desc.Params,
		Data:        desc.Body,
	})
	if c.debugging(c.debug.LogRequests) {
		c.logger.Debug("Starting request", "requestID", cl.requestID, "method", method, "url", cl.url, "fingerprint", cl.fingerprint)
	}

	resp, transportErr := c.executeMiddleware(req)

	env, reqErr := c.settle(cl, req, resp, transportErr, release)
	if reqErr != nil {
		return nil, c.fail(cl, reqErr)
	}
	if accept != nil {
		if reqErr := accept(env); reqErr != nil {
			if reqErr.StatusCode == 0 {
				reqErr.StatusCode = cl.status
			}
			return nil, c.fail(cl, reqErr)
		}
	}

	duration := c.now().Sub(cl.start)
	c.metrics.RecordRequest(method, cl.endpoint, outcomeSuccess, duration)
	if c.debugging(c.debug.LogResponses) {
		c.logger.Debug("Request succeeded", "requestID", cl.requestID, "status", cl.status, "code", env.Code, "duration", duration)
	}
	return env, nil
}

// Get issues a GET with params as the query.
func (c *Client) Get(ctx context.Context, url string, params any, opts ...RequestOption) (*Envelope[json.RawMessage], error) {
	return c.Request(ctx, newDescriptor(MethodGet, url, params, nil, opts))
}

// Post issues a POST with body as the JSON payload.
func (c *Client) Post(ctx context.Context, url string, body any, opts ...RequestOption) (*Envelope[json.RawMessage], error) {
	return c.Request(ctx, newDescriptor(MethodPost, url, nil, body, opts))
}

// Put issues a PUT with body as the JSON payload.
func (c *Client) Put(ctx context.Context, url string, body any, opts ...RequestOption) (*Envelope[json.RawMessage], error) {
	return c.Request(ctx, newDescriptor(MethodPut, url, nil, body, opts))
}

// Delete issues a DELETE with params as the query.
func (c *Client) Delete(ctx context.Context, url string, params any, opts ...RequestOption) (*Envelope[json.RawMessage], error) {
	return c.Request(ctx, newDescriptor(MethodDelete, url, params, nil, opts))
}

// Patch issues a PATCH with body as the JSON payload.
func (c *Client) Patch(ctx context.Context, url string, body any, opts ...RequestOption) (*Envelope[json.RawMessage], error) {
	return c.Request(ctx, newDescriptor(MethodPatch, url, nil, body, opts))
}

// RequestAs dispatches desc and decodes the envelope data into T. Data that
// does not fit T fails the request as KindBusinessFailure.
func RequestAs[T any](ctx context.Context, c *Client, desc RequestDescriptor) (*Envelope[T], error) {
	var out *Envelope[T]
	_, err := c.dispatch(ctx, desc, func(env *Envelope[json.RawMessage]) *RequestError {
		decoded, err := Decode[T](env)
		if err != nil {
			var reqErr *RequestError
			if errors.As(err, &reqErr) {
				return reqErr
			}
			return &RequestError{Kind: KindBusinessFailure, Message: err.Error(), Cause: err}
		}
		out = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetAs is Get followed by Decode.
func GetAs[T any](ctx context.Context, c *Client, url string, params any, opts ...RequestOption) (*Envelope[T], error) {
	return RequestAs[T](ctx, c, newDescriptor(MethodGet, url, params, nil, opts))
}

// PostAs is Post followed by Decode.
func PostAs[T any](ctx context.Context, c *Client, url string, body any, opts ...RequestOption) (*Envelope[T], error) {
	return RequestAs[T](ctx, c, newDescriptor(MethodPost, url, nil, body, opts))
}

// CancelAll aborts every in-flight request; each settles as KindCancelled.
// It returns the number of requests aborted.
func (c *Client) CancelAll() int {
	n := c.registry.CancelAll()
	c.metrics.RecordCancelAll(n)
	if c.debugging(c.debug.LogRegistry) {
		c.logger.Debug("Cancelled all pending requests", "count", n)
	}
	return n
}

// Pending returns the number of requests currently in flight.
func (c *Client) Pending() int {
	return c.registry.Len()
}

// UpdateConfig replaces the configuration used by requests dispatched from
// now on. Requests already in flight keep the snapshot they started with.
func (c *Client) UpdateConfig(s Snapshot) {
	s = s.clone()
	c.config.Store(&s)
}

// Config returns a copy of the current configuration.
func (c *Client) Config() Snapshot {
	return c.config.Load().clone()
}

// HTTPClient returns the underlying *http.Client, nil when a custom
// Transport was installed.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// fail finalizes a classified error: it fills in request context, clears
// the token on 401, and reports the error once to metrics and the sink.
func (c *Client) fail(cl *call, e *RequestError) *RequestError {
	now := c.now()
	e.RequestID = cl.requestID
	e.Method = string(cl.desc.Method)
	e.URL = cl.url
	e.Fingerprint = cl.fingerprint
	e.Timestamp = now
	e.Duration = now.Sub(cl.start)

	if e.Kind == KindUnauthorized && c.tokens != nil {
		c.tokens.ClearToken()
		c.metrics.RecordTokenClear()
	}

	c.metrics.RecordError(e.Kind, e.Method, cl.endpoint)
	c.metrics.RecordRequest(e.Method, cl.endpoint, e.Kind.String(), e.Duration)

	c.emit(Event{
		Phase:       PhaseError,
		RequestID:   e.RequestID,
		Method:      e.Method,
		URL:         e.URL,
		Fingerprint: e.Fingerprint,
		Message:     e.Message,
		Kind:        e.Kind,
		StatusCode:  e.StatusCode,
		Duration:    e.Duration,
	})
	if c.debugging(c.debug.LogErrors) {
		c.logger.Warn("Request failed", "requestID", e.RequestID, "kind", e.Kind.String(), "status", e.StatusCode, "message", e.Message)
	}
	return e
}

// emit hands an event to the sink. Sink panics never reach the request.
func (c *Client) emit(e Event) {
	if c.sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil && c.logger != nil {
			c.logger.Warn("Observability sink panicked", "panic", fmt.Sprint(r))
		}
	}()
	c.sink.Emit(e)
}

func (c *Client) newRequestID() string {
	if c.debug != nil && c.debug.RequestIDGen != nil {
		return c.debug.RequestIDGen()
	}
	return uuid.NewString()
}

func (c *Client) debugging(category bool) bool {
	return c.debug != nil && c.debug.Enabled && category && c.logger != nil
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}
