package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// nonceParam is the cache-busting query parameter added to GET requests.
const nonceParam = "_t"

var errNilResponse = errors.New("dispatch: transport returned no response")

// call is the derived per-dispatch state of one request.
type call struct {
	desc        RequestDescriptor
	snapshot    Snapshot
	fingerprint string
	requestID   string
	start       time.Time

	id       uint64
	ctx      context.Context
	url      string
	endpoint string
	status   int
}

func (cl *call) timeout() time.Duration {
	if cl.desc.Timeout > 0 {
		return cl.desc.Timeout
	}
	return cl.snapshot.Timeout
}

// prepare is the request interceptor. It registers the fingerprint (which
// may abort a superseded request), binds the registry context and timeout
// to the outgoing request, adds the GET nonce and the bearer token, and
// merges caller headers over the configured defaults.
//
// Encoding happens first so a malformed descriptor never touches the
// registry. The returned release func must be called once the transport
// call has finished.
func (c *Client) prepare(ctx context.Context, cl *call) (*http.Request, context.CancelFunc, error) {
	target, err := resolveURL(cl.snapshot.BaseURL, cl.desc.URL)
	if err != nil {
		return nil, nil, err
	}
	params, err := queryValues(cl.desc.Params)
	if err != nil {
		return nil, nil, err
	}
	body, err := encodeBody(cl.desc.Body)
	if err != nil {
		return nil, nil, err
	}

	if cl.desc.Method == MethodGet {
		params.Set(nonceParam, strconv.FormatInt(c.now().UnixMilli(), 10))
	}
	target.RawQuery = mergeQuery(target.Query(), params).Encode()
	cl.url = target.String()
	cl.endpoint = endpointOf(target)

	regCtx, id, superseded := c.registry.Register(withRequestID(ctx, cl.requestID), cl.fingerprint)
	cl.id, cl.ctx = id, regCtx
	if superseded {
		c.metrics.RecordSupersession(string(cl.desc.Method), cl.endpoint)
		if c.debugging(c.debug.LogRegistry) {
			c.logger.Debug("Superseded in-flight request", "requestID", cl.requestID, "fingerprint", cl.fingerprint)
		}
	}

	reqCtx, release := regCtx, context.CancelFunc(func() {})
	if timeout := cl.timeout(); timeout > 0 {
		reqCtx, release = context.WithTimeoutCause(regCtx, timeout, ErrTimeout)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(reqCtx, string(cl.desc.Method), cl.url, reader)
	if err != nil {
		release()
		c.registry.Deregister(cl.fingerprint, cl.id)
		return nil, nil, err
	}

	headers := mergeHeaders(cl.snapshot.DefaultHeaders, cl.desc.Headers)
	if _, callerAuth := canonicalHeaders(cl.desc.Headers)["Authorization"]; !callerAuth && c.tokens != nil {
		if token, ok := c.tokens.Token(); ok {
			headers["Authorization"] = "Bearer " + token
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, release, nil
}

// settle is the response interceptor. It deregisters the fingerprint and
// turns the transport outcome into either a business-successful envelope
// or a classified error.
func (c *Client) settle(cl *call, req *http.Request, resp *http.Response, transportErr error, release context.CancelFunc) (*Envelope[json.RawMessage], *RequestError) {
	var body []byte
	if transportErr == nil && resp == nil {
		transportErr = errNilResponse
	}
	if transportErr == nil {
		cl.status = resp.StatusCode
		if resp.Body != nil {
			body, transportErr = io.ReadAll(resp.Body)
			resp.Body.Close()
		}
	}
	cause := context.Cause(req.Context())
	release()

	if !c.registry.Deregister(cl.fingerprint, cl.id) {
		// superseded or cancelled in flight; whatever arrived is discarded
		return nil, &RequestError{
			Kind:    KindCancelled,
			Message: msgCancelled,
			Cause:   firstErr(context.Cause(cl.ctx), ErrCancelled),
		}
	}

	if transportErr != nil {
		return nil, Classify(Failure{Err: transportErr, Cause: cause})
	}

	env := decodeEnvelope(body)
	c.emit(Event{
		Phase:       PhasePost,
		RequestID:   cl.requestID,
		Method:      string(cl.desc.Method),
		URL:         cl.url,
		Fingerprint: cl.fingerprint,
		Data:        env.Data,
		Message:     env.Message,
		StatusCode:  cl.status,
		Duration:    c.now().Sub(cl.start),
	})

	if cl.status < 200 || cl.status > 299 || !env.OK() {
		return nil, Classify(Failure{StatusCode: cl.status, Body: body})
	}
	return &env, nil
}

// executeMiddleware runs the middleware chain around the transport.
func (c *Client) executeMiddleware(req *http.Request) (*http.Response, error) {
	if len(c.middleware) == 0 {
		return c.transport.Do(req)
	}

	current := RoundTripperFunc(c.transport.Do)

	for i := len(c.middleware) - 1; i >= 0; i-- {
		middleware := c.middleware[i]
		next := current
		current = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return middleware(r, next)
		})
	}

	return current.RoundTrip(req)
}

// endpointOf extracts a simplified endpoint for metric labels.
func endpointOf(u *url.URL) string {
	if u == nil {
		return "unknown"
	}

	var builder strings.Builder
	builder.WriteString(u.Host)

	if u.Path != "" && u.Path != "/" {
		builder.WriteString(u.Path)
	} else {
		builder.WriteByte('/')
	}

	return builder.String()
}
