package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

const (
	msgCancelled       = "request superseded or cancelled"
	msgTimeout         = "request timed out"
	msgNetwork         = "network connection error"
	msgBadRequest      = "bad request parameters"
	msgUnauthorized    = "unauthorized, please log in again"
	msgForbidden       = "access denied"
	msgNotFound        = "requested resource not found"
	msgServerError     = "internal server error"
	msgBusinessFailure = "request failed"
)

// Failure is the raw outcome of a request that did not succeed.
type Failure struct {
	// Err is the transport error; nil when a response arrived.
	Err error
	// Cause is the cancellation cause of the request context, if any.
	Cause error
	// StatusCode and Body describe the response, when there was one.
	StatusCode int
	Body       []byte
}

// Classify maps a failure onto the error taxonomy. It is total: every input
// yields a *RequestError and it never panics.
func Classify(f Failure) *RequestError {
	switch {
	case f.Err != nil || f.StatusCode == 0:
		return classifyTransport(f)
	case f.StatusCode < 200 || f.StatusCode > 299:
		return classifyStatus(f.StatusCode, f.Body)
	default:
		msg := serverMessage(f.Body)
		if msg == "" {
			msg = msgBusinessFailure
		}
		return &RequestError{Kind: KindBusinessFailure, Message: msg, StatusCode: f.StatusCode}
	}
}

func classifyTransport(f Failure) *RequestError {
	switch {
	case isAbort(f.Cause) || isAbort(f.Err):
		return &RequestError{Kind: KindCancelled, Message: msgCancelled, Cause: firstErr(f.Cause, f.Err)}
	case isTimeout(f.Cause) || isTimeout(f.Err):
		return &RequestError{Kind: KindTimeout, Message: msgTimeout, Cause: firstErr(f.Cause, f.Err)}
	case errors.Is(f.Cause, context.Canceled) || errors.Is(f.Err, context.Canceled):
		// the caller's own context was cancelled
		return &RequestError{Kind: KindCancelled, Message: msgCancelled, Cause: firstErr(f.Cause, f.Err)}
	default:
		return &RequestError{Kind: KindNetworkUnavailable, Message: msgNetwork, Cause: f.Err}
	}
}

func classifyStatus(status int, body []byte) *RequestError {
	kind, msg := KindOtherHTTPStatus, ""
	switch status {
	case http.StatusBadRequest:
		kind, msg = KindBadRequest, msgBadRequest
	case http.StatusUnauthorized:
		kind, msg = KindUnauthorized, msgUnauthorized
	case http.StatusForbidden:
		kind, msg = KindForbidden, msgForbidden
	case http.StatusNotFound:
		kind, msg = KindNotFound, msgNotFound
	case http.StatusInternalServerError:
		kind, msg = KindServerError, msgServerError
	}

	server := serverMessage(body)
	switch {
	case kind == KindOtherHTTPStatus && server != "":
		msg = fmt.Sprintf("status %d: %s", status, server)
	case kind == KindOtherHTTPStatus:
		msg = fmt.Sprintf("unexpected status code %d", status)
	case server != "":
		msg = server
	}
	return &RequestError{Kind: kind, Message: msg, StatusCode: status}
}

func isAbort(err error) bool {
	return errors.Is(err, ErrSuperseded) || errors.Is(err, ErrCancelled)
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
