package dispatch

import (
	"errors"
	"fmt"
	"time"

	"github.com/duyl328/argus-dispatch/internal/pending"
)

// ErrorKind is the closed set of outcomes a failed request can have.
type ErrorKind int

const (
	KindCancelled ErrorKind = iota + 1
	KindTimeout
	KindNetworkUnavailable
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindServerError
	KindOtherHTTPStatus
	KindBusinessFailure
)

var kindNames = map[ErrorKind]string{
	KindCancelled:          "Cancelled",
	KindTimeout:            "Timeout",
	KindNetworkUnavailable: "NetworkUnavailable",
	KindBadRequest:         "BadRequest",
	KindUnauthorized:       "Unauthorized",
	KindForbidden:          "Forbidden",
	KindNotFound:           "NotFound",
	KindServerError:        "ServerError",
	KindOtherHTTPStatus:    "OtherHttpStatus",
	KindBusinessFailure:    "BusinessFailure",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Sentinel errors for common failure scenarios
var (
	// ErrSuperseded is the cause attached to a request replaced by a newer
	// one with the same fingerprint.
	ErrSuperseded = pending.ErrSuperseded

	// ErrCancelled is the cause attached to requests aborted by CancelAll.
	ErrCancelled = pending.ErrCancelled

	// ErrTimeout is the cause attached when a request exceeds its timeout.
	ErrTimeout = errors.New("dispatch: request timed out")

	// ErrInvalidMethod is returned for verbs outside GET/POST/PUT/DELETE/PATCH.
	ErrInvalidMethod = errors.New("dispatch: unsupported method")

	// ErrInvalidConfig is wrapped by ValidateConfiguration failures.
	ErrInvalidConfig = errors.New("dispatch: invalid configuration")

	// ErrNilEnvelope is returned by Decode when there is nothing to decode.
	ErrNilEnvelope = errors.New("dispatch: nil envelope")
)

// RequestError is the only error type Request returns.
type RequestError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Cause      error

	RequestID   string
	Method      string
	URL         string
	Fingerprint string
	Timestamp   time.Time
	Duration    time.Duration
}

// Error implements error interface.
func (e *RequestError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RequestError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches another *RequestError of the same kind, so
// errors.Is(err, &RequestError{Kind: KindTimeout}) works.
func (e *RequestError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*RequestError); ok {
		return e.Kind == targetErr.Kind
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *RequestError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Kind: %s\n", e.Kind)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Method)
	}
	if e.URL != "" {
		info += fmt.Sprintf("URL: %s\n", e.URL)
	}
	if e.Fingerprint != "" {
		info += fmt.Sprintf("Fingerprint: %s\n", e.Fingerprint)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}

// KindOf returns the kind of a *RequestError in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Kind
	}
	return 0
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// IsCancelled reports whether err is a superseded or cancelled request.
func IsCancelled(err error) bool {
	return IsKind(err, KindCancelled)
}

// IsTransient reports whether the failure might succeed if issued again:
// timeouts, lost connectivity and 5xx responses.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindNetworkUnavailable, KindServerError:
		return true
	case KindOtherHTTPStatus:
		var reqErr *RequestError
		errors.As(err, &reqErr)
		return reqErr.StatusCode == 429 || reqErr.StatusCode >= 500
	default:
		return false
	}
}
