package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestErrorKindString(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{KindCancelled, "Cancelled"},
		{KindTimeout, "Timeout"},
		{KindNetworkUnavailable, "NetworkUnavailable"},
		{KindOtherHTTPStatus, "OtherHttpStatus"},
		{KindBusinessFailure, "BusinessFailure"},
		{ErrorKind(99), "ErrorKind(99)"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Expected %s, got %s", tt.want, got)
		}
	}
}

func TestRequestErrorError(t *testing.T) {
	err := &RequestError{Kind: KindNotFound, Message: msgNotFound}
	if got := err.Error(); got != "NotFound: requested resource not found" {
		t.Errorf("Unexpected message %q", got)
	}

	err.Cause = errors.New("boom")
	err.RequestID = "rid"
	if got := err.Error(); got != "[rid] NotFound: requested resource not found (boom)" {
		t.Errorf("Unexpected message %q", got)
	}

	var nilErr *RequestError
	if nilErr.Error() != "<nil>" {
		t.Errorf("Expected <nil>, got %q", nilErr.Error())
	}
}

func TestRequestErrorIsAndUnwrap(t *testing.T) {
	err := &RequestError{Kind: KindTimeout, Message: msgTimeout, Cause: ErrTimeout}
	wrapped := fmt.Errorf("loading list: %w", err)

	if !errors.Is(wrapped, &RequestError{Kind: KindTimeout}) {
		t.Error("Expected kind match through wrapping")
	}
	if errors.Is(wrapped, &RequestError{Kind: KindCancelled}) {
		t.Error("Expected different kind not to match")
	}
	if !errors.Is(wrapped, ErrTimeout) {
		t.Error("Expected cause to be reachable")
	}
	if errors.Is(wrapped, context.Canceled) {
		t.Error("Expected unrelated sentinel not to match")
	}
	if KindOf(wrapped) != KindTimeout {
		t.Errorf("Expected KindOf to find the kind, got %s", KindOf(wrapped))
	}
}

func TestKindHelpers(t *testing.T) {
	if KindOf(nil) != 0 || KindOf(errors.New("plain")) != 0 {
		t.Error("Expected zero kind for non-request errors")
	}
	if IsKind(nil, 0) {
		t.Error("Expected IsKind(nil) to be false")
	}
	if !IsCancelled(&RequestError{Kind: KindCancelled}) {
		t.Error("Expected IsCancelled")
	}

	transient := []*RequestError{
		{Kind: KindTimeout},
		{Kind: KindNetworkUnavailable},
		{Kind: KindServerError},
		{Kind: KindOtherHTTPStatus, StatusCode: 503},
		{Kind: KindOtherHTTPStatus, StatusCode: 429},
	}
	for _, err := range transient {
		if !IsTransient(err) {
			t.Errorf("Expected %s/%d to be transient", err.Kind, err.StatusCode)
		}
	}

	permanent := []*RequestError{
		{Kind: KindCancelled},
		{Kind: KindUnauthorized},
		{Kind: KindBusinessFailure},
		{Kind: KindOtherHTTPStatus, StatusCode: 418},
	}
	for _, err := range permanent {
		if IsTransient(err) {
			t.Errorf("Expected %s/%d not to be transient", err.Kind, err.StatusCode)
		}
	}
}

func TestDebugInfo(t *testing.T) {
	err := &RequestError{
		Kind:        KindServerError,
		Message:     "db down",
		StatusCode:  500,
		RequestID:   "rid",
		Method:      "GET",
		URL:         "http://localhost/a",
		Fingerprint: "GET /a {} {}",
		Timestamp:   time.Date(2025, 6, 15, 20, 13, 0, 0, time.UTC),
		Duration:    120 * time.Millisecond,
		Cause:       errors.New("upstream"),
	}

	info := err.DebugInfo()
	for _, want := range []string{"Error Kind: ServerError", "Request ID: rid", "Status Code: 500", "Fingerprint: GET /a {} {}", "Cause: upstream", "2025-06-15T20:13:00Z"} {
		if !strings.Contains(info, want) {
			t.Errorf("Expected %q in debug info:\n%s", want, info)
		}
	}
}

func TestSentinelsAreShared(t *testing.T) {
	if ErrSuperseded == ErrCancelled || ErrTimeout == ErrInvalidMethod {
		t.Error("Expected distinct sentinels")
	}
}
