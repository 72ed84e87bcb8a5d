package dispatch

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

)

type stubTransport struct{}

func (stubTransport) Do(*http.Request) (*http.Response, error) { return nil, errors.New("stub") }

func TestWithConfig(t *testing.T) {
	s := Snapshot{BaseURL: "http://api", Timeout: time.Second, DefaultHeaders: map[string]string{"X": "1"}}
	client := New(WithConfig(s))

	s.DefaultHeaders["X"] = "mutated"
	cfg := client.Config()
	if cfg.BaseURL != "http://api" || cfg.Timeout != time.Second || cfg.DefaultHeaders["X"] != "1" {
		t.Errorf("Unexpected config %+v", cfg)
	}
}

func TestWithBaseURLAndTimeout(t *testing.T) {
	client := New(WithBaseURL("http://example.com"), WithTimeout(3*time.Second))

	cfg := client.Config()
	if cfg.BaseURL != "http://example.com" {
		t.Errorf("Expected base URL, got %s", cfg.BaseURL)
	}
	if cfg.Timeout != 3*time.Second {
		t.Errorf("Expected timeout=3s, got %v", cfg.Timeout)
	}
}

func TestWithDefaultHeadersMerges(t *testing.T) {
	client := New(WithDefaultHeaders(map[string]string{"x-client": "argus", "content-type": "text/plain"}))

	headers := client.Config().DefaultHeaders
	if headers["X-Client"] != "argus" {
		t.Errorf("Expected X-Client header, got %v", headers)
	}
	if headers["Content-Type"] != "text/plain" {
		t.Errorf("Expected Content-Type override, got %v", headers)
	}
}

func TestWithHTTPClientAndTransport(t *testing.T) {
	hc := &http.Client{Timeout: time.Second}
	client := New(WithHTTPClient(hc))
	if client.HTTPClient() != hc || client.transport != hc {
		t.Error("Expected custom http client as transport")
	}

	client = New(WithTransport(stubTransport{}))
	if client.HTTPClient() != nil {
		t.Error("Expected no http client with a custom transport")
	}
	if !client.IsValid() {
		t.Errorf("Expected valid client, got %v", client.ValidationError())
	}
}

func TestWithMiddleware(t *testing.T) {
	noop := func(req *http.Request, next RoundTripper) (*http.Response, error) { return next.RoundTrip(req) }
	client := New(WithMiddleware(noop, noop), WithMiddleware(noop))

	if len(client.middleware) != 3 {
		t.Errorf("Expected 3 middleware, got %d", len(client.middleware))
	}
}

func TestWithMetrics(t *testing.T) {
	client := New(WithMetrics())
	if client.metrics == nil {
		t.Fatal("Expected metrics collector")
	}
}

func TestWithDebugOptions(t *testing.T) {
	client := New(WithSimpleLogger())
	if !client.debug.Enabled || client.logger == nil {
		t.Error("Expected WithSimpleLogger to enable debug logging")
	}

	client = New(WithDebugConfig(nil))
	if client.debug == nil {
		t.Error("Expected nil debug config to keep the default")
	}

	client = New(WithRequestIDGenerator(func() string { return "fixed" }))
	if client.newRequestID() != "fixed" {
		t.Error("Expected custom request id generator")
	}
}

func TestWithClock(t *testing.T) {
	fixed := time.Unix(100, 0)
	client := New(WithClock(func() time.Time { return fixed }), WithClock(nil))

	if !client.now().Equal(fixed) {
		t.Error("Expected custom clock, nil ignored")
	}
}

func TestValidateConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		options []Option
		problem string
	}{
		{"negative timeout", []Option{WithTimeout(-time.Second)}, "timeout must be non-negative"},
		{"extreme timeout", []Option{WithTimeout(time.Hour)}, "timeout > 10m"},
		{"bad scheme", []Option{WithBaseURL("ftp://files")}, "not http(s)"},
		{"bad url", []Option{WithBaseURL("http://[::1")}, "is invalid"},
		{"nil transport", []Option{WithTransport(nil)}, "transport cannot be nil"},
		{"nil sink", []Option{WithSink(nil)}, "sink cannot be nil"},
		{"nil middleware", []Option{WithMiddleware(nil)}, "middleware[0] cannot be nil"},
		{"debug without logger", []Option{WithDebug()}, "logger must be set"},
		{"debug without id generator", []Option{WithDebug(), WithLogger(NewSimpleLogger()), WithRequestIDGenerator(nil)}, "RequestIDGen must be set"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := New(tt.options...)
			if client.IsValid() {
				t.Fatal("Expected invalid configuration")
			}
			err := client.ValidationError()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.problem) {
				t.Errorf("Expected %q in %v", tt.problem, err)
			}
		})
	}
}

func TestZeroTimeoutIsValid(t *testing.T) {
	client := New(WithTimeout(0))
	if !client.IsValid() {
		t.Errorf("Expected zero timeout to be valid, got %v", client.ValidationError())
	}
}
