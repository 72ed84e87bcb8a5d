package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	dispatch "github.com/duyl328/argus-dispatch"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ARGUS_CONFIG", "")
	t.Setenv("ARGUS_TOKEN", "")
	t.Setenv("ARGUS_TOKEN_DB", "")
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestParseParams(t *testing.T) {
	values, err := parseParams([]string{"a=1", "a=2", "q=x=y"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got := values["a"]; len(got) != 2 || got[1] != "2" {
		t.Errorf("Expected repeated a, got %v", got)
	}
	if values.Get("q") != "x=y" {
		t.Errorf("Expected value split on first '=', got %s", values.Get("q"))
	}

	if _, err := parseParams([]string{"novalue"}); err == nil {
		t.Error("Expected error for param without '='")
	}
}

func TestParseHeaders(t *testing.T) {
	headers, err := parseHeaders([]string{"x-trace: on", "Accept=application/json"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if headers["X-Trace"] != "on" || headers["Accept"] != "application/json" {
		t.Errorf("Unexpected headers %v", headers)
	}

	if _, err := parseHeaders([]string{": empty"}); err == nil {
		t.Error("Expected error for empty header name")
	}
}

func TestDescriptorRejectsInvalidJSON(t *testing.T) {
	f := &requestFlags{data: "{not json"}
	if _, err := f.descriptor(dispatch.MethodPost, "/x"); err == nil {
		t.Error("Expected error for invalid --data")
	}
}

func TestGetCommand(t *testing.T) {
	isolate(t)

	var gotAuth, gotQuery, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query().Get("page")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":200,"data":{"ok":true},"message":"done","success":true}`))
	}))
	defer server.Close()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"get", "/api/items", "--base-url", server.URL, "-p", "page=2", "--token", "tok"})

	if err := root.Execute(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if gotAuth != "Bearer tok" {
		t.Errorf("Expected bearer token, got %q", gotAuth)
	}
	if gotQuery != "2" {
		t.Errorf("Expected page=2, got %q", gotQuery)
	}
	if !strings.HasPrefix(gotUA, "argusctl/") {
		t.Errorf("Expected argusctl user agent, got %q", gotUA)
	}

	var env dispatch.Envelope[json.RawMessage]
	if err := json.Unmarshal(out.Bytes(), &env); err != nil {
		t.Fatalf("Expected envelope JSON output, got %v: %s", err, out.String())
	}
	if env.Code != 200 || env.Message != "done" {
		t.Errorf("Unexpected envelope %+v", env)
	}
}

func TestPostCommandBusinessFailure(t *testing.T) {
	isolate(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":500,"data":null,"message":"rejected","success":false}`))
	}))
	defer server.Close()

	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"post", "/api/items", "--base-url", server.URL, "-d", `{"name":"x"}`})

	err := root.Execute()
	if !dispatch.IsKind(err, dispatch.KindBusinessFailure) {
		t.Errorf("Expected business failure, got %v", err)
	}
}

func TestConfigInitAndShow(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "argus.yaml")

	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetArgs([]string{"config", "init", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	root = newRootCmd()
	root.SetOut(io.Discard)
	root.SetArgs([]string{"config", "init", path})
	if err := root.Execute(); err == nil {
		t.Error("Expected error when file exists without --force")
	}

	var out bytes.Buffer
	root = newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"config", "show", "--config", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !strings.Contains(out.String(), "http://localhost:8726") {
		t.Errorf("Expected default base URL in output, got %s", out.String())
	}
}

func TestTokenCommands(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	t.Setenv("ARGUS_TOKEN_DB", filepath.Join(dir, "tokens.db"))

	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"code":200,"data":null,"message":"","success":true}`))
	}))
	defer server.Close()

	root := newRootCmd()
	root.SetArgs([]string{"token", "set", "stored"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	root = newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"get", "/me", "--base-url", server.URL})
	if err := root.Execute(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if gotAuth != "Bearer stored" {
		t.Errorf("Expected stored token, got %q", gotAuth)
	}

	root = newRootCmd()
	root.SetArgs([]string{"token", "clear"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
}
