package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	dispatch "github.com/duyl328/argus-dispatch"
	"github.com/duyl328/argus-dispatch/config"
	"github.com/duyl328/argus-dispatch/internal/logging"
	"github.com/duyl328/argus-dispatch/tokenstore"
)

type requestFlags struct {
	params  []string
	headers []string
	data    string
	token   string
	baseURL string
	host    string
	port    int
	timeout time.Duration
}

func newRequestCmd(g *globalFlags, method dispatch.Method) *cobra.Command {
	f := &requestFlags{}
	cmd := &cobra.Command{
		Use:   strings.ToLower(string(method)) + " <path>",
		Short: fmt.Sprintf("Send a %s request", method),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, g, f, method, args[0])
		},
	}
	cmd.Flags().StringArrayVarP(&f.params, "param", "p", nil, "query parameter key=value (repeatable)")
	cmd.Flags().StringArrayVarP(&f.headers, "header", "H", nil, "request header 'Key: value' (repeatable)")
	cmd.Flags().StringVarP(&f.data, "data", "d", "", "JSON request body")
	cmd.Flags().StringVar(&f.token, "token", "", "bearer token (overrides the configured store)")
	cmd.Flags().StringVar(&f.baseURL, "base-url", "", "override the configured base URL")
	cmd.Flags().StringVar(&f.host, "host", "", "point the base URL at this host (with --port)")
	cmd.Flags().IntVar(&f.port, "port", 0, "port used with --host")
	cmd.Flags().DurationVarP(&f.timeout, "timeout", "t", 0, "override the configured timeout")
	return cmd
}

// session is everything a request command builds before dispatching.
type session struct {
	provider *config.Provider
	logger   dispatch.Logger
	metrics  *dispatch.MetricsCollector
	closers  []func() error
}

func (r *session) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i]()
	}
}

func setup(g *globalFlags) (*session, error) {
	provider, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	cfg := provider.Config()
	if g.verbose {
		cfg.Log.Level = "debug"
	}

	zl, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	r := &session{
		provider: provider,
		logger:   dispatch.NewZerologLogger(zl),
		closers:  []func() error{logCloser.Close},
	}

	registry := prometheus.NewRegistry()
	r.metrics = dispatch.NewMetricsCollectorWithRegistry(registry)
	if g.metricsAddr != "" {
		srv := &http.Server{
			Addr:              g.metricsAddr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				r.logger.Error("Metrics server failed", "addr", g.metricsAddr, "error", err.Error())
			}
		}()
		r.closers = append(r.closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		})
	}

	if err := provider.Watch(func(err error) {
		r.logger.Warn("Config reload failed", "error", err.Error())
	}); err != nil {
		r.logger.Debug("Config watch disabled", "reason", err.Error())
	}
	return r, nil
}

func (r *session) tokenStore(flagToken string) (dispatch.TokenStore, error) {
	cfg := r.provider.Config()
	switch {
	case flagToken != "":
		return dispatch.NewMemoryTokenStore(flagToken), nil
	case cfg.TokenDB != "":
		store, err := tokenstore.Open(cfg.TokenDB, "", tokenstore.WithLogger(r.logger))
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, store.Close)
		return store, nil
	default:
		return dispatch.NewMemoryTokenStore(cfg.Token), nil
	}
}

func runRequest(cmd *cobra.Command, g *globalFlags, f *requestFlags, method dispatch.Method, path string) error {
	desc, err := f.descriptor(method, path)
	if err != nil {
		return err
	}

	r, err := setup(g)
	if err != nil {
		return err
	}
	defer r.close()

	if err := f.applyOverrides(r.provider); err != nil {
		return err
	}
	tokens, err := r.tokenStore(f.token)
	if err != nil {
		return err
	}

	sink := dispatch.NewAsyncSink(dispatch.NewLogSink(r.logger), 256, r.metrics.RecordSinkDrop)
	defer sink.Close()

	options := []dispatch.Option{
		dispatch.WithLogger(r.logger),
		dispatch.WithSink(sink),
		dispatch.WithMetricsCollector(r.metrics),
		dispatch.WithTokenStore(dispatch.NewExpiringTokenStore(tokens, 30*time.Second)),
		dispatch.WithMiddleware(dispatch.RequestIDMiddleware("")),
	}
	if g.verbose {
		options = append(options, dispatch.WithDebug())
	}
	client := dispatch.New(options...)
	if !client.IsValid() {
		return client.ValidationError()
	}
	r.provider.Bind(client)

	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	stopAfter := context.AfterFunc(sigCtx, func() {
		if n := client.CancelAll(); n > 0 {
			r.logger.Info("Interrupted, cancelled pending requests", "count", n)
		}
	})
	defer stopAfter()

	env, err := client.Request(cmd.Context(), desc)
	if err != nil {
		var reqErr *dispatch.RequestError
		if g.verbose && errors.As(err, &reqErr) {
			fmt.Fprint(cmd.ErrOrStderr(), reqErr.DebugInfo())
		}
		return err
	}

	out, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func (f *requestFlags) descriptor(method dispatch.Method, path string) (dispatch.RequestDescriptor, error) {
	params, err := parseParams(f.params)
	if err != nil {
		return dispatch.RequestDescriptor{}, err
	}
	headers, err := parseHeaders(f.headers)
	if err != nil {
		return dispatch.RequestDescriptor{}, err
	}
	desc := dispatch.RequestDescriptor{
		URL:     path,
		Method:  method,
		Headers: headers,
		Timeout: f.timeout,
	}
	if len(params) > 0 {
		desc.Params = params
	}
	if f.data != "" {
		if !json.Valid([]byte(f.data)) {
			return dispatch.RequestDescriptor{}, fmt.Errorf("--data is not valid JSON")
		}
		desc.Body = json.RawMessage(f.data)
	}
	return desc, nil
}

func (f *requestFlags) applyOverrides(p *config.Provider) error {
	p.SetHeaders(map[string]string{"User-Agent": dispatch.UserAgent()})
	if f.baseURL != "" {
		p.SetBaseURL(f.baseURL)
	}
	if f.host != "" {
		if _, err := p.SetHostPort(f.host, f.port); err != nil {
			return err
		}
	}
	return nil
}

func parseParams(raw []string) (url.Values, error) {
	values := url.Values{}
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q, want key=value", kv)
		}
		values.Add(key, value)
	}
	return values, nil
}

func parseHeaders(raw []string) (map[string]string, error) {
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		key, value, ok := strings.Cut(h, ":")
		if !ok {
			key, value, ok = strings.Cut(h, "=")
		}
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --header %q, want 'Key: value'", h)
		}
		headers[http.CanonicalHeaderKey(key)] = strings.TrimSpace(value)
	}
	return headers, nil
}
