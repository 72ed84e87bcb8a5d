// Package config loads client configuration from file and environment and
// keeps bound clients in sync with runtime changes.
package config

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/lo"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	dispatch "github.com/duyl328/argus-dispatch"
	"github.com/duyl328/argus-dispatch/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g. ARGUS_BASE_URL.
const EnvPrefix = "ARGUS"

// Config holds the client and CLI settings.
type Config struct {
	BaseURL string            `mapstructure:"base_url"`
	Timeout time.Duration     `mapstructure:"timeout"`
	Headers map[string]string `mapstructure:"headers"`
	Token   string            `mapstructure:"token"`
	TokenDB string            `mapstructure:"token_db"`
	Log     logging.Config    `mapstructure:"log"`
}

// Snapshot converts the request-facing part of c.
func (c Config) Snapshot() dispatch.Snapshot {
	return dispatch.Snapshot{
		BaseURL:        c.BaseURL,
		Timeout:        c.Timeout,
		DefaultHeaders: canonicalHeaders(c.Headers),
	}
}

// canonicalHeaders rewrites keys to their canonical MIME form. viper
// lowercases map keys, so file headers arrive as e.g. "user-agent".
func canonicalHeaders(h map[string]string) map[string]string {
	return lo.MapKeys(h, func(_ string, key string) string {
		return http.CanonicalHeaderKey(key)
	})
}

// mergeHeaders layers overrides over base after canonicalizing both, so
// "user-agent" and "User-Agent" name the same header and overrides win.
func mergeHeaders(base, overrides map[string]string) map[string]string {
	return lo.Assign(canonicalHeaders(base), canonicalHeaders(overrides))
}

// Default returns the built-in configuration.
func Default() Config {
	s := dispatch.DefaultSnapshot()
	return Config{
		BaseURL: s.BaseURL,
		Timeout: s.Timeout,
		Headers: s.DefaultHeaders,
		Log:     logging.DefaultConfig(),
	}
}

func newViper(path string) *viper.Viper {
	v := viper.New()

	// default values
	d := Default()
	v.SetDefault("base_url", d.BaseURL)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("headers", d.Headers)
	v.SetDefault("token", "")
	v.SetDefault("token_db", "")
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.writers", d.Log.Writers)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.compress", d.Log.Compress)

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "argus"))
		v.SetConfigName("argus")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

func readConfig(v *viper.Viper) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		// a missing default file is fine; an explicit or broken one is not
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.Timeout < 0 {
		return Config{}, fmt.Errorf("config: timeout must be non-negative, got %s", c.Timeout)
	}
	c.Headers = canonicalHeaders(c.Headers)
	return c, nil
}

// Load reads configuration from path (or $ARGUS_CONFIG, or argus.yaml in the
// working directory or ~/.config/argus) with ARGUS_ env overrides.
func Load(path string) (*Provider, error) {
	v := newViper(path)
	c, err := readConfig(v)
	if err != nil {
		return nil, err
	}
	return &Provider{v: v, cfg: c}, nil
}

// Provider holds the live configuration and pushes every change to its
// subscribers.
type Provider struct {
	v *viper.Viper

	mu          sync.RWMutex
	cfg         Config
	subscribers []func(dispatch.Snapshot)
}

// NewProvider wraps an in-memory configuration with no backing file.
func NewProvider(c Config) *Provider {
	c.Headers = canonicalHeaders(c.Headers)
	return &Provider{cfg: c}
}

// Config returns a copy of the current configuration.
func (p *Provider) Config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c := p.cfg
	c.Headers = copyHeaders(p.cfg.Headers)
	return c
}

// Snapshot returns the current request configuration.
func (p *Provider) Snapshot() dispatch.Snapshot {
	return p.Config().Snapshot()
}

// ConfigFile returns the file the configuration was read from, if any.
func (p *Provider) ConfigFile() string {
	if p.v == nil {
		return ""
	}
	return p.v.ConfigFileUsed()
}

// SetBaseURL replaces the base URL.
func (p *Provider) SetBaseURL(baseURL string) dispatch.Snapshot {
	return p.update(func(c *Config) { c.BaseURL = baseURL })
}

// SetHostPort points the base URL at host:port, keeping https when the
// current base URL uses it.
func (p *Provider) SetHostPort(host string, port int) (dispatch.Snapshot, error) {
	if host == "" || port <= 0 || port > 65535 {
		return dispatch.Snapshot{}, fmt.Errorf("config: invalid host/port %q:%d", host, port)
	}
	return p.update(func(c *Config) {
		scheme := "http"
		if strings.HasPrefix(c.BaseURL, "https") {
			scheme = "https"
		}
		c.BaseURL = scheme + "://" + net.JoinHostPort(host, strconv.Itoa(port))
	}), nil
}

// SetTimeout replaces the default request timeout.
func (p *Provider) SetTimeout(d time.Duration) dispatch.Snapshot {
	return p.update(func(c *Config) { c.Timeout = d })
}

// SetHeaders merges headers into the defaults; existing keys are replaced
// regardless of case.
func (p *Provider) SetHeaders(headers map[string]string) dispatch.Snapshot {
	return p.update(func(c *Config) {
		c.Headers = mergeHeaders(c.Headers, headers)
	})
}

// Subscribe registers fn to receive every new snapshot.
func (p *Provider) Subscribe(fn func(dispatch.Snapshot)) {
	p.mu.Lock()
	p.subscribers = append(p.subscribers, fn)
	p.mu.Unlock()
}

// Bind pushes the current snapshot into client and keeps it updated.
func (p *Provider) Bind(client *dispatch.Client) {
	client.UpdateConfig(p.Snapshot())
	p.Subscribe(client.UpdateConfig)
}

// Watch reloads the configuration file whenever it changes. Reload errors
// go to onError and keep the previous configuration.
func (p *Provider) Watch(onError func(error)) error {
	if p.v == nil || p.v.ConfigFileUsed() == "" {
		return fmt.Errorf("config: no configuration file to watch")
	}
	p.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		c, err := readConfig(p.v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		p.update(func(cur *Config) { *cur = c })
	})
	p.v.WatchConfig()
	return nil
}

func (p *Provider) update(fn func(*Config)) dispatch.Snapshot {
	p.mu.Lock()
	fn(&p.cfg)
	snapshot := p.cfg.Snapshot()
	subscribers := append([]func(dispatch.Snapshot){}, p.subscribers...)
	p.mu.Unlock()

	for _, sub := range subscribers {
		sub(snapshot)
	}
	return snapshot
}

func copyHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// file is the on-disk layout written by Save.
type file struct {
	BaseURL string            `yaml:"base_url"`
	Timeout string            `yaml:"timeout"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Token   string            `yaml:"token,omitempty"`
	TokenDB string            `yaml:"token_db,omitempty"`
	Log     logging.Config    `yaml:"log"`
}

// Save writes c to path as YAML, creating the directory if needed.
// The token is stored in plain text; prefer ARGUS_TOKEN or a token db.
func Save(path string, c Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	out, err := yaml.Marshal(file{
		BaseURL: c.BaseURL,
		Timeout: c.Timeout.String(),
		Headers: c.Headers,
		Token:   c.Token,
		TokenDB: c.TokenDB,
		Log:     c.Log,
	})
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
