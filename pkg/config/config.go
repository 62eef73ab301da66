// Package config wraps viper for sessionhttp programs: layered defaults,
// files, env and flags, plus loaders that turn the "http" tree into
// transport settings and request Options.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const redacted = "***REDACTED***"

// DefaultSensitiveKeys are masked by MaskedSettings and Print.
var DefaultSensitiveKeys = []string{
	"http.auth.password",
	"http.auth.token",
	"oauth.client_secret",
	"jarstore.redis.password",
}

// Config is the wrapper around viper with extra helpers.
type Config struct {
	*viper.Viper

	sensitiveKeys map[string]struct{}
	onChange      func()
	// fileSet records whether an option pointed viper at a file.
	fileSet bool
}

// Option is a functional option for New.
type Option func(*Config) error

// New creates a Config instance. Options apply in order.
//
//	cfg := config.New(
//	  config.WithDefaults(map[string]any{"http.redirects": 5}),
//	  config.WithFile("sessionhttp.yaml"),
//	  config.WithEnv("SESSIONHTTP"),
//	  config.WithPFlags(pflag.CommandLine),
//	)
func New(opts ...Option) *Config {
	cfg := &Config{
		Viper:         viper.New(),
		sensitiveKeys: map[string]struct{}{},
	}
	for _, k := range DefaultSensitiveKeys {
		cfg.sensitiveKeys[k] = struct{}{}
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			log.Fatalf("config: applying option failed: %v", err)
		}
	}

	if cfg.fileSet {
		// non-fatal; defaults, env and flags still apply
		if err := cfg.ReadInConfig(); err != nil {
			log.Printf("config: read config warning: %v", err)
		}
	}

	return cfg
}

// WithDefaults sets default values.
func WithDefaults(defaults map[string]any) Option {
	return func(c *Config) error {
		for k, v := range defaults {
			c.SetDefault(k, v)
		}
		return nil
	}
}

// WithFile sets an exact config file; the extension picks the format.
func WithFile(path string) Option {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		c.SetConfigFile(path)
		if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext != "" {
			c.SetConfigType(ext)
		}
		c.fileSet = true
		return nil
	}
}

// WithConfigNamePaths searches paths for a file called name (without ext).
func WithConfigNamePaths(name string, paths ...string) Option {
	return func(c *Config) error {
		if name != "" {
			c.SetConfigName(name)
		}
		if len(paths) == 0 {
			paths = []string{".", "./env", "/etc/sessionhttp"}
		}
		for _, p := range paths {
			c.AddConfigPath(p)
		}
		c.fileSet = true
		return nil
	}
}

// WithFormat forces the config format when the file has no extension.
func WithFormat(format string) Option {
	return func(c *Config) error {
		if format != "" {
			c.SetConfigType(format)
		}
		return nil
	}
}

// WithProfile loads name.profile (e.g. sessionhttp.dev.yaml). An empty
// profile falls back to APP_ENV.
func WithProfile(baseName, profile string, paths ...string) Option {
	return func(c *Config) error {
		name := baseName
		if profile == "" {
			profile = os.Getenv("APP_ENV")
		}
		if profile != "" {
			name = fmt.Sprintf("%s.%s", baseName, profile)
		}
		return WithConfigNamePaths(name, paths...)(c)
	}
}

// WithEnv enables environment overrides: with prefix "SESSIONHTTP",
// SESSIONHTTP_HTTP_REDIRECTS overrides http.redirects.
func WithEnv(prefix string) Option {
	return func(c *Config) error {
		if prefix != "" {
			c.SetEnvPrefix(prefix)
		}
		c.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		c.AutomaticEnv()
		return nil
	}
}

// WithPFlags binds flags, or pflag.CommandLine when nil. Flags must be
// defined by the caller.
func WithPFlags(flags *pflag.FlagSet) Option {
	return func(c *Config) error {
		if flags == nil {
			flags = pflag.CommandLine
		}
		return c.BindPFlags(flags)
	}
}

// ClientFlags returns a FlagSet with the common client settings, keyed so
// they bind straight onto the config tree.
func ClientFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("sessionhttp", pflag.ContinueOnError)
	fs.Int("http.redirects", 9, "maximum redirects to follow, 0 disables")
	fs.String("http.proxy.host", "", "proxy host")
	fs.Int("http.proxy.port", 8080, "proxy port")
	fs.Duration("http.transport.dial_timeout", 30*time.Second, "dial timeout")
	fs.Float64("http.transport.rate_limit", 0, "requests per second, 0 is unlimited")
	fs.String("log.level", "info", "log level")
	fs.String("observability.otlp_endpoint", "", "OTLP/HTTP trace endpoint")
	return fs
}

// WithDotEnv merges key=val lines from a .env file. An empty path means
// ".env"; a missing file is ignored.
func WithDotEnv(path string) Option {
	return func(c *Config) error {
		if path == "" {
			path = ".env"
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil
		}
		envV := viper.New()
		envV.SetConfigFile(path)
		envV.SetConfigType("env")
		if err := envV.ReadInConfig(); err != nil {
			return err
		}
		for _, k := range envV.AllKeys() {
			c.Set(k, envV.Get(k))
		}
		return nil
	}
}

// WithWatch reloads the file on change and then calls onChange.
func WithWatch(onChange func()) Option {
	return func(c *Config) error {
		c.onChange = onChange
		c.OnConfigChange(func(e fsnotify.Event) {
			log.Printf("config: file changed: %s", e.Name)
			if c.onChange != nil {
				c.onChange()
			}
		})
		c.WatchConfig()
		return nil
	}
}

// WithSensitiveKeys adds keys to redact when printing.
func WithSensitiveKeys(keys ...string) Option {
	return func(c *Config) error {
		for _, k := range keys {
			c.sensitiveKeys[strings.ToLower(k)] = struct{}{}
		}
		return nil
	}
}

// MergeInFile merges another config file over the current values.
func (c *Config) MergeInFile(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	tmp := viper.New()
	tmp.SetConfigFile(path)
	if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext != "" {
		tmp.SetConfigType(ext)
	}
	if err := tmp.ReadInConfig(); err != nil {
		return err
	}
	return c.MergeConfigMap(tmp.AllSettings())
}

// GetStringD returns string or def
func (c *Config) GetStringD(key, def string) string {
	if val := c.GetString(key); val != "" {
		return val
	}
	return def
}

// GetIntD returns int or def
func (c *Config) GetIntD(key string, def int) int {
	if c.IsSet(key) {
		return c.GetInt(key)
	}
	return def
}

// GetBoolD returns bool or def
func (c *Config) GetBoolD(key string, def bool) bool {
	if c.IsSet(key) {
		return c.GetBool(key)
	}
	return def
}

// GetDurationD returns time.Duration or def
func (c *Config) GetDurationD(key string, def time.Duration) time.Duration {
	if c.IsSet(key) {
		return c.GetDuration(key)
	}
	return def
}

// ValidateRequired ensures keys exist and are non-empty.
func (c *Config) ValidateRequired(keys ...string) error {
	var missing []string
	for _, k := range keys {
		if !c.IsSet(k) || c.GetString(k) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required keys: %s", strings.Join(missing, ", "))
	}
	return nil
}

// MaskedSettings returns every leaf key with sensitive values redacted.
// Keys are flattened ("http.auth.token").
func (c *Config) MaskedSettings() map[string]any {
	out := map[string]any{}
	for _, k := range c.AllKeys() {
		if _, ok := c.sensitiveKeys[k]; ok {
			out[k] = redacted
			continue
		}
		out[k] = c.Get(k)
	}
	return out
}

// Print writes all settings to stdout in key order.
func (c *Config) Print(mask bool) {
	keys := c.AllKeys()
	sort.Strings(keys)
	for _, k := range keys {
		if _, ok := c.sensitiveKeys[k]; ok && mask {
			fmt.Printf("%s = %s\n", k, redacted)
			continue
		}
		fmt.Printf("%s = %v\n", k, c.Get(k))
	}
}
