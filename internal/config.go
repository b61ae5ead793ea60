package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/tangle/internal/graph"
	"github.com/starford/tangle/internal/search"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Store  StoreConfig       `yaml:"store"`
	Remote RemoteConfig      `yaml:"remote"`
	Search SearchConfig      `yaml:"search"`
	Inbox  InboxConfig       `yaml:"inbox"`
	Server ServerConfig      `yaml:"server"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{&c.App, &c.Store, &c.Remote, &c.Search, &c.Server} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// DeletePolicy is derived from whether a remote is configured: devices that
// sync keep tombstones so deletions propagate.
func (c *Config) DeletePolicy() graph.DeletePolicy {
	if c.Remote.Enabled() {
		return graph.Tombstone
	}
	return graph.HardDelete
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StoreConfig locates the local note store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// RemoteConfig points at the remote note endpoint. An empty BaseURL means
// this device does not sync.
type RemoteConfig struct {
	BaseURL           string        `yaml:"base_url"`
	Token             string        `yaml:"token"`
	Timeout           time.Duration `yaml:"timeout"`
	UploadConcurrency int           `yaml:"upload_concurrency"`
}

// Enabled reports whether sync is configured.
func (c *RemoteConfig) Enabled() bool {
	return c.BaseURL != ""
}

// Validate validates the remote configuration.
func (c *RemoteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, is.URL),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.UploadConcurrency, validation.Min(1), validation.Max(16)),
	)
}

// SearchConfig tunes the search worker.
type SearchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
	Limit    int           `yaml:"limit"`
}

// Validate validates the search configuration.
func (c *SearchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
		validation.Field(&c.Limit, validation.Min(0)),
	)
}

// InboxConfig names a directory watched for export files to import. Empty
// disables the watcher.
type InboxConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig configures `tangle serve`.
type ServerConfig struct {
	SQLite SQLiteConfig `yaml:"sqlite"`
	Auth   AuthConfig   `yaml:"auth"`
	CORS   CORSConfig   `yaml:"cors"`
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// CORSConfig lists origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Store: StoreConfig{
			Path: "./data/notes",
		},
		Remote: RemoteConfig{
			Timeout:           15 * time.Second,
			UploadConcurrency: 1,
		},
		Search: SearchConfig{
			Debounce: search.DefaultDebounce,
			Limit:    50,
		},
		Server: ServerConfig{
			SQLite: SQLiteConfig{
				Path: "./data/tangle.db",
			},
			Auth: AuthConfig{
				Mode: AuthModeDisabled,
			},
		},
	}
}
