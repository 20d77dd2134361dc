package internal

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/context-bank/internal/contextbank"
	"github.com/starford/context-bank/internal/search"
	"github.com/starford/context-bank/internal/workspace"
)

var prefixRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Transports.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Environment variables that fill empty repository defaults.
const (
	EnvRepository      = "MCP_CONTEXT_BANK_REPOSITORY"
	EnvRepositoryToken = "MCP_CONTEXT_BANK_REPOSITORY_PAT"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Repository RepositoryConfig  `yaml:"repository"`
	Workspace  WorkspaceConfig   `yaml:"workspace"`
	Search     SearchConfig      `yaml:"search"`
	Auth       AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Workspace.Validate(); err != nil {
		return err
	}
	if err := c.Search.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplyEnv fills repository defaults left empty from the environment.
func (c *Config) ApplyEnv() {
	if c.Repository.DefaultURL == "" {
		c.Repository.DefaultURL = os.Getenv(EnvRepository)
	}
	if c.Repository.DefaultToken == "" {
		c.Repository.DefaultToken = os.Getenv(EnvRepositoryToken)
	}
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel  slog.Level `yaml:"log_level"`
	Transport string     `yaml:"transport"`
	HTTP      HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.Transport == "" {
		c.Transport = TransportStdio
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Transport, validation.In(TransportStdio, TransportHTTP)),
	); err != nil {
		return err
	}
	if c.Transport != TransportHTTP {
		return nil
	}
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

// RepositoryConfig holds the defaults used when a request omits them.
type RepositoryConfig struct {
	DefaultURL    string `yaml:"default_url"`
	DefaultToken  string `yaml:"default_token"`
	DefaultBranch string `yaml:"default_branch"`
}

// Defaults converts the section into operation defaults.
func (c *RepositoryConfig) Defaults() contextbank.Defaults {
	return contextbank.Defaults{
		RepositoryURL: c.DefaultURL,
		Credential:    c.DefaultToken,
		Branch:        c.DefaultBranch,
	}
}

// WorkspaceConfig controls where workspaces are created.
//
// JournalPath, when set, names a SQLite file recording live workspaces so a
// later start can remove those left by a crashed process.
type WorkspaceConfig struct {
	TempDir     string `yaml:"temp_dir"`
	Prefix      string `yaml:"prefix"`
	JournalPath string `yaml:"journal_path"`
}

// Validate validates the workspace configuration.
func (c *WorkspaceConfig) Validate() error {
	if c.TempDir == "" {
		c.TempDir = os.TempDir()
	}
	if c.Prefix == "" {
		c.Prefix = workspace.DefaultPrefix
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Prefix, validation.Match(prefixRe).Error("must contain only letters, digits, '-', '_' or '.'")),
	)
}

// SearchConfig controls search backends.
type SearchConfig struct {
	Remote RemoteSearchConfig `yaml:"remote"`
}

// Validate validates the search configuration.
func (c *SearchConfig) Validate() error {
	if c.Remote.Host == "" {
		c.Remote.Host = search.DefaultGitHubHost
	}
	return nil
}

// RemoteSearchConfig configures the GitHub code search backend.
type RemoteSearchConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
}

// AuthConfig holds authentication configuration for the HTTP surface.
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

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel:  slog.LevelInfo,
			Transport: TransportStdio,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Repository: RepositoryConfig{
			DefaultBranch: contextbank.DefaultBranch,
		},
		Workspace: WorkspaceConfig{
			TempDir: os.TempDir(),
			Prefix:  workspace.DefaultPrefix,
		},
		Search: SearchConfig{
			Remote: RemoteSearchConfig{
				Enabled: true,
				Host:    search.DefaultGitHubHost,
			},
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
