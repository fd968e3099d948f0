// Package config provides configuration loading and defaults for the upswatch server.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source kinds.
const (
	SourceNUT     = "nut"
	SourceGraphQL = "graphql"
)

// ResourceFilter holds allowlist and denylist entries for a resource category.
type ResourceFilter struct {
	Allowlist []string `yaml:"allowlist"`
	Denylist  []string `yaml:"denylist"`
}

// AuditConfig controls audit logging behaviour.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	LogPath string `yaml:"log_path"`
}

// ServerConfig holds network and authentication settings.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is json or text.
	Format string `yaml:"format"`
}

// PollConfig controls the polling cadence. Durations are in seconds.
type PollConfig struct {
	Interval      int      `yaml:"interval"`
	DeviceTimeout int      `yaml:"device_timeout"`
	Concurrency   int      `yaml:"concurrency"`
	WatchedFields []string `yaml:"watched_fields"`
}

// SourceConfig selects the device source.
type SourceConfig struct {
	Kind string `yaml:"kind"`
}

// NUTServer is one upsd endpoint.
type NUTServer struct {
	Name     string `yaml:"name"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// NUTConfig holds the upsd servers to poll.
type NUTConfig struct {
	Servers []NUTServer `yaml:"servers"`
	// DescribeTypes asks upsd for each variable's declared type.
	DescribeTypes bool `yaml:"describe_types"`
	// Timeout is the per-session timeout in seconds.
	Timeout int `yaml:"timeout"`
}

// GraphQLConfig holds connection details for the Unraid GraphQL API.
type GraphQLConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
	// Timeout is the HTTP request timeout in seconds.
	Timeout int `yaml:"timeout"`
}

// Config is the top-level configuration structure for the upswatch server.
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Audit   AuditConfig    `yaml:"audit"`
	Log     LogConfig      `yaml:"log"`
	Poll    PollConfig     `yaml:"poll"`
	Source  SourceConfig   `yaml:"source"`
	NUT     NUTConfig      `yaml:"nut"`
	GraphQL GraphQLConfig  `yaml:"graphql"`
	Devices ResourceFilter `yaml:"devices"`
}

// LoadConfig reads and parses a YAML configuration file from the given path.
// Keys absent from the file keep their DefaultConfig values.
// On error, nil is returned for the config pointer.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a new Config populated with sensible default values.
// Each call returns a distinct instance.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Audit: AuditConfig{
			Enabled: true,
			LogPath: "/config/audit.log",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Poll: PollConfig{
			Interval:      10,
			DeviceTimeout: 5,
			Concurrency:   4,
			WatchedFields: []string{"ups.status", "battery.charge", "ups.load"},
		},
		Source: SourceConfig{
			Kind: SourceNUT,
		},
		NUT: NUTConfig{
			Servers: []NUTServer{{Name: "local", Host: "localhost", Port: 3493}},
			Timeout: 10,
		},
		GraphQL: GraphQLConfig{
			URL:     "http://localhost/graphql",
			Timeout: 30,
		},
	}
}

// ApplyEnvOverrides updates cfg in place with values from environment variables.
// Recognized variables:
//   - UPSWATCH_AUTH_TOKEN overrides cfg.Server.AuthToken
//   - UPSWATCH_LOG_LEVEL overrides cfg.Log.Level
//   - UPSWATCH_SOURCE overrides cfg.Source.Kind
//   - NUT_HOST, NUT_PORT, NUT_USERNAME, NUT_PASSWORD override the first NUT server
//   - UNRAID_GRAPHQL_URL overrides cfg.GraphQL.URL
//   - UNRAID_GRAPHQL_API_KEY overrides cfg.GraphQL.APIKey
func ApplyEnvOverrides(cfg *Config) {
	if token := os.Getenv("UPSWATCH_AUTH_TOKEN"); token != "" {
		cfg.Server.AuthToken = token
	}
	if level := os.Getenv("UPSWATCH_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if kind := os.Getenv("UPSWATCH_SOURCE"); kind != "" {
		cfg.Source.Kind = kind
	}
	applyNUTEnv(cfg)
	if url := os.Getenv("UNRAID_GRAPHQL_URL"); url != "" {
		cfg.GraphQL.URL = url
	}
	if key := os.Getenv("UNRAID_GRAPHQL_API_KEY"); key != "" {
		cfg.GraphQL.APIKey = key
	}
}

func applyNUTEnv(cfg *Config) {
	host := os.Getenv("NUT_HOST")
	port := os.Getenv("NUT_PORT")
	user := os.Getenv("NUT_USERNAME")
	pass := os.Getenv("NUT_PASSWORD")
	if host == "" && port == "" && user == "" && pass == "" {
		return
	}
	if len(cfg.NUT.Servers) == 0 {
		cfg.NUT.Servers = []NUTServer{{Name: "local", Port: 3493}}
	}
	srv := &cfg.NUT.Servers[0]
	if host != "" {
		srv.Host = host
	}
	if p, err := strconv.Atoi(port); err == nil && p > 0 {
		srv.Port = p
	}
	if user != "" {
		srv.Username = user
	}
	if pass != "" {
		srv.Password = pass
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Poll.Interval <= 0 {
		errs = append(errs, errors.New("poll.interval must be positive"))
	}
	if c.Poll.DeviceTimeout <= 0 {
		errs = append(errs, errors.New("poll.device_timeout must be positive"))
	}
	switch strings.ToLower(c.Source.Kind) {
	case SourceNUT:
		if len(c.NUT.Servers) == 0 {
			errs = append(errs, errors.New("nut.servers must not be empty"))
		}
		seen := make(map[string]bool, len(c.NUT.Servers))
		qualified := len(c.NUT.Servers) > 1
		for i, s := range c.NUT.Servers {
			if s.Host == "" {
				errs = append(errs, fmt.Errorf("nut.servers[%d].host is required", i))
			}
			// With several servers the name prefixes device ids as "<name>/<ups>".
			if qualified && strings.TrimSpace(s.Name) == "" {
				errs = append(errs, fmt.Errorf("nut.servers[%d].name is required when more than one server is configured", i))
			}
			if qualified && strings.Contains(s.Name, "/") {
				errs = append(errs, fmt.Errorf("nut.servers[%d].name %q must not contain '/'", i, s.Name))
			}
			if seen[s.Name] {
				errs = append(errs, fmt.Errorf("nut.servers[%d].name %q is duplicated", i, s.Name))
			}
			seen[s.Name] = true
		}
	case SourceGraphQL:
		if c.GraphQL.URL == "" {
			errs = append(errs, errors.New("graphql.url is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("source.kind %q is not one of %q, %q", c.Source.Kind, SourceNUT, SourceGraphQL))
	}
	return errors.Join(errs...)
}

// EnsureAuthToken generates a random auth token and sets it on cfg if
// cfg.Server.AuthToken is empty. It returns the token (existing or generated)
// and any error encountered during generation.
func EnsureAuthToken(cfg *Config) (string, error) {
	if cfg.Server.AuthToken != "" {
		return cfg.Server.AuthToken, nil
	}
	token, err := GenerateRandomToken()
	if err != nil {
		return "", fmt.Errorf("generate auth token: %w", err)
	}
	cfg.Server.AuthToken = token
	return token, nil
}

// GenerateRandomToken returns a 32-character hex-encoded cryptographically
// random token string.
func GenerateRandomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("rand.Read: %w", err)
	}
	return hex.EncodeToString(b), nil
}
