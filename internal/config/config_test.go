package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

// testdataDir returns the absolute path to the testdata/config directory.
func testdataDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.Abs(filepath.Join("..", "..", "testdata", "config"))
	if err != nil {
		t.Fatalf("failed to resolve testdata dir: %v", err)
	}
	return dir
}

// writeTempFile creates a temporary file with the given content and returns its path.
func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file %s: %v", path, err)
	}
	return path
}

func Test_LoadConfig_Cases(t *testing.T) {
	tests := []struct {
		name        string
		setupPath   func(t *testing.T) string
		wantErr     bool
		errContains string
		validate    func(t *testing.T, cfg *Config)
	}{
		{
			name: "valid config loads all fields",
			setupPath: func(t *testing.T) string {
				return filepath.Join(testdataDir(t), "valid.yaml")
			},
			validate: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.Server.Port != 9090 || cfg.Server.AuthToken != "test-secret-token" {
					t.Errorf("Server = %+v", cfg.Server)
				}
				if cfg.Audit.Enabled || cfg.Audit.LogPath != "/tmp/upswatch-audit.log" {
					t.Errorf("Audit = %+v", cfg.Audit)
				}
				if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
					t.Errorf("Log = %+v", cfg.Log)
				}
				if cfg.Poll.Interval != 15 || cfg.Poll.DeviceTimeout != 3 || cfg.Poll.Concurrency != 2 {
					t.Errorf("Poll = %+v", cfg.Poll)
				}
				if !slices.Equal(cfg.Poll.WatchedFields, []string{"ups.status", "battery.charge"}) {
					t.Errorf("WatchedFields = %v", cfg.Poll.WatchedFields)
				}
				if !cfg.NUT.DescribeTypes || cfg.NUT.Timeout != 7 {
					t.Errorf("NUT = %+v", cfg.NUT)
				}
				if len(cfg.NUT.Servers) != 2 {
					t.Fatalf("NUT.Servers = %d, want 2", len(cfg.NUT.Servers))
				}
				rack := cfg.NUT.Servers[0]
				if rack.Name != "rack" || rack.Host != "10.0.0.5" || rack.Username != "monuser" || rack.Password != "secret" {
					t.Errorf("rack = %+v", rack)
				}
				if cfg.NUT.Servers[1].Port != 0 {
					t.Errorf("desk port = %d, want 0 (client default)", cfg.NUT.Servers[1].Port)
				}
				if !slices.Equal(cfg.Devices.Allowlist, []string{"rack/*", "desk/eaton"}) {
					t.Errorf("Allowlist = %v", cfg.Devices.Allowlist)
				}
				if !slices.Equal(cfg.Devices.Denylist, []string{"rack/spare"}) {
					t.Errorf("Denylist = %v", cfg.Devices.Denylist)
				}
				// Absent section keeps defaults.
				if cfg.GraphQL.URL != "http://localhost/graphql" || cfg.GraphQL.Timeout != 30 {
					t.Errorf("GraphQL = %+v, want defaults", cfg.GraphQL)
				}
			},
		},
		{
			name: "partial config keeps defaults",
			setupPath: func(t *testing.T) string {
				return writeTempFile(t, "partial.yaml", "source:\n  kind: graphql\ngraphql:\n  api_key: abc\n")
			},
			validate: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.Source.Kind != SourceGraphQL || cfg.GraphQL.APIKey != "abc" {
					t.Errorf("Source/GraphQL = %+v / %+v", cfg.Source, cfg.GraphQL)
				}
				if cfg.Server.Port != 8080 || cfg.Poll.Interval != 10 {
					t.Errorf("defaults lost: port=%d interval=%d", cfg.Server.Port, cfg.Poll.Interval)
				}
			},
		},
		{
			name: "missing file",
			setupPath: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "nope.yaml")
			},
			wantErr:     true,
			errContains: "failed to read config file",
		},
		{
			name: "invalid yaml",
			setupPath: func(t *testing.T) string {
				return writeTempFile(t, "bad.yaml", "server: [unclosed")
			},
			wantErr:     true,
			errContains: "failed to unmarshal config",
		},
		{
			name: "wrong type",
			setupPath: func(t *testing.T) string {
				return writeTempFile(t, "type.yaml", "server:\n  port: eighty\n")
			},
			wantErr:     true,
			errContains: "failed to unmarshal config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig(tt.setupPath(t))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if cfg != nil {
					t.Errorf("expected nil config on error, got %+v", cfg)
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("error = %q, want it to contain %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.validate(t, cfg)
		})
	}
}

func Test_DefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Server.Port != 8080 || cfg.Server.AuthToken != "" {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if !cfg.Audit.Enabled || cfg.Audit.LogPath != "/config/audit.log" {
		t.Errorf("Audit = %+v", cfg.Audit)
	}
	if cfg.Source.Kind != SourceNUT {
		t.Errorf("Source.Kind = %q, want nut", cfg.Source.Kind)
	}
	if len(cfg.NUT.Servers) != 1 || cfg.NUT.Servers[0].Host != "localhost" || cfg.NUT.Servers[0].Port != 3493 {
		t.Errorf("NUT.Servers = %+v", cfg.NUT.Servers)
	}
	if !slices.Equal(cfg.Poll.WatchedFields, []string{"ups.status", "battery.charge", "ups.load"}) {
		t.Errorf("WatchedFields = %v", cfg.Poll.WatchedFields)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func Test_DefaultConfig_ReturnsNewInstance(t *testing.T) {
	a, b := DefaultConfig(), DefaultConfig()
	a.Poll.WatchedFields[0] = "changed"
	a.NUT.Servers[0].Host = "changed"
	if b.Poll.WatchedFields[0] == "changed" || b.NUT.Servers[0].Host == "changed" {
		t.Error("DefaultConfig instances share slices")
	}
}

func Test_Validate_Cases(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(cfg *Config)
		wantErrs []string
	}{
		{name: "defaults are valid", mutate: func(cfg *Config) {}},
		{
			name:     "bad port",
			mutate:   func(cfg *Config) { cfg.Server.Port = 70000 },
			wantErrs: []string{"server.port 70000 out of range"},
		},
		{
			name: "all problems reported together",
			mutate: func(cfg *Config) {
				cfg.Poll.Interval = 0
				cfg.Poll.DeviceTimeout = -1
				cfg.NUT.Servers = []NUTServer{{Name: "a"}, {Name: "a", Host: "h"}}
			},
			wantErrs: []string{
				"poll.interval must be positive",
				"poll.device_timeout must be positive",
				"nut.servers[0].host is required",
				`nut.servers[1].name "a" is duplicated`,
			},
		},
		{
			name: "several servers need names without slashes",
			mutate: func(cfg *Config) {
				cfg.NUT.Servers = []NUTServer{{Name: "", Host: "a"}, {Name: "rack/1", Host: "b"}, {Name: "desk", Host: "c"}}
			},
			wantErrs: []string{
				"nut.servers[0].name is required when more than one server is configured",
				`nut.servers[1].name "rack/1" must not contain '/'`,
			},
		},
		{
			name: "single server may be unnamed",
			mutate: func(cfg *Config) {
				cfg.NUT.Servers = []NUTServer{{Host: "a"}}
			},
		},
		{
			name:     "no nut servers",
			mutate:   func(cfg *Config) { cfg.NUT.Servers = nil },
			wantErrs: []string{"nut.servers must not be empty"},
		},
		{
			name: "graphql ignores nut section",
			mutate: func(cfg *Config) {
				cfg.Source.Kind = "GraphQL"
				cfg.NUT.Servers = nil
			},
		},
		{
			name: "graphql needs url",
			mutate: func(cfg *Config) {
				cfg.Source.Kind = SourceGraphQL
				cfg.GraphQL.URL = ""
			},
			wantErrs: []string{"graphql.url is required"},
		},
		{
			name:     "unknown source",
			mutate:   func(cfg *Config) { cfg.Source.Kind = "snmp" },
			wantErrs: []string{`source.kind "snmp"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if len(tt.wantErrs) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			for _, want := range tt.wantErrs {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q does not mention %q", err, want)
				}
			}
		})
	}
}
