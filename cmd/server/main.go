// Package main is the entry point for the upswatch server.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jamesprial/upswatch/internal/api"
	"github.com/jamesprial/upswatch/internal/config"
	"github.com/jamesprial/upswatch/internal/graphql"
	"github.com/jamesprial/upswatch/internal/nut"
	"github.com/jamesprial/upswatch/internal/safety"
	"github.com/jamesprial/upswatch/internal/tools"
	"github.com/jamesprial/upswatch/internal/ups"
	"github.com/mark3labs/mcp-go/server"
)

const (
	defaultConfigPath = "/config/config.yaml"
	version           = "1.0.0"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "upswatch: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, path, loadErr := loadConfig()
	config.ApplyEnvOverrides(cfg)

	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)
	if loadErr != nil {
		logger.Warn("could not load config, using defaults", "path", path, "err", loadErr)
	} else {
		logger.Info("loaded config", "path", path)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	tokenBefore := cfg.Server.AuthToken
	token, err := config.EnsureAuthToken(cfg)
	if err != nil {
		logger.Warn("could not generate auth token, running without authentication", "err", err)
	} else if tokenBefore == "" {
		logger.Info("generated auth token (set UPSWATCH_AUTH_TOKEN to persist)", "token", token)
	}

	var auditLogger *safety.AuditLogger
	if cfg.Audit.Enabled {
		auditLogger, err = safety.OpenAuditFile(cfg.Audit.LogPath)
		if err != nil {
			logger.Warn("audit logging disabled", "path", cfg.Audit.LogPath, "err", err)
		}
		defer func() { _ = auditLogger.Close() }()
	}

	src, err := buildSource(cfg)
	if err != nil {
		return err
	}
	filter := safety.NewFilter(cfg.Devices.Allowlist, cfg.Devices.Denylist)
	if err := filter.Check(); err != nil {
		logger.Warn("device filter has malformed patterns; they match nothing", "err", err)
	}
	if !filter.Empty() {
		src = ups.NewFilteredSource(src, filter)
	}

	store := ups.NewStore()
	hub := ups.NewHub(logger.With("component", "hub"))
	interval := time.Duration(cfg.Poll.Interval) * time.Second
	poller := ups.NewPoller(src, store, hub, ups.PollerConfig{
		Interval:      interval,
		DeviceTimeout: time.Duration(cfg.Poll.DeviceTimeout) * time.Second,
		Concurrency:   cfg.Poll.Concurrency,
		Watched:       cfg.Poll.WatchedFields,
	}, logger.With("component", "poller"))

	mcpServer := server.NewMCPServer(
		"upswatch",
		version,
		server.WithToolCapabilities(false),
	)
	names := tools.RegisterAll(mcpServer, ups.UPSTools(store, auditLogger))
	logger.Info("registered MCP tools", "tools", names)

	httpAPI := api.New(store, poller, hub, auditLogger, logger.With("component", "http"), api.Options{
		Watched:    cfg.Poll.WatchedFields,
		StaleAfter: 3 * interval,
	})
	mcpHandler := server.NewStreamableHTTPServer(mcpServer)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           httpAPI.Handler(cfg.Server.AuthToken, map[string]http.Handler{"/mcp": mcpHandler}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		poller.Run(ctx)
	}()

	logger.Info("upswatch listening", "addr", addr, "source", cfg.Source.Kind)
	err = api.RunServer(ctx, httpSrv, logger)
	stop()
	<-pollDone
	logger.Info("server stopped")
	return err
}

// buildSource constructs the configured device source.
func buildSource(cfg *config.Config) (ups.DeviceSource, error) {
	switch strings.ToLower(cfg.Source.Kind) {
	case config.SourceGraphQL:
		client, err := graphql.NewHTTPClient(cfg.GraphQL)
		if err != nil {
			return nil, fmt.Errorf("graphql source: %w", err)
		}
		return ups.NewGraphQLSource(client), nil
	default:
		members := make([]ups.NamedSource, 0, len(cfg.NUT.Servers))
		for _, s := range cfg.NUT.Servers {
			client, err := nut.NewClient(nut.Config{
				Host:     s.Host,
				Port:     s.Port,
				Username: s.Username,
				Password: s.Password,
				Timeout:  time.Duration(cfg.NUT.Timeout) * time.Second,
			})
			if err != nil {
				return nil, fmt.Errorf("nut server %q: %w", s.Name, err)
			}
			members = append(members, ups.NamedSource{Name: s.Name, Source: nut.NewSource(client, cfg.NUT.DescribeTypes)})
		}
		return ups.NewMultiSource(members...), nil
	}
}

// newLogger builds the process logger from cfg.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// loadConfig reads the file named by UPSWATCH_CONFIG_PATH or the default
// path. On failure DefaultConfig is returned along with the error.
func loadConfig() (*config.Config, string, error) {
	path := os.Getenv("UPSWATCH_CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return config.DefaultConfig(), path, err
	}
	return cfg, path, nil
}
