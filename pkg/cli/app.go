// Package cli implements the taskwatch command line interface.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/agentops/taskwatch/internal/config"
	"github.com/agentops/taskwatch/pkg/backend"
)

// Version information - will be set during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// NewApp creates and configures the CLI application.
func NewApp() *cli.App {
	return &cli.App{
		Name:    "taskwatch",
		Usage:   "browse, launch and live-monitor agent tasks",
		Version: Version,
		Commands: []*cli.Command{
			tailCommand(),
			historyCommand(),
			sendCommand(),
			controlCommand(),
			simulateCommand(),
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to the YAML profile (default ~/.taskwatch/config.yaml)",
			},
			&cli.StringFlag{
				Name:  "backend-url",
				Usage: "Backend API base URL (overrides profile and TASKWATCH_BACKEND_URL)",
			},
			&cli.StringFlag{
				Name:  "stream-url",
				Usage: "SSE endpoint prefix (defaults to <backend-url>/api/sse)",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose logging",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored output",
			},
		},
		Before: func(c *cli.Context) error {
			// A local .env is optional.
			_ = godotenv.Load()

			level := slog.LevelWarn
			if c.Bool("verbose") {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
	}
}

// loadConfig resolves the effective configuration for a command invocation.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if v := c.String("backend-url"); v != "" {
		cfg.BackendURL = v
		cfg.StreamURL = v + "/api/sse"
	}
	if v := c.String("stream-url"); v != "" {
		cfg.StreamURL = v
	}
	return cfg, nil
}

// newBackendClient builds the REST client for a command invocation.
func newBackendClient(cfg *config.Config) (*backend.Client, error) {
	clientConfig := backend.DefaultClientConfig()
	clientConfig.BaseURL = cfg.BackendURL
	client, err := backend.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}
	return client, nil
}

// prefsDir returns the directory used for persisted client preferences.
func prefsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".taskwatch"
	}
	return filepath.Join(home, ".taskwatch", "prefs")
}
