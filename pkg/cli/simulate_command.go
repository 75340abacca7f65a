package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/agentops/taskwatch/internal/simulator"
)

func simulateCommand() *cli.Command {
	return &cli.Command{
		Name:  "simulate",
		Usage: "Run a local backend simulator with synthetic workflow runs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Value: "127.0.0.1",
				Usage: "Host to bind the simulator to",
			},
			&cli.IntFlag{
				Name:  "port",
				Value: 8080,
				Usage: "Port to bind the simulator to",
			},
			&cli.DurationFlag{
				Name:  "tick",
				Value: time.Second,
				Usage: "Delay between generated events",
			},
			&cli.IntFlag{
				Name:  "iterations",
				Value: 3,
				Usage: "Iterations per simulated workflow run",
			},
		},
		Action: runSimulate,
	}
}

func runSimulate(c *cli.Context) error {
	config := simulator.DefaultConfig()
	config.Host = c.String("host")
	config.Port = c.Int("port")
	config.TickInterval = c.Duration("tick")
	config.Iterations = c.Int("iterations")
	config.Logger = slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := simulator.NewServer(config)
	return server.Run(ctx)
}
