package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/agentops/taskwatch/pkg/backend"
	"github.com/agentops/taskwatch/pkg/render"
)

func sendCommand() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "Send a message to an agent and wait for the resulting task",
		ArgsUsage: "AGENT_ID MESSAGE",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "task",
				Usage: "Create a form-mode task instead of a chat message",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Value: backend.DefaultPollInterval,
				Usage: "Status poll interval",
			},
			&cli.IntFlag{
				Name:  "max-attempts",
				Value: backend.DefaultMaxAttempts,
				Usage: "Maximum status poll attempts before giving up",
			},
			&cli.BoolFlag{
				Name:  "no-wait",
				Usage: "Print the task id and exit without polling",
			},
		},
		Action: runSend,
	}
}

func runSend(c *cli.Context) error {
	if c.NArg() != 2 {
		return errors.New("usage: taskwatch send AGENT_ID MESSAGE")
	}
	agentID, message := c.Args().Get(0), c.Args().Get(1)

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	client, err := newBackendClient(cfg)
	if err != nil {
		return err
	}

	var result *backend.SendMessageResult
	if c.Bool("task") {
		result, err = client.CreateTaskSync(c.Context, agentID, &backend.CreateTaskRequest{Message: message})
	} else {
		result, err = client.SendMessage(c.Context, agentID, message)
	}
	if err != nil {
		return fmt.Errorf("failed to submit: %w", err)
	}

	fmt.Printf("task %s created\n", result.TaskID)
	if c.Bool("no-wait") {
		return nil
	}

	start := time.Now()
	poller := backend.NewStatusPoller(client, c.Duration("interval"), c.Int("max-attempts"), nil)
	outcome := poller.Wait(c.Context, agentID, result.TaskID)

	renderer := render.NewRenderer(os.Stdout, c.Bool("no-color"))
	switch outcome.State {
	case backend.PollSucceeded:
		renderer.PollOutcome(result.TaskID, "completed", outcome.Status.Content, "", time.Since(start))
	case backend.PollFailed:
		renderer.PollOutcome(result.TaskID, "failed", "", outcome.Status.Error, time.Since(start))
		return errors.New("task failed")
	case backend.PollTimedOut:
		renderer.PollOutcome(result.TaskID, "timed out", "", outcome.Err.Error(), time.Since(start))
		return errors.New("task timed out")
	case backend.PollCancelled:
		return outcome.Err
	}
	return nil
}
