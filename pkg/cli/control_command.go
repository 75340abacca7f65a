package cli

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"
)

func controlCommand() *cli.Command {
	return &cli.Command{
		Name:      "control",
		Usage:     "Pause, resume or cancel a task",
		ArgsUsage: "pause|resume|cancel AGENT_ID TASK_ID",
		Action:    runControl,
	}
}

func runControl(c *cli.Context) error {
	if c.NArg() != 3 {
		return errors.New("usage: taskwatch control pause|resume|cancel AGENT_ID TASK_ID")
	}
	action, agentID, taskID := c.Args().Get(0), c.Args().Get(1), c.Args().Get(2)

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	client, err := newBackendClient(cfg)
	if err != nil {
		return err
	}

	switch action {
	case "pause":
		_, err = client.PauseTask(c.Context, agentID, taskID)
	case "resume":
		_, err = client.ResumeTask(c.Context, agentID, taskID)
	case "cancel":
		_, err = client.CancelTask(c.Context, agentID, taskID)
	default:
		return fmt.Errorf("unknown action %q", action)
	}
	if err != nil {
		return err
	}

	fmt.Printf("task %s: %s accepted\n", taskID, action)
	return nil
}
