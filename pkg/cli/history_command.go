package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/agentops/taskwatch/pkg/events"
	"github.com/agentops/taskwatch/pkg/render"
)

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "Print one page of a task's historical events",
		ArgsUsage: "AGENT_ID TASK_ID",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "page", Value: 1, Usage: "Page number"},
			&cli.IntFlag{Name: "page-size", Value: 100, Usage: "Events per page"},
			&cli.BoolFlag{Name: "stats", Usage: "Print aggregate counts after the list"},
		},
		Action: runHistory,
	}
}

func runHistory(c *cli.Context) error {
	if c.NArg() != 2 {
		return errors.New("usage: taskwatch history AGENT_ID TASK_ID")
	}
	agentID, taskID := c.Args().Get(0), c.Args().Get(1)

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	client, err := newBackendClient(cfg)
	if err != nil {
		return err
	}

	page, err := client.ListTaskEvents(c.Context, agentID, taskID, c.Int("page"), c.Int("page-size"))
	if err != nil {
		return fmt.Errorf("failed to fetch events: %w", err)
	}

	renderer := render.NewRenderer(os.Stdout, c.Bool("no-color"))
	list := make([]events.DisplayEvent, 0, len(page.Events))
	for _, rec := range page.Events {
		ev := events.MapHistoricalEvent(rec)
		list = append(list, ev)
		renderer.Event(ev)
	}

	fmt.Printf("-- page %d of %d events", page.Page, page.Total)
	if page.HasNext {
		fmt.Print(" (more available)")
	}
	fmt.Println()

	if c.Bool("stats") {
		renderer.Stats(events.ComputeStats(list, time.Now()))
	}
	return nil
}
