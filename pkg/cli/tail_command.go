package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/agentops/taskwatch/internal/prefs"
	"github.com/agentops/taskwatch/pkg/backend"
	"github.com/agentops/taskwatch/pkg/events"
	"github.com/agentops/taskwatch/pkg/render"
	"github.com/agentops/taskwatch/pkg/watch"
)

// filtersPrefKey is the preference slot for the last-used filter selection.
const filtersPrefKey = "filters"

func tailCommand() *cli.Command {
	return &cli.Command{
		Name:      "tail",
		Usage:     "Follow a task's events live (historical page first, then the stream)",
		ArgsUsage: "AGENT_ID TASK_ID",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "level",
				Usage: "Only show events with these levels (info, success, warning, error)",
			},
			&cli.StringSliceFlag{
				Name:  "type",
				Usage: "Only show events with these types (e.g. tool_call_failed)",
			},
			&cli.StringFlag{
				Name:  "search",
				Usage: "Only show events whose title or description matches",
			},
			&cli.BoolFlag{
				Name:  "no-follow",
				Usage: "Print the historical page and exit without streaming",
			},
		},
		Action: runTail,
	}
}

func runTail(c *cli.Context) error {
	if c.NArg() != 2 {
		return errors.New("usage: taskwatch tail AGENT_ID TASK_ID")
	}
	agentID, taskID := c.Args().Get(0), c.Args().Get(1)

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	// The stream connection is long-lived; use an untimed client.
	clientConfig := backend.DefaultClientConfig()
	clientConfig.BaseURL = cfg.BackendURL
	clientConfig.HTTPClient = &http.Client{}
	client, err := backend.NewClient(clientConfig)
	if err != nil {
		return fmt.Errorf("failed to create backend client: %w", err)
	}

	filters := resolveFilters(c)
	renderer := render.NewRenderer(os.Stdout, c.Bool("no-color"))

	var mu sync.Mutex
	printed := make(map[string]bool)
	changed := make(chan struct{}, 1)
	notify := func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}

	watcher := watch.New(client, cfg.StreamURL, agentID, taskID, watch.Options{
		AutoConnect: !c.Bool("no-follow"),
		Reconnect:   !c.Bool("no-follow"),
		PageSize:    cfg.PageSize,
		OnChange:    notify,
	})
	defer watcher.Close()
	watcher.UpdateFilters(filters)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	printNew := func() {
		view := watcher.Snapshot()
		mu.Lock()
		defer mu.Unlock()
		for _, ev := range view.Filtered {
			if !printed[ev.ID] {
				printed[ev.ID] = true
				renderer.Event(ev)
			}
		}
	}
	printNew()

	if c.Bool("no-follow") {
		renderer.Stats(watcher.Snapshot().Stats)
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			view := watcher.Snapshot()
			renderer.Status(view)
			renderer.Stats(view.Stats)
			return nil
		case <-changed:
			printNew()
		}
	}
}

// resolveFilters builds the filter set from flags, falling back to the
// persisted last-used selection, and saves the result for next time.
func resolveFilters(c *cli.Context) events.Filters {
	store, err := prefs.NewFileStore(prefsDir())
	if err != nil {
		store = nil
	}

	filters := events.Filters{Search: c.String("search")}
	for _, raw := range c.StringSlice("level") {
		filters.Levels = append(filters.Levels, events.Level(raw))
	}
	for _, raw := range c.StringSlice("type") {
		filters.Types = append(filters.Types, events.EventType(raw))
	}

	explicit := len(filters.Levels) > 0 || len(filters.Types) > 0 || filters.Search != ""
	if store == nil {
		return filters
	}
	if !explicit {
		var saved events.Filters
		if err := store.Load(filtersPrefKey, &saved); err == nil {
			return saved
		}
		return filters
	}
	// Preference persistence is best effort.
	_ = store.Save(filtersPrefKey, filters)
	return filters
}
