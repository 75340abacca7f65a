// Package render prints task event views to a terminal.
package render

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fatih/color"

	"github.com/agentops/taskwatch/pkg/events"
	"github.com/agentops/taskwatch/pkg/watch"
)

var levelColors = map[events.Level]*color.Color{
	events.LevelInfo:    color.New(color.FgCyan),
	events.LevelSuccess: color.New(color.FgGreen),
	events.LevelWarning: color.New(color.FgYellow),
	events.LevelError:   color.New(color.FgRed, color.Bold),
}

// Renderer writes events and stats to an output stream.
type Renderer struct {
	out     io.Writer
	noColor bool
}

// NewRenderer creates a renderer. When noColor is set, output is plain text.
func NewRenderer(out io.Writer, noColor bool) *Renderer {
	return &Renderer{out: out, noColor: noColor}
}

func (r *Renderer) paint(level events.Level, text string) string {
	c, ok := levelColors[level]
	if !ok || r.noColor {
		return text
	}
	return c.Sprint(text)
}

// Event prints one event as a single line.
func (r *Renderer) Event(ev events.DisplayEvent) {
	stamp := ev.Timestamp.Local().Format("15:04:05")
	label := r.paint(ev.Level, fmt.Sprintf("%-22s", ev.Title))
	fmt.Fprintf(r.out, "%s  %s  %s\n", stamp, label, ev.Description)
}

// List prints the filtered event list of a view.
func (r *Renderer) List(view watch.View) {
	for _, ev := range view.Filtered {
		r.Event(ev)
	}
}

// Status prints the connection and loading state line.
func (r *Renderer) Status(view watch.View) {
	conn := "disconnected"
	if view.Connected {
		conn = "live"
	}
	fmt.Fprintf(r.out, "-- %d/%d events, stream %s", len(view.Filtered), len(view.Events), conn)
	if view.Loading {
		fmt.Fprint(r.out, ", loading")
	}
	if view.Error != "" {
		fmt.Fprintf(r.out, ", error: %s", view.Error)
	}
	fmt.Fprintln(r.out)
}

// Stats prints aggregate counts for a view.
func (r *Renderer) Stats(stats events.Stats) {
	fmt.Fprintf(r.out, "total: %d   last hour: %d\n", stats.Total, stats.RecentActivity)

	levels := make([]events.Level, 0, len(stats.ByLevel))
	for level := range stats.ByLevel {
		levels = append(levels, level)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })
	for _, level := range levels {
		fmt.Fprintf(r.out, "  %s %d\n", r.paint(level, string(level)), stats.ByLevel[level])
	}

	types := make([]events.EventType, 0, len(stats.ByType))
	for eventType := range stats.ByType {
		types = append(types, eventType)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, eventType := range types {
		fmt.Fprintf(r.out, "  %-26s %d\n", eventType, stats.ByType[eventType])
	}
}

// PollOutcome prints the terminal result of a send-and-wait flow.
func (r *Renderer) PollOutcome(taskID, status, content, errMsg string, took time.Duration) {
	switch status {
	case "completed":
		fmt.Fprintf(r.out, "%s task %s completed in %s\n", r.paint(events.LevelSuccess, "ok"), taskID, took.Round(time.Second))
		if content != "" {
			fmt.Fprintln(r.out, content)
		}
	case "failed":
		fmt.Fprintf(r.out, "%s task %s failed: %s\n", r.paint(events.LevelError, "error"), taskID, errMsg)
	default:
		fmt.Fprintf(r.out, "%s task %s: %s\n", r.paint(events.LevelWarning, status), taskID, errMsg)
	}
}
