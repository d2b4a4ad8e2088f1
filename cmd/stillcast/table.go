package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"stillcast/internal/tasks"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

// renderTaskTable renders one row per task. Count columns are right-aligned,
// everything else is left-aligned.
func renderTaskTable(list []tasks.Status, colorize bool) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"NAME", "STATE", "HEALTH", "RESOLUTION", "IMAGES", "CURRENT", "RESTARTS", "URL"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Name: "IMAGES", Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Name: "RESTARTS", Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})

	for _, status := range list {
		state := "stopped"
		if status.Running {
			state = "running"
		}
		resolution := "-"
		if status.Width > 0 {
			resolution = fmt.Sprintf("%dx%d", status.Width, status.Height)
		}
		current := status.CurrentImage
		if current == "" {
			current = "-"
		}
		tw.AppendRow(table.Row{
			status.Name,
			state,
			renderHealth(status, colorize),
			resolution,
			strconv.Itoa(status.ImageCount),
			current,
			strconv.Itoa(status.Restarts),
			status.StreamURL,
		})
	}
	return tw.Render()
}

// renderHealth shows "-" for tasks that are at rest rather than a stale
// healthy label from their last run.
func renderHealth(status tasks.Status, colorize bool) string {
	label := string(status.Health)
	if !status.Running && !status.ShouldRun && status.Health != tasks.HealthFailed {
		label = "-"
	}
	if !colorize {
		return label
	}
	switch status.Health {
	case tasks.HealthHealthy:
		if status.Running {
			return ansiGreen + label + ansiReset
		}
	case tasks.HealthSuspect, tasks.HealthRestarting:
		return ansiYellow + label + ansiReset
	case tasks.HealthFailed:
		return ansiRed + label + ansiReset
	}
	return label
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
