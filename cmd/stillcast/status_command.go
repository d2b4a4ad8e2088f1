package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"stillcast/internal/tasks"
)

// writeJSON emits v as indented JSON, the machine-readable twin of the
// rendered tables.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and task status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			ds, err := client.DaemonStatus()
			if err != nil {
				return err
			}
			list, err := client.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, struct {
					Daemon daemonStatus   `json:"daemon"`
					Tasks  []tasks.Status `json:"tasks"`
				}{Daemon: ds, Tasks: list})
			}

			fmt.Fprintf(out, "Daemon running (pid %d, version %s), %d task(s)\n", ds.PID, ds.Version, ds.TaskCount)
			if len(list) > 0 {
				fmt.Fprintln(out, renderTaskTable(list, shouldColorize(out)))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			list, err := client.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, taskList{Tasks: list})
			}
			if len(list) == 0 {
				fmt.Fprintln(out, "No tasks.")
				return nil
			}
			fmt.Fprintln(out, renderTaskTable(list, shouldColorize(out)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}

