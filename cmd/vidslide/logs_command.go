package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vidslide/internal/ipc"
	"vidslide/internal/logging"
	"vidslide/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int
	var batchID string
	var taskID string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display daemon logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := logs.Filter{BatchID: strings.TrimSpace(batchID), TaskID: strings.TrimSpace(taskID)}
			client, err := ctx.dialClient()
			if err != nil {
				cfg, cfgErr := ctx.ensureConfig()
				if cfgErr != nil {
					return err
				}
				return tailLogFile(cmd, ctx, logs.CurrentLogPath(cfg.Paths.LogDir), lines, follow, filter)
			}
			defer client.Close()
			return streamDaemonLogs(cmd, ctx, client, lines, follow, filter)
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of recent entries to show (0 for all)")
	cmd.Flags().StringVar(&batchID, "batch", "", "Only show entries for this batch")
	cmd.Flags().StringVar(&taskID, "task", "", "Only show entries for this task")
	return cmd
}

func streamDaemonLogs(cmd *cobra.Command, ctx *commandContext, client *ipc.Client, lines int, follow bool, filter logs.Filter) error {
	out := cmd.OutOrStdout()
	req := ipc.LogTailRequest{
		Limit:   lines,
		Tail:    lines > 0,
		BatchID: filter.BatchID,
		TaskID:  filter.TaskID,
	}
	printed := false
	for {
		resp, err := client.LogTail(req)
		if err != nil {
			return fmt.Errorf("tail logs: %w", err)
		}
		if resp == nil {
			return errors.New("log tail response missing")
		}
		for _, evt := range resp.Events {
			if ctx.jsonOutput() {
				if err := writeJSON(cmd, evt); err != nil {
					return err
				}
			} else {
				printLogEvent(out, evt)
			}
			printed = true
		}
		req.Since = resp.Next
		req.Tail = false
		req.Limit = 0
		if !follow {
			if !printed && !ctx.jsonOutput() {
				fmt.Fprintln(out, "No log entries available")
			}
			return nil
		}
		req.Follow = true
		if err := commandDone(cmd.Context()); err != nil {
			return nil
		}
	}
}

// tailLogFile reads the current run log directly when the daemon is down.
func tailLogFile(cmd *cobra.Command, ctx *commandContext, path string, lines int, follow bool, filter logs.Filter) error {
	out := cmd.OutOrStdout()
	if !ctx.jsonOutput() {
		fmt.Fprintf(cmd.ErrOrStderr(), "Daemon not reachable; reading %s\n", path)
	}
	opts := logs.TailOptions{Offset: -1, Limit: lines, Filter: filter}
	if lines <= 0 {
		opts.Offset = 0
	}
	printed := false
	for {
		result, err := logs.Tail(cmd.Context(), path, opts)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("tail log file: %w", err)
		}
		for _, evt := range result.Events {
			if ctx.jsonOutput() {
				if err := writeJSON(cmd, evt); err != nil {
					return err
				}
			} else {
				printLogEvent(out, evt)
			}
			printed = true
		}
		if !follow {
			if !printed && !ctx.jsonOutput() {
				fmt.Fprintln(out, "No log entries available")
			}
			return nil
		}
		opts = logs.TailOptions{Offset: result.Offset, Follow: true, Wait: 2 * time.Second, Filter: filter}
		if err := commandDone(cmd.Context()); err != nil {
			return nil
		}
	}
}

func printLogEvent(out io.Writer, evt logging.LogEvent) {
	var b strings.Builder
	b.WriteString(evt.Timestamp.Local().Format(time.DateTime))
	b.WriteString(" ")
	b.WriteString(strings.ToUpper(evt.Level))
	if evt.Component != "" {
		b.WriteString(" [" + evt.Component + "]")
	}
	b.WriteString(" " + evt.Message)
	if evt.BatchID != "" {
		b.WriteString(" batch=" + evt.BatchID)
	}
	if evt.TaskID != "" {
		b.WriteString(" task=" + evt.TaskID)
	}
	keys := make([]string, 0, len(evt.Fields))
	for key := range evt.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%s", key, evt.Fields[key])
	}
	fmt.Fprintln(out, b.String())
}
