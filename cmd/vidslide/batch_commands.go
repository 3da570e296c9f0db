package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vidslide/internal/events"
	"vidslide/internal/ipc"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Create, inspect and run batches",
	}

	batchCmd.AddCommand(
		newBatchCreateCommand(ctx),
		newBatchListCommand(ctx),
		newBatchShowCommand(ctx),
		newBatchDeleteCommand(ctx),
		newBatchStartCommand(ctx),
		newBatchPauseCommand(ctx),
		newBatchWorkersCommand(ctx),
		newBatchExportCommand(ctx),
		newBatchEventsCommand(ctx),
	)
	return batchCmd
}

func newBatchCreateCommand(ctx *commandContext) *cobra.Command {
	var params paramsFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an empty batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			override, err := params.override(cmd)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.CreateBatch(ipc.CreateBatchRequest{Params: override})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp.Batch)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created batch %s\n", resp.Batch.ID)
				fmt.Fprintf(cmd.OutOrStdout(), "Output directory: %s\n", resp.Batch.Dir)
				return nil
			})
		},
	}
	params.register(cmd)
	return cmd
}

func newBatchListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List batches",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ListBatches()
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp.Batches)
				}
				if len(resp.Batches) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No batches")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderBatchList(resp.Batches, shouldColorize(cmd.OutOrStdout())))
				return nil
			})
		},
	}
}

func newBatchShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <batch-id>",
		Short: "Show batch status and zones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.BatchStatus(ipc.BatchRequest{BatchID: args[0]})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp.Batch)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderBatchDetail(resp.Batch, shouldColorize(cmd.OutOrStdout())))
				return nil
			})
		},
	}
}

func newBatchDeleteCommand(ctx *commandContext) *cobra.Command {
	var removeFiles bool
	cmd := &cobra.Command{
		Use:   "delete <batch-id>",
		Short: "Delete an idle batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.DeleteBatch(ipc.DeleteBatchRequest{BatchID: args[0], RemoveFiles: removeFiles}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted batch %s (files removed: %s)\n", args[0], yesNo(removeFiles))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&removeFiles, "remove-files", false, "Also remove the batch output directory")
	return cmd
}

func newBatchStartCommand(ctx *commandContext) *cobra.Command {
	var params paramsFlags
	cmd := &cobra.Command{
		Use:   "start <batch-id>",
		Short: "Start processing queued tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			override, err := params.override(cmd)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Start(ipc.StartRequest{BatchID: args[0], Params: override}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Batch %s started\n", args[0])
				return nil
			})
		},
	}
	params.register(cmd)
	return cmd
}

func newBatchPauseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pause <batch-id>",
		Short: "Pause the batch after running tasks finish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Pause(ipc.BatchRequest{BatchID: args[0]}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Batch %s will pause after running tasks finish\n", args[0])
				return nil
			})
		},
	}
}

func newBatchWorkersCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "workers <batch-id> <count>",
		Short: "Set the worker limit of an idle batch (0 uses the hardware ceiling)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var count int
			if _, err := fmt.Sscanf(args[1], "%d", &count); err != nil {
				return fmt.Errorf("invalid worker count %q", args[1])
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SetWorkers(ipc.WorkersRequest{BatchID: args[0], Workers: count})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Workers set to %d\n", resp.Applied)
				return nil
			})
		},
	}
}

func newBatchExportCommand(ctx *commandContext) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export <batch-id> [task-id...]",
		Short: "Package completed tasks as ZIP or PDF",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Export(ipc.ExportRequest{
					BatchID: args[0],
					IDs:     args[1:],
					Format:  strings.ToLower(strings.TrimSpace(format)),
				})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				if len(resp.Results) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing to export")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderExportResults(resp.Results))
				if resp.Error != "" {
					return errors.New(resp.Error)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "Package format: zip or pdf (defaults to the configured format)")
	return cmd
}

func newBatchEventsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var since uint64
	var limit int
	cmd := &cobra.Command{
		Use:   "events <batch-id>",
		Short: "Print batch events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				req := ipc.EventsRequest{BatchID: args[0], Since: since, Limit: limit}
				for {
					resp, err := client.Events(req)
					if err != nil {
						return err
					}
					for _, evt := range resp.Events {
						if err := printEvent(cmd, ctx, evt); err != nil {
							return err
						}
					}
					req.Since = resp.Next
					if !follow {
						return nil
					}
					req.Wait = true
					if err := commandDone(cmd.Context()); err != nil {
						return nil
					}
				}
			})
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Wait for new events")
	cmd.Flags().Uint64Var(&since, "since", 0, "Only print events after this sequence number")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum events per poll (0 for the daemon default)")
	return cmd
}

func printEvent(cmd *cobra.Command, ctx *commandContext, evt events.Event) error {
	if ctx.jsonOutput() {
		return writeJSON(cmd, evt)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%6d %s %-16s %s\n",
		evt.Seq,
		evt.Time.Local().Format(time.TimeOnly),
		evt.Type,
		summarizePayload(evt.Payload),
	)
	return nil
}

func commandDone(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
