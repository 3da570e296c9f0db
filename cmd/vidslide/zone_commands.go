package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vidslide/internal/batch"
	"vidslide/internal/ipc"
	"vidslide/internal/textutil"
)

func newZoneCommand(ctx *commandContext) *cobra.Command {
	zoneCmd := &cobra.Command{
		Use:   "zone",
		Short: "Move and reorder tasks between zones",
	}
	zoneCmd.AddCommand(
		newZoneListCommand(ctx),
		newZoneMoveCommand(ctx),
		newZoneReorderCommand(ctx),
	)
	return zoneCmd
}

func newZoneListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list <batch-id> <zone>",
		Short: "List the tasks of one zone in order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			zone, err := batch.ParseZone(args[1])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.BatchStatus(ipc.BatchRequest{BatchID: args[0]})
				if err != nil {
					return err
				}
				records := zoneRecords(resp.Batch.Zones, zone)
				if ctx.jsonOutput() {
					return writeJSON(cmd, records)
				}
				if len(records) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "Zone %s is empty\n", zone)
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTaskTable(textutil.Humanize(string(zone)), records, shouldColorize(cmd.OutOrStdout())))
				return nil
			})
		},
	}
}

func newZoneMoveCommand(ctx *commandContext) *cobra.Command {
	var from string
	var to string
	var position int
	cmd := &cobra.Command{
		Use:   "move <batch-id> <task-id...>",
		Short: "Move tasks between zones",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
				return fmt.Errorf("--from and --to are required")
			}
			req := ipc.MoveRequest{BatchID: args[0], IDs: args[1:], From: from, To: to}
			if cmd.Flags().Changed("position") {
				req.Position = &position
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Move(req); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Moved %d task(s) from %s to %s\n", len(req.IDs), from, to)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Source zone: staged, queued or completed")
	cmd.Flags().StringVar(&to, "to", "", "Destination zone: staged, queued or completed")
	cmd.Flags().IntVar(&position, "position", 0, "Insert position in the destination zone (appends when omitted)")
	return cmd
}

func newZoneReorderCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <batch-id> <zone> <task-id...>",
		Short: "Replace the order of a zone",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Reorder(ipc.ReorderRequest{BatchID: args[0], Zone: args[1], IDs: args[2:]}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Zone %s reordered\n", args[1])
				return nil
			})
		},
	}
}

func zoneRecords(zones batch.ZoneRecords, zone batch.Zone) []batch.TaskRecord {
	switch zone {
	case batch.ZoneStaged:
		return zones.Staged
	case batch.ZoneQueued:
		return zones.Queued
	case batch.ZoneCompleted:
		return zones.Completed
	case batch.ZoneTrashed:
		return zones.Trashed
	default:
		return nil
	}
}
