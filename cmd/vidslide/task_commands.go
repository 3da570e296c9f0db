package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vidslide/internal/batch"
	"vidslide/internal/ipc"
)

func newTaskCommand(ctx *commandContext) *cobra.Command {
	taskCmd := &cobra.Command{
		Use:   "task",
		Short: "Stage videos and manage individual tasks",
	}

	taskCmd.AddCommand(
		newTaskAddCommand(ctx),
		newTaskPrioritizeCommand(ctx),
		newTaskRenameCommand(ctx),
		newTaskTrashCommand(ctx),
		newTaskRestoreCommand(ctx),
		newTaskDeleteCommand(ctx),
		newTaskCancelCommand(ctx),
		newTaskRetryCommand(ctx),
		newTaskImagesCommand(ctx),
		newTaskTrashImagesCommand(ctx),
		newTaskRestoreImagesCommand(ctx),
	)
	return taskCmd
}

func newTaskAddCommand(ctx *commandContext) *cobra.Command {
	var folder string
	var recursive bool
	var series string
	var names []string
	cmd := &cobra.Command{
		Use:   "add <batch-id> [video...]",
		Short: "Stage videos in a batch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			videos := args[1:]
			if len(videos) == 0 && strings.TrimSpace(folder) == "" {
				return fmt.Errorf("provide video paths or --folder")
			}
			if len(names) > len(videos) {
				return fmt.Errorf("%d names given for %d videos", len(names), len(videos))
			}
			entries := make([]batch.StageEntry, 0, len(videos))
			for i, path := range videos {
				entry := batch.StageEntry{Path: path}
				if i < len(names) {
					entry.Name = names[i]
				}
				entries = append(entries, entry)
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Stage(ipc.StageRequest{
					BatchID:    args[0],
					Videos:     entries,
					Folder:     folder,
					Recursive:  recursive,
					NameSeries: series,
				})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Staged %d video(s)\n", len(resp.IDs))
				for _, id := range resp.IDs {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", id)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&folder, "folder", "", "Scan a folder for supported videos")
	cmd.Flags().BoolVar(&recursive, "recursive", false, "Scan --folder recursively")
	cmd.Flags().StringVar(&series, "series", "", "Name unnamed videos as a numbered series, e.g. \"Lecture 1\"")
	cmd.Flags().StringArrayVar(&names, "name", nil, "Display name for the video at the same position (repeatable)")
	return cmd
}

func newTaskPrioritizeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "prioritize <batch-id> <task-id>",
		Short: "Move a queued task to the front of the waiting tasks",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Prioritize(ipc.TaskRequest{BatchID: args[0], TaskID: args[1]}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task %s prioritized\n", args[1])
				return nil
			})
		},
	}
}

func newTaskRenameCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <batch-id> <task-id> <name>",
		Short: "Rename a task",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Rename(ipc.RenameRequest{BatchID: args[0], TaskID: args[1], Name: args[2]}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task %s renamed\n", args[1])
				return nil
			})
		},
	}
}

func newTaskTrashCommand(ctx *commandContext) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "trash <batch-id> <task-id>",
		Short: "Move a task to the trash",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Trash(ipc.TrashRequest{BatchID: args[0], TaskID: args[1], Reason: reason})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				if resp.Deferred {
					fmt.Fprintf(cmd.OutOrStdout(), "Task %s will be trashed once its worker stops\n", args[1])
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task %s trashed\n", args[1])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded with the trashed task")
	return cmd
}

func newTaskRestoreCommand(ctx *commandContext) *cobra.Command {
	var action string
	cmd := &cobra.Command{
		Use:   "restore <batch-id> <task-id>",
		Short: "Restore a trashed task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Restore(ipc.RestoreRequest{BatchID: args[0], TaskID: args[1], Action: action}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task %s restored (%s)\n", args[1], action)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&action, "action", string(batch.RestoreToStaged), "Restore action: to_staged, resume_to_queue, to_completed or permanent_delete")
	return cmd
}

func newTaskDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <batch-id> <task-id>",
		Short: "Permanently delete a trashed task and its files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.PermanentlyDelete(ipc.TaskRequest{BatchID: args[0], TaskID: args[1]}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task %s deleted\n", args[1])
				return nil
			})
		},
	}
}

func newTaskCancelCommand(ctx *commandContext) *cobra.Command {
	var intent string
	cmd := &cobra.Command{
		Use:   "cancel <batch-id> <task-id>",
		Short: "Cancel, pause or skip a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Cancel(ipc.CancelRequest{BatchID: args[0], TaskID: args[1], Intent: intent})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				if resp.Pending {
					fmt.Fprintf(cmd.OutOrStdout(), "Task %s will stop at the next checkpoint (%s)\n", args[1], intent)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task %s is now %s\n", args[1], resp.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&intent, "intent", string(batch.IntentCancel), "Cancel intent: cancel, pause or skip")
	return cmd
}

func newTaskRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <batch-id> <task-id>",
		Short: "Retry or resume a failed, paused or cancelled task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Retry(ipc.TaskRequest{BatchID: args[0], TaskID: args[1]})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				if resp.Resumed {
					fmt.Fprintf(cmd.OutOrStdout(), "Task %s queued to resume at frame %d (%d slides kept)\n", args[1], resp.ResumeFrame, resp.SavedCount)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task %s queued from the start\n", args[1])
				return nil
			})
		},
	}
}

func newTaskImagesCommand(ctx *commandContext) *cobra.Command {
	var trashed bool
	cmd := &cobra.Command{
		Use:   "images <batch-id> <task-id>",
		Short: "List extracted slide images",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ListImages(ipc.ImagesRequest{BatchID: args[0], TaskID: args[1], Trashed: trashed})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp.Images)
				}
				if len(resp.Images) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No images")
					return nil
				}
				for _, name := range resp.Images {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&trashed, "trashed", false, "List trashed images instead")
	return cmd
}

func newTaskTrashImagesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "trash-images <batch-id> <task-id> <image...>",
		Short: "Move slide images to the task image trash",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TrashImages(ipc.ImagesRequest{BatchID: args[0], TaskID: args[1], Names: args[2:]})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Trashed %d image(s)\n", resp.Moved)
				return nil
			})
		},
	}
}

func newTaskRestoreImagesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restore-images <batch-id> <task-id> <image...>",
		Short: "Restore slide images from the task image trash",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.RestoreImages(ipc.ImagesRequest{BatchID: args[0], TaskID: args[1], Names: args[2:]})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Restored %d image(s)\n", resp.Moved)
				return nil
			})
		},
	}
}
