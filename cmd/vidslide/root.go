package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	ctx := newCommandContext(flags)

	rootCmd := &cobra.Command{
		Use:           "vidslide",
		Short:         "Extract lecture slides from batches of videos",
		Long:          "vidslide talks to the vidslided daemon, which queues videos in batches and extracts a JPEG per distinct slide.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	persistent := rootCmd.PersistentFlags()
	persistent.StringVar(&flags.socket, "socket", "", "Path to the vidslide daemon socket")
	persistent.StringVarP(&flags.config, "config", "c", "", "Configuration file path")
	persistent.BoolVar(&flags.json, "json", false, "Print raw JSON responses")

	rootCmd.AddCommand(
		newDaemonCommand(ctx),
		newBatchCommand(ctx),
		newTaskCommand(ctx),
		newZoneCommand(ctx),
		newLogsCommand(ctx),
		newTestNotifyCommand(ctx),
		newConfigCommand(ctx),
	)
	return rootCmd
}
