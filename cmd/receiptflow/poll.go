package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newPollCmd() *cobra.Command {
	var (
		folderID string
		enqueue  bool
	)

	cmd := &cobra.Command{
		Use:   "poll [source]",
		Short: "Run one poll of a watched folder",
		Long: `Poll lists receipts created since the source's watermark and publishes a
discovery task for each new one. With --enqueue the poll itself is queued for
a worker instead of running in this process.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			sourceID := cfg.Poller.SourceID
			if len(args) == 1 {
				sourceID = args[0]
			}

			a, err := newApp(ctx, cfg, logger, appOptions{Folder: !enqueue})
			if err != nil {
				return err
			}
			defer a.Close()

			if enqueue {
				task, err := a.sources.TriggerPoll(ctx, sourceID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queued %s (%s)\n", task.ID, sourceID)
				return nil
			}

			if folderID == "" {
				var ok bool
				if folderID, ok = a.scheduler.FolderFor(sourceID); !ok {
					return fmt.Errorf("source %q has no folder, pass --folder", sourceID)
				}
			}

			result, err := a.poller.Poll(ctx, sourceID, folderID)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVar(&folderID, "folder", "", "folder to list (defaults to the source's configured folder)")
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "queue the poll for a worker instead of running it")
	return cmd
}
