package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newAggregateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "aggregate <period>",
		Short: "Recompute the monthly aggregate for a period (YYYY-MM)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := newApp(ctx, cfg, logger, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			agg, err := a.aggregator.Refresh(ctx, args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(agg)
		},
	}
}
