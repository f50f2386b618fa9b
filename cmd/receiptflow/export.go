package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/receiptflow/internal/export"
)

func newExportCmd() *cobra.Command {
	var (
		output     string
		aggregates bool
	)

	cmd := &cobra.Command{
		Use:   "export [period]",
		Short: "Write a period's ledger, or every aggregate, as CSV",
		Args: func(cmd *cobra.Command, args []string) error {
			if aggregates {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx, stop := signalContext()
			defer stop()

			a, err := newApp(ctx, cfg, logger, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, ferr := os.Create(output)
				if ferr != nil {
					return ferr
				}
				defer func() {
					if cerr := f.Close(); err == nil {
						err = cerr
					}
				}()
				w = f
			}

			exp := export.NewExporter(a.ledger, a.aggregates)
			var n int
			if aggregates {
				n, err = exp.Aggregates(ctx, w)
			} else {
				n, err = exp.Ledger(ctx, args[0], w)
			}
			if err != nil {
				return err
			}
			if w != cmd.OutOrStdout() {
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d rows to %s\n", n, output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&aggregates, "aggregates", false, "export every monthly aggregate instead of one ledger")
	return cmd
}
