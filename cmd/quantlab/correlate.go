package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"quantlab/internal/report"
	"quantlab/internal/util"
)

func newCorrelateCmd(a *app) *cobra.Command {
	var interval, start, end string
	cmd := &cobra.Command{
		Use:   "correlate SYMBOL SYMBOL...",
		Short: "Correlation and covariance of returns across symbols",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := util.ParseDate(start)
			if err != nil {
				return err
			}
			to, err := util.ParseDate(end)
			if err != nil {
				return err
			}
			symbols := make([]string, len(args))
			for i, s := range args {
				symbols[i] = strings.ToUpper(s)
			}
			res, err := a.engine.Correlate(cmd.Context(), symbols, interval, from, to)
			if err != nil {
				return err
			}
			view := report.Correlation(res)
			if a.jsonOut {
				return writeJSON(view)
			}
			return report.WriteCorrelation(os.Stdout, view)
		},
	}
	cmd.Flags().StringVar(&interval, "interval", "", "bar interval (default analytics.interval)")
	cmd.Flags().StringVar(&start, "start", "", "first bar date, YYYY-MM-DD or RFC 3339")
	cmd.Flags().StringVar(&end, "end", "", "last bar date, YYYY-MM-DD or RFC 3339")
	return cmd
}
