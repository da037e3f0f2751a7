package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"quantlab/internal/report"
	"quantlab/internal/util"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		interval   string
		start, end string
		series     bool
	)
	cmd := &cobra.Command{
		Use:   "analyze SYMBOL",
		Short: "Returns, statistics, normality tests, VaR/CVaR and indicators for one symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := util.ParseDate(start)
			if err != nil {
				return err
			}
			to, err := util.ParseDate(end)
			if err != nil {
				return err
			}
			res, err := a.engine.Analyze(cmd.Context(), strings.ToUpper(args[0]), interval, from, to)
			if err != nil {
				return err
			}
			view := report.Analysis(res, series)
			if a.jsonOut {
				return writeJSON(view)
			}
			return report.WriteAnalysis(os.Stdout, view)
		},
	}
	cmd.Flags().StringVar(&interval, "interval", "", "bar interval (default analytics.interval)")
	cmd.Flags().StringVar(&start, "start", "", "first bar date, YYYY-MM-DD or RFC 3339")
	cmd.Flags().StringVar(&end, "end", "", "last bar date, YYYY-MM-DD or RFC 3339")
	cmd.Flags().BoolVar(&series, "series", false, "include full indicator series in JSON output")
	return cmd
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
