package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSymbolsCmd(a *app) *cobra.Command {
	var interval string
	cmd := &cobra.Command{
		Use:   "symbols",
		Short: "List symbols in the bar store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if interval == "" {
				interval = a.cfg.Analytics.Interval
			}
			syms, err := a.engine.Symbols(cmd.Context(), interval)
			if err != nil {
				return err
			}
			if a.jsonOut {
				if syms == nil {
					syms = []string{}
				}
				return writeJSON(syms)
			}
			for _, s := range syms {
				fmt.Println(s)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&interval, "interval", "", "bar interval (default analytics.interval)")
	return cmd
}

func newStrategiesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List registered strategies",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if a.jsonOut {
				return writeJSON(a.engine.Strategies())
			}
			for _, s := range a.engine.Strategies() {
				fmt.Println(s)
			}
			return nil
		},
	}
}
