package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/atlas/internal/config"
)

func newCallsCmd() *cobra.Command {
	var (
		configPath string
		limit      int
		summary    bool
	)

	cmd := &cobra.Command{
		Use:   "calls",
		Short: "List recent inference calls",
		Long:  "Shows the most recent model requests from the call log, newest first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCalls(cmd, configPath, limit, summary)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to Atlas config file")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of calls to show")
	cmd.Flags().BoolVar(&summary, "summary", false, "show per-operation totals instead")
	return cmd
}

func runCalls(cmd *cobra.Command, configPath string, limit int, summary bool) error {
	out := cmd.OutOrStdout()
	loadEnv()
	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return err
	}
	store, _, err := openCallLog(cfg)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("call log is disabled (database.driver: none)")
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if summary {
		ops, err := store.Summary(cmd.Context())
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Fprintln(out, "No calls recorded.")
			return nil
		}
		fmt.Fprintln(w, "OPERATION\tCALLS\tERRORS\tAVG LATENCY")
		for _, s := range ops {
			fmt.Fprintf(w, "%s\t%d\t%d\t%.0fms\n", s.Operation, s.Calls, s.Errors, s.AvgLatencyMs)
		}
		return w.Flush()
	}

	calls, err := store.Recent(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(calls) == 0 {
		fmt.Fprintln(out, "No calls recorded.")
		return nil
	}
	fmt.Fprintln(w, "TIME\tOPERATION\tOUTCOME\tLATENCY\tROUND\tERROR")
	for _, c := range calls {
		round := c.Round
		if len(round) > 8 {
			round = round[:8]
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%dms\t%s\t%s\n",
			c.CreatedAt.Local().Format("2006-01-02 15:04:05"), c.Operation, c.Outcome, c.LatencyMs, round, truncate(c.Error, 60))
	}
	return w.Flush()
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
