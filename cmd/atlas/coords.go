package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/atlas/internal/coords"
)

func newCoordsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "coords <text...>",
		Short: "Show how coordinate input is parsed",
		Long: `Runs the coordinate parser on the given text and prints what would be sent
for resolution. Parentheses are dropped, a comma separates latitude and
longitude, and whitespace is used when there is no comma.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			q := coords.Resolve(strings.Join(args, " "))
			fmt.Fprintf(out, "Cleaned:   %q\n", q.Cleaned)
			fmt.Fprintf(out, "Split:     %v\n", q.Split)
			fmt.Fprintf(out, "Latitude:  %q\n", q.Lat)
			fmt.Fprintf(out, "Longitude: %q\n", q.Lng)
			if c, err := coords.ParseCoordinate(q.Lat, q.Lng); err == nil {
				fmt.Fprintf(out, "Decimal:   %s", c)
				if !c.InRange() {
					fmt.Fprint(out, " (out of range)")
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}
