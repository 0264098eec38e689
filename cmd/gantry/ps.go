package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List the project's containers",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng := newEngine(newLogger())

		statuses, err := eng.List(context.Background(), projectName())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SERVICE\tCONTAINER\tIMAGE\tSTATE\tSTATUS")
		for _, s := range statuses {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				s.Service, strings.TrimPrefix(s.Name, "/"), s.Image, s.State, s.Status)
		}
		return w.Flush()
	},
}
