package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matgreaves/gantry/resolve"
)

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Print the start order",
	Long: `Prints the dependency-resolved start order as waves. Services in
the same wave have no edges between them and start concurrently.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		topo, err := loadTopology()
		if err != nil {
			return err
		}

		waves, err := resolve.StartOrder(topo)
		if err != nil {
			return err
		}

		for i, wave := range waves {
			fmt.Fprintf(cmd.OutOrStdout(), "%d: %s\n", i+1, strings.Join(wave, ", "))
		}
		return nil
	},
}
