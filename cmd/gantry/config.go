package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matgreaves/gantry/materialize"
	"github.com/matgreaves/gantry/spec"
)

var configResolve bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the merged topology",
	Long: `Merges all -f files and prints the resulting topology as YAML.
With --resolve, environment references and ports are also resolved
against the host environment.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		topo, err := loadTopology()
		if err != nil {
			return err
		}

		if configResolve {
			res, err := materialize.Materialize(topo, materialize.OSLookup)
			if err != nil {
				return err
			}
			topo = res.Topology
		}

		out, err := spec.Encode(topo)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	configCmd.Flags().BoolVar(&configResolve, "resolve", false,
		"interpolate environment and ports against the host environment")
}
