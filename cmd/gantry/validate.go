package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matgreaves/gantry/materialize"
	"github.com/matgreaves/gantry/resolve"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the merged topology for problems",
	Long: `Merges all -f files and reports every problem it can find:
missing images, dangling or cyclic depends_on edges, malformed ports
and volumes, undeclared named volumes, and host port collisions after
resolving against the current environment.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		topo, err := loadTopology()
		if err != nil {
			return err
		}

		findings := resolve.Validate(topo)

		// Structural problems make materialization noise; only resolve
		// against the host once the topology itself is sound.
		if len(findings) == 0 {
			if _, err := materialize.Materialize(topo, materialize.OSLookup); err != nil {
				findings = append(findings, err.Error())
			}
		}

		if len(findings) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d services)\n", projectName(), len(topo.Services))
			return nil
		}

		for _, finding := range findings {
			fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", finding)
		}
		return fmt.Errorf("%d problem(s) found", len(findings))
	},
}
