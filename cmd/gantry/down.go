package main

import (
	"context"

	"github.com/spf13/cobra"
)

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop and remove the project's containers",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()

		// The topology is only used for stop ordering; teardown itself
		// works from container labels, so a missing file is not fatal.
		topo, err := loadTopology()
		if err != nil {
			logger.Warn().Err(err).Msg("topology not loadable, stopping by label only")
			topo = nil
		}

		eng := newEngine(logger)
		return eng.Down(context.Background(), projectName(), topo)
	},
}
