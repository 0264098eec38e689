package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/matgreaves/gantry/engine"
	"github.com/matgreaves/gantry/loader"
	"github.com/matgreaves/gantry/spec"
)

var (
	files    []string
	project  string
	logLevel string

	rootCmd = &cobra.Command{
		Use:   "gantry",
		Short: "Bring layered container topologies up and down",
		Long: `Gantry loads a base topology file plus any number of override files,
merges them, resolves the dependency order, and runs the result on the
local Docker daemon.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringSliceVarP(&files, "file", "f", []string{"gantry.yml"},
		"topology file; repeat to layer overrides (later files win)")
	rootCmd.PersistentFlags().StringVarP(&project, "project", "p", "",
		"project name (default: name of the first file's directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (trace, debug, info, warn, error)")

	viper.SetEnvPrefix("gantry")
	viper.AutomaticEnv()
	viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(orderCmd)
	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(downCmd)
	rootCmd.AddCommand(psCmd)
}

// newLogger builds the CLI logger: console output at the configured level.
func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(viper.GetString("log_level"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

// newEngine builds an engine without metrics; up wires its own registry.
func newEngine(logger zerolog.Logger) *engine.Engine {
	eng := engine.New(logger, nil)
	eng.Dir = topologyDir()
	return eng
}

// loadTopology merges all -f files in order.
func loadTopology() (*spec.Topology, error) {
	return loader.Load(files...)
}

// topologyDir is the base for relative bind-mount paths.
func topologyDir() string {
	return filepath.Dir(files[0])
}

// projectName returns the -p flag (or GANTRY_PROJECT), falling back to
// the name of the directory holding the first topology file.
func projectName() string {
	if p := viper.GetString("project"); p != "" {
		return sanitizeProject(p)
	}
	abs, err := filepath.Abs(topologyDir())
	if err != nil {
		return "default"
	}
	return sanitizeProject(filepath.Base(abs))
}

// sanitizeProject lowercases the name and keeps it to characters Docker
// accepts in container and network names.
func sanitizeProject(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	if b.Len() == 0 {
		return "default"
	}
	return b.String()
}
