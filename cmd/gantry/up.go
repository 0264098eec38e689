package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/matgreaves/gantry/engine"
	"github.com/matgreaves/gantry/materialize"
	"github.com/matgreaves/gantry/resolve"
)

var (
	upDetach      bool
	upMetricsAddr string
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Bring the topology up",
	Long: `Validates and materializes the merged topology, then starts every
service on the local Docker daemon in dependency order. Blocks until
interrupted, then tears the project down again; --detach returns as
soon as the stack is up.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()

		topo, err := loadTopology()
		if err != nil {
			return err
		}
		if findings := resolve.Validate(topo); len(findings) > 0 {
			for _, finding := range findings {
				logger.Error().Msg(finding)
			}
			return fmt.Errorf("%d problem(s) found", len(findings))
		}

		res, err := materialize.Materialize(topo, materialize.OSLookup)
		if err != nil {
			return err
		}

		var eng *engine.Engine
		if upMetricsAddr != "" {
			registry := prometheus.NewRegistry()
			eng = engine.New(logger, registry)
			srv := metricsServer(upMetricsAddr, registry, logger)
			defer srv.Close()
		} else {
			eng = engine.New(logger, nil)
		}
		eng.Dir = topologyDir()

		// Stream engine events alongside the engine's own logs.
		evCtx, evCancel := context.WithCancel(context.Background())
		defer evCancel()
		go streamEvents(evCtx, eng.Log, logger)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		proj := projectName()
		if err := eng.Up(ctx, proj, res); err != nil {
			return err
		}

		if upDetach {
			return nil
		}

		logger.Info().Str("project", proj).Msg("running; press Ctrl-C to stop")
		<-ctx.Done()
		stop() // restore default signal handling for a second Ctrl-C

		logger.Info().Str("project", proj).Msg("shutting down")
		return eng.Down(context.Background(), proj, topo)
	},
}

func init() {
	upCmd.Flags().BoolVarP(&upDetach, "detach", "d", false,
		"return once the stack is up instead of blocking")
	upCmd.Flags().StringVar(&upMetricsAddr, "metrics-addr", "",
		"serve prometheus metrics on this address (e.g. :9600)")
}

func streamEvents(ctx context.Context, log *engine.EventLog, logger zerolog.Logger) {
	for e := range log.Subscribe(ctx, 0, nil) {
		evt := logger.Info()
		if e.Error != "" {
			evt = logger.Error().Str("error", e.Error)
		}
		if e.Service != "" {
			evt = evt.Str("service", e.Service)
		}
		if e.Image != "" {
			evt = evt.Str("image", e.Image)
		}
		evt.Msg(string(e.Type))
	}
}

func metricsServer(addr string, registry *prometheus.Registry, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Info().Str("addr", addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server")
		}
	}()
	return srv
}
