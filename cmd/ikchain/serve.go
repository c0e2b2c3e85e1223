package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ikchain/pkg/log"
	"ikchain/pkg/metrics"
	"ikchain/pkg/session"
)

func newServeCmd(g *globalOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a chain over JSON-RPC and websocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := g.load(cmd)
			if err != nil {
				return err
			}
			if listen != "" {
				settings.Session.Listen = listen
			}

			m := metrics.NewSolverMetrics()
			state, err := newState(settings, m)
			if err != nil {
				return err
			}
			srv, err := session.New(session.Config{
				Addr:              settings.Session.Listen,
				BroadcastInterval: settings.Session.BroadcastInterval,
				Chain:             state,
				Metrics:           m,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				log.GetLogger("ikchain").Info("shutting down")
				srv.Stop()
			}()
			return srv.Start()
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (overrides [session] listen)")
	return cmd
}
