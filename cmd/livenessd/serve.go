package main

import (
	"github.com/spf13/cobra"

	"github.com/jtejido/fingerlive/liveness"
	"github.com/jtejido/fingerlive/metrics"
	"github.com/jtejido/fingerlive/server"
	"github.com/jtejido/fingerlive/session"
	"github.com/jtejido/fingerlive/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the REST API and the websocket stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := liveness.New(cfg, liveness.WithLogger(log))
		if err != nil {
			return err
		}
		results, err := store.NewFileStore(cfg.Save)
		if err != nil {
			return err
		}

		m := metrics.New()
		sessions := session.NewManager(engine,
			session.WithStore(results),
			session.WithMetrics(m),
			session.WithLogger(log),
		)

		log.Info().
			Str("version", Version).
			Str("results", cfg.Save.OutputDir).
			Msg("starting livenessd")
		return server.New(cfg, sessions, m, log).Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
