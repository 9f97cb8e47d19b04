package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jtejido/fingerlive/config"
	"github.com/jtejido/fingerlive/logging"
)

// Version is the application version.
const Version = "0.1.0"

var (
	configPath string

	cfg    *config.Config
	log    zerolog.Logger
	closer io.Closer
)

var rootCmd = &cobra.Command{
	Use:           "livenessd",
	Short:         "Fingerprint liveness and anti-spoofing engine",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if configPath != "" {
			cfg, err = config.Load(configPath)
		} else {
			cfg = config.LoadDefaultConfig()
		}
		if err != nil {
			return err
		}

		log, closer, err = logging.New(cfg.Log, os.Stderr)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closer != nil {
			closer.Close()
		}
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML configuration file (default: built-in thresholds)")
}
