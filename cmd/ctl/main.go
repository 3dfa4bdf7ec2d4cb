// Command mindspace-ctl is the operator CLI: schema migrations, one-off
// retention sweeps and key generation.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"mindspace/internal/config"
	"mindspace/internal/infra/logging"
)

var (
	configPath string
	devMode    bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "mindspace-ctl",
		Short:        "Operator tooling for the mindspace session engine",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	root.PersistentFlags().BoolVar(&devMode, "dev", false, "development mode")

	root.AddCommand(newMigrateCmd(), newSweepCmd(), newKeygenCmd())
	return root
}

// loadConfig reads the config named by --config. The caller decides what it
// needs from it.
func loadConfig() (*config.Config, *zerolog.Logger, error) {
	cfg, err := config.Load(configPath, devMode)
	if err != nil {
		return nil, nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, logging.New(cfg.Log, cfg.Runtime.Dev), nil
}
