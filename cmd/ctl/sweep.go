package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mindspace/internal/application"
	"mindspace/internal/infra/sched"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one retention pass and print what was purged",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Storage.Backend == "memory" {
				return fmt.Errorf("sweep needs a persistent backend; storage.backend is %q", cfg.Storage.Backend)
			}
			stores, err := application.OpenStores(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer stores.Close()

			sweeper := sched.NewRetentionSweeper(stores.Identities, stores.Sessions, cfg.Retention.SweepBatch, nil, logger)
			report, err := sweeper.SweepOnce(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "purged identities=%d sessions=%d\n", report.Identities, report.Sessions)
			return err
		},
	}
}
