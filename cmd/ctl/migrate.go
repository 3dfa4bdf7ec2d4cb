package main

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mindspace/internal/infra/db/postgres/migrations"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			if err := migrations.MigrateUp(db); err != nil {
				return fmt.Errorf("migrate up: %w", err)
			}
			st, err := migrations.ReadStatus(db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", st.Current)
			return nil
		},
	}, &cobra.Command{
		Use:   "status",
		Short: "Show the schema version against the embedded migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			st, err := migrations.ReadStatus(db)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "current: %d\nlatest:  %d\ndirty:   %t\n", st.Current, st.Latest, st.Dirty)
			if !st.UpToDate() {
				return errors.New("schema is not up to date")
			}
			return nil
		},
	})
	return cmd
}

func openDB() (*sql.DB, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is not set")
	}
	return migrations.Open(cfg.Database.URL)
}
