package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/erazemk/darilo/internal/notify"
	"github.com/erazemk/darilo/internal/store"
)

func newReconcileCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Rebuild donation and request claim sets from the claims",
		Long: `reconcile rewrites every donation's active claims and every shelter
request's promised and fulfilled volunteers so they match the claims.
Run it after a crash left dependent updates unapplied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			database, err := openDatabase(a.cfg, false)
			if err != nil {
				return err
			}
			defer database.Close()

			coord := newCoordinator(a.cfg, store.NewSQLite(database), notify.Discard{})
			fixed, err := coord.Repair(cmd.Context())
			if err != nil {
				return fmt.Errorf("repairing: %w", err)
			}
			slog.Info("reconcile finished", "rewritten", fixed)
			fmt.Fprintf(cmd.OutOrStdout(), "%d entities rewritten\n", fixed)
			return nil
		},
	}
}
