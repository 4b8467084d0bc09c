package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/CreatorVault/internal/pkg/billing"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/cache"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/config"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/database"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/env"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/locker"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/providers"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "ledgerctl",
		Short:   "Operator tooling for the CreatorVault ledger",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := env.SetupEnvFile(); err != nil && !errors.Is(err, env.ErrNoEnvFile) {
				return err
			}
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(balanceCmd())
	rootCmd.AddCommand(payoutsCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(purgeCmd())
	rootCmd.AddCommand(apiKeyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLedger connects like the server does, sharing its Redis locks.
func newLedger() (*billing.Service, error) {
	database.SetupDatabase()
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	registry := providers.NewRegistryFromConfig(providers.LoadConfig())
	return billing.NewServiceFromDB(database.GetDB(), registry, cfg,
		billing.WithLocker(locker.NewRedis(cache.GetClient())),
	), nil
}
